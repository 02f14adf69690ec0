package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/23skdu/contextwatch/internal/config"
	"github.com/23skdu/contextwatch/internal/engine"
	"github.com/23skdu/contextwatch/internal/export"
	"github.com/23skdu/contextwatch/internal/inference"
	"github.com/23skdu/contextwatch/internal/logger"
	"github.com/23skdu/contextwatch/internal/monitoring"
	"github.com/23skdu/contextwatch/internal/ollama"
	"github.com/23skdu/contextwatch/internal/report"
)

// runFlags mirrors config.RunConfig; only flags set on the command line
// override values from --config.
type runFlags struct {
	cfg        config.RunConfig
	noProgress bool
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	def := config.Default()
	fs.StringVar(&f.cfg.Model, "model", "", "GGUF path or Ollama model name (e.g. llama3:8b)")
	fs.StringVar(&f.cfg.Prompt, "prompt", "", "Text prompt to feed to the model")
	fs.IntVar(&f.cfg.MaxTokens, "max-tokens", def.MaxTokens, "Maximum number of tokens to generate")
	fs.Float64Var(&f.cfg.WarnThreshold, "warn-threshold", def.WarnThreshold, "Context usage fraction that triggers a warning")
	fs.IntVar(&f.cfg.RollingWindow, "rolling-window", def.RollingWindow, "Steps in the rolling latency average")
	fs.StringVar(&f.cfg.MetricsAddr, "metrics-addr", "", "Serve /metrics, /health and /status on this address during the run")
	fs.StringVar(&f.cfg.FlightAddr, "flight-addr", "", "Upload per-step snapshots to this Arrow Flight endpoint")
	fs.StringVar(&f.cfg.ArrowOut, "arrow-out", "", "Write per-step snapshots to this Arrow IPC file")
	fs.BoolVar(&f.cfg.JSON, "json", false, "Print the full result as JSON")
	fs.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
}

// resolveConfig layers defaults, the --config file and explicitly set flags.
func resolveConfig(fs *pflag.FlagSet, rf *rootFlags, f *runFlags) (config.RunConfig, error) {
	cfg := config.Default()
	if rf.configFile != "" {
		loaded, err := config.Load(rf.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else {
		cfg.LogLevel, cfg.LogFormat = rf.logLevel, rf.logFormat
	}

	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "model":
			cfg.Model = f.cfg.Model
		case "prompt":
			cfg.Prompt = f.cfg.Prompt
		case "max-tokens":
			cfg.MaxTokens = f.cfg.MaxTokens
		case "warn-threshold":
			cfg.WarnThreshold = f.cfg.WarnThreshold
		case "rolling-window":
			cfg.RollingWindow = f.cfg.RollingWindow
		case "metrics-addr":
			cfg.MetricsAddr = f.cfg.MetricsAddr
		case "flight-addr":
			cfg.FlightAddr = f.cfg.FlightAddr
		case "arrow-out":
			cfg.ArrowOut = f.cfg.ArrowOut
		case "json":
			cfg.JSON = f.cfg.JSON
		case "no-progress":
			cfg.Progress = !f.noProgress
		case "log-level":
			cfg.LogLevel = rf.logLevel
		case "log-format":
			cfg.LogFormat = rf.logFormat
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newRunCmd(rf *rootFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a model, run stepwise inference, and report token counts",
		Example: `  contextwatch run --model ./model.gguf --prompt "Hello" --max-tokens 20
  contextwatch run --model llama3:8b --prompt "Hello" --json
  contextwatch run --config run.yaml --arrow-out steps.arrow`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), rf, f)
			if err != nil {
				return err
			}
			logger.Setup(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = executeRun(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// executeRun performs one generation run with the configured side outputs.
// The health monitor, when enabled, only lives for the duration of the run.
func executeRun(ctx context.Context, cfg config.RunConfig, out, progressOut io.Writer) (*inference.Result, error) {
	var hm *monitoring.HealthMonitor
	if cfg.MetricsAddr != "" {
		hm = monitoring.NewHealthMonitor(nil)
		go func() {
			if err := hm.Start(cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Error("Health monitor error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hm.Stop(shutdownCtx)
		}()
	}

	fail := func(err error) (*inference.Result, error) {
		if hm != nil {
			hm.RecordFailure(err)
		}
		return nil, err
	}

	path, err := ollama.Resolve(cfg.Model)
	if err != nil {
		return fail(err)
	}
	eng, tok, err := engine.Open(path)
	if err != nil {
		return fail(err)
	}

	opts := inference.DefaultOptions()
	opts.MaxTokens = cfg.MaxTokens
	opts.WarnThreshold = cfg.WarnThreshold
	opts.RollingWindow = cfg.RollingWindow

	var bar *progressbar.ProgressBar
	if cfg.Progress && !cfg.JSON && cfg.MaxTokens > 0 {
		bar = progressbar.NewOptions(cfg.MaxTokens,
			progressbar.OptionSetWriter(progressOut),
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts.OnStep = func(inference.StepEvent) { _ = bar.Add(1) }
	}

	res, err := inference.Run(ctx, eng, tok, cfg.Prompt, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fail(err)
	}
	if hm != nil {
		hm.RecordRun(res)
	}

	if cfg.ArrowOut != "" {
		if err := export.WriteIPCFile(cfg.ArrowOut, res); err != nil {
			return fail(fmt.Errorf("failed to write arrow output: %w", err))
		}
	}
	if cfg.FlightAddr != "" {
		pub, err := export.NewFlightPublisher(cfg.FlightAddr)
		if err != nil {
			return fail(err)
		}
		err = pub.Publish(ctx, res)
		_ = pub.Close()
		if err != nil {
			return fail(err)
		}
	}

	if cfg.JSON {
		return res, report.JSON(out, res)
	}
	return res, report.Text(out, res)
}
