package export

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/contextwatch/internal/inference"
	"github.com/23skdu/contextwatch/internal/logger"
)

// WriteIPC writes the run as a single-batch Arrow IPC file.
func WriteIPC(w io.Writer, res *inference.Result) error {
	mem := memory.NewGoAllocator()
	rec, err := BuildRecord(mem, res)
	if err != nil {
		return err
	}
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create IPC writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close IPC writer: %w", err)
	}
	return nil
}

func WriteIPCFile(path string, res *inference.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteIPC(f, res); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Log.Info("Wrote step snapshots", "path", path, "rows", res.GeneratedTokenCount)
	return nil
}
