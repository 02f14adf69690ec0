package inference

import "fmt"

// Generation stages reported by GenerationError.
const (
	StagePrefill = "prefill"
	StageDecode  = "decode"
)

// TokenizationError means the prompt could not be encoded. No model work has
// been done when it is returned.
type TokenizationError struct {
	Err error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenization failed: %v", e.Err)
}

func (e *TokenizationError) Unwrap() error { return e.Err }

// GenerationError means the model failed mid-run. The incremental cache is
// unrecoverable at that point, so the run is abandoned without a result.
type GenerationError struct {
	Stage string
	Step  int // -1 during prefill
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Stage == StagePrefill {
		return fmt.Sprintf("generation failed during prefill: %v", e.Err)
	}
	return fmt.Sprintf("generation failed at %s step %d: %v", e.Stage, e.Step, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
