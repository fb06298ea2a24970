package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Step names, in execution order.
const (
	StepIngestInput    = "ingest_input"
	StepLoadMemory     = "load_memory"
	StepPrepareContext = "prepare_context"
	StepCallLLM        = "call_llm"
	StepUpdateMemory   = "update_memory"
	StepEmitStream     = "emit_stream"
)

// StepError tags a failure with the step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow: step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (p *Pipeline) step(ctx context.Context, log *zap.Logger, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	fields := []zap.Field{zap.String("step", name), zap.Duration("elapsed", time.Since(start))}
	if err != nil {
		log.Debug("step failed", append(fields, zap.Error(err))...)
		return &StepError{Step: name, Err: err}
	}
	log.Debug("step done", fields...)
	return nil
}
