package workflow

import (
	"context"
	"io"
)

// Local starts the pipeline in-process. Generation happens before Start
// returns; the body streams the paced reply.
type Local struct {
	Pipeline *Pipeline
}

func (l *Local) Start(ctx context.Context, in Input) (io.ReadCloser, error) {
	reply, err := l.Pipeline.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	go func() {
		_ = pw.CloseWithError(reply.Emit(ctx, pw, nil))
	}()
	return pr, nil
}
