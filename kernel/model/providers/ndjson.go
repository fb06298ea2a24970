package providers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/OnslaughtSnail/edgechat/kernel/model"
)

// streamBody runs produce on its own goroutine and exposes the fragments it
// emits as a newline-delimited JSON body of model.StreamChunk records. A nil
// return from produce appends the terminal done record; an error breaks the
// body with that error. Closing the body calls cancel so produce can stop.
func streamBody(cancel context.CancelFunc, produce func(emit func(delta string) error) error) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		enc := json.NewEncoder(pw)
		err := produce(func(delta string) error {
			if delta == "" {
				return nil
			}
			return enc.Encode(model.StreamChunk{Delta: delta})
		})
		if err == nil {
			err = enc.Encode(model.StreamChunk{Done: true})
		}
		_ = pw.CloseWithError(err)
	}()
	return &pipeBody{PipeReader: pr, cancel: cancel}
}

type pipeBody struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (b *pipeBody) Close() error {
	b.cancel()
	return b.PipeReader.Close()
}
