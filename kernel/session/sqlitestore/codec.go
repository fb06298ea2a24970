package sqlitestore

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("sqlitestore: cbor encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("sqlitestore: cbor decoder initialization failed: " + err.Error())
	}
}

// stateRecord is the stored blob layout. Timestamps are unix millis so the
// blob matches the JSON wire form field for field.
type stateRecord struct {
	Turns       []turnRecord `cbor:"turns"`
	Summary     string       `cbor:"summary,omitempty"`
	LastUpdated int64        `cbor:"lastUpdated"`
}

type turnRecord struct {
	Role    string `cbor:"role"`
	Content string `cbor:"content"`
	TS      int64  `cbor:"ts"`
}

func encodeState(state *session.State) ([]byte, error) {
	rec := stateRecord{
		Turns:       make([]turnRecord, 0, len(state.Turns)),
		Summary:     state.Summary,
		LastUpdated: state.LastUpdated.UnixMilli(),
	}
	for _, t := range state.Turns {
		rec.Turns = append(rec.Turns, turnRecord{Role: string(t.Role), Content: t.Content, TS: t.Timestamp.UnixMilli()})
	}
	return encMode.Marshal(rec)
}

func decodeState(raw []byte) (*session.State, error) {
	var rec stateRecord
	if err := decMode.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	state := &session.State{
		Turns:       make([]session.Turn, 0, len(rec.Turns)),
		Summary:     rec.Summary,
		LastUpdated: time.UnixMilli(rec.LastUpdated),
	}
	for _, t := range rec.Turns {
		state.Turns = append(state.Turns, session.Turn{Role: session.Role(t.Role), Content: t.Content, Timestamp: time.UnixMilli(t.TS)})
	}
	return state, nil
}
