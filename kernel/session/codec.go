package session

import (
	"encoding/json"
	"time"
)

// Wire form used by the HTTP surface and the file store. Timestamps are Unix
// milliseconds.

type turnJSON struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

type stateJSON struct {
	Turns       []turnJSON `json:"turns"`
	Summary     string     `json:"summary"`
	LastUpdated int64      `json:"lastUpdated"`
}

type windowJSON struct {
	Summary string     `json:"summary"`
	Turns   []turnJSON `json:"turns"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal(toTurnJSON(t))
}

func (t *Turn) UnmarshalJSON(raw []byte) error {
	var in turnJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	*t = fromTurnJSON(in)
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Turns:       toTurnsJSON(s.Turns),
		Summary:     s.Summary,
		LastUpdated: millis(s.LastUpdated),
	})
}

func (s *State) UnmarshalJSON(raw []byte) error {
	var in stateJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	turns := make([]Turn, 0, len(in.Turns))
	for _, t := range in.Turns {
		turns = append(turns, fromTurnJSON(t))
	}
	*s = State{Turns: turns, Summary: in.Summary, LastUpdated: fromMillis(in.LastUpdated)}
	return nil
}

func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{Summary: w.Summary, Turns: toTurnsJSON(w.Turns)})
}

func toTurnsJSON(turns []Turn) []turnJSON {
	out := make([]turnJSON, 0, len(turns))
	for _, t := range turns {
		out = append(out, toTurnJSON(t))
	}
	return out
}

func toTurnJSON(t Turn) turnJSON {
	return turnJSON{Role: t.Role, Content: t.Content, TS: millis(t.Timestamp)}
}

func fromTurnJSON(t turnJSON) Turn {
	return Turn{Role: t.Role, Content: t.Content, Timestamp: fromMillis(t.TS)}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
