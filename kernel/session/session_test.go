package session

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateAppend_EvictsOldestBeyondMaxTurns(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	state := NewState(now)
	for i := 1; i <= 25; i++ {
		state.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("turn %d", i)}, now.Add(time.Duration(i)*time.Millisecond))
		require.LessOrEqual(t, len(state.Turns), MaxTurns)
	}
	require.Len(t, state.Turns, MaxTurns)
	assert.Equal(t, "turn 6", state.Turns[0].Content)
	assert.Equal(t, "turn 25", state.Turns[MaxTurns-1].Content)
	assert.Equal(t, now.Add(25*time.Millisecond), state.LastUpdated)
}

func TestStateClone_IsDeep(t *testing.T) {
	state := NewState(time.Now())
	state.Append(Turn{Role: RoleUser, Content: "hi"}, time.Now())
	cp := state.Clone()
	cp.Turns[0].Content = "changed"
	cp.Turns = append(cp.Turns, Turn{Role: RoleAssistant, Content: "extra"})
	assert.Equal(t, "hi", state.Turns[0].Content)
	assert.Len(t, state.Turns, 1)
}

func TestBuildWindow_DefaultsAndBudget(t *testing.T) {
	state := NewState(time.Now())
	state.Summary = strings.Repeat("s", 30) // 10 tokens
	state.Append(Turn{Role: RoleUser, Content: strings.Repeat("a", 30)}, time.Now())      // 10
	state.Append(Turn{Role: RoleAssistant, Content: strings.Repeat("b", 60)}, time.Now()) // 20
	state.Append(Turn{Role: RoleUser, Content: strings.Repeat("c", 30)}, time.Now())      // 10

	window := BuildWindow(state, 40)
	require.Len(t, window.Turns, 2)
	assert.Equal(t, state.Turns[1:], window.Turns)
	assert.Equal(t, state.Summary, window.Summary)

	all := BuildWindow(state, 0)
	assert.Len(t, all.Turns, 3, "non-positive budget selects the default")

	none := BuildWindow(state, 5)
	assert.Empty(t, none.Turns, "summary alone exceeds budget")
}

func TestBuildWindow_StopsAtFirstOverflowingTurn(t *testing.T) {
	state := NewState(time.Now())
	state.Append(Turn{Role: RoleUser, Content: "xyz"}, time.Now())                      // 1
	state.Append(Turn{Role: RoleAssistant, Content: strings.Repeat("b", 300)}, time.Now()) // 100
	state.Append(Turn{Role: RoleUser, Content: "abc"}, time.Now())                      // 1

	window := BuildWindow(state, 50)
	require.Len(t, window.Turns, 1, "older small turns behind an overflowing one are never included")
	assert.Equal(t, "abc", window.Turns[0].Content)
}

func TestBuildWindow_AlwaysContiguousSuffixWithinBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		state := NewState(time.Now())
		state.Summary = strings.Repeat("s", rng.Intn(60))
		for i := 0; i < rng.Intn(MaxTurns+5); i++ {
			state.Append(Turn{Role: RoleUser, Content: strings.Repeat("x", 1+rng.Intn(90))}, time.Now())
		}
		budget := 1 + rng.Intn(120)
		window := BuildWindow(state, budget)

		cost := EstimateTokens(window.Summary)
		for _, turn := range window.Turns {
			cost += EstimateTokens(turn.Content)
		}
		if len(window.Turns) > 0 {
			require.LessOrEqual(t, cost, float64(budget))
		}
		offset := len(state.Turns) - len(window.Turns)
		require.GreaterOrEqual(t, offset, 0)
		assert.Equal(t, state.Turns[offset:], window.Turns)
	}
}

func TestEstimateTokens_CountsRunes(t *testing.T) {
	assert.InDelta(t, 1.0, EstimateTokens("héé"), 1e-9)
}

func TestStateJSON_WireShape(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	state := &State{
		Turns:       []Turn{{Role: RoleUser, Content: "hi", Timestamp: ts}},
		Summary:     "- goal",
		LastUpdated: ts,
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{"turns":[{"role":"user","content":"hi","ts":1700000000123}],"summary":"- goal","lastUpdated":1700000000123}`, string(raw))

	var decoded State
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.LastUpdated.Equal(ts))
	assert.Equal(t, "hi", decoded.Turns[0].Content)

	empty, err := json.Marshal(NewState(ts))
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"turns":[]`)
}

func TestValidateID(t *testing.T) {
	assert.Error(t, ValidateID(""))
	assert.Error(t, ValidateID("   "))
	assert.Error(t, ValidateID(strings.Repeat("a", 129)))
	assert.NoError(t, ValidateID("session-1"))
}
