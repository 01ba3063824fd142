package canonical

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actsim/internal/sim"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"float", 0.5, "0.5"},
		{"bool true", true, "true"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []int{1, 2, 3}, "[1,2,3]"},
		{"html not escaped", "<a&b>", `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  3,
	}

	got, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":3,"zebra":1}`, string(got))
}

func TestMarshalNFCNormalization(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent
	composed, err := Marshal("caf\u00e9")
	require.NoError(t, err)
	decomposed, err := Marshal("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalUTF16KeyOrder(t *testing.T) {
	// The emoji's high surrogate 0xD83D sorts before 0xFF61 even though
	// its code point is larger.
	obj := map[string]any{"\uFF61": 1, "\U0001F600": 2}
	got, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFF61\":1}", string(got))
}

func TestMarshalStructUsesJSONMethods(t *testing.T) {
	d := sim.Decisions{Act1: "A"}
	got, err := Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"act1":"A","act2":null,"act3":null,"act4":null}`, string(got))
}

func TestMarshalUnsupported(t *testing.T) {
	_, err := Marshal(make(chan int))
	assert.Error(t, err)
}

func TestEventID_StableAcrossRepresentations(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a := sim.NewDecisionEvent(at, 1, "B")

	b := a
	b.Timestamp = at.In(time.FixedZone("CET", 3600))
	assert.Equal(t, MustEventID(a), MustEventID(b))

	c := sim.Event{Timestamp: at, Type: sim.EventActStarted, Act: 2}
	d := sim.Event{Timestamp: at, Type: sim.EventActStarted, Act: 2, Payload: map[string]any{}}
	assert.Equal(t, MustEventID(c), MustEventID(d))
}

func TestEventID_SurvivesJSONRoundTrip(t *testing.T) {
	e := sim.NewDecisionEvent(time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC), 2, "C2")
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back sim.Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, MustEventID(e), MustEventID(back))
}

func TestEventID_DistinguishesFields(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	base := MustEventID(sim.NewDecisionEvent(at, 1, "B"))

	assert.NotEqual(t, base, MustEventID(sim.NewDecisionEvent(at, 1, "C")))
	assert.NotEqual(t, base, MustEventID(sim.NewDecisionEvent(at, 2, "B")))
	assert.NotEqual(t, base, MustEventID(sim.NewDecisionEvent(at.Add(time.Nanosecond), 1, "B")))
	assert.Len(t, base, 64)
}

func TestStateDigest(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s1 := sim.NewState("p", "s", sim.ModeNoAssistance, at)
	s2 := sim.NewState("p", "s", sim.ModeNoAssistance, at)

	d1, err := StateDigest(s1)
	require.NoError(t, err)
	d2, err := StateDigest(s2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	s2.CurrentAct = 2
	d3, err := StateDigest(s2)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
