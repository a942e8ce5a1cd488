package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-dispatch/internal/codec"
)

func TestExecutionRecord_Status(t *testing.T) {
	var r ExecutionRecord
	require.Equal(t, StatePending, r.Status())
	require.ErrorIs(t, r.Err(), ErrIncompleteRecord)

	r.Append(Outcome{UnitID: "a", State: StateComplete})
	r.Done = true
	require.Equal(t, StateComplete, r.Status())
	require.NoError(t, r.Err())
	require.False(t, r.Failed())

	r.Append(Outcome{UnitID: "b", State: StateError, Failure: "boom"})
	require.True(t, r.Failed())
	require.Equal(t, StateError, r.Status())
	require.ErrorIs(t, r.Err(), ErrRemoteUnit)
	require.ErrorContains(t, r.Err(), "b: boom")
}

func TestEnvelope_WireRoundTrip(t *testing.T) {
	env := Envelope{
		Payload:       []byte{0x00, 0xff, 'x'},
		EnqueuedAtMs:  1700000000000,
		CorrelationID: "c-1",
		Mode:          ModeSingle,
		Record: ExecutionRecord{
			Outcomes: []Outcome{
				{UnitID: "c", State: StateComplete},
				{UnitID: "a", State: StateError, Failure: "boom"},
				{UnitID: "b", State: StateComplete},
			},
			Next: 3,
			Done: true,
		},
	}

	for _, c := range []codec.Codec{codec.JSONCodec{}, codec.MsgpackCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(env)
			require.NoError(t, err)

			var got Envelope
			require.NoError(t, c.Unmarshal(data, &got))
			require.Equal(t, env, got)
		})
	}
}

func TestEnvelope_String(t *testing.T) {
	env := Envelope{
		CorrelationID: "c-1",
		Mode:          ModeAll,
		Payload:       []byte("abc"),
		Record: ExecutionRecord{Outcomes: []Outcome{
			{UnitID: "a", State: StateComplete},
			{UnitID: "b", State: StateError},
		}},
	}
	s := env.String()
	require.Contains(t, s, "mode=ALL")
	require.Contains(t, s, "payload=3B")
	require.Contains(t, s, "status=ERROR")
	require.Contains(t, s, "outcomes=[a:COMPLETE b:ERROR]")
}

func TestParseSendMode(t *testing.T) {
	m, err := ParseSendMode("")
	require.NoError(t, err)
	require.Equal(t, ModeSingle, m)

	m, err = ParseSendMode("all")
	require.NoError(t, err)
	require.Equal(t, ModeAll, m)

	_, err = ParseSendMode("some")
	require.ErrorIs(t, err, ErrConfiguration)
}
