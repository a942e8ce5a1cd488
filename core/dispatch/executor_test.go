package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/core/unit"
	"github.com/codewandler/clstr-dispatch/internal/codec"
)

func nativeTranslator(t *testing.T) message.Translator {
	t.Helper()
	tr, err := message.NewNativeTranslator(codec.NameJSON)
	require.NoError(t, err)
	return tr
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) unit(id string, err error) unit.ProcessingUnit {
	return unit.Func(id, func(context.Context, *message.Message) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.calls = append(l.calls, id)
		return err
	})
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func newEnvelope(t *testing.T, tr message.Translator, msg *message.Message) Envelope {
	t.Helper()
	payload, err := tr.Encode(msg)
	require.NoError(t, err)
	return Envelope{Payload: payload, Mode: ModeSingle}
}

func TestExecutor_ChainHaltsOnError(t *testing.T) {
	var (
		tr    = nativeTranslator(t)
		calls = &callLog{}
	)
	exec, err := NewExecutor(ExecutorOptions{
		Translator: tr,
		Units: []unit.ProcessingUnit{
			calls.unit("A", nil),
			calls.unit("B", errors.New("boom")),
			calls.unit("C", nil),
		},
	})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New([]byte("x")))
	require.NoError(t, exec.Execute(t.Context(), &env))

	require.Equal(t, []string{"A", "B"}, calls.get())
	require.Equal(t, []Outcome{
		{UnitID: "A", State: StateComplete},
		{UnitID: "B", State: StateError, Failure: "boom"},
	}, env.Record.Outcomes)
	require.Equal(t, StateError, env.Record.Status())
	require.False(t, env.Record.Done)
}

func TestExecutor_ContinueOnError(t *testing.T) {
	var (
		tr    = nativeTranslator(t)
		calls = &callLog{}
	)
	exec, err := NewExecutor(ExecutorOptions{
		Translator:      tr,
		ContinueOnError: true,
		Units: []unit.ProcessingUnit{
			calls.unit("A", nil),
			calls.unit("B", errors.New("boom")),
			calls.unit("C", nil),
		},
	})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New([]byte("x")))
	require.NoError(t, exec.Execute(t.Context(), &env))

	require.Equal(t, []string{"A", "B", "C"}, calls.get())
	require.Equal(t, []Outcome{
		{UnitID: "A", State: StateComplete},
		{UnitID: "B", State: StateError, Failure: "boom"},
		{UnitID: "C", State: StateComplete},
	}, env.Record.Outcomes)
	require.Equal(t, StateError, env.Record.Status())
	require.True(t, env.Record.Done)
}

func TestExecutor_MutatesPayload(t *testing.T) {
	tr := nativeTranslator(t)
	exec, err := NewExecutor(ExecutorOptions{
		Translator: tr,
		Units: []unit.ProcessingUnit{
			unit.Upper("upper"),
			unit.SetHeader("tag", "processed", "yes"),
		},
	})
	require.NoError(t, err)

	msg := message.New([]byte("hello"))
	env := newEnvelope(t, tr, msg)
	require.NoError(t, exec.Execute(t.Context(), &env))
	require.Equal(t, StateComplete, env.Record.Status())

	got, err := tr.Decode(env.Payload)
	require.NoError(t, err)
	require.Equal(t, msg.ID, got.ID)
	require.Equal(t, "HELLO", string(got.Payload))
	v, _ := got.Header("processed")
	require.Equal(t, "yes", v)
}

func TestExecutor_NestedChainIsOneUnit(t *testing.T) {
	var (
		tr    = nativeTranslator(t)
		calls = &callLog{}
	)
	exec, err := NewExecutor(ExecutorOptions{
		Translator: tr,
		Units: []unit.ProcessingUnit{
			unit.NewChain("inner", calls.unit("A", nil), calls.unit("B", nil)),
			calls.unit("C", nil),
		},
	})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New(nil))
	require.NoError(t, exec.Execute(t.Context(), &env))
	require.Equal(t, []string{"A", "B", "C"}, calls.get())
	require.Len(t, env.Record.Outcomes, 2)
	require.Equal(t, "inner", env.Record.Outcomes[0].UnitID)
}

func TestExecutor_ResumesAtNext(t *testing.T) {
	var (
		tr    = nativeTranslator(t)
		calls = &callLog{}
	)
	exec, err := NewExecutor(ExecutorOptions{
		Translator: tr,
		Units:      []unit.ProcessingUnit{calls.unit("A", nil), calls.unit("B", nil)},
	})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New(nil))
	env.Record = ExecutionRecord{Outcomes: []Outcome{{UnitID: "A", State: StateComplete}}, Next: 1}
	require.NoError(t, exec.Execute(t.Context(), &env))

	require.Equal(t, []string{"B"}, calls.get())
	require.Len(t, env.Record.Outcomes, 2)
	require.Equal(t, StateComplete, env.Record.Status())
}

func TestExecutor_RecoversPanic(t *testing.T) {
	tr := nativeTranslator(t)
	exec, err := NewExecutor(ExecutorOptions{
		Translator: tr,
		Units: []unit.ProcessingUnit{
			unit.Func("panics", func(context.Context, *message.Message) error { panic("oops") }),
		},
	})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New(nil))
	require.NoError(t, exec.Execute(t.Context(), &env))
	require.Equal(t, StateError, env.Record.Status())
	require.Contains(t, env.Record.Outcomes[0].Failure, "oops")
}

func TestExecutor_CancelledContext(t *testing.T) {
	var (
		tr    = nativeTranslator(t)
		calls = &callLog{}
	)
	exec, err := NewExecutor(ExecutorOptions{
		Translator:      tr,
		ContinueOnError: true,
		Units:           []unit.ProcessingUnit{calls.unit("A", nil), calls.unit("B", nil)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	env := newEnvelope(t, tr, message.New(nil))
	require.NoError(t, exec.Execute(ctx, &env))
	require.Empty(t, calls.get())
	require.Empty(t, env.Record.Outcomes)
	require.Zero(t, env.Record.Next)
	require.False(t, env.Record.Done)
	require.Equal(t, StatePending, env.Record.Status())
	require.ErrorIs(t, env.Record.Err(), ErrIncompleteRecord)
}

func TestExecutor_CancelledMidChain(t *testing.T) {
	var (
		tr          = nativeTranslator(t)
		calls       = &callLog{}
		ctx, cancel = context.WithCancel(t.Context())
	)
	defer cancel()

	exec, err := NewExecutor(ExecutorOptions{
		Translator:      tr,
		ContinueOnError: true,
		Units: []unit.ProcessingUnit{
			unit.Func("A", func(context.Context, *message.Message) error {
				cancel()
				return nil
			}),
			calls.unit("B", nil),
		},
	})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New(nil))
	require.NoError(t, exec.Execute(ctx, &env))
	require.Empty(t, calls.get())
	require.Equal(t, []Outcome{{UnitID: "A", State: StateComplete}}, env.Record.Outcomes)
	require.Equal(t, 1, env.Record.Next)
	require.Equal(t, StatePending, env.Record.Status())
}

func TestExecutor_NoUnits(t *testing.T) {
	tr := nativeTranslator(t)
	exec, err := NewExecutor(ExecutorOptions{Translator: tr})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New(nil))
	require.NoError(t, exec.Execute(t.Context(), &env))
	require.Equal(t, StateComplete, env.Record.Status())
}

func TestExecutor_TranslationFailure(t *testing.T) {
	exec, err := NewExecutor(ExecutorOptions{Translator: nativeTranslator(t)})
	require.NoError(t, err)

	env := Envelope{Payload: []byte("not a message")}
	require.ErrorIs(t, exec.Execute(t.Context(), &env), ErrTranslation)
}

func TestExecutor_Handle(t *testing.T) {
	tr := nativeTranslator(t)
	exec, err := NewExecutor(ExecutorOptions{
		Translator: tr,
		Codec:      codec.MsgpackCodec{},
		Units:      []unit.ProcessingUnit{unit.Upper("upper")},
	})
	require.NoError(t, err)

	env := newEnvelope(t, tr, message.New([]byte("hi")))
	env.CorrelationID = "c-1"
	data, err := codec.MsgpackCodec{}.Marshal(env)
	require.NoError(t, err)

	t.Run("reply", func(t *testing.T) {
		resp, err := exec.Handle(t.Context(), cluster.Envelope{Address: "a", Data: data, ReplyTo: "inbox"})
		require.NoError(t, err)

		var got Envelope
		require.NoError(t, codec.MsgpackCodec{}.Unmarshal(resp, &got))
		require.Equal(t, "c-1", got.CorrelationID)
		require.Equal(t, StateComplete, got.Record.Status())
		msg, err := tr.Decode(got.Payload)
		require.NoError(t, err)
		require.Equal(t, "HI", string(msg.Payload))
	})

	t.Run("publish", func(t *testing.T) {
		resp, err := exec.Handle(t.Context(), cluster.Envelope{Address: "a", Data: data})
		require.NoError(t, err)
		require.Nil(t, resp)
	})

	t.Run("undecodable", func(t *testing.T) {
		_, err := exec.Handle(t.Context(), cluster.Envelope{Address: "a", Data: []byte{0xc1}, ReplyTo: "inbox"})
		require.ErrorIs(t, err, cluster.ErrNoReply)
	})

	t.Run("untranslatable", func(t *testing.T) {
		bad, err := codec.MsgpackCodec{}.Marshal(Envelope{Payload: []byte("garbage")})
		require.NoError(t, err)
		_, err = exec.Handle(t.Context(), cluster.Envelope{Address: "a", Data: bad, ReplyTo: "inbox"})
		require.ErrorIs(t, err, cluster.ErrNoReply)
	})
}

func TestNewExecutor_RequiresTranslator(t *testing.T) {
	_, err := NewExecutor(ExecutorOptions{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "Translator", cfgErr.Field)
}
