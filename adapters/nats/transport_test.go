package nats

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-dispatch/core/cluster"
)

type reply struct {
	data []byte
	err  error
}

func awaitReply(t *testing.T, ch <-chan reply) reply {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
		return reply{}
	}
}

func TestNats_Transport(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	connectNatsC := NewTestContainer(t)

	t.Run("connect & close", func(t *testing.T) {
		nc, closeNc, err := connectNatsC()
		require.NoError(t, err)
		require.NotNil(t, nc)
		require.NoError(t, nc.Flush())
		closeNc()
	})

	newTransport := func(t *testing.T) *Transport {
		tp, err := NewTransport(TransportConfig{
			Connect:       connectNatsC,
			Log:           slog.Default(),
			SubjectPrefix: "test",
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = tp.Close() })
		return tp
	}

	t.Run("send & reply", func(t *testing.T) {
		tp := newTransport(t)

		s, err := tp.Subscribe(t.Context(), "echo", func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
			return env.Data, nil
		})
		require.NoError(t, err)
		require.NoError(t, tp.nc.Flush())

		ch := make(chan reply, 1)
		err = tp.Send(t.Context(), cluster.Envelope{Address: "echo", CorrelationID: "c-1", Data: []byte("hello")}, func(data []byte, err error) {
			ch <- reply{data, err}
		})
		require.NoError(t, err)

		r := awaitReply(t, ch)
		require.NoError(t, r.err)
		require.Equal(t, "hello", string(r.data))

		require.NoError(t, s.Unsubscribe())
	})

	t.Run("send reaches one member", func(t *testing.T) {
		tp := newTransport(t)

		var calls atomic.Int32
		for range 3 {
			_, err := tp.Subscribe(t.Context(), "one", func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
				calls.Add(1)
				return nil, nil
			})
			require.NoError(t, err)
		}
		require.NoError(t, tp.nc.Flush())

		ch := make(chan reply, 1)
		require.NoError(t, tp.Send(t.Context(), cluster.Envelope{Address: "one"}, func(data []byte, err error) {
			ch <- reply{data, err}
		}))
		require.NoError(t, awaitReply(t, ch).err)

		time.Sleep(100 * time.Millisecond)
		require.EqualValues(t, 1, calls.Load())
	})

	t.Run("publish reaches every member", func(t *testing.T) {
		tp := newTransport(t)

		var calls atomic.Int32
		for range 3 {
			_, err := tp.Subscribe(t.Context(), "many", func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
				calls.Add(1)
				return nil, nil
			})
			require.NoError(t, err)
		}
		require.NoError(t, tp.nc.Flush())

		require.NoError(t, tp.Publish(t.Context(), cluster.Envelope{Address: "many", Data: []byte("x")}))
		require.Eventually(t, func() bool { return calls.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("remote error", func(t *testing.T) {
		tp := newTransport(t)
		_, err := tp.Subscribe(t.Context(), "fails", func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
			return nil, errors.New("boom")
		})
		require.NoError(t, err)
		require.NoError(t, tp.nc.Flush())

		ch := make(chan reply, 1)
		require.NoError(t, tp.Send(t.Context(), cluster.Envelope{Address: "fails"}, func(data []byte, err error) {
			ch <- reply{data, err}
		}))
		r := awaitReply(t, ch)
		require.ErrorIs(t, r.err, cluster.ErrRemote)
		require.ErrorContains(t, r.err, "boom")
	})

	t.Run("no responders", func(t *testing.T) {
		tp := newTransport(t)

		ch := make(chan reply, 1)
		require.NoError(t, tp.Send(t.Context(), cluster.Envelope{Address: "nobody"}, func(data []byte, err error) {
			ch <- reply{data, err}
		}))
		require.ErrorIs(t, awaitReply(t, ch).err, cluster.ErrNoSubscriber)
	})

	t.Run("no reply times out", func(t *testing.T) {
		tp := newTransport(t)
		_, err := tp.Subscribe(t.Context(), "silent", func(ctx context.Context, env cluster.Envelope) ([]byte, error) {
			return nil, cluster.ErrNoReply
		})
		require.NoError(t, err)
		require.NoError(t, tp.nc.Flush())

		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()

		ch := make(chan reply, 1)
		require.NoError(t, tp.Send(ctx, cluster.Envelope{Address: "silent"}, func(data []byte, err error) {
			ch <- reply{data, err}
		}))
		require.ErrorIs(t, awaitReply(t, ch).err, cluster.ErrReplyTimeout)
	})

	t.Run("reserved header", func(t *testing.T) {
		tp := newTransport(t)
		err := tp.Send(t.Context(), cluster.Envelope{Address: "x", Headers: map[string]string{"x-clstr-id": "1"}}, func([]byte, error) {
			t.Fatal("reply func must not be called")
		})
		require.ErrorIs(t, err, cluster.ErrReservedHeader)
	})

	t.Run("closed", func(t *testing.T) {
		tp := newTransport(t)
		require.NoError(t, tp.Close())
		require.ErrorIs(t, tp.Close(), cluster.ErrTransportClosed)
		require.ErrorIs(t, tp.Publish(t.Context(), cluster.Envelope{Address: "x"}), cluster.ErrTransportClosed)
	})
}
