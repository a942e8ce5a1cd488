package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/clstr-dispatch/core/cluster"
)

const (
	statusHdr    = "Status"
	noResponders = "503"
)

type TransportConfig struct {
	Connect       Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix for address subjects, e.g. "clstr" -> clstr.single.<address>
}

// Transport maps cluster addresses onto NATS subjects. Send uses a queue
// group per address so exactly one subscriber receives the envelope;
// Publish uses a plain subject every subscriber receives. Replies for all
// sends arrive on one wildcard inbox subscription.
type Transport struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string

	mu       sync.Mutex
	subs     map[*natsgo.Subscription]struct{}
	inbox    string
	inboxSub *natsgo.Subscription
	waiting  map[string]cluster.ReplyFunc
	handlers sync.WaitGroup

	seq    atomic.Uint64
	closed atomic.Bool
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "clstr"
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	t := &Transport{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("transport", "nats")),
		prefix:  prefix,
		subs:    make(map[*natsgo.Subscription]struct{}),
		waiting: make(map[string]cluster.ReplyFunc),
	}

	return t, nil
}

func (t *Transport) subjectSingle(address string) string { return t.prefix + ".single." + address }

func (t *Transport) subjectAll(address string) string { return t.prefix + ".all." + address }

// ensureInbox subscribes the reply inbox on first use. Callers hold t.mu.
func (t *Transport) ensureInbox() error {
	if t.inboxSub != nil {
		return nil
	}
	inbox := natsgo.NewInbox()
	sub, err := t.nc.Subscribe(inbox+".*", t.onReply)
	if err != nil {
		return fmt.Errorf("nats: subscribe inbox: %w", err)
	}
	t.inbox = inbox
	t.inboxSub = sub
	return nil
}

func (t *Transport) onReply(msg *natsgo.Msg) {
	token := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]

	t.mu.Lock()
	deliver, ok := t.waiting[token]
	t.mu.Unlock()
	if !ok {
		t.log.Debug("reply without waiter", slog.String("subject", msg.Subject))
		return
	}

	if msg.Header.Get(statusHdr) == noResponders {
		deliver(nil, cluster.ErrNoSubscriber)
		return
	}
	deliver(cluster.DecodeResponse(msg.Data))
}

// await registers onReply under token. onReply is called at most once:
// with the reply, when ctx ends or on Close. The returned release drops the
// registration without calling onReply. Callers hold t.mu.
func (t *Transport) await(ctx context.Context, token string, onReply cluster.ReplyFunc) (release func()) {
	var (
		once sync.Once
		stop atomic.Pointer[func() bool]
	)
	finish := func(call bool, data []byte, err error) {
		once.Do(func() {
			if s := stop.Load(); s != nil {
				(*s)()
			}
			t.mu.Lock()
			delete(t.waiting, token)
			t.mu.Unlock()
			if call {
				onReply(data, err)
			}
		})
	}

	t.waiting[token] = func(data []byte, err error) { finish(true, data, err) }

	s := context.AfterFunc(ctx, func() {
		finish(true, nil, cluster.ReplyWaitError(ctx))
	})
	stop.Store(&s)
	return func() { finish(false, nil, nil) }
}

func (t *Transport) Send(ctx context.Context, env cluster.Envelope, onReply cluster.ReplyFunc) error {
	if t.closed.Load() {
		return cluster.ErrTransportClosed
	}
	env.Stamp()
	if err := env.Validate(); err != nil {
		return err
	}
	if env.Expired() {
		return cluster.ErrEnvelopeExpired
	}

	token := strconv.FormatUint(t.seq.Add(1), 36)

	t.mu.Lock()
	if err := t.ensureInbox(); err != nil {
		t.mu.Unlock()
		return err
	}
	env.ReplyTo = t.inbox + "." + token
	release := t.await(ctx, token, onReply)
	t.mu.Unlock()

	payload, err := json.Marshal(env)
	if err != nil {
		release()
		return fmt.Errorf("encode envelope: %w", err)
	}

	err = t.nc.PublishMsg(&natsgo.Msg{
		Subject: t.subjectSingle(env.Address),
		Reply:   env.ReplyTo,
		Data:    payload,
	})
	if err != nil {
		release()
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

// Publish delivers env to every subscriber of env.Address. NATS reports no
// missing subscribers for plain publishes.
func (t *Transport) Publish(_ context.Context, env cluster.Envelope) error {
	if t.closed.Load() {
		return cluster.ErrTransportClosed
	}
	env.Stamp()
	env.ReplyTo = ""
	if err := env.Validate(); err != nil {
		return err
	}
	if env.Expired() {
		return cluster.ErrEnvelopeExpired
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.nc.Publish(t.subjectAll(env.Address), payload); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return cluster.ErrTransportClosed
	}
	t.mu.Lock()
	for s := range t.subs {
		_ = s.Unsubscribe()
	}
	t.subs = map[*natsgo.Subscription]struct{}{}
	t.mu.Unlock()

	t.handlers.Wait()

	t.mu.Lock()
	if t.inboxSub != nil {
		_ = t.inboxSub.Unsubscribe()
	}
	waiting := t.waiting
	t.waiting = make(map[string]cluster.ReplyFunc)
	t.mu.Unlock()
	for _, deliver := range waiting {
		deliver(nil, cluster.ErrTransportClosed)
	}

	if t.nc != nil {
		_ = t.nc.Drain()
		t.closeNc()
	}
	return nil
}

// Subscribe consumes address: one queue subscription shared with the other
// members for Send, and one plain subscription for Publish.
func (t *Transport) Subscribe(ctx context.Context, address string, h cluster.ServerHandlerFunc) (cluster.Subscription, error) {
	if t.closed.Load() {
		return nil, cluster.ErrTransportClosed
	}

	cb := t.handle(ctx, h)
	single, err := t.nc.QueueSubscribe(t.subjectSingle(address), address, cb)
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", address, err)
	}
	all, err := t.nc.Subscribe(t.subjectAll(address), cb)
	if err != nil {
		_ = single.Unsubscribe()
		return nil, fmt.Errorf("nats: subscribe %s: %w", address, err)
	}

	t.mu.Lock()
	t.subs[single] = struct{}{}
	t.subs[all] = struct{}{}
	t.mu.Unlock()

	s := &subscription{subs: []*natsgo.Subscription{single, all}, t: t}

	// Handle context cancellation by auto-unsubscribing
	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})

	t.log.Debug("subscribed", slog.String("address", address))
	return s, nil
}

func (t *Transport) handle(ctx context.Context, h cluster.ServerHandlerFunc) natsgo.MsgHandler {
	return func(msg *natsgo.Msg) {
		var env cluster.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.log.Error("failed to decode envelope", slog.Any("error", err))
			return
		}
		if env.Expired() {
			t.log.Warn("dropping expired envelope", slog.String("address", env.Address))
			return
		}

		t.mu.Lock()
		if t.closed.Load() {
			t.mu.Unlock()
			return
		}
		t.handlers.Add(1)
		t.mu.Unlock()

		go func() {
			defer t.handlers.Done()

			data, err := h(ctx, env)
			if env.ReplyTo == "" || errors.Is(err, cluster.ErrNoReply) {
				return
			}
			if err := t.nc.Publish(env.ReplyTo, cluster.EncodeResponse(data, err)); err != nil {
				t.log.Error("failed to publish reply", slog.Any("error", err))
			}
		}()
	}
}

type subscription struct {
	subs []*natsgo.Subscription
	t    *Transport
	once sync.Once
}

func (s *subscription) Unsubscribe() (err error) {
	s.once.Do(func() {
		s.t.mu.Lock()
		defer s.t.mu.Unlock()
		for _, sub := range s.subs {
			if _, ok := s.t.subs[sub]; !ok {
				continue
			}
			delete(s.t.subs, sub)
			err = errors.Join(err, sub.Unsubscribe())
		}
	})
	return err
}

var _ cluster.Transport = &Transport{}
