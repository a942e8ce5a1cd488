package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/clstr-dispatch/internal/hrw"
)

type handlerFn func(context.Context, Envelope) ([]byte, error)

type MemoryTransportOpts struct {
	// HandlerTimeout bounds a single handler invocation. Zero means no limit.
	HandlerTimeout time.Duration
	// MaxConcurrentHandlers limits running handlers. Zero means no limit.
	MaxConcurrentHandlers int
}

// MemoryTransport is an in-process Transport. Send picks one subscriber
// of the address by rendezvous hash of the correlation ID; Publish reaches
// every subscriber.
type MemoryTransport struct {
	mu  sync.RWMutex
	log *slog.Logger

	closed bool

	// address -> subID -> handler
	subs map[string]map[string]handlerFn

	// outstanding reply callbacks, failed with ErrTransportClosed on Close
	waiting map[uint64]ReplyFunc

	handlerTimeout time.Duration
	sem            chan struct{}
	wg             sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	seq uint64
}

func NewInMemoryTransport(opts ...MemoryTransportOpts) *MemoryTransport {
	var o MemoryTransportOpts
	if len(opts) > 0 {
		o = opts[0]
	}

	var sem chan struct{}
	if o.MaxConcurrentHandlers > 0 {
		sem = make(chan struct{}, o.MaxConcurrentHandlers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryTransport{
		log:            slog.New(slog.DiscardHandler),
		subs:           make(map[string]map[string]handlerFn),
		waiting:        make(map[uint64]ReplyFunc),
		handlerTimeout: o.HandlerTimeout,
		sem:            sem,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (t *MemoryTransport) WithLog(log *slog.Logger) *MemoryTransport {
	t.log = log.With(slog.String("transport", "mem"))
	return t
}

// handlers returns the subscribers of address sorted by subscription ID.
func (t *MemoryTransport) handlers(env Envelope) ([]string, map[string]handlerFn, error) {
	if err := env.Validate(); err != nil {
		return nil, nil, err
	}
	if env.Expired() {
		return nil, nil, ErrEnvelopeExpired
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, nil, ErrTransportClosed
	}

	// Copy handlers to avoid holding lock while invoking user code.
	subs := t.subs[env.Address]
	if len(subs) == 0 {
		return nil, nil, ErrNoSubscriber
	}
	ids := make([]string, 0, len(subs))
	handlers := make(map[string]handlerFn, len(subs))
	for id, h := range subs {
		ids = append(ids, id)
		handlers[id] = h
	}
	sort.Strings(ids)
	return ids, handlers, nil
}

func (t *MemoryTransport) Send(ctx context.Context, env Envelope, onReply ReplyFunc) error {
	env.Stamp()
	ids, handlers, err := t.handlers(env)
	if err != nil {
		return err
	}

	subID, _ := hrw.Pick(env.CorrelationID, ids, env.Address)
	h := handlers[subID]

	env.ReplyTo = t.newInboxID()
	deliver, ok := t.await(ctx, onReply)
	if !ok {
		return ErrTransportClosed
	}

	spawned := t.spawn(func() {
		resp, err := t.invokeHandler(h, env)
		if errors.Is(err, ErrNoReply) || errors.Is(err, ErrEnvelopeExpired) {
			t.log.Debug("no reply", slog.String("address", env.Address), slog.String("correlation_id", env.CorrelationID))
			return
		}
		// round-trip through the wire frame like a networked transport would
		deliver(DecodeResponse(EncodeResponse(resp, err)))
	})
	if !spawned {
		deliver(nil, ErrTransportClosed)
	}
	return nil
}

func (t *MemoryTransport) Publish(_ context.Context, env Envelope) error {
	env.Stamp()
	env.ReplyTo = ""
	_, handlers, err := t.handlers(env)
	if err != nil {
		return err
	}

	for _, h := range handlers {
		t.spawn(func() {
			if _, err := t.invokeHandler(h, env); err != nil && !errors.Is(err, ErrNoReply) {
				t.log.Error("non-reply handler failed", slog.String("address", env.Address), slog.Any("error", err))
			}
		})
	}
	return nil
}

func (t *MemoryTransport) Subscribe(
	ctx context.Context,
	address string,
	h func(context.Context, Envelope) ([]byte, error),
) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Debug("subscribe", slog.String("address", address))

	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.subs[address] == nil {
		t.subs[address] = make(map[string]handlerFn)
	}

	subID := t.newSubID(address)
	t.subs[address][subID] = h

	s := &subscription{
		t:       t,
		log:     t.log.With(slog.String("subscription", subID), slog.String("address", address)),
		address: address,
		subID:   subID,
	}

	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})

	return s, nil
}

// Close stops accepting work, waits for running handlers and fails every
// outstanding reply with ErrTransportClosed.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for address := range t.subs {
		delete(t.subs, address)
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.cancel()

	t.mu.Lock()
	waiting := t.waiting
	t.waiting = make(map[uint64]ReplyFunc)
	t.mu.Unlock()
	for _, fn := range waiting {
		fn(nil, ErrTransportClosed)
	}

	t.log.Debug("closed")

	return nil
}

/* ---------------------- internals ---------------------- */

type subscription struct {
	t       *MemoryTransport
	log     *slog.Logger
	address string
	subID   string
	once    sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.t.mu.Lock()
		defer s.t.mu.Unlock()
		if subs := s.t.subs[s.address]; subs != nil {
			delete(subs, s.subID)
			if len(subs) == 0 {
				delete(s.t.subs, s.address)
			}
		}
		s.log.Debug("unsubscribed")
	})
	return nil
}

// await registers onReply and returns a deliver func that calls it at most
// once: with the handler result, on ctx done, or on Close.
func (t *MemoryTransport) await(ctx context.Context, onReply ReplyFunc) (ReplyFunc, bool) {
	id := atomic.AddUint64(&t.seq, 1)

	var (
		once sync.Once
		stop atomic.Pointer[func() bool]
	)
	deliver := func(data []byte, err error) {
		once.Do(func() {
			if s := stop.Load(); s != nil {
				(*s)()
			}
			t.mu.Lock()
			delete(t.waiting, id)
			t.mu.Unlock()
			onReply(data, err)
		})
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, false
	}
	t.waiting[id] = deliver
	t.mu.Unlock()

	s := context.AfterFunc(ctx, func() {
		deliver(nil, ReplyWaitError(ctx))
	})
	stop.Store(&s)
	return deliver, true
}

// spawn runs f on its own goroutine unless the transport is closed.
func (t *MemoryTransport) spawn(f func()) bool {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return false
	}
	t.wg.Add(1)
	t.mu.RUnlock()

	go func() {
		defer t.wg.Done()
		if t.sem != nil {
			t.sem <- struct{}{}
			defer func() { <-t.sem }()
		}
		f()
	}()
	return true
}

func (t *MemoryTransport) invokeHandler(h handlerFn, env Envelope) ([]byte, error) {
	if env.Expired() {
		t.log.Warn("dropping expired envelope", slog.String("address", env.Address))
		return nil, ErrEnvelopeExpired
	}

	ctx := t.ctx
	if t.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.handlerTimeout)
		defer cancel()
	}

	resp, err := h(ctx, env)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrHandlerTimeout, err)
	}
	return resp, err
}

func (t *MemoryTransport) newInboxID() string {
	n := atomic.AddUint64(&t.seq, 1)
	return fmt.Sprintf("inbox.%d", n)
}

func (t *MemoryTransport) newSubID(address string) string {
	n := atomic.AddUint64(&t.seq, 1)
	return fmt.Sprintf("sub.%s.%d", address, n)
}

var _ Transport = (*MemoryTransport)(nil)
