package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/clstr-dispatch/core/address"
	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/internal/codec"
)

const DefaultWorkers = 4

type Options struct {
	Log        *slog.Logger
	Transport  cluster.ClientTransport
	Translator message.Translator
	// Codec encodes envelopes on the wire. Must match the executors' codec.
	// Defaults to JSON.
	Codec codec.Codec
	// Target resolves the cluster address from the original message. An
	// empty address processes the message on Local.
	Target address.Extractor
	Mode   SendMode
	// QueueCapacity bounds the dispatch queue. Must be positive.
	QueueCapacity int
	// Workers is the size of the worker pool. Defaults to DefaultWorkers.
	Workers int
	// ReplyTimeout bounds the wait for a SINGLE reply. Zero waits until Stop.
	ReplyTimeout time.Duration
	// Local processes messages whose target address is empty.
	Local *Executor
	// Failure receives every failed message. Defaults to LogFailureHandler.
	Failure FailureHandler
	// Producer receives every successful reply. Optional.
	Producer        Producer
	Metrics         Metrics
	ClusterMetrics  cluster.ClusterMetrics
	EnvelopeOptions []cluster.EnvelopeOption
}

type queued struct {
	msg *message.Message
	env Envelope
}

// Dispatcher is the originating side: intake, queue, workers and reply
// correlation.
type Dispatcher struct {
	log          *slog.Logger
	client       *cluster.Client
	translator   message.Translator
	codec        codec.Codec
	target       address.Extractor
	mode         SendMode
	workers      int
	replyTimeout time.Duration
	envOpts      []cluster.EnvelopeOption
	local        *Executor
	failure      FailureHandler
	metrics      Metrics

	queue   *Queue[queued]
	replies *correlator

	mu      sync.Mutex
	started bool
	stopped bool
	// runCtx bounds reply waits; only Stop cancels it.
	runCtx context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Transport == nil {
		return nil, &ConfigError{Field: "Transport", Reason: "is required"}
	}
	if opts.Translator == nil {
		return nil, &ConfigError{Field: "Translator", Reason: "is required"}
	}
	if opts.Target == nil {
		return nil, &ConfigError{Field: "Target", Reason: "is required"}
	}
	if opts.Workers < 0 {
		return nil, &ConfigError{Field: "Workers", Reason: fmt.Sprintf("must be positive, got %d", opts.Workers)}
	}
	if opts.ReplyTimeout < 0 {
		return nil, &ConfigError{Field: "ReplyTimeout", Reason: "must not be negative"}
	}
	mode, err := ParseSendMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	queue, err := NewQueue[queued](opts.QueueCapacity)
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "dispatcher"), slog.String("mode", string(mode)))

	workers := opts.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	c := opts.Codec
	if c == nil {
		c = codec.JSONCodec{}
	}
	m := opts.Metrics
	if m == nil {
		m = NopMetrics()
	}
	failure := opts.Failure
	if failure == nil {
		failure = LogFailureHandler(log)
	}

	client, err := cluster.NewClient(cluster.ClientOptions{
		Transport: opts.Transport,
		Metrics:   opts.ClusterMetrics,
	})
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		log:          log,
		client:       client,
		translator:   opts.Translator,
		codec:        c,
		target:       opts.Target,
		mode:         mode,
		workers:      workers,
		replyTimeout: opts.ReplyTimeout,
		envOpts:      opts.EnvelopeOptions,
		local:        opts.Local,
		failure:      failure,
		metrics:      m,
		queue:        queue,
	}
	d.replies = &correlator{
		log:        log.With(slog.String("component", "correlator")),
		translator: opts.Translator,
		codec:      c,
		producer:   opts.Producer,
		failure:    d.fail,
		metrics:    m,
		pending:    make(map[string]*pendingReply),
	}
	return d, nil
}

func (d *Dispatcher) Mode() SendMode { return d.mode }

// Pending returns the number of SINGLE sends awaiting a reply.
func (d *Dispatcher) Pending() int { return d.replies.count() }

// QueueLen returns the number of queued messages.
func (d *Dispatcher) QueueLen() int { return d.queue.Len() }

// Dispatch translates msg and enqueues it, blocking while the queue is full.
// A failure is passed to the failure handler with msg and also returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	payload, err := d.translator.Encode(msg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTranslation, err)
		d.fail(ctx, msg, err, "translation")
		return err
	}

	env := Envelope{
		Payload:      payload,
		EnqueuedAtMs: time.Now().UnixMilli(),
		Mode:         d.mode,
	}
	if err := d.queue.Put(ctx, queued{msg: msg, env: env}); err != nil {
		reason := "interrupted"
		if errors.Is(err, ErrQueueClosed) {
			reason = "queue_closed"
		}
		d.fail(ctx, msg, err, reason)
		return err
	}
	d.metrics.QueueDepth(d.queue.Len())
	return nil
}

// Start runs the worker pool until Stop is called. Cancelling ctx does not
// stop the workers or the reply waits; only Stop does.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return errors.New("dispatcher already started")
	}
	d.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	d.runCtx, d.cancel, d.g = runCtx, cancel, g
	for i := range d.workers {
		g.Go(func() error {
			return d.work(gctx, i)
		})
	}

	d.log.Info("dispatcher started", slog.Int("workers", d.workers), slog.Int("queue_capacity", d.queue.Cap()))
	return nil
}

// Stop closes the intake, lets the workers drain the queue and waits for
// outstanding replies. When ctx ends first, the workers and reply waits are
// cancelled and the messages still queued go to the failure handler.
func (d *Dispatcher) Stop(ctx context.Context) (err error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	d.mu.Unlock()

	d.queue.Close()
	if !started {
		d.abandonQueued(ctx)
		return nil
	}

	workersDone := make(chan struct{})
	go func() {
		if werr := d.g.Wait(); werr != nil {
			d.log.Warn("workers interrupted", slog.Any("error", werr))
		}
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-ctx.Done():
		err = ctx.Err()
		d.cancel()
		<-workersDone
	}

	d.abandonQueued(ctx)

	repliesDone := make(chan struct{})
	go func() {
		d.replies.wait()
		close(repliesDone)
	}()
	select {
	case <-repliesDone:
	case <-ctx.Done():
		err = ctx.Err()
		d.cancel()
		<-repliesDone
	}
	d.cancel()

	d.log.Info("dispatcher stopped")
	return err
}

// abandonQueued fails every message left in the queue.
func (d *Dispatcher) abandonQueued(ctx context.Context) {
	for {
		select {
		case it := <-d.queue.ch:
			d.fail(ctx, it.msg, fmt.Errorf("%w: dispatcher stopped", ErrInterruptedDispatch), "interrupted")
		default:
			return
		}
	}
}

// work takes messages until the queue is closed and drained. Any other
// exit is returned and cancels the remaining workers.
func (d *Dispatcher) work(ctx context.Context, worker int) error {
	log := d.log.With(slog.Int("worker", worker))
	for {
		it, err := d.queue.Take(ctx)
		if errors.Is(err, ErrQueueClosed) {
			log.Debug("worker exiting")
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker %d: %w", worker, err)
		}
		d.metrics.QueueDepth(d.queue.Len())
		d.process(ctx, it)
	}
}

// process dispatches one queued message. It never panics.
func (d *Dispatcher) process(ctx context.Context, it queued) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panicked", slog.String("message_id", it.msg.ID), slog.Any("recovered", r))
			d.fail(ctx, it.msg, fmt.Errorf("dispatch panicked: %v", r), "panic")
		}
	}()

	addr, err := d.target.Extract(it.msg)
	if err != nil {
		d.metrics.TargetUnresolved()
		d.log.Warn("dropping message from cluster dispatch",
			slog.String("message_id", it.msg.ID),
			slog.Any("error", fmt.Errorf("%w: %w", ErrTargetResolution, err)),
		)
		return
	}
	if addr == "" {
		d.processLocal(ctx, it)
		return
	}

	if d.mode == ModeAll {
		err = d.publish(ctx, addr, it)
	} else {
		err = d.send(ctx, addr, it)
	}
	d.metrics.Dispatched(d.mode, err == nil)
	if err != nil {
		d.fail(ctx, it.msg, err, "send")
	}
}

func (d *Dispatcher) publish(ctx context.Context, addr string, it queued) error {
	data, err := d.codec.Marshal(it.env)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranslation, err)
	}
	if err := d.client.Publish(ctx, addr, data, d.envOpts...); err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	return nil
}

// send hands the envelope to one member and returns without waiting for
// the reply.
func (d *Dispatcher) send(ctx context.Context, addr string, it queued) error {
	correlationID := gonanoid.Must()
	it.env.CorrelationID = correlationID

	data, err := d.codec.Marshal(it.env)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranslation, err)
	}

	var (
		opts    = d.envOpts
		sendCtx context.Context
		cancel  context.CancelFunc
	)
	// the reply wait outlives the worker, so it hangs off runCtx
	if d.replyTimeout > 0 {
		sendCtx, cancel = context.WithTimeout(d.runCtx, d.replyTimeout)
		opts = append(slices.Clone(opts), cluster.WithTTL(d.replyTimeout))
	} else {
		sendCtx, cancel = context.WithCancel(d.runCtx)
	}

	replyCtx := context.WithoutCancel(ctx)
	d.replies.track(correlationID, it.msg)
	err = d.client.Send(sendCtx, addr, correlationID, data, func(data []byte, err error) {
		cancel()
		d.replies.onReply(replyCtx, correlationID, data, err)
	}, opts...)
	if err != nil {
		cancel()
		d.replies.forget(correlationID)
		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	d.log.Debug("sent",
		slog.String("address", addr),
		slog.String("correlation_id", correlationID),
		slog.String("message_id", it.msg.ID),
	)
	return nil
}

// processLocal runs the local executor for a message without an address.
// In SINGLE mode the result goes through the same path as a reply.
func (d *Dispatcher) processLocal(ctx context.Context, it queued) {
	if d.local == nil {
		d.fail(ctx, it.msg, ErrNoLocalExecutor, "no_local_executor")
		return
	}
	d.metrics.LocalProcessed()

	env := it.env
	if err := d.local.Execute(ctx, &env); err != nil {
		d.fail(ctx, it.msg, err, "translation")
		return
	}
	if d.mode == ModeAll {
		return
	}
	d.replies.complete(context.WithoutCancel(ctx), it.msg, env)
}

func (d *Dispatcher) fail(ctx context.Context, msg *message.Message, err error, reason string) {
	d.metrics.FailureRouted(reason)
	d.failure.HandleFailure(context.WithoutCancel(ctx), msg, err)
}
