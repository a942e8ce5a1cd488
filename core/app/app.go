package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/clstr-dispatch/core/address"
	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/dispatch"
	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/core/unit"
	"github.com/codewandler/clstr-dispatch/internal/codec"
)

// DefaultAddress is served by every node when no addresses are configured.
const DefaultAddress = "clstr.dispatch"

type NodeConfig struct {
	ID string
	// Addresses served by this node's executor. The node always serves its
	// own ID as well.
	Addresses []string
	Transport cluster.Transport
}

type ExecutorConfig struct {
	Units           []unit.ProcessingUnit
	ContinueOnError bool
}

type DispatchConfig struct {
	// Target defaults to the first configured address.
	Target        address.Extractor
	Mode          dispatch.SendMode
	QueueCapacity int
	Workers       int
	ReplyTimeout  time.Duration
	Failure       dispatch.FailureHandler
	Producer      dispatch.Producer
}

type Config struct {
	Context context.Context
	Log     *slog.Logger
	Node    NodeConfig
	// Translator defaults to the JSON NativeTranslator.
	Translator message.Translator
	// Codec defaults to the codec named by CodecName, or JSON.
	Codec          codec.Codec
	CodecName      string
	Executor       ExecutorConfig
	Dispatch       DispatchConfig
	Metrics        dispatch.Metrics
	ClusterMetrics cluster.ClusterMetrics
}

type App struct {
	ctx           context.Context
	log           *slog.Logger
	cancelCtx     context.CancelFunc
	transport     cluster.Transport
	ownsTransport bool
	node          *cluster.Node
	executor      *dispatch.Executor
	dispatcher    *dispatch.Dispatcher
}

func New(config Config) (app *App, err error) {
	app = &App{}

	// === node config ===
	nodeConfig := config.Node
	if nodeConfig.ID == "" {
		nodeConfig.ID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}
	if len(nodeConfig.Addresses) == 0 {
		nodeConfig.Addresses = []string{DefaultAddress}
	}
	if nodeConfig.Transport == nil {
		nodeConfig.Transport = cluster.NewInMemoryTransport()
		app.ownsTransport = true
	}
	app.transport = nodeConfig.Transport

	// === logger ===
	if config.Log == nil {
		config.Log = slog.Default()
	}
	app.log = config.Log.With(slog.String("node", nodeConfig.ID))

	// === wire format ===
	c := config.Codec
	if c == nil {
		if c, err = codec.ByName(config.CodecName); err != nil {
			return nil, err
		}
	}
	translator := config.Translator
	if translator == nil {
		if translator, err = message.NewNativeTranslator(c.Name()); err != nil {
			return nil, err
		}
	}

	// === context ===
	if config.Context == nil {
		config.Context = context.Background()
	}
	app.ctx, app.cancelCtx = context.WithCancel(config.Context)

	app.log.Debug("creating app", slog.Any("node_config", nodeConfig))

	app.executor, err = dispatch.NewExecutor(dispatch.ExecutorOptions{
		Log:             app.log,
		Units:           config.Executor.Units,
		ContinueOnError: config.Executor.ContinueOnError,
		Translator:      translator,
		Codec:           c,
		Metrics:         config.Metrics,
	})
	if err != nil {
		app.cancelCtx()
		return nil, err
	}

	addresses := slices.Clone(nodeConfig.Addresses)
	if !slices.Contains(addresses, nodeConfig.ID) {
		addresses = append(addresses, nodeConfig.ID)
	}
	app.node = cluster.NewNode(cluster.NodeOptions{
		NodeID:    nodeConfig.ID,
		Addresses: addresses,
		Log:       app.log,
		Transport: nodeConfig.Transport,
		Handler:   app.executor.Handle,
		Metrics:   config.ClusterMetrics,
	})

	// === dispatcher ===
	dc := config.Dispatch
	if dc.Target == nil {
		dc.Target = address.Constant(nodeConfig.Addresses[0])
	}
	app.dispatcher, err = dispatch.New(dispatch.Options{
		Log:            app.log,
		Transport:      nodeConfig.Transport,
		Translator:     translator,
		Codec:          c,
		Target:         dc.Target,
		Mode:           dc.Mode,
		QueueCapacity:  dc.QueueCapacity,
		Workers:        dc.Workers,
		ReplyTimeout:   dc.ReplyTimeout,
		Local:          app.executor,
		Failure:        dc.Failure,
		Producer:       dc.Producer,
		Metrics:        config.Metrics,
		ClusterMetrics: config.ClusterMetrics,
	})
	if err != nil {
		app.cancelCtx()
		return nil, err
	}

	return app, nil
}

func (a *App) Node() *cluster.Node { return a.node }

func (a *App) Executor() *dispatch.Executor { return a.executor }

func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Dispatch hands msg to the dispatcher.
func (a *App) Dispatch(ctx context.Context, msg *message.Message) error {
	return a.dispatcher.Dispatch(ctx, msg)
}

func (a *App) Run() (err error) {
	err = a.node.Run(a.ctx)
	if err != nil {
		return err
	}

	err = a.dispatcher.Start(a.ctx)
	if err != nil {
		return err
	}

	a.log.Info("app started", slog.Any("addresses", a.node.Addresses()))

	return nil
}

// Shutdown drains the dispatcher, stops serving addresses and closes the
// transport if the app created it.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.dispatcher.Stop(ctx)
	a.cancelCtx()
	if a.ownsTransport {
		if cerr := a.transport.Close(); cerr != nil && !errors.Is(cerr, cluster.ErrTransportClosed) {
			err = errors.Join(err, cerr)
		}
	}
	a.log.Info("app stopped")
	return err
}

func (a *App) Stop() {
	a.cancelCtx()
}

// Done is closed once the app is stopped.
func (a *App) Done() <-chan struct{} { return a.ctx.Done() }

func Run(config Config) (app *App, err error) {
	app, err = New(config)
	if err != nil {
		return nil, err
	}

	err = app.Run()
	if err != nil {
		return nil, err
	}

	return app, nil
}
