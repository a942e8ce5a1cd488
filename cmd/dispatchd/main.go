// Command dispatchd runs one cluster member. It serves the configured
// addresses, dispatches every line read from stdin as a message and writes
// each successful reply to stdout.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codewandler/clstr-dispatch/adapters/nats"
	promadapter "github.com/codewandler/clstr-dispatch/adapters/prometheus"
	"github.com/codewandler/clstr-dispatch/core/address"
	"github.com/codewandler/clstr-dispatch/core/app"
	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/dispatch"
	"github.com/codewandler/clstr-dispatch/core/message"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML config file")
		readStdin  = flag.Bool("stdin", true, "dispatch lines read from stdin")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	var in io.Reader
	if *readStdin {
		in = os.Stdin
	}
	if err := run(ctx, log, cfg, in, os.Stdout); err != nil {
		log.Error("dispatchd failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newTransport(log *slog.Logger, cfg TransportConfig) (cluster.Transport, error) {
	switch cfg.Kind {
	case "mem":
		return cluster.NewInMemoryTransport().WithLog(log), nil
	case "nats":
		connect := nats.ConnectDefault()
		if cfg.URL != "" {
			connect = nats.ConnectURL(cfg.URL)
		}
		return nats.NewTransport(nats.TransportConfig{
			Connect:       connect,
			Log:           log,
			SubjectPrefix: cfg.SubjectPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Kind)
	}
}

// lineWriter serializes replies onto out, one per line.
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) Produce(_ context.Context, msg *message.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "%s\t%s\n", msg.ID, msg.Payload)
	return err
}

func run(ctx context.Context, log *slog.Logger, cfg *Config, in io.Reader, out io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := promadapter.NewAllMetrics(reg)

	if cfg.Metrics.Listen != "" {
		promMux := http.NewServeMux()
		promMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		promServer := &http.Server{Addr: cfg.Metrics.Listen, Handler: promMux}
		go func() {
			log.Info("prometheus metrics server starting", slog.String("listen", cfg.Metrics.Listen))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("prometheus server error", slog.Any("error", err))
			}
		}()
		defer promServer.Shutdown(context.Background())
	}

	tr, err := newTransport(log, cfg.Transport)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	defer tr.Close()

	translator, err := cfg.translator()
	if err != nil {
		return err
	}
	units, err := cfg.units()
	if err != nil {
		return err
	}

	var target address.Extractor
	if cfg.Dispatch.Target != "" {
		if target, err = address.Parse(cfg.Dispatch.Target); err != nil {
			return err
		}
	}

	a, err := app.Run(app.Config{
		Context:    ctx,
		Log:        log,
		Node:       app.NodeConfig{ID: cfg.Node.ID, Addresses: cfg.Node.Addresses, Transport: tr},
		Translator: translator,
		CodecName:  cfg.Codec,
		Executor:   app.ExecutorConfig{Units: units, ContinueOnError: cfg.Dispatch.ContinueOnError},
		Dispatch: app.DispatchConfig{
			Target:        target,
			Mode:          dispatch.SendMode(cfg.Dispatch.Mode),
			QueueCapacity: *cfg.Dispatch.QueueCapacity,
			Workers:       cfg.Dispatch.Workers,
			ReplyTimeout:  cfg.Dispatch.ReplyTimeout,
			Producer:      &lineWriter{out: out},
			Failure:       dispatch.LogFailureHandler(log),
		},
		Metrics:        metrics.Dispatch,
		ClusterMetrics: metrics.Cluster,
	})
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := a.Shutdown(stopCtx); err != nil {
			log.Warn("shutdown incomplete", slog.Any("error", err))
		}
	}()

	if in != nil {
		go readLines(ctx, log, a, in)
	}

	<-ctx.Done()
	return nil
}

// readLines dispatches every line of in as one message.
func readLines(ctx context.Context, log *slog.Logger, a *app.App, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := message.New(append([]byte(nil), line...))
		if err := a.Dispatch(ctx, msg); err != nil {
			// the failure handler has already seen it
			if ctx.Err() != nil {
				return
			}
		}
	}
	if err := sc.Err(); err != nil {
		log.Error("read input", slog.Any("error", err))
	}
}
