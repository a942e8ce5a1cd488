package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codewandler/clstr-dispatch/adapters/nats"
	"github.com/codewandler/clstr-dispatch/core/app"
	"github.com/codewandler/clstr-dispatch/core/cluster"
	"github.com/codewandler/clstr-dispatch/core/dispatch"
	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/core/unit"
)

// === Config ===

// NOTE: run nats: docker run --net=host nats:latest
// BACKEND=natsc starts a throwaway NATS container instead.

var (
	logLevel     = slog.LevelInfo
	N            = getEnvInt("N", 50_000)
	batchSize    = getEnvInt("B", 1_000)
	numNodes     = getEnvInt("NODES", 3)
	workers      = getEnvInt("WORKERS", 8)
	queueCap     = getEnvInt("QUEUE", 1_024)
	backendType  = getEnv("BACKEND", "mem")
	mode         = getEnv("MODE", "SINGLE")
	codecName    = getEnv("CODEC", "msgpack")
	failEveryNth = getEnvInt("FAIL_EVERY", 0)
)

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// === counters ===

type stats struct {
	produced atomic.Int64
	failed   atomic.Int64
	executed atomic.Int64
}

func (s *stats) done() int64 { return s.produced.Load() + s.failed.Load() }

func main() {
	var (
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}))
		st = &stats{}
	)

	fmt.Printf("Backend: %s\n", backendType)
	fmt.Printf("   Mode: %s\n", mode)
	fmt.Printf("  Nodes: %d\n", numNodes)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	lt := &natsTesting{ctx: ctx, log: log}
	defer lt.doCleanup()

	newTransport := createTransportFactory(log, lt)

	units := []unit.ProcessingUnit{
		unit.Func("count", func(context.Context, *message.Message) error {
			n := st.executed.Add(1)
			if failEveryNth > 0 && n%int64(failEveryNth) == 0 {
				return fmt.Errorf("failing message %d", n)
			}
			return nil
		}),
		unit.Upper("upper"),
	}

	var origin *app.App
	for i := range numNodes {
		a, err := app.Run(app.Config{
			Context: ctx,
			Log:     log.With(slog.String("component", "app")),
			Node: app.NodeConfig{
				ID:        fmt.Sprintf("node-%d", i),
				Addresses: []string{"loadtest"},
				Transport: newTransport(),
			},
			CodecName: codecName,
			Executor:  app.ExecutorConfig{Units: units},
			Dispatch: app.DispatchConfig{
				Mode:          dispatch.SendMode(strings.ToUpper(mode)),
				QueueCapacity: queueCap,
				Workers:       workers,
				ReplyTimeout:  10 * time.Second,
				Producer: dispatch.ProducerFunc(func(context.Context, *message.Message) error {
					st.produced.Add(1)
					return nil
				}),
				Failure: dispatch.FailureHandlerFunc(func(context.Context, *message.Message, error) {
					st.failed.Add(1)
				}),
			},
		})
		checkErr(err)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			_ = a.Shutdown(stopCtx)
		}()
		if origin == nil {
			origin = a
		}
	}

	// === START ===

	log.Info("==================================")
	log.Info("Starting ...")

	startAt := time.Now()
	lastTime := startAt

	for i := 0; i < N; i++ {
		msg := message.New([]byte(fmt.Sprintf("message-%d", i)))
		checkErr(origin.Dispatch(ctx, msg))

		if i == 0 {
			continue
		}
		if i%100 == 0 {
			print(".")
		}
		if i%batchSize == 0 {
			mu := getMemUsage()

			n := time.Now()
			took := n.Sub(lastTime)
			fmt.Printf(" | %5d msgs | %6d ms |  %6d msgs/s | %6d pending | (%d / %d) MiB mem (sys) |\n", batchSize, took.Milliseconds(), int(float64(batchSize)/took.Seconds()), origin.Dispatcher().Pending(), mu.Alloc/1024/1024, mu.Sys/1024/1024)
			lastTime = n
		}
	}

	// ALL mode has no reply path; wait for the executions instead
	expected := func() bool { return st.done() >= int64(N) }
	if origin.Dispatcher().Mode() == dispatch.ModeAll {
		expected = func() bool { return st.executed.Load() >= int64(N*numNodes) }
	}
	for !expected() {
		select {
		case <-ctx.Done():
			checkErr(ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// === stats ===
	println("")
	println("==========================================")

	doneAt := time.Now()
	took := doneAt.Sub(startAt)
	runtime.GC()

	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("     executed: %d\n", st.executed.Load())
	fmt.Printf("     produced: %d\n", st.produced.Load())
	fmt.Printf("       failed: %d\n", st.failed.Load())
	fmt.Printf("   avg. msg/s: %d\n", int(float64(N)/took.Seconds()))
}

// === stats helpers ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and not yet freed (heap)
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// === Transport ===

func createTransportFactory(log *slog.Logger, lt *natsTesting) func() cluster.Transport {
	var connect nats.Connector
	switch backendType {
	case "nats":
		connect = nats.ConnectDefault()
	case "natsc":
		connect = nats.NewTestContainer(lt)
	default:
		mem := cluster.NewInMemoryTransport().WithLog(log)
		lt.Cleanup(func() { _ = mem.Close() })
		return func() cluster.Transport { return mem }
	}

	return func() cluster.Transport {
		tr, err := nats.NewTransport(nats.TransportConfig{
			Connect:       connect,
			Log:           log,
			SubjectPrefix: "clstr.loadtest",
		})
		checkErr(err)
		lt.Cleanup(func() { _ = tr.Close() })
		return tr
	}
}

// === Helpers ===

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}

// === Testing Helper ===

type natsTesting struct {
	ctx      context.Context
	log      *slog.Logger
	cleanups []func()
}

func (l *natsTesting) Errorf(format string, args ...interface{}) {
	l.log.Error("LOADTEST :: " + fmt.Sprintf(format, args...))
}
func (l *natsTesting) FailNow()                 { panic("loadtest setup failed") }
func (l *natsTesting) Context() context.Context { return l.ctx }
func (l *natsTesting) Logf(format string, args ...any) {
	l.log.Info("LOADTEST :: " + fmt.Sprintf(format, args...))
}
func (l *natsTesting) Cleanup(f func()) { l.cleanups = append(l.cleanups, f) }

func (l *natsTesting) doCleanup() {
	for i := len(l.cleanups) - 1; i >= 0; i-- {
		l.cleanups[i]()
	}
}
