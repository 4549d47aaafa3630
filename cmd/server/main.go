package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/batch"
	"github.com/MortenLohne/simulate-limpwurt/internal/persistence/indexdb"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
	"github.com/MortenLohne/simulate-limpwurt/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (fields a request omits come from here)")
		dataDir      = flag.String("data", "./data", "runtime data directory (empty disables persistence)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite batch index")
		maxBatches   = flag.Int("max_batches", 1, "batches allowed to run at once")
		traceFirst   = flag.Int("trace_first", 0, "log every action of the first N replications of each batch")
		loopbackOnly = flag.Bool("loopback_only", false, "accept simulate connections from loopback addresses only")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if _, _, err := batch.LoadEnv(tune); err != nil {
		logger.Fatalf("load tables: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if *dataDir != "" && !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "batches.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	runner := &batch.Runner{
		DataDir:    *dataDir,
		Index:      idx,
		Logger:     log.New(os.Stdout, "[batch] ", log.LstdFlags|log.Lmicroseconds),
		TraceFirst: *traceFirst,
	}
	simSrv := ws.NewServer(runner, tune, *maxBatches, logger)
	simSrv.LoopbackOnly = *loopbackOnly

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP slayersim_batches_running Batches currently executing.\n")
		fmt.Fprintf(rw, "# TYPE slayersim_batches_running gauge\n")
		fmt.Fprintf(rw, "slayersim_batches_running %d\n", simSrv.Running())

		fmt.Fprintf(rw, "# HELP slayersim_batches_capacity Maximum concurrent batches.\n")
		fmt.Fprintf(rw, "# TYPE slayersim_batches_capacity gauge\n")
		fmt.Fprintf(rw, "slayersim_batches_capacity %d\n", simSrv.Capacity())

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP slayersim_index_queue_depth Pending index writes.\n")
			fmt.Fprintf(rw, "# TYPE slayersim_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "slayersim_index_queue_depth %d\n", st.QueueDepth)

			fmt.Fprintf(rw, "# HELP slayersim_index_runs_written_total Replications written to the index.\n")
			fmt.Fprintf(rw, "# TYPE slayersim_index_runs_written_total counter\n")
			fmt.Fprintf(rw, "slayersim_index_runs_written_total %d\n", st.RunsWritten)

			fmt.Fprintf(rw, "# HELP slayersim_index_write_errors_total Failed index writes.\n")
			fmt.Fprintf(rw, "# TYPE slayersim_index_write_errors_total counter\n")
			fmt.Fprintf(rw, "slayersim_index_write_errors_total %d\n", st.WriteErrors)
		}
	})
	if envBool("SLAYERSIM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (SLAYERSIM_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/simulate", simSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (policy=%s era=%s replications=%d)", *addr, tune.Policy, tune.Era, tune.Replications)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
