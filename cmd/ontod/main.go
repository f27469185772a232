// Command ontod runs the identity core's HTTP surface: C7's Admin
// Operations API plus the readiness, freeze, candidate, axial, and
// sync routes spec section 6 enumerates. It mirrors the teacher's
// cmd/bd daemon entrypoint in shape — signal-aware context, direct
// storage wiring, graceful shutdown — adapted from an embedded-SQLite
// CLI daemon to a standalone HTTP service fronting Dolt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qualcode/ontocore/internal/adminapi"
	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/candidates"
	"github.com/qualcode/ontocore/internal/config"
	"github.com/qualcode/ontocore/internal/embedding"
	"github.com/qualcode/ontocore/internal/freezectl"
	"github.com/qualcode/ontocore/internal/graphstore"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/maintenance"
	"github.com/qualcode/ontocore/internal/projection"
	"github.com/qualcode/ontocore/internal/readiness"
	"github.com/qualcode/ontocore/internal/semantic"
	"github.com/qualcode/ontocore/internal/telemetry"
	"github.com/qualcode/ontocore/internal/vectorstore"
)

func main() {
	var (
		addr           = flag.String("addr", envOr("ONTOD_ADDR", ":8080"), "HTTP listen address")
		configPath     = flag.String("config", envOr("ONTOD_CONFIG", "ontocore.yaml"), "path to hot-reloadable YAML config")
		bootstrapPath  = flag.String("bootstrap", envOr("ONTOD_BOOTSTRAP", "ontocore.bootstrap.yaml"), "path to bootstrap YAML (ledger DSN)")
		localOverride  = flag.String("local-override", envOr("ONTOD_LOCAL_OVERRIDE", ".ontocore.local.toml"), "path to optional developer-local TOML override")
		ledgerMode     = flag.String("ledger-mode", envOr("ONTOD_LEDGER_MODE", "server"), "ledger connection mode: embedded or server")
		ledgerDSN      = flag.String("ledger-dsn", os.Getenv("ONTOD_LEDGER_DSN"), "ledger database/sql DSN (overrides bootstrap file)")
		maxOpenConns   = flag.Int("ledger-max-open-conns", 16, "ledger connection pool size")
		graphURI       = flag.String("graph-uri", envOr("ONTOD_GRAPH_URI", ""), "Neo4j bolt URI; empty disables the graph store")
		graphUser      = flag.String("graph-user", os.Getenv("ONTOD_GRAPH_USER"), "Neo4j username")
		graphPass      = flag.String("graph-pass", os.Getenv("ONTOD_GRAPH_PASS"), "Neo4j password")
		vectorDBPath   = flag.String("vector-db-path", envOr("ONTOD_VECTOR_DB_PATH", ""), "sqlite-vec database path; empty disables the vector store")
		embeddingEndpoint = flag.String("embedding-endpoint", envOr("ONTOD_EMBEDDING_ENDPOINT", ""), "Ollama-compatible embedding endpoint; empty disables vector sync even with a vector store configured")
		embeddingModel = flag.String("embedding-model", envOr("ONTOD_EMBEDDING_MODEL", "embeddinggemma"), "embedding model name passed to the embedding endpoint")
		otelExporter   = flag.String("otel-exporter", envOr("ONTOD_OTEL_EXPORTER", "stdout"), "otel exporter: stdout, otlp, or none")
		otlpEndpoint   = flag.String("otlp-endpoint", os.Getenv("ONTOD_OTLP_ENDPOINT"), "OTLP collector endpoint, used when otel-exporter=otlp")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, runOpts{
		addr: *addr, configPath: *configPath, bootstrapPath: *bootstrapPath,
		localOverride: *localOverride, ledgerMode: *ledgerMode, ledgerDSN: *ledgerDSN,
		maxOpenConns: *maxOpenConns, graphURI: *graphURI, graphUser: *graphUser, graphPass: *graphPass,
		vectorDBPath: *vectorDBPath, embeddingEndpoint: *embeddingEndpoint, embeddingModel: *embeddingModel,
		otelExporter: *otelExporter, otlpEndpoint: *otlpEndpoint,
	}); err != nil {
		log.Error("ontod exited with error", "error", err)
		os.Exit(1)
	}
}

type runOpts struct {
	addr, configPath, bootstrapPath, localOverride string
	ledgerMode, ledgerDSN                          string
	maxOpenConns                                   int
	graphURI, graphUser, graphPass                 string
	vectorDBPath, embeddingEndpoint, embeddingModel string
	otelExporter, otlpEndpoint                     string
}

func run(ctx context.Context, log *slog.Logger, o runOpts) error {
	boot, err := config.LoadBootstrap(o.bootstrapPath)
	if err != nil {
		return fmt.Errorf("load bootstrap config: %w", err)
	}
	dsn := o.ledgerDSN
	if dsn == "" {
		dsn = boot.LedgerDSN
	}
	if dsn == "" {
		return errors.New("ledger DSN not set: pass -ledger-dsn, ONTOD_LEDGER_DSN, or ledger_dsn in the bootstrap file")
	}

	if err := config.ApplyLocalOverride(o.localOverride, func(lo config.LocalOverride) {
		if lo.LedgerDSN != "" {
			dsn = lo.LedgerDSN
		}
		if lo.OTLPEndpoint != "" {
			o.otlpEndpoint = lo.OTLPEndpoint
		}
	}); err != nil {
		return fmt.Errorf("apply local override: %w", err)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Watch(); err != nil {
		log.Warn("config hot-reload watch failed to start", "error", err)
	}
	defer cfg.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "ontocore", ServiceVersion: version,
		Exporter: telemetry.Exporter(o.otelExporter), OTLPEndpoint: o.otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	mode := ledger.ModeServer
	if o.ledgerMode == "embedded" {
		mode = ledger.ModeEmbedded
	}
	store, err := ledger.Open(ctx, ledger.Config{Mode: mode, DSN: dsn, MaxOpenConns: o.maxOpenConns})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	var graph *graphstore.Client
	if o.graphURI != "" {
		graph, err = graphstore.Open(ctx, graphstore.Config{URI: o.graphURI, Username: o.graphUser, Password: o.graphPass})
		if err != nil {
			return fmt.Errorf("open graph store: %w", err)
		}
		defer func() { _ = graph.Close(context.Background()) }()
	} else {
		log.Warn("graph-uri not set: projection sync routes will fail until a graph store is configured")
	}

	var vec *vectorstore.Store
	if o.vectorDBPath != "" {
		vec, err = vectorstore.Open(o.vectorDBPath, cfg.Current().VectorDim)
		if err != nil {
			return fmt.Errorf("open vector store: %w", err)
		}
		defer func() { _ = vec.Close() }()
	} else {
		log.Warn("vector-db-path not set: vector sync will no-op until a vector store is configured")
	}

	var embedSrc *embedding.OllamaSource
	if o.embeddingEndpoint != "" {
		embedSrc = embedding.NewOllamaSource(o.embeddingEndpoint, o.embeddingModel)
	} else {
		log.Warn("embedding-endpoint not set: vector sync is disabled")
	}

	locks := advisorylock.New()
	freeze := freezectl.New(store, locks)
	cand := candidates.New(store, freeze)
	maint := maintenance.New(store, freeze)
	candidates.SetIdempotencyTTL(cfg.Current().IdempotencyTTL)
	maintenance.SetIdempotencyTTL(cfg.Current().IdempotencyTTL)
	gate := readiness.NewGate(store, cfg.Current().ReadinessMaxHops)

	retry := projection.RetryConfig{
		BaseMS:      cfg.Current().SyncRetryBaseMS,
		Factor:      cfg.Current().SyncRetryFactor,
		CapMS:       cfg.Current().SyncRetryCapMS,
		MaxAttempts: cfg.Current().SyncRetryMaxAttempt,
	}
	sync := projection.New(store, graph, cfg.Current().SyncBatchSize, retry)
	if vec != nil {
		var src projection.EmbeddingSource
		if embedSrc != nil {
			src = embedSrc
		}
		sync.SetVectorStore(vec, src)
	}

	srv := adminapi.New(store, locks, freeze, cand, gate, sync, maint, cfg, log)
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		srv.SetSemanticRunner(semantic.NewRunner(apiKey, cand, log))
		log.Info("semantic runner enabled")
	} else {
		log.Info("ANTHROPIC_API_KEY not set: POST /candidates/propose disabled")
	}
	mux := http.NewServeMux()
	srv.Routes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpSrv := &http.Server{
		Addr:              o.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runBackgroundSync(ctx, log, store, sync, time.Duration(cfg.Current().SyncIntervalMS)*time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		log.Info("ontod listening", "addr", o.addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// runBackgroundSync is the worker pool spec section 5 describes
// processing projection jobs in the background, rather than leaving
// POST /sync/* as the only way rows ever reach the graph and vector
// stores. It ticks every interval, lists every project with ledger
// activity, and drains each one's pending rows through the same
// Synchronizer.RunAll path the admin API uses, so a deployment with no
// operator running `onto sync` still converges.
func runBackgroundSync(ctx context.Context, log *slog.Logger, store *ledger.Store, sync *projection.Synchronizer, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	loadFragment := func(ctx context.Context, projectID, fragmentID string) (graphstore.Fragment, bool, error) {
		return projection.LoadFragmentFromAssignments(ctx, store, projectID, fragmentID)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			projectIDs, err := store.ListProjectIDs(ctx)
			if err != nil {
				log.Warn("background sync: list project ids failed", "error", err)
				continue
			}
			for _, projectID := range projectIDs {
				pid := projectID
				results, err := sync.RunAll(ctx, pid, func(ctx context.Context, fragmentID string) (graphstore.Fragment, bool, error) {
					return loadFragment(ctx, pid, fragmentID)
				})
				if err != nil {
					log.Warn("background sync: run failed", "project_id", pid, "error", err)
					continue
				}
				log.Info("background sync: drained project", "project_id", pid, "results", results)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// version is overridable at build time via -ldflags "-X main.version=...".
var version = "dev"
