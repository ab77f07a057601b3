package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/safety-report-retrieval/internal/config"
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
	"github.com/kirillkom/safety-report-retrieval/internal/core/usecase"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/embedcache"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kirillkom/safety-report-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/sparse"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/tokenizer/kagome"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/vector/inmemory"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/safety-report-retrieval/internal/observability/metrics"
	"github.com/kirillkom/safety-report-retrieval/internal/observability/tracing"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Lexicon  *lexicon.Lexicon
	Executor *resilience.Executor
	Embedder ports.Embedder
	Sparse   *sparse.Builder
	Sizer    *usecase.DynamicKSizer
	Search   *usecase.AdaptiveSearch

	// Exactly one of Qdrant and Memory is set.
	Qdrant *qdrant.Client
	Memory *inmemory.Store

	// Nil when POSTGRES_DSN or NATS_URL is empty.
	Runs   *postgres.RetrievalRunRepository
	Events *natsqueue.Publisher

	HTTPMetrics *metrics.HTTPServerMetrics

	closeFns []func()
}

type options struct {
	service     string
	disableRuns bool
}

type Option func(*options)

// WithService names the binary in metrics and traces.
func WithService(name string) Option {
	return func(o *options) { o.service = name }
}

// WithoutRunRecording skips postgres and NATS even when configured.
func WithoutRunRecording() Option {
	return func(o *options) { o.disableRuns = true }
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{service: "api"}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{Config: cfg, Logger: logger}
	ready := false
	defer func() {
		if !ready {
			app.Close()
		}
	}()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "safety-report-retrieval-" + o.service,
		Enabled:      cfg.TracingEnabled,
		OTLPEndpoint: cfg.TracingEndpoint,
		SampleRatio:  cfg.TracingSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	})

	lex, err := lexicon.LoadFile(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	app.Lexicon = lex

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(o.service)
	retrievalMetrics := metrics.NewRetrievalMetrics(o.service, app.HTTPMetrics.Registry())

	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	policy.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if timeout := time.Duration(cfg.RetrievalQueryTimeoutSeconds) * time.Second; timeout > 0 && policy.RetryBudget() >= timeout {
		logger.Warn("retry budget exceeds query timeout, late attempts will be cut off",
			"retry_budget", policy.RetryBudget().String(),
			"query_timeout", timeout.String(),
		)
	}
	app.Executor = resilience.NewExecutor(policy,
		resilience.WithLogger(logger),
		resilience.WithStateObserver(retrievalMetrics.ObserveBreaker),
	)

	app.Sparse = sparse.NewBuilder(lex, newTokenizer(cfg.Tokenizer, logger), logger)

	embedder, err := embedcache.New(
		ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.WithExecutor(app.Executor))),
		cfg.EmbedCacheSize,
	)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	app.Embedder = embedder

	index, err := app.openIndex(ctx)
	if err != nil {
		return nil, err
	}

	sizer, err := newSizer(cfg, lex)
	if err != nil {
		return nil, err
	}
	app.Sizer = sizer

	searchOpts := []usecase.SearchOption{usecase.WithObserver(retrievalMetrics)}
	if !o.disableRuns {
		runOpts, err := app.openRunRecording(ctx)
		if err != nil {
			return nil, err
		}
		searchOpts = append(searchOpts, runOpts...)
	}

	app.Search = usecase.NewAdaptiveSearch(
		index,
		app.Embedder,
		app.Sparse,
		usecase.NewQueryEnhancer(lex),
		sizer,
		searchConfig(cfg),
		logger,
		searchOpts...,
	)

	logger.Info("retrieval core ready",
		"vector_store", cfg.VectorStore,
		"tokenizer", cfg.Tokenizer,
		"hybrid", cfg.RetrievalHybrid,
		"run_log", app.Runs != nil,
		"events", app.Events != nil,
	)
	ready = true
	return app, nil
}

// NewPlanner builds query planning and dynamic K sizing from the lexicon alone.
// It opens no index, embedder, tokenizer, tracer or run log, so it works
// with every backend down.
func NewPlanner(cfg config.Config) (*usecase.Planner, error) {
	lex, err := lexicon.LoadFile(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	sizer, err := newSizer(cfg, lex)
	if err != nil {
		return nil, err
	}
	sc := searchConfig(cfg)
	return usecase.NewPlanner(usecase.NewQueryEnhancer(lex), sizer, sc.Enhance, sc.StoreType), nil
}

func newSizer(cfg config.Config, lex *lexicon.Lexicon) (*usecase.DynamicKSizer, error) {
	sizer, err := usecase.NewDynamicKSizer(dynamicKConfig(cfg), lex)
	if err != nil {
		return nil, fmt.Errorf("init dynamic k sizer: %w", err)
	}
	return sizer, nil
}

func newTokenizer(kind string, logger *slog.Logger) ports.MorphTokenizer {
	if kind != "kagome" {
		logger.Info("morphological tokenizer disabled", "tokenizer", kind)
		return nil
	}
	tok := kagome.New()
	if err := tok.Init(); err != nil {
		// Builder sees Ready() == false and uses the lite path.
		logger.Warn("kagome init failed", "error", err)
	}
	return tok
}

func (a *App) openIndex(ctx context.Context) (ports.VectorIndex, error) {
	cfg := a.Config
	switch cfg.VectorStore {
	case usecase.StoreQdrant:
		a.Qdrant = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.WithExecutor(a.Executor))
		return a.Qdrant, nil
	case usecase.StoreMemory:
		if cfg.MemorySnapshotPath == "" {
			a.Memory = inmemory.New()
			a.Logger.Warn("in-memory index started empty", "hint", "set MEMORY_SNAPSHOT_PATH")
			return a.Memory, nil
		}
		store, err := inmemory.LoadSnapshot(ctx, cfg.MemorySnapshotPath, a.Embedder, a.Sparse)
		if err != nil {
			return nil, fmt.Errorf("load memory snapshot: %w", err)
		}
		a.Memory = store
		return store, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "open vector index", fmt.Errorf("unknown VECTOR_STORE %q", cfg.VectorStore))
	}
}

func (a *App) openRunRecording(ctx context.Context) ([]usecase.SearchOption, error) {
	cfg := a.Config
	var opts []usecase.SearchOption

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		repo := postgres.NewRetrievalRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.Runs = repo
		opts = append(opts, usecase.WithRunRecorder(repo))
	}

	if cfg.NATSURL != "" {
		publisher, err := natsqueue.NewPublisher(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			ResilienceExecutor: a.Executor,
			Logger:             a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.onClose(publisher.Close)
		a.Events = publisher
		opts = append(opts, usecase.WithEventPublisher(publisher))
	}
	return opts, nil
}

func dynamicKConfig(cfg config.Config) usecase.DynamicKConfig {
	out := usecase.DefaultDynamicKConfig()
	if cfg.DynamicKAbsMin > 0 {
		out.AbsoluteMin = cfg.DynamicKAbsMin
	}
	if cfg.DynamicKRatioMin > 0 {
		out.RatioMin = cfg.DynamicKRatioMin
	}
	if cfg.DynamicKRatioMax > 0 {
		out.RatioMax = cfg.DynamicKRatioMax
	}
	if cfg.DynamicKOverfetch > 0 {
		out.OverfetchMultiplier = cfg.DynamicKOverfetch
	}
	if cfg.DynamicKMinSearchK > 0 {
		out.MinSearchK = cfg.DynamicKMinSearchK
	}
	return out
}

func searchConfig(cfg config.Config) usecase.SearchConfig {
	out := usecase.DefaultSearchConfig()
	out.StoreType = cfg.VectorStore
	out.Hybrid = cfg.RetrievalHybrid
	out.RRFConstant = cfg.RetrievalRRFK
	out.Enhance = usecase.EnhanceConfig{
		MaxQueries:       cfg.RetrievalMaxQueries,
		IncludeEnglish:   cfg.RetrievalIncludeEnglish,
		IncludeSynonyms:  cfg.RetrievalIncludeSynonyms,
		IncludeRoleTerms: cfg.RetrievalIncludeRoleTerms,
	}
	out.QueryTimeout = time.Duration(cfg.RetrievalQueryTimeoutSeconds) * time.Second
	out.QueryConcurrency = cfg.RetrievalQueryConcurrency
	out.AchievementWarn = cfg.RetrievalAchievementWarn
	return out
}

// BreakerStates reports the executor's breaker state per operation.
func (a *App) BreakerStates() map[string]string {
	if a == nil || a.Executor == nil {
		return nil
	}
	return a.Executor.States()
}

// Index upserts chunks into the configured store, filling in missing vectors.
func (a *App) Index(ctx context.Context, chunks []domain.IndexedChunk) error {
	switch {
	case a.Memory != nil:
		return a.Memory.Add(ctx, chunks, a.Embedder, a.Sparse)
	case a.Qdrant != nil:
		if err := fillVectors(ctx, chunks, a.Embedder, a.Sparse); err != nil {
			return err
		}
		return a.Qdrant.UpsertChunks(ctx, chunks)
	default:
		return domain.WrapError(domain.ErrUnavailable, "index chunks", errors.New("no vector store configured"))
	}
}

func fillVectors(ctx context.Context, chunks []domain.IndexedChunk, embedder ports.Embedder, enc ports.SparseEncoder) error {
	var texts []string
	var slots []int
	for i := range chunks {
		if chunks[i].Sparse == nil {
			v := enc.Encode(chunks[i].Content)
			chunks[i].Sparse = &v
		}
		if len(chunks[i].Vector) == 0 {
			texts = append(texts, chunks[i].Content)
			slots = append(slots, i)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	for j, slot := range slots {
		chunks[slot].Vector = vectors[j]
	}
	return nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
