package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

const (
	ContentSeparator = "\n\n---\n\n"

	queryOutcomeOK       = "ok"
	queryOutcomeFailed   = "failed"
	queryOutcomeFallback = "hybrid_fallback"
)

type SearchConfig struct {
	StoreType        string
	Hybrid           bool
	RRFConstant      int
	Enhance          EnhanceConfig
	QueryTimeout     time.Duration
	QueryConcurrency int
	AchievementWarn  float64
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		StoreType:        StoreQdrant,
		Hybrid:           true,
		RRFConstant:      DefaultRRFConstant,
		Enhance:          DefaultEnhanceConfig(),
		QueryTimeout:     8 * time.Second,
		QueryConcurrency: 3,
		AchievementWarn:  0.5,
	}
}

func (c SearchConfig) normalize() SearchConfig {
	if c.StoreType == "" {
		c.StoreType = StoreQdrant
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	c.Enhance = c.Enhance.normalize()
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 8 * time.Second
	}
	if c.QueryConcurrency <= 0 {
		c.QueryConcurrency = 3
	}
	if c.AchievementWarn <= 0 {
		c.AchievementWarn = 0.5
	}
	return c
}

type SearchOption func(*AdaptiveSearch)

func WithObserver(o ports.RetrievalObserver) SearchOption {
	return func(s *AdaptiveSearch) { s.observer = o }
}

func WithRunRecorder(r ports.RunRecorder) SearchOption {
	return func(s *AdaptiveSearch) { s.recorder = r }
}

func WithEventPublisher(p ports.EventPublisher) SearchOption {
	return func(s *AdaptiveSearch) { s.publisher = p }
}

func WithTracer(t trace.Tracer) SearchOption {
	return func(s *AdaptiveSearch) { s.tracer = t }
}

// AdaptiveSearch is the multi-query fused retrieval service.
type AdaptiveSearch struct {
	index    ports.VectorIndex
	embedder ports.Embedder
	sparse   ports.SparseEncoder
	enhancer *QueryEnhancer
	sizer    *DynamicKSizer
	planner  *Planner
	cfg      SearchConfig
	logger   *slog.Logger

	observer  ports.RetrievalObserver
	recorder  ports.RunRecorder
	publisher ports.EventPublisher
	tracer    trace.Tracer

	now   func() time.Time
	newID func() string
}

func NewAdaptiveSearch(
	index ports.VectorIndex,
	embedder ports.Embedder,
	sparse ports.SparseEncoder,
	enhancer *QueryEnhancer,
	sizer *DynamicKSizer,
	cfg SearchConfig,
	logger *slog.Logger,
	opts ...SearchOption,
) *AdaptiveSearch {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AdaptiveSearch{
		index:    index,
		embedder: embedder,
		sparse:   sparse,
		enhancer: enhancer,
		sizer:    sizer,
		cfg:      cfg.normalize(),
		logger:   logger,
		tracer:   otel.Tracer("github.com/kirillkom/safety-report-retrieval/usecase"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	s.planner = NewPlanner(enhancer, sizer, s.cfg.Enhance, s.cfg.StoreType)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AdaptiveSearch) PlanQueries(st domain.Stakeholder, maxQueries int) []string {
	return s.planner.PlanQueries(st, maxQueries)
}

func (s *AdaptiveSearch) Plan(st domain.Stakeholder, maxQueries int) ports.QueryPlan {
	return s.planner.Plan(st, maxQueries)
}

func (s *AdaptiveSearch) SearchK(dynamicK int) int {
	return s.planner.SearchK(dynamicK)
}

func (s *AdaptiveSearch) DynamicK(totalChunks int, st domain.Stakeholder, storeType string) int {
	return s.planner.DynamicK(totalChunks, st, storeType)
}

// LowAchievementRuns lists recorded runs whose K achievement fell below threshold.
func (s *AdaptiveSearch) LowAchievementRuns(ctx context.Context, threshold float64, limit int) ([]domain.RetrievalRun, error) {
	if s.recorder == nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "list low achievement runs", errors.New("run recording disabled"))
	}
	if threshold <= 0 {
		threshold = s.cfg.AchievementWarn
	}
	return s.recorder.ListLowAchievement(ctx, threshold, limit)
}

type queryOutcome struct {
	chunks   []domain.RetrievedChunk
	err      error
	fallback bool
}

// Search never returns an error. Stats failures, failed queries and panics degrade
// to smaller or empty results and are reported in Metadata.Degraded.
func (s *AdaptiveSearch) Search(ctx context.Context, req ports.SearchRequest) (result domain.SearchResult) {
	started := s.now()
	cfg := s.cfg
	if req.Hybrid != nil {
		cfg.Hybrid = *req.Hybrid
	}
	if req.MaxQueries > 0 {
		cfg.Enhance.MaxQueries = req.MaxQueries
	}
	st := req.Stakeholder
	namespace := domain.Namespace(st.ID, req.UserID)
	runID := s.newID()
	logger := s.logger.With(
		slog.String("run_id", runID),
		slog.String("stakeholder_id", st.ID),
		slog.String("namespace", namespace),
	)

	ctx, span := s.tracer.Start(ctx, "retrieval.adaptive_search", trace.WithAttributes(
		attribute.String("stakeholder.id", st.ID),
		attribute.String("retrieval.namespace", namespace),
		attribute.Bool("retrieval.hybrid", cfg.Hybrid),
	))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("adaptive search panicked", slog.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			result = emptyResult(domain.DegradedPanic)
		}
		result.Metadata.RunID = runID
		result.Metadata.StakeholderID = st.ID
		result.Metadata.Namespace = namespace
		result.Metadata.StoreType = cfg.StoreType
		result.Metadata.Hybrid = cfg.Hybrid
		result.Metadata.DurationMS = s.now().Sub(started).Milliseconds()
		span.SetAttributes(
			attribute.Int("retrieval.dynamic_k", result.Metadata.DynamicK),
			attribute.Int("retrieval.returned", len(result.Documents)),
			attribute.String("retrieval.degraded", result.Metadata.Degraded),
		)
		span.End()
		s.finish(ctx, logger, result)
	}()

	stats, err := s.index.DescribeStats(ctx, namespace)
	if err != nil {
		logger.Warn("describe stats failed", slog.String("error", err.Error()))
		span.RecordError(err)
		return emptyResult(domain.DegradedStatsFailed)
	}
	if stats.RecordCount <= 0 {
		logger.Info("namespace has no indexed chunks")
		return emptyResult(domain.DegradedEmptyCorpus)
	}

	dynamicK := s.sizer.GetDynamicK(stats.RecordCount, st, cfg.StoreType)
	queries, analysis := s.enhancer.enhance(st, cfg.Enhance)
	weights := QueryWeights(analysis.Category, len(queries))
	searchK := s.sizer.SearchK(dynamicK)

	outcomes := s.runQueries(ctx, logger, namespace, queries, searchK, cfg)

	lists := make([]RankedList, 0, len(queries))
	md := domain.SearchMetadata{
		DynamicK:    dynamicK,
		TotalChunks: stats.RecordCount,
		SearchK:     searchK,
		Queries:     queries,
		Weights:     weights,
	}
	for i, out := range outcomes {
		if out.fallback {
			md.HybridFallbacks++
		}
		if out.err != nil {
			md.FailedQueries++
			continue
		}
		md.SucceededQueries++
		lists = append(lists, RankedList{Query: queries[i], Weight: weights[i], Chunks: out.chunks})
	}

	docs := trimDocuments(FuseRRF(lists, cfg.RRFConstant), dynamicK)
	md.AchievementRate = float64(len(docs)) / float64(dynamicK)
	if md.SucceededQueries == 0 {
		md.Degraded = domain.DegradedAllQueriesFailed
		logger.Error("all retrieval queries failed", slog.Int("queries", len(queries)))
	}
	if md.AchievementRate < cfg.AchievementWarn {
		logger.Warn("dynamic k achievement below threshold",
			slog.Int("dynamic_k", dynamicK),
			slog.Int("returned", len(docs)),
			slog.Float64("achievement_rate", md.AchievementRate),
		)
	}

	return domain.SearchResult{
		Content:    joinContent(docs),
		Documents:  docs,
		Statistics: computeStatistics(docs, len(queries)),
		Metadata:   md,
	}
}

// runQueries fans out the per-query searches. Each worker writes only its own
// slot, so folding happens after Wait without locking.
func (s *AdaptiveSearch) runQueries(
	ctx context.Context,
	logger *slog.Logger,
	namespace string,
	queries []string,
	searchK int,
	cfg SearchConfig,
) []queryOutcome {
	outcomes := make([]queryOutcome, len(queries))
	var g errgroup.Group
	g.SetLimit(cfg.QueryConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			outcomes[i] = s.runQuery(ctx, logger.With(slog.Int("query_index", i)), namespace, q, searchK, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *AdaptiveSearch) runQuery(
	ctx context.Context,
	logger *slog.Logger,
	namespace, query string,
	searchK int,
	cfg SearchConfig,
) (out queryOutcome) {
	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "retrieval.query", trace.WithAttributes(attribute.String("retrieval.query", query)))

	defer func() {
		if r := recover(); r != nil {
			out = queryOutcome{err: fmt.Errorf("query panicked: %v", r)}
		}
		outcome := queryOutcomeOK
		switch {
		case out.err != nil:
			outcome = queryOutcomeFailed
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
			logger.Warn("retrieval query failed", slog.String("query", query), slog.String("error", out.err.Error()))
		case out.fallback:
			outcome = queryOutcomeFallback
		}
		span.End()
		if s.observer != nil {
			s.observer.ObserveQuery(outcome, s.now().Sub(started).Seconds())
		}
	}()

	dense, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return queryOutcome{err: fmt.Errorf("embed query: %w", err)}
	}

	vq := domain.VectorQuery{Namespace: namespace, Text: query, Dense: dense, TopK: searchK}
	if cfg.Hybrid && s.sparse != nil {
		sparse := s.sparse.Encode(query)
		hybrid := vq
		hybrid.Sparse = &sparse
		chunks, err := s.index.Query(ctx, hybrid)
		if err == nil {
			return queryOutcome{chunks: withRanks(chunks)}
		}
		if ctx.Err() != nil {
			return queryOutcome{err: fmt.Errorf("hybrid query: %w", err)}
		}
		logger.Warn("hybrid query failed, retrying dense only", slog.String("error", err.Error()))
		out.fallback = true
	}

	chunks, err := s.index.Query(ctx, vq)
	if err != nil {
		return queryOutcome{err: fmt.Errorf("dense query: %w", err), fallback: out.fallback}
	}
	return queryOutcome{chunks: withRanks(chunks), fallback: out.fallback}
}

// withRanks assigns 1-based ranks in index order.
func withRanks(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	for i := range chunks {
		chunks[i].Rank = i + 1
	}
	return chunks
}

func (s *AdaptiveSearch) finish(ctx context.Context, logger *slog.Logger, result domain.SearchResult) {
	if s.observer != nil {
		s.observer.ObserveSearch(result)
	}
	if s.recorder == nil && s.publisher == nil {
		return
	}
	run := domain.NewRetrievalRun(result, s.now())
	if s.recorder != nil {
		if err := s.recorder.SaveRun(ctx, run); err != nil {
			logger.Warn("save retrieval run failed", slog.String("error", err.Error()))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRetrievalCompleted(ctx, run); err != nil {
			logger.Warn("publish retrieval event failed", slog.String("error", err.Error()))
		}
	}
}

func emptyResult(reason string) domain.SearchResult {
	return domain.SearchResult{
		Content:   nil,
		Documents: []domain.FusedDocument{},
		Statistics: domain.SearchStatistics{
			FileCounts: map[string]int{},
		},
		Metadata: domain.SearchMetadata{
			DynamicK:    0,
			TotalChunks: 0,
			Degraded:    reason,
		},
	}
}

func joinContent(docs []domain.FusedDocument) *string {
	if len(docs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	content := strings.Join(parts, ContentSeparator)
	return &content
}
