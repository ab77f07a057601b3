package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/safety-report-retrieval/internal/config"
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode embed request: %v", err)
		}
		out := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			out[i] = []float32{1, float32(len([]rune(text))%7) / 7}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func memoryConfig(ollamaURL string) config.Config {
	cfg := config.Config{
		VectorStore:                  "memory",
		Tokenizer:                    "lite",
		OllamaURL:                    ollamaURL,
		OllamaEmbedModel:             "test-embed",
		EmbedCacheSize:               16,
		RetrievalHybrid:              true,
		RetrievalRRFK:                60,
		RetrievalMaxQueries:          5,
		RetrievalIncludeEnglish:      true,
		RetrievalIncludeSynonyms:     true,
		RetrievalIncludeRoleTerms:    true,
		RetrievalQueryTimeoutSeconds: 8,
		RetrievalQueryConcurrency:    3,
		ResilienceRetryMaxAttempts:   1,
		ResilienceBreakerEnabled:     true,
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMemoryStoreEndToEnd(t *testing.T) {
	srv := fakeOllama(t)
	app, err := New(context.Background(), memoryConfig(srv.URL), quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Memory == nil || app.Qdrant != nil || app.Runs != nil || app.Events != nil {
		t.Fatalf("unexpected wiring: %+v", app)
	}

	chunks := []domain.IndexedChunk{
		{ID: "c1", Namespace: "cxo_u1", FileName: "risk.md", Content: "リスク評価 コスト"},
		{ID: "c2", Namespace: "cxo_u1", FileName: "budget.md", Content: "予算 進捗 報告"},
		{ID: "c3", Namespace: "cxo_u1", FileName: "hazard.md", Content: "ハザード分析 HAZ-12"},
		{ID: "x1", Namespace: "architect", FileName: "other.md", Content: "設計"},
	}
	if err := app.Index(context.Background(), chunks); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	res := app.Search.Search(context.Background(), ports.SearchRequest{
		Stakeholder: domain.NewStakeholder(domain.StakeholderCxO, "経営層", []string{"コスト", "リスク"}),
		UserID:      "u1",
	})
	md := res.Metadata
	if md.Degraded != "" || md.TotalChunks != 3 || md.DynamicK != 5 || md.StoreType != "memory" {
		t.Fatalf("unexpected metadata %+v", md)
	}
	if len(res.Documents) != 3 || res.Content == nil {
		t.Fatalf("expected all three namespace chunks, got %d", len(res.Documents))
	}
	for _, d := range res.Documents {
		if d.ID == "x1" {
			t.Fatalf("foreign namespace chunk leaked into results")
		}
	}
	if states := app.BreakerStates(); states["ollama.embed"] != "closed" {
		t.Fatalf("expected closed embed breaker, got %v", states)
	}
}

func TestNewLoadsMemorySnapshot(t *testing.T) {
	srv := fakeOllama(t)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	snapshot := `[{"id":"s1","namespace":"product","file_name":"a.md","content":"品質基準","vector":[1,0]}]`
	if err := os.WriteFile(path, []byte(snapshot), 0o600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	cfg := memoryConfig(srv.URL)
	cfg.MemorySnapshotPath = path
	app, err := New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	stats, err := app.Memory.DescribeStats(context.Background(), "product")
	if err != nil || stats.RecordCount != 1 {
		t.Fatalf("DescribeStats() = %+v, %v", stats, err)
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := memoryConfig("http://127.0.0.1:1")
	cfg.VectorStore = "pinecone"
	_, err := New(context.Background(), cfg, quietLogger())
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDynamicKConfigOverrides(t *testing.T) {
	cfg := config.Config{DynamicKAbsMin: 3, DynamicKRatioMax: 0.2, DynamicKMinSearchK: 30}
	out := dynamicKConfig(cfg)
	if out.AbsoluteMin != 3 || out.RatioMax != 0.2 || out.MinSearchK != 30 {
		t.Fatalf("unexpected overrides: %+v", out)
	}
	if out.RatioMin != 0.08 || out.OverfetchMultiplier != 1.5 {
		t.Fatalf("zero values must keep defaults: %+v", out)
	}
}

func TestNewPlannerNeedsNoBackends(t *testing.T) {
	cfg := memoryConfig("http://127.0.0.1:1")
	cfg.MemorySnapshotPath = filepath.Join(t.TempDir(), "missing.json")
	cfg.Tokenizer = "kagome"

	planner, err := NewPlanner(cfg)
	if err != nil {
		t.Fatalf("NewPlanner() error = %v", err)
	}
	cxo := domain.NewStakeholder(domain.StakeholderCxO, "経営層", []string{"コスト"})
	if k := planner.DynamicK(1000, cxo, ""); k != 20 {
		t.Fatalf("DynamicK() = %d, want memory ceiling 20", k)
	}
	if plan := planner.Plan(cxo, 0); len(plan.Queries) == 0 || len(plan.Weights) != len(plan.Queries) {
		t.Fatalf("unexpected plan %+v", plan)
	}
}
