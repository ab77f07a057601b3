package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/resilience"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return body
}

func TestDescribeStatsCountsNamespace(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/count" {
			http.NotFound(w, r)
			return
		}
		captured = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"result":{"count":42},"status":"ok"}`))
	}))
	defer server.Close()

	stats, err := New(server.URL, "chunks").DescribeStats(context.Background(), "cxo_u1")
	if err != nil {
		t.Fatalf("DescribeStats() error = %v", err)
	}
	if stats.RecordCount != 42 {
		t.Fatalf("unexpected count %d", stats.RecordCount)
	}
	if captured["exact"] != true {
		t.Fatalf("expected exact count, got %v", captured)
	}
	raw, _ := json.Marshal(captured["filter"])
	if !strings.Contains(string(raw), `"value":"cxo_u1"`) {
		t.Fatalf("expected namespace filter, got %s", raw)
	}
}

func TestDescribeStatsMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found: Collection chunks doesn't exist!"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	stats, err := New(server.URL, "chunks").DescribeStats(context.Background(), "cxo")
	if err != nil || stats.RecordCount != 0 {
		t.Fatalf("DescribeStats() = %+v, %v", stats, err)
	}
}

func TestQueryDenseAssignsRanks(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"p1","score":0.9,"payload":{"chunk_id":"c1","file_name":"a.md","content":"alpha"}},
			{"id":7,"score":0.5,"payload":{"file_name":"b.md","content":"beta"}}
		]}}`))
	}))
	defer server.Close()

	chunks, err := New(server.URL, "chunks").Query(context.Background(), domain.VectorQuery{
		Namespace: "cxo", Dense: []float32{0.1, 0.2}, TopK: 20,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(chunks) != 2 || chunks[0].ChunkID != "c1" || chunks[0].Rank != 1 || chunks[1].Rank != 2 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if chunks[1].ChunkID != "7" || chunks[1].FileName != "b.md" {
		t.Fatalf("expected point id fallback, got %+v", chunks[1])
	}
	if captured["using"] != "dense" || captured["limit"] != float64(20) {
		t.Fatalf("unexpected dense request %v", captured)
	}
	if _, ok := captured["prefetch"]; ok {
		t.Fatalf("dense query must not prefetch")
	}
}

func TestQueryHybridUsesServerSideRRF(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"result":{"points":[]}}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "chunks").Query(context.Background(), domain.VectorQuery{
		Namespace: "cxo",
		Dense:     []float32{0.1},
		Sparse:    &domain.SparseVector{Indices: []uint32{3}, Values: []float32{1}},
		TopK:      5,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	prefetch, _ := captured["prefetch"].([]any)
	if len(prefetch) != 2 {
		t.Fatalf("expected dense and sparse prefetch, got %v", captured)
	}
	raw, _ := json.Marshal(captured["query"])
	if string(raw) != `{"fusion":"rrf"}` {
		t.Fatalf("unexpected fusion query %s", raw)
	}
	second, _ := prefetch[1].(map[string]any)
	if second["using"] != "sparse" {
		t.Fatalf("unexpected sparse prefetch %v", second)
	}
}

func TestQueryRejectsMissingDenseVector(t *testing.T) {
	_, err := New("http://unused", "chunks").Query(context.Background(), domain.VectorQuery{Namespace: "cxo"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestQueryBadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "Wrong input: Not existing vector name: sparse", http.StatusBadRequest)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond})
	_, err := New(server.URL, "chunks", WithExecutor(exec)).Query(context.Background(), domain.VectorQuery{
		Dense: []float32{1}, Sparse: &domain.SparseVector{Indices: []uint32{1}, Values: []float32{1}}, TopK: 3,
	})
	if err == nil || !strings.Contains(err.Error(), "Not existing vector name") {
		t.Fatalf("expected body in error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary")
	}
}

func TestQueryRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[]}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond})
	if _, err := New(server.URL, "chunks", WithExecutor(exec)).Query(context.Background(), domain.VectorQuery{Dense: []float32{1}, TopK: 3}); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls, indexCalls int32
	var upsert map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			atomic.AddInt32(&ensureCalls, 1)
			body := decodeBody(t, r)
			if _, ok := body["sparse_vectors"]; !ok {
				t.Errorf("expected sparse vector config, got %v", body)
			}
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/index":
			atomic.AddInt32(&indexCalls, 1)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			upsert = decodeBody(t, r)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	chunks := []domain.IndexedChunk{
		{ID: "c1", Namespace: "cxo", FileName: "a.md", Content: "alpha", Vector: []float32{0.1, 0.2},
			Sparse: &domain.SparseVector{Indices: []uint32{1}, Values: []float32{1}}},
		{ID: "c2", Namespace: "cxo", FileName: "a.md", Content: "beta", Vector: []float32{0.3, 0.4}},
	}
	for i := 0; i < 2; i++ {
		if err := client.UpsertChunks(context.Background(), chunks); err != nil {
			t.Fatalf("UpsertChunks() error = %v", err)
		}
	}
	if atomic.LoadInt32(&ensureCalls) != 1 || atomic.LoadInt32(&indexCalls) != 1 {
		t.Fatalf("expected collection ensured once, got %d/%d", ensureCalls, indexCalls)
	}
	points, _ := upsert["points"].([]any)
	if len(points) != 2 {
		t.Fatalf("unexpected upsert body %v", upsert)
	}
	first, _ := points[0].(map[string]any)
	if first["id"] != PointID("cxo", "c1") {
		t.Fatalf("expected deterministic point id, got %v", first["id"])
	}
}

func TestUpsertRejectsInconsistentVectors(t *testing.T) {
	err := New("http://unused", "chunks").UpsertChunks(context.Background(), []domain.IndexedChunk{
		{ID: "a", Vector: []float32{1, 2}},
		{ID: "b", Vector: []float32{1}},
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
