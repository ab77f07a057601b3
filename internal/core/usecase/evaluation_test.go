package usecase

import (
	"context"
	"math"
	"testing"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func TestScoreRanking(t *testing.T) {
	truth := []domain.GroundTruthChunk{
		{ChunkID: "a", FileName: "f1.md", RelevanceScore: 3},
		{ChunkID: "b", FileName: "f2.md", RelevanceScore: 1},
		{ChunkID: "c", FileName: "f3.md", RelevanceScore: 2},
		{ChunkID: "z", FileName: "f9.md", RelevanceScore: 0},
	}
	ids := []string{"a", "x", "b", "y"}
	files := []string{"f1.md", "other.md", "f2.md", "other.md"}

	ev := ScoreRanking(ids, files, truth, 4)
	if ev.Retrieved != 4 || !approx(ev.Precision, 0.5) || !approx(ev.Recall, 2.0/3) {
		t.Fatalf("unexpected precision/recall: %+v", ev)
	}
	if !approx(ev.F1, 0.5714) || ev.MRR != 1 {
		t.Fatalf("unexpected f1/mrr: %+v", ev)
	}
	if !approx(ev.NDCG, 0.7985) {
		t.Fatalf("NDCG = %v, want ~0.7985", ev.NDCG)
	}
	if !approx(ev.FileCoverage, 2.0/3) {
		t.Fatalf("FileCoverage = %v", ev.FileCoverage)
	}
}

func TestScoreRankingTruncatesToK(t *testing.T) {
	truth := []domain.GroundTruthChunk{{ChunkID: "b", RelevanceScore: 2}}
	ev := ScoreRanking([]string{"a", "b"}, nil, truth, 1)
	if ev.Retrieved != 1 || ev.Precision != 0 || ev.MRR != 0 || ev.NDCG != 0 {
		t.Fatalf("expected no hit inside k=1, got %+v", ev)
	}
	if zero := ScoreRanking([]string{"a"}, nil, truth, 0); zero.Retrieved != 0 {
		t.Fatalf("expected empty evaluation for k=0, got %+v", zero)
	}
}

type fakeRetriever struct {
	requests []ports.SearchRequest
}

func (f *fakeRetriever) Search(_ context.Context, req ports.SearchRequest) domain.SearchResult {
	f.requests = append(f.requests, req)
	return domain.SearchResult{
		Documents: []domain.FusedDocument{
			{ID: "c1", FileName: "a.md"},
			{ID: "c2", FileName: "b.md"},
		},
		Metadata: domain.SearchMetadata{DynamicK: 2},
	}
}

func TestEvaluatorUsesQueryAsTopConcern(t *testing.T) {
	r := &fakeRetriever{}
	resolve := func(id string) domain.Stakeholder {
		return domain.NewStakeholder(id, "経営層", []string{"コスト"})
	}
	e := NewEvaluator(r, resolve)
	truth := []domain.GroundTruthQuery{
		{QueryID: "q1", Query: "安全 リスク", StakeholderID: "cxo", RelevantChunks: []domain.GroundTruthChunk{
			{ChunkID: "c2", FileName: "b.md", RelevanceScore: 2},
		}},
		{QueryID: "q2", Query: "品質", StakeholderID: "cxo"},
	}

	report := e.Evaluate(context.Background(), truth, 0)
	if len(report.Queries) != 2 || len(r.requests) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	concerns := r.requests[0].Stakeholder.Concerns
	if len(concerns) != 2 || concerns[0] != "安全 リスク" || concerns[1] != "コスト" {
		t.Fatalf("unexpected concerns: %v", concerns)
	}
	first := report.Queries[0]
	if first.K != 2 || first.MRR != 0.5 || first.Recall != 1 {
		t.Fatalf("unexpected evaluation: %+v", first)
	}
	if report.Mean.QueryID != "mean" || !approx(report.Mean.MRR, 0.25) {
		t.Fatalf("unexpected mean: %+v", report.Mean)
	}
}

func TestStakeholderForQueryDropsDuplicateConcern(t *testing.T) {
	base := domain.NewStakeholder("custom_qa", "品質保証", []string{"検査", "不具合"})
	st := StakeholderForQuery(base, "不具合")
	if len(st.Concerns) != 2 || st.Concerns[0] != "不具合" || st.Concerns[1] != "検査" {
		t.Fatalf("unexpected concerns: %v", st.Concerns)
	}
	if !st.IsCustom() || st.Role != "品質保証" {
		t.Fatalf("unexpected stakeholder: %+v", st)
	}
	if got := StakeholderForQuery(base, ""); len(got.Concerns) != 2 {
		t.Fatalf("blank query must keep concerns, got %v", got.Concerns)
	}
}
