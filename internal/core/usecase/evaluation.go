package usecase

import (
	"context"
	"math"
	"sort"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

// StakeholderResolver maps a ground-truth stakeholder id to a stakeholder profile.
type StakeholderResolver func(id string) domain.Stakeholder

// Evaluator scores live retrieval against labeled ground truth.
type Evaluator struct {
	retriever ports.Retriever
	resolve   StakeholderResolver
}

func NewEvaluator(retriever ports.Retriever, resolve StakeholderResolver) *Evaluator {
	if resolve == nil {
		resolve = func(id string) domain.Stakeholder { return domain.NewStakeholder(id, "", nil) }
	}
	return &Evaluator{retriever: retriever, resolve: resolve}
}

// Evaluate runs every ground-truth query as the top concern of its stakeholder.
// k <= 0 uses each run's dynamic K.
func (e *Evaluator) Evaluate(ctx context.Context, truth []domain.GroundTruthQuery, k int) domain.EvaluationReport {
	report := domain.EvaluationReport{K: k, Queries: make([]domain.QueryEvaluation, 0, len(truth))}
	for _, q := range truth {
		st := StakeholderForQuery(e.resolve(q.StakeholderID), q.Query)
		res := e.retriever.Search(ctx, ports.SearchRequest{Stakeholder: st})

		ids := make([]string, 0, len(res.Documents))
		files := make([]string, 0, len(res.Documents))
		for _, d := range res.Documents {
			ids = append(ids, d.ID)
			files = append(files, d.FileName)
		}
		queryK := k
		if queryK <= 0 {
			queryK = res.Metadata.DynamicK
		}
		ev := ScoreRanking(ids, files, q.RelevantChunks, queryK)
		ev.QueryID = q.QueryID
		ev.StakeholderID = q.StakeholderID
		report.Queries = append(report.Queries, ev)
	}
	report.Mean = meanEvaluation(report.Queries)
	return report
}

// StakeholderForQuery puts query in front of the stakeholder's concerns so it
// becomes the primary search term. Duplicates of query are dropped.
func StakeholderForQuery(base domain.Stakeholder, query string) domain.Stakeholder {
	concerns := make([]string, 0, len(base.Concerns)+1)
	if query != "" {
		concerns = append(concerns, query)
	}
	for _, c := range base.Concerns {
		if c != query {
			concerns = append(concerns, c)
		}
	}
	return domain.NewStakeholder(base.ID, base.Role, concerns)
}

// ScoreRanking computes Precision@K, Recall@K, F1, MRR, nDCG@K and relevant-file
// coverage. A chunk counts as relevant at score >= 1; nDCG uses gain 2^rel-1.
func ScoreRanking(retrievedIDs, retrievedFiles []string, truth []domain.GroundTruthChunk, k int) domain.QueryEvaluation {
	ev := domain.QueryEvaluation{K: k}
	if k <= 0 {
		return ev
	}
	if len(retrievedIDs) > k {
		retrievedIDs = retrievedIDs[:k]
	}
	ev.Retrieved = len(retrievedIDs)

	grades := make(map[string]int, len(truth))
	relevantFiles := make(map[string]struct{})
	relevant := 0
	for _, c := range truth {
		if c.RelevanceScore < 1 || c.ChunkID == "" {
			continue
		}
		if _, dup := grades[c.ChunkID]; !dup {
			relevant++
		}
		grades[c.ChunkID] = c.RelevanceScore
		if c.FileName != "" {
			relevantFiles[c.FileName] = struct{}{}
		}
	}

	hits := 0
	var dcg float64
	for i, id := range retrievedIDs {
		grade, ok := grades[id]
		if !ok {
			continue
		}
		hits++
		if ev.MRR == 0 {
			ev.MRR = 1 / float64(i+1)
		}
		dcg += gain(grade) / math.Log2(float64(i+2))
	}

	if ev.Retrieved > 0 {
		ev.Precision = float64(hits) / float64(ev.Retrieved)
	}
	if relevant > 0 {
		ev.Recall = float64(hits) / float64(relevant)
	}
	if ev.Precision+ev.Recall > 0 {
		ev.F1 = 2 * ev.Precision * ev.Recall / (ev.Precision + ev.Recall)
	}

	ideal := make([]int, 0, len(grades))
	for _, g := range grades {
		ideal = append(ideal, g)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))
	var idcg float64
	for i, g := range ideal {
		if i >= k {
			break
		}
		idcg += gain(g) / math.Log2(float64(i+2))
	}
	if idcg > 0 {
		ev.NDCG = dcg / idcg
	}

	if len(relevantFiles) > 0 {
		covered := make(map[string]struct{})
		for i, f := range retrievedFiles {
			if i >= k {
				break
			}
			if _, ok := relevantFiles[f]; ok {
				covered[f] = struct{}{}
			}
		}
		ev.FileCoverage = float64(len(covered)) / float64(len(relevantFiles))
	}
	return ev
}

func gain(grade int) float64 {
	return math.Pow(2, float64(grade)) - 1
}

func meanEvaluation(items []domain.QueryEvaluation) domain.QueryEvaluation {
	var m domain.QueryEvaluation
	if len(items) == 0 {
		return m
	}
	for _, it := range items {
		m.K += it.K
		m.Retrieved += it.Retrieved
		m.Precision += it.Precision
		m.Recall += it.Recall
		m.F1 += it.F1
		m.MRR += it.MRR
		m.NDCG += it.NDCG
		m.FileCoverage += it.FileCoverage
	}
	n := float64(len(items))
	m.QueryID = "mean"
	m.K = int(math.Round(float64(m.K) / n))
	m.Retrieved = int(math.Round(float64(m.Retrieved) / n))
	m.Precision /= n
	m.Recall /= n
	m.F1 /= n
	m.MRR /= n
	m.NDCG /= n
	m.FileCoverage /= n
	return m
}
