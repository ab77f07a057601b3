package usecase

import (
	"sort"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

const DefaultRRFConstant = 60

// RankedList is the ordered result of one query together with its fusion weight.
type RankedList struct {
	Query  string
	Weight float64
	Chunks []domain.RetrievedChunk
}

// FuseRRF merges ranked lists with weighted reciprocal rank fusion:
// score += weight / (rrfK + rank), rank being 1-based. Documents keep first-seen
// order on equal scores.
func FuseRRF(lists []RankedList, rrfK int) []domain.FusedDocument {
	if rrfK <= 0 {
		rrfK = DefaultRRFConstant
	}

	acc := make(map[string]*domain.FusedDocument)
	order := make([]string, 0)
	for _, list := range lists {
		seen := make(map[string]struct{}, len(list.Chunks))
		for pos, chunk := range list.Chunks {
			key := retrievalChunkKey(chunk)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			rank := chunk.Rank
			if rank <= 0 {
				rank = pos + 1
			}

			doc, ok := acc[key]
			if !ok {
				doc = &domain.FusedDocument{
					ID:          key,
					QueryScores: make(map[string]float64),
					Ranks:       make(map[string]int),
				}
				acc[key] = doc
				order = append(order, key)
			}
			preferRicherChunk(doc, chunk)
			doc.RRFScore += list.Weight / float64(rrfK+rank)
			doc.QueryScores[list.Query] = chunk.Score
			doc.Ranks[list.Query] = rank
			doc.QueryHits++
		}
	}

	out := make([]domain.FusedDocument, 0, len(order))
	for _, key := range order {
		out = append(out, *acc[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RRFScore > out[j].RRFScore
	})
	return out
}

func trimDocuments(docs []domain.FusedDocument, limit int) []domain.FusedDocument {
	if limit <= 0 || len(docs) <= limit {
		return docs
	}
	return docs[:limit]
}

func retrievalChunkKey(chunk domain.RetrievedChunk) string {
	if chunk.ChunkID != "" {
		return chunk.ChunkID
	}
	return chunk.FileName + "|" + chunk.Content
}

func preferRicherChunk(doc *domain.FusedDocument, chunk domain.RetrievedChunk) {
	if doc.Content == "" && chunk.Content != "" {
		doc.Content = chunk.Content
	}
	if doc.FileName == "" && chunk.FileName != "" {
		doc.FileName = chunk.FileName
	}
	if doc.Metadata == nil && len(chunk.Metadata) > 0 {
		doc.Metadata = chunk.Metadata
	}
}

// computeStatistics summarises a fused list. Documents without a file name are
// counted under "unknown".
func computeStatistics(docs []domain.FusedDocument, queryCount int) domain.SearchStatistics {
	stats := domain.SearchStatistics{
		FileCounts:    make(map[string]int),
		QueryCount:    queryCount,
		DocumentCount: len(docs),
	}
	if len(docs) == 0 {
		return stats
	}
	var rrfSum float64
	var hits int
	for _, d := range docs {
		rrfSum += d.RRFScore
		hits += d.QueryHits
		name := d.FileName
		if name == "" {
			name = "unknown"
		}
		stats.FileCounts[name]++
	}
	stats.AvgRRFScore = rrfSum / float64(len(docs))
	stats.AvgCoverage = float64(hits) / float64(len(docs))
	return stats
}
