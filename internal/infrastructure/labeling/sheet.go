// Package labeling reads and writes relevance labeling sheets. Reviewers get
// one row per retrieved chunk and fill in relevance_score (0-3); the labeled
// sheet converts back into ground truth for offline evaluation.
package labeling

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

const snippetRunes = 200

var header = []string{"query_id", "stakeholder_id", "query", "rank", "chunk_id", "file_name", "content", "relevance_score"}

type Row struct {
	QueryID        string
	StakeholderID  string
	Query          string
	Rank           int
	ChunkID        string
	FileName       string
	Content        string
	RelevanceScore string
}

func (r Row) values() []string {
	return []string{r.QueryID, r.StakeholderID, r.Query, strconv.Itoa(r.Rank), r.ChunkID, r.FileName, r.Content, r.RelevanceScore}
}

// BuildRows lays out the fused documents of one query with an empty score column.
func BuildRows(q domain.GroundTruthQuery, docs []domain.FusedDocument) []Row {
	rows := make([]Row, 0, len(docs))
	for i, d := range docs {
		rows = append(rows, Row{
			QueryID:       q.QueryID,
			StakeholderID: q.StakeholderID,
			Query:         q.Query,
			Rank:          i + 1,
			ChunkID:       d.ID,
			FileName:      d.FileName,
			Content:       snippet(d.Content),
		})
	}
	return rows
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	return string([]rune(s)[:snippetRunes]) + "…"
}

// ToGroundTruth groups labeled rows by query id in first-seen order. Rows with a
// blank, non-numeric or out-of-range score are skipped and counted.
func ToGroundTruth(rows []Row) ([]domain.GroundTruthQuery, int) {
	var out []domain.GroundTruthQuery
	index := make(map[string]int)
	skipped := 0
	for _, r := range rows {
		score, err := strconv.Atoi(strings.TrimSpace(r.RelevanceScore))
		if err != nil || score < 0 || score > domain.MaxRelevanceScore || r.ChunkID == "" {
			skipped++
			continue
		}
		i, ok := index[r.QueryID]
		if !ok {
			i = len(out)
			index[r.QueryID] = i
			out = append(out, domain.GroundTruthQuery{
				QueryID:        r.QueryID,
				Query:          r.Query,
				StakeholderID:  r.StakeholderID,
				RelevantChunks: []domain.GroundTruthChunk{},
			})
		}
		out[i].RelevantChunks = append(out[i].RelevantChunks, domain.GroundTruthChunk{
			ChunkID:        r.ChunkID,
			FileName:       r.FileName,
			RelevanceScore: score,
		})
	}
	return out, skipped
}

func parseRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse labeling sheet", fmt.Errorf("sheet is empty"))
	}
	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"query_id", "chunk_id", "relevance_score"} {
		if _, ok := cols[required]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse labeling sheet", fmt.Errorf("missing column %q", required))
		}
	}
	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) == 0 || strings.Join(rec, "") == "" {
			continue
		}
		rank, _ := strconv.Atoi(get(rec, "rank"))
		rows = append(rows, Row{
			QueryID:        get(rec, "query_id"),
			StakeholderID:  get(rec, "stakeholder_id"),
			Query:          get(rec, "query"),
			Rank:           rank,
			ChunkID:        get(rec, "chunk_id"),
			FileName:       get(rec, "file_name"),
			Content:        get(rec, "content"),
			RelevanceScore: get(rec, "relevance_score"),
		})
	}
	return rows, nil
}

// Format picks the sheet codec from a file extension.
func Format(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv", nil
	case ".xlsx":
		return "xlsx", nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "labeling format", fmt.Errorf("unsupported extension %q", filepath.Ext(path)))
	}
}
