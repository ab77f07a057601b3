package labeling

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

func sampleRows() []Row {
	q := domain.GroundTruthQuery{QueryID: "q1", Query: "安全 リスク", StakeholderID: "cxo"}
	return BuildRows(q, []domain.FusedDocument{
		{ID: "c1", FileName: "report.md", Content: "安全性\n評価, \"結果\""},
		{ID: "c2", FileName: "plan.md", Content: strings.Repeat("あ", 300)},
	})
}

func TestBuildRowsLeavesScoreBlank(t *testing.T) {
	rows := sampleRows()
	if len(rows) != 2 || rows[0].Rank != 1 || rows[1].Rank != 2 || rows[0].RelevanceScore != "" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if rows[0].Content != "安全性 評価, \"結果\"" {
		t.Fatalf("expected whitespace collapsed, got %q", rows[0].Content)
	}
	if got := []rune(rows[1].Content); len(got) != snippetRunes+1 {
		t.Fatalf("expected truncated snippet, got %d runes", len(got))
	}
}

func TestCSVRoundTripWithBOM(t *testing.T) {
	rows := sampleRows()
	rows[0].RelevanceScore = "3"

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), utf8BOM) {
		t.Fatalf("expected UTF-8 BOM prefix")
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(got) != 2 || got[0].QueryID != "q1" || got[0].Content != rows[0].Content || got[0].RelevanceScore != "3" {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	rows := sampleRows()
	rows[1].RelevanceScore = "2"

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rows); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}
	got, err := ReadXLSX(&buf)
	if err != nil {
		t.Fatalf("ReadXLSX() error = %v", err)
	}
	if len(got) != 2 || got[1].ChunkID != "c2" || got[1].RelevanceScore != "2" || got[1].Rank != 2 {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestToGroundTruthSkipsUnlabeledRows(t *testing.T) {
	rows := []Row{
		{QueryID: "q1", StakeholderID: "cxo", Query: "a", ChunkID: "c1", FileName: "f1", RelevanceScore: "3"},
		{QueryID: "q1", ChunkID: "c2", RelevanceScore: ""},
		{QueryID: "q2", StakeholderID: "architect", Query: "b", ChunkID: "c3", RelevanceScore: "0"},
		{QueryID: "q2", ChunkID: "c4", RelevanceScore: "5"},
		{QueryID: "q1", ChunkID: "c5", RelevanceScore: " 1 "},
		{QueryID: "q1", ChunkID: "c6", RelevanceScore: "high"},
	}
	truth, skipped := ToGroundTruth(rows)
	if skipped != 3 {
		t.Fatalf("expected 3 skipped rows, got %d", skipped)
	}
	if len(truth) != 2 || truth[0].QueryID != "q1" || truth[1].QueryID != "q2" {
		t.Fatalf("unexpected grouping %+v", truth)
	}
	if len(truth[0].RelevantChunks) != 2 || truth[0].RelevantChunks[1].RelevanceScore != 1 {
		t.Fatalf("unexpected q1 chunks %+v", truth[0].RelevantChunks)
	}
	if truth[1].StakeholderID != "architect" || truth[1].RelevantChunks[0].RelevanceScore != 0 {
		t.Fatalf("unexpected q2 %+v", truth[1])
	}
}

func TestReadCSVRequiresColumns(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("query_id,chunk_id\nq1,c1\n"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	if f, _ := Format("labels.CSV"); f != "csv" {
		t.Fatalf("unexpected format %q", f)
	}
	if f, _ := Format("out/labels.xlsx"); f != "xlsx" {
		t.Fatalf("unexpected format %q", f)
	}
	if _, err := Format("labels.json"); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestFileRoundTripByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sheet.csv", "sheet.xlsx"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, sampleRows()); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
		rows, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		if len(rows) != len(sampleRows()) || rows[0].ChunkID != sampleRows()[0].ChunkID {
			t.Fatalf("%s: unexpected rows %+v", name, rows)
		}
	}
	if err := WriteFile(filepath.Join(dir, "sheet.ods"), nil); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
