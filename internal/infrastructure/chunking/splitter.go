// Package chunking cuts report text into index chunks. Paragraphs are packed
// up to ChunkSize runes; a paragraph longer than that is cut into windows that
// overlap by Overlap runes.
package chunking

import (
	"fmt"
	"strings"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

const (
	DefaultChunkSize = 900
	DefaultOverlap   = 150
)

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

// Split returns the trimmed, non-empty chunks of text in reading order.
func (s *Splitter) Split(text string) []string {
	var out []string
	var buf strings.Builder
	bufLen := 0
	flush := func() {
		if chunk := strings.TrimSpace(buf.String()); chunk != "" {
			out = append(out, chunk)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, para := range paragraphs(text) {
		n := len([]rune(para))
		if n > s.ChunkSize {
			flush()
			out = append(out, s.window(para)...)
			continue
		}
		if bufLen > 0 && bufLen+2+n > s.ChunkSize {
			flush()
		}
		if bufLen > 0 {
			buf.WriteString("\n\n")
			bufLen += 2
		}
		buf.WriteString(para)
		bufLen += n
	}
	flush()
	return out
}

// Chunks splits text and tags every chunk with namespace and a stable id
// derived from fileName and the chunk position.
func (s *Splitter) Chunks(namespace, fileName, text string) []domain.IndexedChunk {
	parts := s.Split(text)
	chunks := make([]domain.IndexedChunk, 0, len(parts))
	for i, p := range parts {
		chunks = append(chunks, domain.IndexedChunk{
			ID:        fmt.Sprintf("%s#%04d", fileName, i),
			Namespace: namespace,
			FileName:  fileName,
			Content:   p,
		})
	}
	return chunks
}

func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
