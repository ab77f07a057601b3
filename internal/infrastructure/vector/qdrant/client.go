package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// Client is a namespace-partitioned chunk index over the Qdrant REST API.
// Dense vectors live under "dense", sparse ones under "sparse"; hybrid queries
// are fused server-side with reciprocal rank fusion.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DescribeStats counts the points of one namespace. A missing collection is an
// empty corpus.
func (c *Client) DescribeStats(ctx context.Context, namespace string) (domain.IndexStats, error) {
	reqBody := map[string]any{
		"filter": namespaceFilter(namespace),
		"exact":  true,
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := c.call(ctx, "count", http.MethodPost, c.collectionPath("/points/count"), reqBody, &resp)
	if err != nil {
		if resilience.HasStatus(err, http.StatusNotFound) {
			return domain.IndexStats{}, nil
		}
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{RecordCount: resp.Result.Count}, nil
}

func (c *Client) Query(ctx context.Context, q domain.VectorQuery) ([]domain.RetrievedChunk, error) {
	if len(q.Dense) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant query", fmt.Errorf("dense vector is required"))
	}
	limit := q.TopK
	if limit <= 0 {
		limit = 10
	}
	filter := namespaceFilter(q.Namespace)

	var reqBody map[string]any
	if q.Sparse != nil && q.Sparse.Len() > 0 {
		reqBody = map[string]any{
			"prefetch": []map[string]any{
				{"query": q.Dense, "using": denseVectorName, "limit": limit, "filter": filter},
				{"query": q.Sparse, "using": sparseVectorName, "limit": limit, "filter": filter},
			},
			"query":        map[string]any{"fusion": "rrf"},
			"limit":        limit,
			"with_payload": true,
		}
	} else {
		reqBody = map[string]any{
			"query":        q.Dense,
			"using":        denseVectorName,
			"limit":        limit,
			"filter":       filter,
			"with_payload": true,
		}
	}

	var resp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := c.call(ctx, "query", http.MethodPost, c.collectionPath("/points/query"), reqBody, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(resp.Result.Points))
	for i, p := range resp.Result.Points {
		chunkID := getStringPayload(p.Payload, "chunk_id")
		if chunkID == "" {
			chunkID = fmt.Sprintf("%v", p.ID)
		}
		out = append(out, domain.RetrievedChunk{
			ChunkID:  chunkID,
			FileName: getStringPayload(p.Payload, "file_name"),
			Content:  getStringPayload(p.Payload, "content"),
			Rank:     i + 1,
			Score:    p.Score,
		})
	}
	return out, nil
}

// UpsertChunks writes chunks that already carry dense vectors. Point ids are
// derived from namespace and chunk id, so re-indexing overwrites.
func (c *Client) UpsertChunks(ctx context.Context, chunks []domain.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	size := len(chunks[0].Vector)
	for _, ch := range chunks {
		if len(ch.Vector) == 0 || len(ch.Vector) != size {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("chunk %q: inconsistent dense vector", ch.ID))
		}
	}
	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for _, ch := range chunks {
		vectors := map[string]any{denseVectorName: ch.Vector}
		if ch.Sparse != nil && ch.Sparse.Len() > 0 {
			vectors[sparseVectorName] = ch.Sparse
		}
		points = append(points, point{
			ID:     PointID(ch.Namespace, ch.ID),
			Vector: vectors,
			Payload: map[string]any{
				"chunk_id":  ch.ID,
				"namespace": ch.Namespace,
				"file_name": ch.FileName,
				"content":   ch.Content,
			},
		})
	}
	return c.call(ctx, "upsert", http.MethodPut, c.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// PointID is the deterministic Qdrant point id of a chunk.
func PointID(namespace, chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+chunkID)).String()
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{"size": vectorSize, "distance": "Cosine"},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}
	err := c.call(ctx, "ensure collection", http.MethodPut, c.collectionPath(""), reqBody, nil)
	// 409 if the collection already exists on newer servers.
	if err != nil && !resilience.HasStatus(err, http.StatusConflict) {
		return err
	}
	if err := c.ensureNamespaceIndex(ctx); err != nil {
		return err
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) ensureNamespaceIndex(ctx context.Context) error {
	reqBody := map[string]any{"field_name": "namespace", "field_schema": "keyword"}
	return c.call(ctx, "ensure namespace index", http.MethodPut, c.collectionPath("/index?wait=true"), reqBody, nil)
}

func (c *Client) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, suffix)
}

// 4xx is a caller problem, e.g. sparse vectors not configured on the collection.
var classifyQdrantError = resilience.Classifier(
	resilience.RetryStatus(
		http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
	),
	resilience.RetryNetwork(),
)

func (c *Client) call(ctx context.Context, operation, method, url string, payload any, out any) error {
	do := func(ctx context.Context) error {
		return c.doJSON(ctx, operation, method, url, payload, out)
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant."+operation, do, classifyQdrantError)
	} else {
		err = do(ctx)
	}
	return resilience.Temporary("qdrant "+operation, err, classifyQdrantError)
}

func (c *Client) doJSON(ctx context.Context, operation, method, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func namespaceFilter(namespace string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "namespace", "match": map[string]any{"value": namespace}},
		},
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
