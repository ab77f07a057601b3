package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

const (
	ToolSearch = "search_safety_knowledge"
	ToolPlan   = "plan_queries"
)

var errEmptyStakeholder = errors.New("stakeholder_id must not be blank")

type RetrievalService interface {
	ports.Retriever
	ports.QueryPlanner
}

// Server exposes the retrieval core as MCP tools.
type Server struct {
	svc    RetrievalService
	mcp    *server.MCPServer
	logger *slog.Logger
}

func NewServer(svc RetrievalService, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		mcp: server.NewMCPServer(
			"safety-report-retrieval",
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(planTool(), s.handlePlan)
	return s
}

func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func stakeholderOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("stakeholder_id",
			mcp.Required(),
			mcp.Description("Predefined id (cxo, business, product, architect, r-and-d, technical-fellows) or a custom id."),
		),
		mcp.WithString("role", mcp.Description("Free-text role, Japanese or English.")),
		mcp.WithArray("concerns",
			mcp.Description("Stakeholder concerns ordered by importance."),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("max_queries", mcp.Description("Upper bound on generated queries, excluding the English slot.")),
	}
}

func searchTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Retrieve safety status report chunks for a stakeholder using multi-query fused search."),
	}, stakeholderOptions()...)
	opts = append(opts,
		mcp.WithString("user_id", mcp.Description("End user id; selects the {stakeholder}_{user} namespace.")),
		mcp.WithBoolean("hybrid", mcp.Description("Combine dense and sparse retrieval. Defaults to the server setting.")),
	)
	return mcp.NewTool(ToolSearch, opts...)
}

func planTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Show the enhanced queries, fusion weights and dynamic K for a stakeholder without searching."),
	}, stakeholderOptions()...)
	opts = append(opts,
		mcp.WithNumber("total_chunks", mcp.Description("Corpus size used to size dynamic K.")),
		mcp.WithString("store_type", mcp.Description("qdrant or memory; selects the K ceiling.")),
	)
	return mcp.NewTool(ToolPlan, opts...)
}

func stakeholderFrom(req mcp.CallToolRequest) (domain.Stakeholder, error) {
	id, err := req.RequireString("stakeholder_id")
	if err != nil {
		return domain.Stakeholder{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Stakeholder{}, errEmptyStakeholder
	}
	return domain.NewStakeholder(id, req.GetString("role", ""), req.GetStringSlice("concerns", nil)), nil
}

type searchOutput struct {
	Content   *string                 `json:"content"`
	Documents []documentOutput        `json:"documents"`
	Metadata  domain.SearchMetadata   `json:"metadata"`
	Stats     domain.SearchStatistics `json:"statistics"`
}

type documentOutput struct {
	ID        string  `json:"id"`
	FileName  string  `json:"file_name"`
	RRFScore  float64 `json:"rrf_score"`
	QueryHits int     `json:"query_hits"`
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := stakeholderFrom(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sreq := ports.SearchRequest{
		Stakeholder: st,
		UserID:      req.GetString("user_id", ""),
		MaxQueries:  req.GetInt("max_queries", 0),
	}
	if args := req.GetArguments(); args != nil {
		if _, ok := args["hybrid"]; ok {
			hybrid := req.GetBool("hybrid", true)
			sreq.Hybrid = &hybrid
		}
	}

	result := s.svc.Search(ctx, sreq)
	s.logger.InfoContext(ctx, "mcp_search",
		"stakeholder_id", st.ID,
		"dynamic_k", result.Metadata.DynamicK,
		"returned", len(result.Documents),
		"degraded", result.Metadata.Degraded,
	)

	out := searchOutput{
		Content:   result.Content,
		Documents: make([]documentOutput, 0, len(result.Documents)),
		Metadata:  result.Metadata,
		Stats:     result.Statistics,
	}
	for _, d := range result.Documents {
		out.Documents = append(out.Documents, documentOutput{
			ID:        d.ID,
			FileName:  d.FileName,
			RRFScore:  d.RRFScore,
			QueryHits: d.QueryHits,
		})
	}
	return jsonResult(out)
}

type planOutput struct {
	StakeholderID string              `json:"stakeholder_id"`
	Queries       []string            `json:"queries"`
	Weights       []float64           `json:"weights"`
	Category      domain.RoleCategory `json:"category"`
	TotalChunks   int                 `json:"total_chunks,omitempty"`
	DynamicK      int                 `json:"dynamic_k,omitempty"`
	SearchK       int                 `json:"search_k,omitempty"`
}

func (s *Server) handlePlan(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := stakeholderFrom(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plan := s.svc.Plan(st, req.GetInt("max_queries", 0))
	out := planOutput{
		StakeholderID: st.ID,
		Queries:       plan.Queries,
		Weights:       plan.Weights,
		Category:      plan.Category,
	}
	if total := req.GetInt("total_chunks", 0); total > 0 {
		out.TotalChunks = total
		out.DynamicK = s.svc.DynamicK(total, st, req.GetString("store_type", ""))
		out.SearchK = s.svc.SearchK(out.DynamicK)
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
