package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/gitmem/internal/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type captureInput struct {
	Namespace string   `json:"namespace" jsonschema:"Namespace to store the memory in"`
	Summary   string   `json:"summary" jsonschema:"Short human-readable summary"`
	Content   string   `json:"content,omitempty" jsonschema:"Longer detail"`
	Tags      []string `json:"tags,omitempty" jsonschema:"Free-form labels"`
	FilePath  string   `json:"file_path,omitempty" jsonschema:"File the memory is about"`
}

type captureOutput struct {
	ID string `json:"id" jsonschema:"ID of the new memory"`
}

type searchInput struct {
	Query         string   `json:"query" jsonschema:"Natural language query"`
	Namespace     string   `json:"namespace,omitempty" jsonschema:"Restrict results to one namespace"`
	K             int      `json:"k,omitempty" jsonschema:"Maximum results (default 5)"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"Similarity floor between 0 and 1 (default 0.5)"`
}

type searchOutput struct {
	Results []memory.Result `json:"results" jsonschema:"Matches in descending similarity"`
}

type getInput struct {
	ID string `json:"id" jsonschema:"Memory ID"`
}

type getOutput struct {
	Memory memory.Memory `json:"memory" jsonschema:"The stored memory"`
}

type syncInput struct{}

type syncOutput struct {
	Synced int `json:"synced" jsonschema:"Number of ledger records replayed"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "memory_capture",
		Description: "Store a memory. Secrets are redacted before storage. Namespaces: " +
			strings.Join(s.engine.Namespaces(), ", "),
	}, instrument(s, "memory_capture", s.capture))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Find memories semantically similar to a query",
	}, instrument(s, "memory_search", s.search))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_get",
		Description: "Fetch one memory by ID",
	}, instrument(s, "memory_get", s.get))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_sync",
		Description: "Rebuild the search index from the git notes ledger",
	}, instrument(s, "memory_sync", s.sync))
}

// instrument records metrics and logs failures around a tool handler.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := h(ctx, req, in)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func text(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func (s *Server) capture(ctx context.Context, _ *mcp.CallToolRequest, in captureInput) (*mcp.CallToolResult, captureOutput, error) {
	if strings.TrimSpace(in.Summary) == "" {
		return nil, captureOutput{}, fmt.Errorf("summary is required")
	}
	id, err := s.engine.Capture(ctx, memory.CaptureRequest{
		Namespace: in.Namespace,
		Summary:   in.Summary,
		Content:   in.Content,
		Tags:      in.Tags,
		FilePath:  in.FilePath,
	})
	if err != nil {
		return nil, captureOutput{}, err
	}
	return text("Captured: %s", id), captureOutput{ID: id}, nil
}

func (s *Server) search(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, searchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, searchOutput{}, fmt.Errorf("query is required")
	}
	results, err := s.engine.Search(ctx, memory.SearchRequest{
		Query:         in.Query,
		Namespace:     in.Namespace,
		K:             in.K,
		MinSimilarity: in.MinSimilarity,
	})
	if err != nil {
		return nil, searchOutput{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. [%s] %s (%.0f%%)", i+1, r.Memory.Namespace, r.Memory.Summary, r.Similarity*100)
	}
	return text("%s", b.String()), searchOutput{Results: results}, nil
}

func (s *Server) get(ctx context.Context, _ *mcp.CallToolRequest, in getInput) (*mcp.CallToolResult, getOutput, error) {
	m, err := s.engine.Get(ctx, in.ID)
	if err != nil {
		return nil, getOutput{}, err
	}
	if m == nil {
		return nil, getOutput{}, fmt.Errorf("memory %s not found", in.ID)
	}
	return text("[%s] %s", m.Namespace, m.Summary), getOutput{Memory: *m}, nil
}

func (s *Server) sync(ctx context.Context, _ *mcp.CallToolRequest, _ syncInput) (*mcp.CallToolResult, syncOutput, error) {
	n, err := s.engine.Reconcile(ctx)
	if err != nil {
		return nil, syncOutput{}, err
	}
	return text("Synced %d memories from git notes", n), syncOutput{Synced: n}, nil
}
