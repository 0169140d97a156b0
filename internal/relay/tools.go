package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"j1-query-mcp/internal/jupiterone"
)

// Service registers the relay tools with an MCP server.
type Service struct {
	tools []Tool
}

// NewService creates a service relaying queries through querier.
func NewService(querier Querier, logger *zap.Logger) *Service {
	if querier == nil {
		panic("querier cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tools: []Tool{NewQueryTool(querier, logger)}}
}

// Tools returns the tools the service exposes.
func (s *Service) Tools() []Tool {
	return s.tools
}

// AddTools registers all tools with the MCP server.
func (s *Service) AddTools(server *mcp.Server) {
	for _, t := range s.tools {
		t.Register(server)
	}
}

// QueryTool implements run_j1_query.
type QueryTool struct {
	querier Querier
	logger  *zap.Logger
	schema  *jsonschema.Schema
}

var _ Tool = (*QueryTool)(nil)

func NewQueryTool(querier Querier, logger *zap.Logger) *QueryTool {
	schema, err := jsonschema.For[QueryArgs](nil)
	if err != nil {
		panic(fmt.Sprintf("unable to build %s input schema: %v", ToolRunQuery, err))
	}
	return &QueryTool{querier: querier, logger: logger, schema: schema}
}

func (q *QueryTool) Name() string {
	return ToolRunQuery
}

func (q *QueryTool) Definition() *mcp.Tool {
	return &mcp.Tool{
		Name:        ToolRunQuery,
		Description: "Run a J1QL query against JupiterOne and return the raw result. The query is passed through unmodified; JupiterOne validates the syntax.",
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:  true,
			OpenWorldHint: ptr(true),
		},
		InputSchema: q.schema,
	}
}

func (q *QueryTool) Register(server *mcp.Server) {
	mcp.AddTool(server, q.Definition(), q.RunQuery)
}

// RunQuery forwards one query and maps the outcome to a tool result. Errors
// are returned as tool-result errors so the session stays usable.
func (q *QueryTool) RunQuery(ctx context.Context, req *mcp.CallToolRequest, args QueryArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return toolError(errors.New("query is required")), nil, nil
	}

	log := q.logger.With(zap.String("call_id", uuid.NewString()), zap.String("tool", ToolRunQuery))
	log.Debug("running query", zap.String("query", args.Query))

	start := time.Now()
	data, err := q.querier.Query(ctx, &jupiterone.QueryRequest{
		Query:      args.Query,
		Cursor:     args.Cursor,
		Parameters: args.Parameters,
	})
	elapsed := time.Since(start)

	if err != nil {
		fields := []zap.Field{zap.Duration("duration", elapsed), zap.String("outcome", errorClass(err)), zap.Error(err)}
		var remote *jupiterone.RemoteError
		if errors.As(err, &remote) {
			fields = append(fields, zap.Int("status", remote.StatusCode))
		}
		log.Warn("query failed", fields...)
		return toolError(fmt.Errorf("query failed: %w", err)), nil, nil
	}

	log.Info("query succeeded", zap.Duration("duration", elapsed), zap.Int("bytes", len(data)))

	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
	// Structured content must be a JSON object; other payloads travel as text only.
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		res.StructuredContent = data
	}
	return res, nil, nil
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func errorClass(err error) string {
	var (
		transport *jupiterone.TransportError
		remote    *jupiterone.RemoteError
		decode    *jupiterone.DecodeError
	)
	switch {
	case errors.As(err, &transport):
		return "transport_error"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.As(err, &decode):
		return "decode_error"
	default:
		return "error"
	}
}

func ptr[T any](v T) *T {
	return &v
}
