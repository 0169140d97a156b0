package relay

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"j1-query-mcp/internal/jupiterone"
)

const (
	ServerName    = "jupiterone"
	ServerVersion = jupiterone.Version

	ToolRunQuery = "run_j1_query"
)

// Querier executes a single query against the platform.
type Querier interface {
	Query(ctx context.Context, req *jupiterone.QueryRequest) (json.RawMessage, error)
}

// Tool is a capability exposed to the host runtime: a name, a definition
// carrying its description and parameter schema, and an invocation method
// bound at registration.
type Tool interface {
	Name() string
	Definition() *mcp.Tool
	Register(server *mcp.Server)
}

// QueryArgs are the arguments of run_j1_query.
type QueryArgs struct {
	Query      string         `json:"query" jsonschema:"The J1QL query to run against JupiterOne."`
	Cursor     string         `json:"cursor,omitempty" jsonschema:"Opaque cursor from a previous result. Passed through unmodified."`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"Optional query parameters. Passed through unmodified."`
}
