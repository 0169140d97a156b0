package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"j1-query-mcp/internal/jupiterone"
)

// MockQuerier is a test implementation of the Querier interface.
type MockQuerier struct {
	mu       sync.Mutex
	requests []*jupiterone.QueryRequest
	data     json.RawMessage
	err      error
}

func (m *MockQuerier) Query(ctx context.Context, req *jupiterone.QueryRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.data, m.err
}

func (m *MockQuerier) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", res.Content[0])
	return tc.Text
}

func TestNewService(t *testing.T) {
	svc := NewService(&MockQuerier{}, nil)
	require.NotNil(t, svc)
	require.Len(t, svc.Tools(), 1)
	assert.Equal(t, ToolRunQuery, svc.Tools()[0].Name())

	def := svc.Tools()[0].Definition()
	assert.Equal(t, ToolRunQuery, def.Name)
	schema, ok := def.InputSchema.(*jsonschema.Schema)
	require.True(t, ok, "expected *jsonschema.Schema, got %T", def.InputSchema)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"query"}, schema.Required)
	assert.Contains(t, schema.Properties, "query")
	assert.Contains(t, schema.Properties, "cursor")
	assert.Contains(t, schema.Properties, "parameters")
	assert.Contains(t, schema.Properties["query"].Description, "J1QL")
}

func TestNewServicePanicsOnNilQuerier(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, zap.NewNop()) })
}

func TestRunQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		description string
		args        QueryArgs
		data        string
		err         error
		isError     bool
		text        string
		structured  bool
		calls       int
	}{
		{
			"graph payload returned unchanged",
			QueryArgs{Query: "FIND aws_s3_bucket"},
			`{"data":{"vertices":[],"edges":[]}}`,
			nil,
			false,
			`{"data":{"vertices":[],"edges":[]}}`,
			true,
			1,
		},
		{
			"array payload returned as text only",
			QueryArgs{Query: "FIND User AS u RETURN u.email"},
			`[{"u.email":"a@example.com"}]`,
			nil,
			false,
			`[{"u.email":"a@example.com"}]`,
			false,
			1,
		},
		{
			"empty query rejected without a call",
			QueryArgs{Query: ""},
			``,
			nil,
			true,
			`query is required`,
			false,
			0,
		},
		{
			"whitespace query rejected without a call",
			QueryArgs{Query: " \n\t"},
			``,
			nil,
			true,
			`query is required`,
			false,
			0,
		},
		{
			"remote error surfaces status and message",
			QueryArgs{Query: "FIND *"},
			``,
			&jupiterone.RemoteError{StatusCode: 401, Message: "Unauthorized"},
			true,
			`query failed: remote error: status 401: Unauthorized`,
			false,
			1,
		},
		{
			"transport error surfaces as tool error",
			QueryArgs{Query: "FIND *"},
			``,
			&jupiterone.TransportError{Err: context.DeadlineExceeded},
			true,
			`query failed: transport error: context deadline exceeded`,
			false,
			1,
		},
		{
			"decode error surfaces as tool error",
			QueryArgs{Query: "FIND *"},
			``,
			&jupiterone.DecodeError{Err: errors.New("response body is not valid JSON (4 bytes)")},
			true,
			`query failed: decode error`,
			false,
			1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			t.Parallel()

			querier := &MockQuerier{data: json.RawMessage(tc.data), err: tc.err}
			tool := NewQueryTool(querier, zap.NewNop())

			res, out, err := tool.RunQuery(context.Background(), nil, tc.args)
			require.NoError(t, err)
			assert.Nil(t, out)

			assert.Equal(t, tc.isError, res.IsError)
			assert.Contains(t, text(t, res), tc.text)
			assert.Equal(t, tc.structured, res.StructuredContent != nil)
			assert.Equal(t, tc.calls, querier.calls())
		})
	}
}

func TestRunQueryPassesArgumentsThrough(t *testing.T) {
	t.Parallel()

	querier := &MockQuerier{data: json.RawMessage(`{}`)}
	tool := NewQueryTool(querier, zap.NewNop())

	args := QueryArgs{
		Query:      "  FIND Host WITH name = 'x'  ",
		Cursor:     "abc",
		Parameters: map[string]any{"k": "v"},
	}
	_, _, err := tool.RunQuery(context.Background(), nil, args)
	require.NoError(t, err)

	require.Equal(t, 1, querier.calls())
	assert.Equal(t, &jupiterone.QueryRequest{Query: args.Query, Cursor: "abc", Parameters: map[string]any{"k": "v"}}, querier.requests[0])
}

func TestRunQueryLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	querier := &MockQuerier{err: &jupiterone.RemoteError{StatusCode: 403, Message: "Forbidden"}}
	tool := NewQueryTool(querier, zap.New(core))

	_, _, err := tool.RunQuery(context.Background(), nil, QueryArgs{Query: "FIND Secret"})
	require.NoError(t, err)

	failed := logs.FilterMessage("query failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "remote_error", fields["outcome"])
	assert.Equal(t, int64(403), fields["status"])
	assert.NotEmpty(t, fields["call_id"])

	debug := logs.FilterMessage("running query").All()
	require.Len(t, debug, 1)
	assert.Equal(t, "FIND Secret", debug[0].ContextMap()["query"])
}

func TestErrorClass(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "transport_error", errorClass(&jupiterone.TransportError{Err: errors.New("x")}))
	assert.Equal(t, "remote_error", errorClass(&jupiterone.RemoteError{StatusCode: 500}))
	assert.Equal(t, "decode_error", errorClass(&jupiterone.DecodeError{Err: errors.New("x")}))
	assert.Equal(t, "error", errorClass(errors.New("x")))
}

func connect(t *testing.T, querier Querier) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, nil)
	NewService(querier, zap.NewNop()).AddTools(server)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func TestToolContract(t *testing.T) {
	t.Parallel()

	session := connect(t, &MockQuerier{data: json.RawMessage(`{}`)})

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, ToolRunQuery, tools.Tools[0].Name)

	raw, err := json.Marshal(tools.Tools[0].InputSchema)
	require.NoError(t, err)
	var schema struct {
		Type       string                     `json:"type"`
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"query"}, schema.Required)
	assert.Contains(t, schema.Properties, "query")
	assert.Contains(t, schema.Properties, "cursor")
	assert.Contains(t, schema.Properties, "parameters")
}

func TestSessionSurvivesFailedCalls(t *testing.T) {
	t.Parallel()

	querier := &MockQuerier{}
	session := connect(t, querier)
	ctx := context.Background()

	querier.mu.Lock()
	querier.err = &jupiterone.RemoteError{StatusCode: 401, Message: "Unauthorized"}
	querier.mu.Unlock()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolRunQuery,
		Arguments: map[string]any{"query": "FIND *"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "status 401")

	querier.mu.Lock()
	querier.err = nil
	querier.data = json.RawMessage(`{"data":{"vertices":[],"edges":[]}}`)
	querier.mu.Unlock()

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolRunQuery,
		Arguments: map[string]any{"query": "FIND *"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"data":{"vertices":[],"edges":[]}}`, text(t, res))
	assert.Equal(t, 2, querier.calls())
}

func TestConcurrentCalls(t *testing.T) {
	t.Parallel()

	querier := &MockQuerier{data: json.RawMessage(`{"ok":true}`)}
	tool := NewQueryTool(querier, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _, err := tool.RunQuery(context.Background(), nil, QueryArgs{Query: "FIND " + strings.Repeat("x", i+1)})
			assert.NoError(t, err)
			assert.False(t, res.IsError)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, querier.calls())
}
