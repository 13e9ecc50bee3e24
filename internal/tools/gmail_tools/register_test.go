package gmail_tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/gmailmcp/internal/server"
)

func newRegisteredServer(t *testing.T, fake *fakeCapability) *mcpserver.MCPServer {
	t.Helper()
	s := mcpserver.NewMCPServer("gmailmcp-test", "1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	sc := server.NewServerContext(context.Background(), nil, nil, nil)
	Register(s, sc, newHandlers(t, fakeAcquirer{capability: fake}))
	return s
}

// call sends one JSON-RPC request and returns the marshalled result.
func call(t *testing.T, s *mcpserver.MCPServer, method string, params any) map[string]any {
	t.Helper()
	req, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)

	resp := s.HandleMessage(context.Background(), req)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Nil(t, out["error"], string(raw))
	result, ok := out["result"].(map[string]any)
	require.True(t, ok, string(raw))
	return result
}

func resourceText(t *testing.T, result map[string]any) string {
	t.Helper()
	contents, ok := result["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 1)
	return contents[0].(map[string]any)["text"].(string)
}

func toolText(t *testing.T, result map[string]any) (string, bool) {
	t.Helper()
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, content)
	isError, _ := result["isError"].(bool)
	return content[0].(map[string]any)["text"].(string), isError
}

func TestRegister_ListsTools(t *testing.T) {
	s := newRegisteredServer(t, &fakeCapability{})

	result := call(t, s, "tools/list", map[string]any{})
	var names []string
	for _, tool := range result["tools"].([]any) {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{
		"get_emails", "get_drafts", "get_sent_emails",
		"search_emails", "get_email_content", "compose_email",
	}, names)
}

func TestRegister_Resources(t *testing.T) {
	fake := &fakeCapability{
		drafts:  []*gmailapi.Draft{{Id: "d1"}},
		details: map[string]*gmailapi.Draft{"d1": {Id: "d1", Message: metadataMessage("m1", "Subject", "Plans")}},
	}
	s := newRegisteredServer(t, fake)

	text := resourceText(t, call(t, s, "resources/read", map[string]any{"uri": "test://hello"}))
	assert.Equal(t, "Hello from Minimal Resource!", text)

	text = resourceText(t, call(t, s, "resources/read", map[string]any{"uri": "gmail://inbox"}))
	assert.Equal(t, NoMessages, text)
	assert.Equal(t, []string{"INBOX"}, fake.lastLabels)

	text = resourceText(t, call(t, s, "resources/read", map[string]any{"uri": "gmail://drafts/3"}))
	assert.Contains(t, text, "Draft ID: d1")
	assert.Equal(t, int64(3), fake.lastMax)

	text = resourceText(t, call(t, s, "resources/read", map[string]any{"uri": "gmail://sent/25"}))
	assert.Equal(t, NoSentMessages, text)
	assert.Equal(t, []string{"SENT"}, fake.lastLabels)
	assert.Equal(t, int64(25), fake.lastMax)
}

func TestRegister_Tools(t *testing.T) {
	fake := &fakeCapability{
		messages: map[string]*gmailapi.Message{"m1": {Id: "m1", Snippet: "preview", Payload: &gmailapi.MessagePart{MimeType: "text/plain"}}},
	}
	s := newRegisteredServer(t, fake)

	text, isError := toolText(t, call(t, s, "tools/call", map[string]any{
		"name":      "search_emails",
		"arguments": map[string]any{"query": "from:alice", "max_results": 7},
	}))
	assert.False(t, isError)
	assert.Equal(t, NoSearchResults, text)
	assert.Equal(t, "from:alice", fake.lastQuery)
	assert.Equal(t, int64(7), fake.lastMax)

	text, isError = toolText(t, call(t, s, "tools/call", map[string]any{
		"name":      "get_email_content",
		"arguments": map[string]any{"message_id": "m1"},
	}))
	assert.False(t, isError)
	assert.Equal(t, "preview", text)

	text, isError = toolText(t, call(t, s, "tools/call", map[string]any{
		"name":      "compose_email",
		"arguments": map[string]any{"to": "a@b.com", "subject": "S", "body": "B", "save_as_draft": true},
	}))
	assert.False(t, isError)
	assert.Equal(t, "Draft saved successfully. Draft ID: draft-123", text)

	text, isError = toolText(t, call(t, s, "tools/call", map[string]any{
		"name":      "get_drafts",
		"arguments": map[string]any{},
	}))
	assert.False(t, isError)
	assert.Equal(t, NoDrafts, text)
	assert.Equal(t, int64(DefaultMaxResults), fake.lastMax)
}

func TestRegister_MissingArguments(t *testing.T) {
	s := newRegisteredServer(t, &fakeCapability{})

	for _, tc := range []struct {
		tool string
		args map[string]any
	}{
		{tool: "search_emails", args: map[string]any{}},
		{tool: "get_email_content", args: map[string]any{}},
		{tool: "compose_email", args: map[string]any{"to": "a@b.com", "subject": "S"}},
	} {
		_, isError := toolText(t, call(t, s, "tools/call", map[string]any{"name": tc.tool, "arguments": tc.args}))
		assert.True(t, isError, tc.tool)
	}
}

func TestTemplateInt(t *testing.T) {
	req := mcp.ReadResourceRequest{}
	req.Params.Arguments = map[string]any{"a": "12", "b": []string{"4"}, "c": "many"}

	assert.Equal(t, 12, templateInt(req, "a", 10))
	assert.Equal(t, 4, templateInt(req, "b", 10))
	assert.Equal(t, 10, templateInt(req, "c", 10))
	assert.Equal(t, 10, templateInt(req, "missing", 10))
}
