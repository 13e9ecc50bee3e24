package gmail_tools

import (
	"context"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmailmcp/internal/gmail"
	"github.com/teemow/gmailmcp/internal/logging"
	"github.com/teemow/gmailmcp/internal/server"
	"github.com/teemow/gmailmcp/internal/tools/common"
)

const textMIMEType = "text/plain"

// RegisterGmailTools registers the Gmail resources and tools, backed by the
// factory and bridge held in sc.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	Register(s, sc, NewHandlers(sc.Factory(), sc.Bridge(), sc.Logger()))
}

// Register registers the resources and tools backed by h.
func Register(s *mcpserver.MCPServer, sc *server.ServerContext, h *Handlers) {
	registerResources(s, sc, h)
	registerTools(s, sc, h)
}

func registerResources(s *mcpserver.MCPServer, sc *server.ServerContext, h *Handlers) {
	s.AddResource(
		mcp.NewResource("test://hello", "hello",
			mcp.WithResourceDescription("Static resource for checking connectivity"),
			mcp.WithMIMEType(textMIMEType),
		),
		common.InstrumentedResourceHandler("get_hello", sc, func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return textContents(req, HelloResourceText), nil
		}),
	)

	s.AddResource(
		mcp.NewResource("gmail://inbox", "inbox",
			mcp.WithResourceDescription("The 10 most recent inbox messages (metadata only)"),
			mcp.WithMIMEType(textMIMEType),
		),
		common.InstrumentedResourceHandler("get_emails", sc, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return textContents(req, h.GetEmails(ctx)), nil
		}),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate("gmail://drafts/{max_results}", "drafts",
			mcp.WithTemplateDescription("Recent drafts (metadata only)"),
			mcp.WithTemplateMIMEType(textMIMEType),
		),
		common.InstrumentedResourceHandler("get_drafts", sc, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return textContents(req, h.GetDrafts(ctx, templateInt(req, "max_results", DefaultMaxResults))), nil
		}),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate("gmail://sent/{max_results}", "sent",
			mcp.WithTemplateDescription("Recent sent messages (metadata only)"),
			mcp.WithTemplateMIMEType(textMIMEType),
		),
		common.InstrumentedResourceHandler("get_sent_emails", sc, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return textContents(req, h.GetSentEmails(ctx, templateInt(req, "max_results", DefaultMaxResults))), nil
		}),
	)
}

func registerTools(s *mcpserver.MCPServer, sc *server.ServerContext, h *Handlers) {
	maxResults := mcp.WithNumber("max_results",
		mcp.Description("Maximum number of results to return (default: 10, at most 500)"),
		mcp.DefaultNumber(DefaultMaxResults),
	)

	s.AddTool(
		mcp.NewTool("get_emails",
			mcp.WithDescription("Get the 10 most recent inbox messages (metadata only)"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		common.InstrumentedToolHandler("get_emails", sc, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(h.GetEmails(ctx)), nil
		}),
	)

	s.AddTool(
		mcp.NewTool("get_drafts",
			mcp.WithDescription("Get recent email drafts (metadata only)"),
			mcp.WithReadOnlyHintAnnotation(true),
			maxResults,
		),
		common.InstrumentedToolHandler("get_drafts", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(h.GetDrafts(ctx, req.GetInt("max_results", DefaultMaxResults))), nil
		}, common.Arg("max_results")),
	)

	s.AddTool(
		mcp.NewTool("get_sent_emails",
			mcp.WithDescription("Get recent sent emails (metadata only)"),
			mcp.WithReadOnlyHintAnnotation(true),
			maxResults,
		),
		common.InstrumentedToolHandler("get_sent_emails", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(h.GetSentEmails(ctx, req.GetInt("max_results", DefaultMaxResults))), nil
		}, common.Arg("max_results")),
	)

	s.AddTool(
		mcp.NewTool("search_emails",
			mcp.WithDescription("Search emails using a Gmail query string (e.g. 'subject:urgent', 'from:boss@example.com'). "+
				"Returns From, To, Subject, Date and ID of each match, not the body."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Gmail search query"),
			),
			maxResults,
		),
		common.InstrumentedToolHandler("search_emails", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query, err := req.RequireString("query")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(h.SearchEmails(ctx, query, req.GetInt("max_results", DefaultMaxResults))), nil
		}, common.Arg("query"), common.Arg("max_results")),
	)

	s.AddTool(
		mcp.NewTool("get_email_content",
			mcp.WithDescription("Fetch the body of an email by its message ID. "+
				"Use this after finding the ID with search_emails or get_emails."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("message_id",
				mcp.Required(),
				mcp.Description("The Gmail message ID"),
			),
		),
		common.InstrumentedToolHandler("get_email_content", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("message_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(h.GetEmailContent(ctx, id)), nil
		}, common.Arg("message_id")),
	)

	s.AddTool(
		mcp.NewTool("compose_email",
			mcp.WithDescription("Compose a plain text email and either save it as a draft or send it immediately"),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("to",
				mcp.Required(),
				mcp.Description("Recipient email address"),
			),
			mcp.WithString("subject",
				mcp.Required(),
				mcp.Description("Subject line"),
			),
			mcp.WithString("body",
				mcp.Required(),
				mcp.Description("Plain text body"),
			),
			mcp.WithBoolean("save_as_draft",
				mcp.Description("Save as a draft instead of sending (default: false)"),
				mcp.DefaultBool(false),
			),
		),
		common.InstrumentedToolHandler("compose_email", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			msg := gmail.ComposedMessage{SaveAsDraft: req.GetBool("save_as_draft", false)}
			var err error
			if msg.To, err = req.RequireString("to"); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if msg.Subject, err = req.RequireString("subject"); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if msg.Body, err = req.RequireString("body"); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(h.ComposeEmail(ctx, msg)), nil
		}, common.RedactedArg("to", logging.AnonymizeEmail), common.Arg("save_as_draft")),
	)
}

func textContents(req mcp.ReadResourceRequest, text string) []mcp.ResourceContents {
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      req.Params.URI,
		MIMEType: textMIMEType,
		Text:     text,
	}}
}

// templateInt reads an integer URI template variable. Template variables
// arrive as a string or a one-element []string.
func templateInt(req mcp.ReadResourceRequest, key string, def int) int {
	var s string
	switch v := req.Params.Arguments[key].(type) {
	case string:
		s = v
	case []string:
		if len(v) > 0 {
			s = v[0]
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
