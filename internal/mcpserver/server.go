// Package mcpserver exposes stored sessions and modes as MCP tools so an
// external assistant can read past meetings.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/codev612/hearnow/internal/catalog"
	"github.com/codev612/hearnow/internal/db"
	"github.com/codev612/hearnow/internal/session"
)

// defaultListLimit caps list_sessions when no limit is given.
const defaultListLimit = 20

// Store is the read side of the session store.
type Store interface {
	ListSessions(ctx context.Context, search string, limit, skip int) (db.SessionPage, error)
	GetSession(ctx context.Context, id string) (session.Session, error)
	ListModes(ctx context.Context) ([]catalog.Mode, error)
}

// Tools holds the tool handlers.
type Tools struct {
	store Store
	log   zerolog.Logger
}

// NewServer builds an MCP server with the session tools registered.
func NewServer(store Store, version string, log zerolog.Logger) *server.MCPServer {
	t := &Tools{store: store, log: log}
	s := server.NewMCPServer("hearnow", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recorded meeting sessions, newest first. Searches titles and transcript text."),
		mcp.WithString("search", mcp.Description("Case-insensitive text to match in the title or transcript")),
		mcp.WithNumber("limit", mcp.Description("Maximum sessions to return (default 20)")),
		mcp.WithNumber("skip", mcp.Description("Sessions to skip, for paging")),
	), t.ListSessions)

	s.AddTool(mcp.NewTool("export_session",
		mcp.WithDescription("Export one session as plain text: markers, AI notes and the final transcript."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Session id from list_sessions")),
	), t.ExportSession)

	s.AddTool(mcp.NewTool("list_modes",
		mcp.WithDescription("List the custom assistant modes and their prompts."),
	), t.ListModes)

	return s
}

// ServeStdio runs the server over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// ListSessions handles list_sessions.
func (t *Tools) ListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	search := req.GetString("search", "")
	limit := req.GetInt("limit", defaultListLimit)
	skip := req.GetInt("skip", 0)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if skip < 0 {
		skip = 0
	}

	page, err := t.store.ListSessions(ctx, search, limit, skip)
	if err != nil {
		t.log.Warn().Err(err).Msg("list_sessions failed")
		return mcp.NewToolResultError(fmt.Sprintf("list sessions: %v", err)), nil
	}
	if len(page.Items) == 0 {
		return mcp.NewToolResultText("No sessions found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d sessions\n", len(page.Items), page.Total)
	for _, s := range page.Items {
		fmt.Fprintf(&b, "- %s  %s  (%d bubbles, %d markers, updated %s)\n",
			s.ID, s.Title, s.BubbleCount, s.MarkerCount, humanize.Time(s.UpdatedAt))
	}
	if rest := page.Total - skip - len(page.Items); rest > 0 {
		fmt.Fprintf(&b, "%d more; call again with skip=%d\n", rest, skip+len(page.Items))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ExportSession handles export_session.
func (t *Tools) ExportSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.store.GetSession(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", id)), nil
	}
	if err != nil {
		t.log.Warn().Err(err).Str("session_id", id).Msg("export_session failed")
		return mcp.NewToolResultError(fmt.Sprintf("load session: %v", err)), nil
	}
	return mcp.NewToolResultText(session.ExportText(sess)), nil
}

// ListModes handles list_modes.
func (t *Tools) ListModes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modes, err := t.store.ListModes(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list modes: %v", err)), nil
	}
	if len(modes) == 0 {
		return mcp.NewToolResultText("No custom modes."), nil
	}
	lines := lo.Map(modes, func(m catalog.Mode, _ int) string {
		line := fmt.Sprintf("- %s (%s)", m.Label, m.ID)
		if m.Model != "" {
			line += " model=" + m.Model
		}
		if m.Prompt != "" {
			line += "\n  " + m.Prompt
		}
		return line
	})
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
