package main

import (
	"context"
	"net/url"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "remindbot"
	serverVersion = "1.0.0"
)

func newServer(client *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)

	s.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Schedule a one-shot reminder. The owner is the Telegram chat id that will receive it."),
			mcp.WithString("owner", mcp.Required(), mcp.Description("Recipient chat id")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Event title")),
			mcp.WithString("event_time", mcp.Required(), mcp.Description("Event time in RFC3339 format (e.g. 2025-01-15T09:00:00+03:00)")),
			mcp.WithNumber("lead_minutes", mcp.Description("Minutes before the event to notify (default from bot config)")),
		),
		addReminderHandler(client),
	)

	s.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List upcoming (not yet sent) reminders of an owner, soonest first"),
			mcp.WithString("owner", mcp.Required(), mcp.Description("Recipient chat id")),
		),
		listHandler(client, "/api/reminders"),
	)

	s.AddTool(
		mcp.NewTool("reminder_history",
			mcp.WithDescription("List all reminders of an owner including already sent ones"),
			mcp.WithString("owner", mcp.Required(), mcp.Description("Recipient chat id")),
		),
		listHandler(client, "/api/reminders/history"),
	)

	return s
}

func addReminderHandler(client *apiClient) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner := req.GetString("owner", "")
		title := req.GetString("title", "")
		eventTime := req.GetString("event_time", "")

		if owner == "" {
			return mcp.NewToolResultError("owner is required"), nil
		}
		if _, err := time.Parse(time.RFC3339, eventTime); err != nil {
			return mcp.NewToolResultError("event_time must be RFC3339, e.g. 2025-01-15T09:00:00Z"), nil
		}

		body := map[string]interface{}{
			"owner":      owner,
			"title":      title,
			"event_time": eventTime,
		}
		if _, ok := req.GetArguments()["lead_minutes"]; ok {
			body["lead_minutes"] = req.GetInt("lead_minutes", 0)
		}

		return toolResult(client.post("/api/reminders", body)), nil
	}
}

func listHandler(client *apiClient, path string) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner := req.GetString("owner", "")
		if owner == "" {
			return mcp.NewToolResultError("owner is required"), nil
		}
		return toolResult(client.get(path + "?owner=" + url.QueryEscape(owner))), nil
	}
}

func toolResult(text string, isError bool) *mcp.CallToolResult {
	if isError {
		return mcp.NewToolResultError(text)
	}
	return mcp.NewToolResultText(text)
}
