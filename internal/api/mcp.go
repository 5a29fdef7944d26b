package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/increp/internal/settings"
	"github.com/kalambet/increp/internal/storage"
)

// SettingsSource exposes the current settings snapshot.
type SettingsSource interface {
	Current() settings.Settings
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Queue    JobQueue
	Jobs     JobLookup
	Results  ResultLookup // optional
	Trigger  TriggerControl
	Sidebar  Sidebar
	Settings SettingsSource
}

// NewMCPServer creates an MCP server with the increp tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"increp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("increp turns incident form responses into PDF reports."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_reports",
			mcp.WithDescription("Queue a pass that creates a PDF report for every unsent form response."),
		),
		mcpGenerateReports(deps),
	)

	s.AddTool(
		mcp.NewTool("report_status",
			mcp.WithDescription("Show the status of a queued report generation pass."),
			mcp.WithString("job_id", mcp.Description("Job id returned by generate_reports"), mcp.Required()),
		),
		mcpReportStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("set_trigger_mode",
			mcp.WithDescription("Generate reports on every form submission (automatic) or only on demand (manual)."),
			mcp.WithString("mode", mcp.Description("automatic or manual"), mcp.Required(), mcp.Enum("automatic", "manual")),
		),
		mcpSetTriggerMode(deps),
	)

	s.AddTool(
		mcp.NewTool("add_email_addresses",
			mcp.WithDescription("Add comma separated recipients for report notifications."),
			mcp.WithString("addresses", mcp.Description("Comma separated email addresses"), mcp.Required()),
		),
		mcpAddEmailAddresses(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"increp://settings",
			"Report Settings",
			mcp.WithResourceDescription("Template, filename pattern, trigger mode and recipients as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSettings(deps),
	)

	return s
}

func mcpGenerateReports(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, created, err := deps.Queue.Enqueue("mcp")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue generation: %v", err)), nil
		}
		if !created {
			return mcpText(fmt.Sprintf("Generation already queued as job %s", id)), nil
		}
		return mcpText(fmt.Sprintf("Queued generation job %s", id)), nil
	}
}

func mcpReportStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}
		job, err := deps.Jobs.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get job: %v", err)), nil
		}

		resp := jobResponse{ID: job.ID, Status: job.Status, Error: job.LastError}
		if deps.Results != nil {
			if s, ok := deps.Results.Result(job.ID); ok {
				resp.Summary = &s
			}
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetTriggerMode(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("mode")
		if err != nil {
			return mcpError("mode is required"), nil
		}
		mode, err := settings.ParseMode(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if err := deps.Trigger.SetMode(mode); err != nil {
			return mcpError(fmt.Sprintf("failed to save trigger mode: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Trigger mode is %s", deps.Trigger.ActivateCurrentTrigger(ctx))), nil
	}
}

func mcpAddEmailAddresses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString("addresses")
		if err != nil {
			return mcpError("addresses is required"), nil
		}
		if _, problems, err := deps.Sidebar.AddEmailAddresses(input); err != nil {
			return mcpError(fmt.Sprintf("failed to save email addresses: %v", err)), nil
		} else if len(problems) > 0 {
			msgs := make([]string, len(problems))
			for i, p := range problems {
				msgs[i] = p.Error()
			}
			return mcpText("Saved valid addresses. Skipped: " + strings.Join(msgs, "; ")), nil
		}
		return mcpText("Saved " + strings.Join(deps.Settings.Current().EmailAddresses, ", ")), nil
	}
}

type settingsView struct {
	TemplateFileID string   `json:"template_file_id"`
	Trigger        string   `json:"trigger"`
	ReportFilename string   `json:"report_filename"`
	EmailAddresses []string `json:"email_addresses"`
}

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cur := deps.Settings.Current()
		v := settingsView{
			TemplateFileID: cur.TemplateFileID,
			Trigger:        string(cur.Trigger),
			ReportFilename: cur.ReportFilename,
			EmailAddresses: cur.EmailAddresses,
		}
		if v.EmailAddresses == nil {
			v.EmailAddresses = []string{}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
