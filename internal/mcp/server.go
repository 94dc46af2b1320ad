// Package mcp exposes the tool registry over the Model Context Protocol's
// stdio transport for local single-tenant use. The network dispatcher is the
// multi-tenant surface; this one trusts the process boundary, so the tenant
// is fixed at startup and no session tokens are involved.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/fitgate/fitgate/internal/session"
	"github.com/fitgate/fitgate/internal/tools"
)

// NewServer builds an MCP server serving the registry's tools on behalf of
// the fixed tenant.
func NewServer(name, version string, registry *tools.Registry, sessions *session.Manager, tenantID uuid.UUID) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(false),
	)

	for _, info := range registry.List() {
		tool, _ := registry.Get(info.Name)
		mcpTool := mcp.NewTool(info.Name,
			mcp.WithDescription(info.Description),
			mcp.WithString("provider",
				mcp.Required(),
				mcp.Description("Fitness provider name (e.g. 'strava')"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of records to return"),
			),
		)

		handler := tool.Handler
		srv.AddTool(mcpTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCall(ctx, request, handler, sessions, tenantID)
		})
	}

	return srv
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func ServeStdio(srv *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(srv)
}

func handleCall(ctx context.Context, request mcp.CallToolRequest, handler tools.Handler, sessions *session.Manager, tenantID uuid.UUID) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	providerName, _ := args["provider"].(string)
	if providerName == "" {
		return mcp.NewToolResultError("'provider' field is required"), nil
	}

	sess, err := sessions.Get(tenantID, providerName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	accessToken, err := sess.EnsureFresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("provider session not ready: %v", err)), nil
	}

	prov, err := sessions.Provider(providerName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := handler(ctx, &tools.Call{
		TenantID:    tenantID,
		Provider:    prov,
		AccessToken: accessToken,
		Args:        args,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}
