package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
)

const (
	serverName    = "evidence-vault"
	serverVersion = "1.0.0"
)

// Tools exposes read and classify operations over evidence to MCP clients.
type Tools struct {
	vaults     ports.VaultService
	query      ports.EvidenceQueryService
	evidence   ports.EvidenceService
	reconciler ports.EvidenceReconciler
	logger     *slog.Logger
}

func NewTools(
	vaults ports.VaultService,
	query ports.EvidenceQueryService,
	evidence ports.EvidenceService,
	reconciler ports.EvidenceReconciler,
	logger *slog.Logger,
) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		vaults:     vaults,
		query:      query,
		evidence:   evidence,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Server builds an MCP server with every evidence tool registered.
func (t *Tools) Server() *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_vaults",
		mcp.WithDescription("List evidence vaults (one per case)."),
	), t.listVaults)

	s.AddTool(mcp.NewTool("list_evidence",
		mcp.WithDescription("List evidence in a vault, optionally filtered by category, tag, date range or free text."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault identifier.")),
		mcp.WithString("categories", mcp.Description("Comma-separated categories, e.g. contract,email.")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; any match selects a record.")),
		mcp.WithString("date_start", mcp.Description("Inclusive start date, YYYY-MM-DD.")),
		mcp.WithString("date_end", mcp.Description("Inclusive end date, YYYY-MM-DD.")),
		mcp.WithString("q", mcp.Description("Case-insensitive text filter.")),
		mcp.WithString("sort_by", mcp.Description("date, relevance or name.")),
		mcp.WithString("sort_order", mcp.Description("asc or desc.")),
		mcp.WithBoolean("sync", mcp.Description("Refresh from the remote store before listing.")),
	), t.listEvidence)

	s.AddTool(mcp.NewTool("search_evidence",
		mcp.WithDescription("Search a vault semantically, falling back to local matching."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault identifier.")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query.")),
		mcp.WithNumber("top_k", mcp.Description("Maximum remote hits to consider.")),
	), t.searchEvidence)

	s.AddTool(mcp.NewTool("get_evidence",
		mcp.WithDescription("Fetch one evidence record by local or remote id."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault identifier.")),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence or remote object id.")),
	), t.getEvidence)

	s.AddTool(mcp.NewTool("classify_evidence",
		mcp.WithDescription("Run classification for one record. Returns status processing when the file is not ready yet; call again later."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault identifier.")),
		mcp.WithString("evidence_id", mcp.Required(), mcp.Description("Evidence or remote object id.")),
	), t.classifyEvidence)

	return s
}

func (t *Tools) listVaults(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaults, err := t.vaults.List(ctx)
	if err != nil {
		return t.failure("list_vaults", err), nil
	}
	return jsonResult(map[string]any{"vaults": vaults})
}

func (t *Tools) listEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := domain.EvidenceFilter{
		Tags:      splitList(req.GetString("tags", "")),
		DateStart: req.GetString("date_start", ""),
		DateEnd:   req.GetString("date_end", ""),
		Query:     req.GetString("q", ""),
		SortBy:    domain.ParseSortKey(req.GetString("sort_by", "")),
		SortOrder: domain.ParseSortOrder(req.GetString("sort_order", "")),
	}
	for _, c := range splitList(req.GetString("categories", "")) {
		filter.Categories = append(filter.Categories, domain.Category(c))
	}

	listing, err := t.query.List(ctx, vaultID, filter, req.GetBool("sync", false))
	if err != nil {
		return t.failure("list_evidence", err), nil
	}
	return jsonResult(listing)
}

func (t *Tools) searchEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := t.query.Search(ctx, vaultID, query, req.GetInt("top_k", 0))
	if err != nil {
		return t.failure("search_evidence", err), nil
	}
	return jsonResult(result)
}

func (t *Tools) getEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, id, errResult := requireIDs(req)
	if errResult != nil {
		return errResult, nil
	}
	detail, err := t.evidence.Get(ctx, vaultID, id)
	if err != nil {
		return t.failure("get_evidence", err), nil
	}
	return jsonResult(detail)
}

func (t *Tools) classifyEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, id, errResult := requireIDs(req)
	if errResult != nil {
		return errResult, nil
	}
	result, err := t.reconciler.Reconcile(ctx, vaultID, id)
	if status, pending := domain.StillProcessingStatus(err); pending {
		return jsonResult(map[string]any{
			"status":  status,
			"retry":   true,
			"message": "evidence is still being processed; call classify_evidence again later",
		})
	}
	if err != nil {
		return t.failure("classify_evidence", err), nil
	}
	return jsonResult(result)
}

func (t *Tools) failure(tool string, err error) *mcp.CallToolResult {
	t.logger.Warn("mcp_tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(err.Error())
}

func requireIDs(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	id, err := req.RequireString("evidence_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return vaultID, id, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
