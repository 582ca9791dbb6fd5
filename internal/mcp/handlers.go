package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/hpungsan/grimoire/internal/config"
	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/export"
	"github.com/hpungsan/grimoire/internal/item"
	"github.com/hpungsan/grimoire/internal/repo"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	repo *repo.Repository
	cfg  *config.Config
	log  zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(r *repo.Repository, cfg *config.Config, log zerolog.Logger) *Handlers {
	return &Handlers{repo: r, cfg: cfg, log: log}
}

// Request types for each tool

// CreateRequest represents the arguments for item_create.
type CreateRequest struct {
	Category string `json:"category"`
	item.Fields
}

// IDRequest represents tools addressed by item id alone.
type IDRequest struct {
	ID string `json:"id"`
}

// UpdateRequest represents the arguments for item_update.
type UpdateRequest struct {
	ID          string `json:"id"`
	BaseVersion *int   `json:"base_version"`
	item.Patch
}

// ListRequest represents the arguments for item_list.
type ListRequest struct {
	Category *string `json:"category,omitempty"`
	Tag      *string `json:"tag,omitempty"`
}

// SearchRequest represents the arguments for item_search.
type SearchRequest struct {
	Query    string  `json:"query"`
	Category *string `json:"category,omitempty"`
	Tag      *string `json:"tag,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

// ExportRequest represents the arguments for item_export.
type ExportRequest struct {
	ID  string `json:"id,omitempty"`
	All bool   `json:"all,omitempty"`
}

// VersionRequest represents history_get and history_restore.
type VersionRequest struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// Response types

// ListResponse is returned by item_list.
type ListResponse struct {
	Items []*item.Item `json:"items"`
	Count int          `json:"count"`
}

// SearchResponse is returned by item_search.
type SearchResponse struct {
	Results []repo.SearchResult `json:"results"`
	Count   int                 `json:"count"`
}

// ExportResponse is returned by item_export.
type ExportResponse struct {
	Exported []export.Result `json:"exported"`
	Count    int             `json:"count"`
}

// HistoryResponse is returned by history_list.
type HistoryResponse struct {
	ItemID  string              `json:"item_id"`
	Entries []item.HistoryEntry `json:"entries"`
	Count   int                 `json:"count"`
}

// Handler implementations

// HandleCreate handles the item_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	category, err := parseCategory(input.Category)
	if err != nil {
		return errorResult(err), nil
	}

	it, err := h.repo.Create(ctx, item.Candidate{Category: category, Fields: input.Fields})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(it)
}

// HandleGet handles the item_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeID(req)
	if err != nil {
		return errorResult(err), nil
	}

	it, err := h.repo.Get(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(it)
}

// HandleUpdate handles the item_update tool call.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}
	if input.BaseVersion == nil {
		return errorResult(errors.NewInvalidRequest("base_version is required")), nil
	}

	it, err := h.repo.Update(ctx, input.ID, *input.BaseVersion, input.Patch)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(it)
}

// HandleDelete handles the item_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeID(req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.repo.Delete(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "deleted": true})
}

// HandleList handles the item_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	filter := repo.ListFilter{Tag: input.Tag}
	if input.Category != nil {
		c, err := parseCategory(*input.Category)
		if err != nil {
			return errorResult(err), nil
		}
		filter.Category = &c
	}

	items, err := h.repo.List(ctx, filter)
	if err != nil {
		return errorResult(err), nil
	}
	if items == nil {
		items = []*item.Item{}
	}
	return successResult(ListResponse{Items: items, Count: len(items)})
}

// HandleSearch handles the item_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must not be negative")), nil
	}

	q := repo.QueryInput{Term: input.Query, Tag: input.Tag, Limit: input.Limit}
	if input.Category != nil {
		c, err := parseCategory(*input.Category)
		if err != nil {
			return errorResult(err), nil
		}
		q.Category = &c
	}

	results, err := h.repo.Query(ctx, q)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(SearchResponse{Results: results, Count: len(results)})
}

// HandleExport handles the item_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if (input.ID == "") == !input.All {
		return errorResult(errors.NewInvalidRequest("give either id or all=true")), nil
	}

	exporter, err := export.FromConfig(h.cfg)
	if err != nil {
		return errorResult(err), nil
	}

	var results []export.Result
	if input.All {
		items, err := h.repo.List(ctx, repo.ListFilter{})
		if err != nil {
			return errorResult(err), nil
		}
		results, err = exporter.ExportAll(items)
		if err != nil {
			return errorResult(err), nil
		}
	} else {
		it, err := h.repo.Get(ctx, input.ID)
		if err != nil {
			return errorResult(err), nil
		}
		res, err := exporter.Export(it)
		if err != nil {
			return errorResult(err), nil
		}
		results = []export.Result{*res}
	}

	h.log.Info().Int("count", len(results)).Str("dir", exporter.BaseDir).Msg("exported items")
	return successResult(ExportResponse{Exported: results, Count: len(results)})
}

// HandleStats handles the item_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := decode[struct{}](req); err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	stats, err := h.repo.Stats(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(stats)
}

// HandleHistoryList handles the history_list tool call.
func (h *Handlers) HandleHistoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeID(req)
	if err != nil {
		return errorResult(err), nil
	}

	entries, err := h.repo.History(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(HistoryResponse{ItemID: input.ID, Entries: entries, Count: len(entries)})
}

// HandleHistoryGet handles the history_get tool call.
func (h *Handlers) HandleHistoryGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeVersion(req)
	if err != nil {
		return errorResult(err), nil
	}

	entry, err := h.repo.HistoryEntry(ctx, input.ID, input.Version)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(entry)
}

// HandleHistoryRestore handles the history_restore tool call.
func (h *Handlers) HandleHistoryRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeVersion(req)
	if err != nil {
		return errorResult(err), nil
	}

	it, err := h.repo.Restore(ctx, input.ID, input.Version)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(it)
}

func decodeID(req mcp.CallToolRequest) (IDRequest, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return input, errors.NewInvalidRequest(err.Error())
	}
	if input.ID == "" {
		return input, errors.NewInvalidRequest("id is required")
	}
	return input, nil
}

func decodeVersion(req mcp.CallToolRequest) (VersionRequest, error) {
	input, err := decode[VersionRequest](req)
	if err != nil {
		return input, errors.NewInvalidRequest(err.Error())
	}
	if input.ID == "" {
		return input, errors.NewInvalidRequest("id is required")
	}
	if input.Version < 1 {
		return input, errors.NewInvalidRequest("version must be a positive integer")
	}
	return input, nil
}

// parseCategory maps an unknown category to the same violation the
// validator reports.
func parseCategory(s string) (item.Category, error) {
	c, err := item.ParseCategory(s)
	if err != nil {
		return "", errors.NewValidationFailed([]item.Violation{{Field: item.FieldCategory, Reason: item.ReasonInvalidEnum}})
	}
	return c, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Storage failure details never reach the client.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if gErr, ok := errors.As(err); ok {
		message := gErr.Message
		// Keep wrapper context such as "items[2]: ..."
		if _, direct := err.(*errors.GrimoireError); !direct && gErr.Code != errors.ErrStorageFailure {
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    gErr.Code,
			"message": message,
			"status":  gErr.Status,
		}
		if gErr.Code != errors.ErrStorageFailure && gErr.Details != nil {
			errorObj["details"] = gErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrStorageFailure,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
