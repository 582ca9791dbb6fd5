package web

import (
	"net/http"
	"strconv"

	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
	"github.com/hpungsan/grimoire/internal/repo"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	repo     *repo.Repository
	renderer *Renderer
}

// HandleList handles GET /items: list items, optionally by category or tag.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	tag := r.URL.Query().Get("tag")

	filter := repo.ListFilter{Tag: ptrString(tag)}
	if category != "" {
		c, err := parseCategory(category)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		filter.Category = &c
	}

	items, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if items == nil {
		items = []*item.Item{}
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
		return
	}

	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData:   h.renderer.page("Items", "items"),
		Items:      items,
		Categories: item.AllCategories(),
		Category:   category,
		Tag:        tag,
		Stats:      stats,
	})
}

// HandleSearch handles GET /items/search: ranked search over every field.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	tag := r.URL.Query().Get("tag")

	data := SearchPageData{
		PageData:   h.renderer.page("Search", "search"),
		Query:      query,
		Categories: item.AllCategories(),
		Category:   category,
		Tag:        tag,
		Results:    []repo.SearchResult{},
		HasQuery:   query != "",
	}

	if query != "" {
		in := repo.QueryInput{
			Term:  query,
			Tag:   ptrString(tag),
			Limit: parseIntParam(r, "limit", 50),
		}
		if category != "" {
			c, err := parseCategory(category)
			if err != nil {
				h.renderer.renderError(w, r, err)
				return
			}
			in.Category = &c
		}

		results, err := h.repo.Query(r.Context(), in)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		data.Results = results
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"results": data.Results, "count": len(data.Results)})
		return
	}

	// htmx targeting #results (search as you type) only needs the fragment
	if r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, r, http.StatusOK, "search", "search-results", data)
		return
	}

	h.renderer.renderPage(w, r, "search", data)
}

// HandleDetail handles GET /items/{id}: view a single item.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	it, ok := h.loadItem(w, r)
	if !ok {
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, it)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData:     h.renderer.page(it.Name, "items"),
		Item:         it,
		Fields:       it.Fields(),
		RenderedHTML: renderMarkdown(it.Content),
	})
}

// HandleHistory handles GET /items/{id}/history: superseded versions, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	it, ok := h.loadItem(w, r)
	if !ok {
		return
	}

	entries, err := h.repo.History(r.Context(), it.ID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"item_id": it.ID, "entries": entries, "count": len(entries)})
		return
	}

	h.renderer.renderPage(w, r, "history", HistoryPageData{
		PageData: h.renderer.page(it.Name+" history", "items"),
		Item:     it,
		Entries:  entries,
	})
}

// HandleRestore handles POST /items/{id}/restore: make a recorded version current.
func (h *Handlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	version, err := strconv.Atoi(r.FormValue("version"))
	if err != nil || version < 1 {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("version must be a positive integer"))
		return
	}

	it, err := h.repo.Restore(r.Context(), id, version)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	target := "/items/" + it.ID
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, it)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleDelete handles DELETE /items/{id}: remove an item and its history.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/items")
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
		return
	}
	http.Redirect(w, r, "/items", http.StatusSeeOther)
}

// loadItem fetches the item named by the {id} path value, rendering the error if any.
func (h *Handlers) loadItem(w http.ResponseWriter, r *http.Request) (*item.Item, bool) {
	it, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return nil, false
	}
	return it, true
}

func parseCategory(s string) (item.Category, error) {
	c, err := item.ParseCategory(s)
	if err != nil {
		return "", errors.NewValidationFailed([]item.Violation{{Field: item.FieldCategory, Reason: item.ReasonInvalidEnum}})
	}
	return c, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
