package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Lixing-Zhang/restaurant-backend/internal/catalog"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/go-chi/chi/v5"
)

// MenuHandler handles menu and category HTTP requests
type MenuHandler struct {
	menu   *service.MenuService
	logger *slog.Logger
}

// NewMenuHandler creates a new menu handler
func NewMenuHandler(menu *service.MenuService, logger *slog.Logger) *MenuHandler {
	return &MenuHandler{
		menu:   menu,
		logger: logger,
	}
}

// GetMenu handles GET /api/menu
// ?inStock=true hides sold out dishes, as on the waiter's screen.
func (h *MenuHandler) GetMenu(w http.ResponseWriter, r *http.Request) {
	onlyInStock, err := boolQuery(r, "inStock")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "inStock must be true or false", h.logger)
		return
	}

	menu, err := h.menu.Menu(r.Context(), onlyInStock)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, menu, h.logger)
}

// Search handles GET /api/menu/search?q=
func (h *MenuHandler) Search(w http.ResponseWriter, r *http.Request) {
	dishes, err := h.menu.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, dishes, h.logger)
}

// ListByCategory handles GET /api/category/{category}/dishes
func (h *MenuHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	onlyInStock, err := boolQuery(r, "inStock")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "inStock must be true or false", h.logger)
		return
	}

	dishes, err := h.menu.ListByCategory(r.Context(), chi.URLParam(r, "category"), onlyInStock)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, dishes, h.logger)
}

// DeleteCategory handles DELETE /api/category/{categoryId}
func (h *MenuHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "categoryId")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid ID supplied", h.logger)
		return
	}

	if err := h.menu.DeleteCategory(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportMenu handles POST /api/menu/import
// The body is a JSON or YAML menu document, optionally gzip compressed.
func (h *MenuHandler) ImportMenu(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 32<<20)

	menu, err := catalog.Read(body, catalog.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		h.logger.Warn("rejected menu import", "error", err)
		WriteError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}

	result, err := catalog.Apply(r.Context(), h.menu, menu)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result, h.logger)
}
