package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/store"
)

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter store.ProductFilter
	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, h.logger, apperr.Validation("invalid category %q", raw))
			return
		}
		filter.CategoryID = &id
	}
	// Hidden products are only listed for admins.
	filter.IncludeInactive = query.Get("includeInactive") == "true" && RequesterFrom(r.Context()).IsAdmin()

	page, limit := models.NormalizePage(queryInt(r, "page", 1), queryInt(r, "limit", 0))
	result, err := h.catalog.ListProducts(r.Context(), filter, page, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, productsPageResponse{
		Products: result.Items,
		Page:     result.Page,
		Pages:    result.TotalPages,
		Total:    result.Total,
	})
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "product")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !product.Active && !RequesterFrom(r.Context()).IsAdmin() {
		writeError(w, r, h.logger, apperr.ProductNotFound(id.String()))
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	product, err := req.toProduct()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.catalog.CreateProduct(r.Context(), product); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

func (h *handler) updateStock(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "product")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req updateStockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Stock == nil || req.Version == nil {
		writeError(w, r, h.logger, apperr.Validation("stock and version are required"))
		return
	}
	if *req.Stock < 0 {
		writeError(w, r, h.logger, apperr.Validation("stock must not be negative"))
		return
	}

	product, err := h.catalog.UpdateStock(r.Context(), id, *req.Stock, *req.Version)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, h.logger, apperr.Validation("name is required"))
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), name, strings.TrimSpace(req.Description))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "product")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req updateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	update, err := req.toUpdate()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), id, update)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// deleteProduct only deactivates: placed orders keep referencing the product.
func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "product")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.catalog.DeactivateProduct(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "product deleted"})
}

func (h *handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "category")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	category, err := h.catalog.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, category)
}

func (h *handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "category")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req updateCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	update := models.CategoryUpdate{Name: trimmed(req.Name)}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		update.Description = &d
	}

	category, err := h.catalog.UpdateCategory(r.Context(), id, update)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, category)
}

func (h *handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "category")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.catalog.DeactivateCategory(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "category deleted"})
}
