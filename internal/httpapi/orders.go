package httpapi

import (
	"net/http"

	"github.com/safar/peptide-shop/internal/apperr"
)

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	cmd, err := req.toCommand(RequesterFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), cmd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "order")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id, RequesterFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListMyOrders(r.Context(), RequesterFrom(r.Context()),
		r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, myOrdersResponse{
		Orders:     page.Items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListOrders(r.Context(), RequesterFrom(r.Context()),
		r.URL.Query().Get("status"), queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ordersPageResponse{
		Orders: page.Items,
		Page:   page.Page,
		Pages:  page.TotalPages,
		Total:  page.Total,
	})
}

func (h *handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "order")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Status == "" {
		writeError(w, r, h.logger, apperr.Validation("status is required"))
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, req.Status, req.TrackingNumber)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updateStatusResponse{Order: order, Message: "order status updated"})
}
