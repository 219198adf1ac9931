package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/safar/peptide-shop/internal/apperr"
)

func (h *handler) applyAffiliate(w http.ResponseWriter, r *http.Request) {
	var req applyAffiliateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	requester := RequesterFrom(r.Context())
	aff, err := h.affiliates.Apply(r.Context(), requester.ID,
		strings.TrimSpace(req.Website), strings.TrimSpace(req.SocialMedia))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, aff)
}

func (h *handler) myAffiliate(w http.ResponseWriter, r *http.Request) {
	aff, err := h.affiliates.Me(r.Context(), RequesterFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, aff)
}

func (h *handler) listAffiliates(w http.ResponseWriter, r *http.Request) {
	page, err := h.affiliates.List(r.Context(), r.URL.Query().Get("status"),
		queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, affiliatesPageResponse{
		Affiliates: page.Items,
		Page:       page.Page,
		Pages:      page.TotalPages,
		Total:      page.Total,
	})
}

func (h *handler) getAffiliate(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "affiliate")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	aff, err := h.affiliates.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, aff)
}

func (h *handler) setAffiliateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "affiliate")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req affiliateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	aff, err := h.affiliates.SetStatus(r.Context(), id, strings.TrimSpace(req.Status))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, aff)
}

func (h *handler) setAffiliateCommission(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "affiliate")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req commissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Commission == nil {
		writeError(w, r, h.logger, apperr.Validation("commission is required"))
		return
	}

	aff, err := h.affiliates.SetCommission(r.Context(), id, *req.Commission)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, aff)
}

func (h *handler) validateAffiliateCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.affiliates.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, validateCodeResponse{Valid: true, Code: code})
}
