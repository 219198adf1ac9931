package httpapi

import (
	"net/http"

	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/store"
)

func (h *handler) listPeptides(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.PeptideFilter{
		Search:          query.Get("search"),
		IncludeInactive: query.Get("includeInactive") == "true" && RequesterFrom(r.Context()).IsAdmin(),
	}

	page, limit := models.NormalizePage(queryInt(r, "page", 1), queryInt(r, "limit", 0))
	result, err := h.peptides.ListPeptides(r.Context(), filter, page, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, peptidesPageResponse{
		Peptides: result.Items,
		Page:     result.Page,
		Pages:    result.TotalPages,
		Total:    result.Total,
	})
}

func (h *handler) getPeptide(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "peptide")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	peptide, err := h.peptides.GetPeptide(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, peptide)
}

func (h *handler) createPeptide(w http.ResponseWriter, r *http.Request) {
	var req peptideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	peptide, err := req.toPeptide()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.peptides.CreatePeptide(r.Context(), peptide); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, peptide)
}

func (h *handler) updatePeptide(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "peptide")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req peptideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	peptide, err := h.peptides.UpdatePeptide(r.Context(), id, req.toUpdate())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, peptide)
}

func (h *handler) deletePeptide(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "peptide")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.peptides.DeactivatePeptide(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "peptide deleted"})
}
