package models

import (
	"time"

	"github.com/google/uuid"
)

// Peptide is an informational catalog entry describing a compound and the products that
// carry it.
type Peptide struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	ShortName       string         `json:"shortName"`
	Description     string         `json:"description"`
	Usage           PeptideUsage   `json:"usage"`
	ResearchInfo    []ResearchInfo `json:"researchInfo"`
	RelatedProducts []uuid.UUID    `json:"relatedProducts"`
	Active          bool           `json:"isActive"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Version         int            `json:"version"`
}

type PeptideUsage struct {
	Disclaimer   string `json:"disclaimer"`
	Instructions string `json:"instructions"`
}

type ResearchInfo struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

// PeptideUpdate changes only the non-nil fields. A non-nil RelatedProducts replaces the
// whole list.
type PeptideUpdate struct {
	Name            *string
	ShortName       *string
	Description     *string
	Disclaimer      *string
	Instructions    *string
	ResearchInfo    *[]ResearchInfo
	RelatedProducts *[]uuid.UUID
	Active          *bool
}
