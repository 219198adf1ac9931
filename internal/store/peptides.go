package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
)

const peptideColumns = `id, name, short_name, description, usage_disclaimer, usage_instructions,
	research_info, active, created_at, updated_at, version`

type PeptideFilter struct {
	// Search matches name, short name and description case-insensitively.
	Search          string
	IncludeInactive bool
}

func scanPeptide(row scanner, p *models.Peptide) error {
	var research []byte
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.ShortName,
		&p.Description,
		&p.Usage.Disclaimer,
		&p.Usage.Instructions,
		&research,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	if err != nil {
		return err
	}
	p.ResearchInfo = []models.ResearchInfo{}
	if err := json.Unmarshal(research, &p.ResearchInfo); err != nil {
		return fmt.Errorf("decode research info: %w", err)
	}
	return nil
}

func encodeResearch(info []models.ResearchInfo) ([]byte, error) {
	if info == nil {
		info = []models.ResearchInfo{}
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode research info: %w", err)
	}
	return data, nil
}

// CreatePeptide inserts the peptide and its related product links. Unknown products fail
// the whole insert.
func CreatePeptide(ctx context.Context, tx *sql.Tx, peptide *models.Peptide) error {
	if peptide.ID == uuid.Nil {
		peptide.ID = uuid.New()
	}
	research, err := encodeResearch(peptide.ResearchInfo)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO peptides (id, name, short_name, description, usage_disclaimer, usage_instructions,
		                      research_info, active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING ` + peptideColumns

	related := peptide.RelatedProducts
	err = scanPeptide(tx.QueryRowContext(ctx, query,
		peptide.ID, peptide.Name, peptide.ShortName, peptide.Description,
		peptide.Usage.Disclaimer, peptide.Usage.Instructions, research, peptide.Active,
	), peptide)
	if err != nil {
		if database.IsCheckViolation(err, "") {
			return apperr.Validation("usage disclaimer is required")
		}
		return fmt.Errorf("create peptide: %w", err)
	}

	if err := replaceRelatedProducts(ctx, tx, peptide.ID, related); err != nil {
		return err
	}
	peptide.RelatedProducts = normalizeRelated(related)
	return nil
}

func GetPeptide(ctx context.Context, q querier, id uuid.UUID) (*models.Peptide, error) {
	peptide := &models.Peptide{}

	query := `SELECT ` + peptideColumns + ` FROM peptides WHERE id = $1`

	if err := scanPeptide(q.QueryRowContext(ctx, query, id), peptide); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("peptide", id.String())
		}
		return nil, fmt.Errorf("get peptide: %w", err)
	}

	related, err := loadRelatedProducts(ctx, q, []uuid.UUID{peptide.ID})
	if err != nil {
		return nil, err
	}
	peptide.RelatedProducts = related[peptide.ID]

	return peptide, nil
}

// UpdatePeptide applies the non-nil fields of update and bumps the version.
func UpdatePeptide(ctx context.Context, tx *sql.Tx, id uuid.UUID, update models.PeptideUpdate) (*models.Peptide, error) {
	var research *string
	if update.ResearchInfo != nil {
		data, err := encodeResearch(*update.ResearchInfo)
		if err != nil {
			return nil, err
		}
		encoded := string(data)
		research = &encoded
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE peptides
		 SET name = COALESCE($2, name),
		     short_name = COALESCE($3, short_name),
		     description = COALESCE($4, description),
		     usage_disclaimer = COALESCE($5, usage_disclaimer),
		     usage_instructions = COALESCE($6, usage_instructions),
		     research_info = COALESCE($7::jsonb, research_info),
		     active = COALESCE($8, active),
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, update.Name, update.ShortName, update.Description,
		update.Disclaimer, update.Instructions, research, update.Active)
	if err != nil {
		if database.IsCheckViolation(err, "") {
			return nil, apperr.Validation("usage disclaimer is required")
		}
		return nil, fmt.Errorf("update peptide: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("peptide", id.String())
	}

	if update.RelatedProducts != nil {
		if err := replaceRelatedProducts(ctx, tx, id, *update.RelatedProducts); err != nil {
			return nil, err
		}
	}

	return GetPeptide(ctx, tx, id)
}

// DeactivatePeptide hides the peptide from the public listing.
func DeactivatePeptide(ctx context.Context, q querier, id uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		`UPDATE peptides SET active = FALSE, version = version + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate peptide: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("peptide", id.String())
	}
	return nil
}

// ListPeptides pages through peptides ordered by name.
func ListPeptides(ctx context.Context, q querier, filter PeptideFilter, page, pageSize int) (*models.OffsetPage[models.Peptide], error) {
	where := `WHERE ($1 OR active)
		AND ($2::text = '' OR name ILIKE $2 ESCAPE '\' OR short_name ILIKE $2 ESCAPE '\' OR description ILIKE $2 ESCAPE '\')`

	pattern := ""
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern = "%" + escapeLike(search) + "%"
	}

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM peptides `+where,
		filter.IncludeInactive, pattern).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count peptides: %w", err)
	}

	query := `SELECT ` + peptideColumns + ` FROM peptides ` + where + `
		ORDER BY name, id
		LIMIT $3 OFFSET $4`

	rows, err := q.QueryContext(ctx, query, filter.IncludeInactive, pattern, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list peptides: %w", err)
	}
	defer rows.Close()

	var peptides []models.Peptide
	var ids []uuid.UUID
	for rows.Next() {
		var p models.Peptide
		if err := scanPeptide(rows, &p); err != nil {
			return nil, fmt.Errorf("scan peptide: %w", err)
		}
		peptides = append(peptides, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	related, err := loadRelatedProducts(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range peptides {
		peptides[i].RelatedProducts = related[peptides[i].ID]
	}

	return models.NewOffsetPage(peptides, total, page, pageSize), nil
}

// normalizeRelated drops repeated product ids, keeping first occurrences in order.
func normalizeRelated(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := []uuid.UUID{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func replaceRelatedProducts(ctx context.Context, tx *sql.Tx, peptideID uuid.UUID, productIDs []uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM peptide_products WHERE peptide_id = $1`, peptideID); err != nil {
		return fmt.Errorf("clear related products: %w", err)
	}

	for i, productID := range normalizeRelated(productIDs) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO peptide_products (peptide_id, position, product_id) VALUES ($1, $2, $3)`,
			peptideID, i, productID)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return apperr.ProductNotFound(productID.String())
			}
			return fmt.Errorf("link related product: %w", err)
		}
	}
	return nil
}

func loadRelatedProducts(ctx context.Context, q querier, peptideIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	related := make(map[uuid.UUID][]uuid.UUID, len(peptideIDs))
	if len(peptideIDs) == 0 {
		return related, nil
	}

	ids := make([]string, len(peptideIDs))
	for i, id := range peptideIDs {
		ids[i] = id.String()
		related[id] = []uuid.UUID{}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT peptide_id, product_id
		 FROM peptide_products
		 WHERE peptide_id = ANY($1::uuid[])
		 ORDER BY peptide_id, position`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get related products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var peptideID, productID uuid.UUID
		if err := rows.Scan(&peptideID, &productID); err != nil {
			return nil, fmt.Errorf("scan related product: %w", err)
		}
		related[peptideID] = append(related[peptideID], productID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return related, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) CreatePeptide(ctx context.Context, peptide *models.Peptide) error {
	return database.WithTransaction(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		return CreatePeptide(ctx, tx, peptide)
	})
}

func (s *Store) GetPeptide(ctx context.Context, id uuid.UUID) (*models.Peptide, error) {
	return GetPeptide(ctx, s.db, id)
}

func (s *Store) UpdatePeptide(ctx context.Context, id uuid.UUID, update models.PeptideUpdate) (*models.Peptide, error) {
	var peptide *models.Peptide
	err := database.WithTransaction(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		var err error
		peptide, err = UpdatePeptide(ctx, tx, id, update)
		return err
	})
	return peptide, err
}

func (s *Store) DeactivatePeptide(ctx context.Context, id uuid.UUID) error {
	return DeactivatePeptide(ctx, s.db, id)
}

func (s *Store) ListPeptides(ctx context.Context, filter PeptideFilter, page, pageSize int) (*models.OffsetPage[models.Peptide], error) {
	return ListPeptides(ctx, s.db, filter, page, pageSize)
}
