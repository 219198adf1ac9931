package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
)

const categoryColumns = `id, name, description, active, created_at, updated_at`

func scanCategory(row scanner, c *models.Category) error {
	return row.Scan(&c.ID, &c.Name, &c.Description, &c.Active, &c.CreatedAt, &c.UpdatedAt)
}

func CreateCategory(ctx context.Context, q querier, name, description string) (*models.Category, error) {
	category := &models.Category{}

	query := `
		INSERT INTO categories (id, name, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		RETURNING ` + categoryColumns

	if err := scanCategory(q.QueryRowContext(ctx, query, uuid.New(), name, description), category); err != nil {
		if database.IsUniqueViolation(err, "categories_name_key") {
			return nil, apperr.Conflict("category %q already exists", name)
		}
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func GetCategory(ctx context.Context, q querier, id uuid.UUID) (*models.Category, error) {
	category := &models.Category{}

	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	if err := scanCategory(q.QueryRowContext(ctx, query, id), category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("category", id.String())
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}

func UpdateCategory(ctx context.Context, q querier, id uuid.UUID, update models.CategoryUpdate) (*models.Category, error) {
	category := &models.Category{}

	query := `
		UPDATE categories
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + categoryColumns

	if err := scanCategory(q.QueryRowContext(ctx, query, id, update.Name, update.Description), category); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperr.NotFound("category", id.String())
		case database.IsUniqueViolation(err, "categories_name_key"):
			return nil, apperr.Conflict("category %q already exists", *update.Name)
		}
		return nil, fmt.Errorf("update category: %w", err)
	}

	return category, nil
}

// DeactivateCategory hides the category from listings. Products keep their reference.
func DeactivateCategory(ctx context.Context, q querier, id uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		`UPDATE categories SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate category: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("category", id.String())
	}
	return nil
}

// ListCategories returns the active categories by name.
func ListCategories(ctx context.Context, q querier) ([]models.Category, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := scanCategory(rows, &c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, name, description string) (*models.Category, error) {
	return CreateCategory(ctx, s.db, name, description)
}

func (s *Store) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	return GetCategory(ctx, s.db, id)
}

func (s *Store) UpdateCategory(ctx context.Context, id uuid.UUID, update models.CategoryUpdate) (*models.Category, error) {
	return UpdateCategory(ctx, s.db, id, update)
}

func (s *Store) DeactivateCategory(ctx context.Context, id uuid.UUID) error {
	return DeactivateCategory(ctx, s.db, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	return ListCategories(ctx, s.db)
}
