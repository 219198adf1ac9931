package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
	"golang.org/x/crypto/bcrypt"
)

func CreateUser(ctx context.Context, q querier, email, name, role string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (id, email, name, role, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING id, email, name, role, created_at, updated_at, version`

	err := q.QueryRowContext(ctx, query, uuid.New(), email, name, role).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, apperr.Conflict("user %s already exists", email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q querier, id uuid.UUID) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, email, name, role, created_at, updated_at, version
		FROM users
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user", id.String())
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// ListUsers pages through users newest first. An empty role lists everyone.
func ListUsers(ctx context.Context, q querier, role string, page, pageSize int) (*models.OffsetPage[models.User], error) {
	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE ($1::text = '' OR role = $1)`, role).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	query := `
		SELECT id, email, name, role, created_at, updated_at, version
		FROM users
		WHERE ($1::text = '' OR role = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, role, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Name,
			&user.Role,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return models.NewOffsetPage(users, total, page, pageSize), nil
}

func UpdateUserRole(ctx context.Context, q querier, id uuid.UUID, role string) (*models.User, error) {
	user := &models.User{}

	query := `
		UPDATE users
		SET role = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING id, email, name, role, created_at, updated_at, version`

	err := q.QueryRowContext(ctx, query, id, role).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperr.NotFound("user", id.String())
		case database.IsCheckViolation(err, ""):
			return nil, apperr.Validation("invalid role %q", role)
		}
		return nil, fmt.Errorf("update user role: %w", err)
	}

	return user, nil
}

// DeleteUser removes the user and their API tokens. Users with orders or an affiliate
// account are kept so that history stays intact.
func DeleteUser(ctx context.Context, q querier, id uuid.UUID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.Conflict("user %s has orders or an affiliate account and cannot be deleted", id)
		}
		return fmt.Errorf("delete user: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("user", id.String())
	}
	return nil
}

const tokenSecretBytes = 24

// CreateAPIToken issues a bearer token of the form "<token id>.<secret>" for userID. The id
// is the lookup key and only a bcrypt hash of the secret is stored.
func CreateAPIToken(ctx context.Context, q querier, userID uuid.UUID) (string, error) {
	raw := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	secret := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}

	id := uuid.New()
	_, err = q.ExecContext(ctx,
		`INSERT INTO api_tokens (id, user_id, secret_hash, created_at) VALUES ($1, $2, $3, NOW())`,
		id, userID, string(hash))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return "", apperr.NotFound("user", userID.String())
		}
		return "", fmt.Errorf("create api token: %w", err)
	}

	return id.String() + "." + secret, nil
}

// AuthenticateToken resolves a bearer token to its user. Malformed, unknown and revoked
// tokens are all reported as unauthenticated.
func AuthenticateToken(ctx context.Context, q querier, token string) (*models.Requester, error) {
	failed := apperr.Unauthenticated("not authorized, token failed")

	idPart, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return nil, failed
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return nil, failed
	}

	requester := &models.Requester{}
	var hash string
	err = q.QueryRowContext(ctx,
		`SELECT u.id, u.role, t.secret_hash
		 FROM api_tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.id = $1 AND t.revoked_at IS NULL`,
		id).Scan(&requester.ID, &requester.Role, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, failed
		}
		return nil, fmt.Errorf("authenticate token: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return nil, failed
	}

	if _, err := q.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("touch api token: %w", err)
	}

	return requester, nil
}

func (s *Store) CreateUser(ctx context.Context, email, name, role string) (*models.User, error) {
	return CreateUser(ctx, s.db, email, name, role)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return GetUser(ctx, s.db, id)
}

func (s *Store) ListUsers(ctx context.Context, role string, page, pageSize int) (*models.OffsetPage[models.User], error) {
	return ListUsers(ctx, s.db, role, page, pageSize)
}

func (s *Store) UpdateUserRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error) {
	return UpdateUserRole(ctx, s.db, id, role)
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return DeleteUser(ctx, s.db, id)
}

func (s *Store) CreateAPIToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return CreateAPIToken(ctx, s.db, userID)
}

// Authenticate implements the HTTP layer's token authenticator.
func (s *Store) Authenticate(ctx context.Context, token string) (*models.Requester, error) {
	return AuthenticateToken(ctx, s.db, token)
}
