package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/affiliate"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/database"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/shopspring/decimal"
)

const affiliateColumns = `a.id, a.user_id, u.name, u.email, a.status, a.commission, a.earnings,
	a.referral_code, a.website, a.social_media, a.created_at, a.updated_at`

func scanAffiliate(row scanner, a *models.Affiliate) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.Name,
		&a.Email,
		&a.Status,
		&a.Commission,
		&a.Earnings,
		&a.ReferralCode,
		&a.Website,
		&a.SocialMedia,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
}

// CreateAffiliate inserts the application and promotes the user to the affiliate role in
// one transaction.
func CreateAffiliate(ctx context.Context, db *sql.DB, a *models.Affiliate) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO affiliates (id, user_id, status, commission, earnings, referral_code, website, social_media, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, NOW(), NOW())
			 RETURNING earnings, created_at, updated_at`,
			a.ID, a.UserID, a.Status, a.Commission, a.ReferralCode, a.Website, a.SocialMedia,
		).Scan(&a.Earnings, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			switch {
			case database.IsUniqueViolation(err, "affiliates_referral_code_key"):
				return affiliate.ErrCodeTaken
			case database.IsUniqueViolation(err, "affiliates_user_id_key"):
				return apperr.Conflict("you are already an affiliate")
			case database.IsForeignKeyViolation(err):
				return apperr.NotFound("user", a.UserID.String())
			}
			return fmt.Errorf("create affiliate: %w", err)
		}

		// Admins keep their role.
		err = tx.QueryRowContext(ctx,
			`UPDATE users
			 SET role = CASE WHEN role = 'admin' THEN role ELSE 'affiliate' END,
			     updated_at = NOW(), version = version + 1
			 WHERE id = $1
			 RETURNING name, email`,
			a.UserID,
		).Scan(&a.Name, &a.Email)
		if err != nil {
			return fmt.Errorf("promote user to affiliate: %w", err)
		}
		return nil
	})
}

func loadReferrals(ctx context.Context, q querier, a *models.Affiliate) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, customer_id, amount, commission, created_at
		 FROM affiliate_referrals
		 WHERE affiliate_id = $1
		 ORDER BY created_at, id`,
		a.ID)
	if err != nil {
		return fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	a.Referrals = []models.ReferralRecord{}
	for rows.Next() {
		var r models.ReferralRecord
		if err := rows.Scan(&r.ID, &r.OrderID, &r.CustomerID, &r.Amount, &r.Commission, &r.CreatedAt); err != nil {
			return fmt.Errorf("scan referral: %w", err)
		}
		a.Referrals = append(a.Referrals, r)
	}
	return rows.Err()
}

func findAffiliate(ctx context.Context, q querier, where string, arg any) (*models.Affiliate, error) {
	a := &models.Affiliate{}
	query := `SELECT ` + affiliateColumns + ` FROM affiliates a JOIN users u ON u.id = a.user_id WHERE ` + where

	if err := scanAffiliate(q.QueryRowContext(ctx, query, arg), a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get affiliate: %w", err)
	}
	if err := loadReferrals(ctx, q, a); err != nil {
		return nil, err
	}
	return a, nil
}

func GetAffiliate(ctx context.Context, q querier, id uuid.UUID) (*models.Affiliate, error) {
	a, err := findAffiliate(ctx, q, `a.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.AffiliateNotFound(id.String())
	}
	return a, nil
}

// GetAffiliateByUser returns nil, nil when the user never applied.
func GetAffiliateByUser(ctx context.Context, q querier, userID uuid.UUID) (*models.Affiliate, error) {
	return findAffiliate(ctx, q, `a.user_id = $1`, userID)
}

// FindApprovedByCode returns nil, nil unless an approved affiliate owns code.
func FindApprovedByCode(ctx context.Context, q querier, code string) (*models.Affiliate, error) {
	a := &models.Affiliate{}
	query := `SELECT ` + affiliateColumns + `
		FROM affiliates a JOIN users u ON u.id = a.user_id
		WHERE a.referral_code = $1 AND a.status = 'approved'`

	if err := scanAffiliate(q.QueryRowContext(ctx, query, code), a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find affiliate by code: %w", err)
	}
	return a, nil
}

// AppendReferral records a referral and credits its commission. The earnings update is a
// relative increment so concurrent orders for the same affiliate never lose a credit.
func AppendReferral(ctx context.Context, tx *sql.Tx, affiliateID uuid.UUID, rec models.ReferralRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO affiliate_referrals (id, affiliate_id, order_id, customer_id, amount, commission, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		rec.ID, affiliateID, rec.OrderID, rec.CustomerID, rec.Amount, rec.Commission)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE affiliates
		 SET earnings = earnings + $1, updated_at = NOW()
		 WHERE id = $2`,
		rec.Commission, affiliateID)
	if err != nil {
		return fmt.Errorf("credit affiliate earnings: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.AffiliateNotFound(affiliateID.String())
	}
	return nil
}

func ListAffiliates(ctx context.Context, q querier, status models.AffiliateStatus, page, pageSize int) (*models.OffsetPage[models.Affiliate], error) {
	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM affiliates WHERE ($1::text = '' OR status = $1)`,
		string(status)).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count affiliates: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+affiliateColumns+`
		 FROM affiliates a JOIN users u ON u.id = a.user_id
		 WHERE ($1::text = '' OR a.status = $1)
		 ORDER BY a.created_at DESC, a.id DESC
		 LIMIT $2 OFFSET $3`,
		string(status), pageSize, offset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list affiliates: %w", err)
	}
	defer rows.Close()

	var affiliates []models.Affiliate
	for rows.Next() {
		var a models.Affiliate
		if err := scanAffiliate(rows, &a); err != nil {
			return nil, fmt.Errorf("scan affiliate: %w", err)
		}
		a.Referrals = []models.ReferralRecord{}
		affiliates = append(affiliates, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return models.NewOffsetPage(affiliates, total, page, pageSize), nil
}

func updateAffiliate(ctx context.Context, q querier, id uuid.UUID, set string, arg any) (*models.Affiliate, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE affiliates SET `+set+`, updated_at = NOW() WHERE id = $2`, arg, id)
	if err != nil {
		return nil, fmt.Errorf("update affiliate: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.AffiliateNotFound(id.String())
	}
	return GetAffiliate(ctx, q, id)
}

func (s *Store) CreateAffiliate(ctx context.Context, a *models.Affiliate) error {
	return CreateAffiliate(ctx, s.db, a)
}

func (s *Store) GetAffiliate(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	return GetAffiliate(ctx, s.db, id)
}

func (s *Store) GetAffiliateByUser(ctx context.Context, userID uuid.UUID) (*models.Affiliate, error) {
	return GetAffiliateByUser(ctx, s.db, userID)
}

func (s *Store) FindApprovedByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	return FindApprovedByCode(ctx, s.db, code)
}

func (s *Store) ListAffiliates(ctx context.Context, status models.AffiliateStatus, page, pageSize int) (*models.OffsetPage[models.Affiliate], error) {
	return ListAffiliates(ctx, s.db, status, page, pageSize)
}

func (s *Store) UpdateAffiliateStatus(ctx context.Context, id uuid.UUID, status models.AffiliateStatus) (*models.Affiliate, error) {
	return updateAffiliate(ctx, s.db, id, `status = $1`, string(status))
}

func (s *Store) UpdateAffiliateCommission(ctx context.Context, id uuid.UUID, percent decimal.Decimal) (*models.Affiliate, error) {
	return updateAffiliate(ctx, s.db, id, `commission = $1`, percent)
}

func (t *txStore) FindApprovedByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	return FindApprovedByCode(ctx, t.tx, code)
}

func (t *txStore) AppendReferral(ctx context.Context, affiliateID uuid.UUID, rec models.ReferralRecord) error {
	return AppendReferral(ctx, t.tx, affiliateID, rec)
}
