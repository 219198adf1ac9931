// Package affiliate manages affiliate accounts and credits referral commissions on orders.
package affiliate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const codeAttempts = 5

// ErrCodeTaken is returned by Store.CreateAffiliate when the generated referral code is
// already in use.
var ErrCodeTaken = errors.New("referral code already taken")

type Store interface {
	// CreateAffiliate inserts a and promotes its user to the affiliate role.
	CreateAffiliate(ctx context.Context, a *models.Affiliate) error
	GetAffiliate(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	// GetAffiliateByUser returns nil, nil when the user has not applied.
	GetAffiliateByUser(ctx context.Context, userID uuid.UUID) (*models.Affiliate, error)
	FindApprovedByCode(ctx context.Context, code string) (*models.Affiliate, error)
	ListAffiliates(ctx context.Context, status models.AffiliateStatus, page, limit int) (*models.OffsetPage[models.Affiliate], error)
	UpdateAffiliateStatus(ctx context.Context, id uuid.UUID, status models.AffiliateStatus) (*models.Affiliate, error)
	UpdateAffiliateCommission(ctx context.Context, id uuid.UUID, percent decimal.Decimal) (*models.Affiliate, error)
}

type Notifier interface {
	NotifyAffiliateStatus(ctx context.Context, a *models.Affiliate) error
}

type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

func NewService(store Store, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logger}
}

// Apply registers userID as a pending affiliate with a fresh referral code.
func (s *Service) Apply(ctx context.Context, userID uuid.UUID, website, socialMedia string) (*models.Affiliate, error) {
	existing, err := s.store.GetAffiliateByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Transient("load affiliate", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("you are already an affiliate")
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := newReferralCode()
		if err != nil {
			return nil, fmt.Errorf("generate referral code: %w", err)
		}

		aff := &models.Affiliate{
			ID:           uuid.New(),
			UserID:       userID,
			Status:       models.AffiliateStatusPending,
			Commission:   models.DefaultCommission,
			Earnings:     decimal.Zero,
			ReferralCode: code,
			Website:      strings.TrimSpace(website),
			SocialMedia:  strings.TrimSpace(socialMedia),
			Referrals:    []models.ReferralRecord{},
		}
		err = s.store.CreateAffiliate(ctx, aff)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				return nil, err
			}
			return nil, apperr.Transient("create affiliate", err)
		}
		return aff, nil
	}
	return nil, apperr.Conflict("could not allocate a unique referral code")
}

// Me returns the affiliate record of the calling user.
func (s *Service) Me(ctx context.Context, requester *models.Requester) (*models.Affiliate, error) {
	if requester == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if requester.Role != models.RoleAffiliate && !requester.IsAdmin() {
		return nil, apperr.Forbidden("not authorized as an affiliate")
	}
	aff, err := s.store.GetAffiliateByUser(ctx, requester.ID)
	if err != nil {
		return nil, apperr.Transient("load affiliate", err)
	}
	if aff == nil {
		return nil, apperr.AffiliateNotFound(requester.ID.String())
	}
	return aff, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	return s.store.GetAffiliate(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, page, limit int) (*models.OffsetPage[models.Affiliate], error) {
	filter := models.AffiliateStatus(status)
	if filter != "" && !filter.IsValid() {
		return nil, apperr.Validation("invalid affiliate status %q", status)
	}
	page, limit = models.NormalizePage(page, limit)
	return s.store.ListAffiliates(ctx, filter, page, limit)
}

// SetStatus changes the affiliate's status. Approval and rejection are announced to the
// affiliate by email; a failed enqueue is logged and does not fail the update.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Affiliate, error) {
	next := models.AffiliateStatus(status)
	if !next.IsValid() {
		return nil, apperr.Validation("invalid status")
	}

	aff, err := s.store.UpdateAffiliateStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}

	if next != models.AffiliateStatusPending && aff.Email != "" && s.notifier != nil {
		if err := s.notifier.NotifyAffiliateStatus(ctx, aff); err != nil {
			telemetry.WithTrace(ctx, s.logger).Warn("affiliate status notification failed",
				zap.String("affiliate_id", aff.ID.String()),
				zap.Error(err),
			)
		}
	}
	return aff, nil
}

func (s *Service) SetCommission(ctx context.Context, id uuid.UUID, percent decimal.Decimal) (*models.Affiliate, error) {
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperr.Validation("invalid commission rate")
	}
	return s.store.UpdateAffiliateCommission(ctx, id, percent)
}

// Validate reports the code back when it belongs to an approved affiliate.
func (s *Service) Validate(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", apperr.NotFound("affiliate code", code)
	}
	aff, err := s.store.FindApprovedByCode(ctx, code)
	if err != nil {
		return "", apperr.Transient("find affiliate by code", err)
	}
	if aff == nil {
		return "", &apperr.Error{Kind: apperr.KindNotFound, Message: "invalid affiliate code", Resource: "affiliate code", ID: code}
	}
	return aff.ReferralCode, nil
}

func newReferralCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
