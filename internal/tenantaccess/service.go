package tenantaccess

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"leasebook/internal/lease"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound           = errors.New("token not found")
	ErrLeaseGroupNotFound = errors.New("lease group not found")
	ErrActiveTokenExists  = errors.New("an active token already exists for this lease group")
	ErrAlreadyRevoked     = errors.New("token already revoked")
)

type InvalidReason string

const (
	ReasonNotFound InvalidReason = "not_found"
	ReasonRevoked  InvalidReason = "revoked"
	ReasonInactive InvalidReason = "inactive"
)

// Validation is the read-only verdict on a presented token.
type Validation struct {
	Valid        bool          `json:"valid"`
	LeaseGroupID string        `json:"lease_group_id,omitempty"`
	Reason       InvalidReason `json:"reason,omitempty"`
	Token        *Token        `json:"-"`
}

type Service struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func newTokenString() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Generate issues a token for an existing lease group. It refuses while another
// token is active rather than revoking it.
func (s *Service) Generate(ctx context.Context, leaseGroupID string) (*Token, error) {
	value, err := newTokenString()
	if err != nil {
		return nil, err
	}

	var tok Token
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var leases int64
		if err := tx.Model(&lease.Lease{}).Where("lease_group_id = ?", leaseGroupID).Count(&leases).Error; err != nil {
			return err
		}
		if leases == 0 {
			return ErrLeaseGroupNotFound
		}

		var active []Token
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("lease_group_id = ? AND is_active = ?", leaseGroupID, true).
			Limit(1).
			Find(&active).Error; err != nil {
			return err
		}
		if len(active) > 0 {
			return ErrActiveTokenExists
		}

		tok = Token{
			Token:        value,
			LeaseGroupID: leaseGroupID,
			IsActive:     true,
			IssuedAt:     s.now(),
		}
		if err := tx.Create(&tok).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrActiveTokenExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Validate reports whether a token is usable. It never writes.
func (s *Service) Validate(ctx context.Context, token string) (Validation, error) {
	var t Token
	if err := s.DB.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Validation{Reason: ReasonNotFound}, nil
		}
		return Validation{}, err
	}
	if t.IsActive {
		return Validation{Valid: true, LeaseGroupID: t.LeaseGroupID, Token: &t}, nil
	}
	if t.RevokedAt != nil {
		return Validation{Reason: ReasonRevoked}, nil
	}
	return Validation{Reason: ReasonInactive}, nil
}

// Touch stamps last_used_at.
func (s *Service) Touch(ctx context.Context, token string) error {
	res := s.DB.WithContext(ctx).Model(&Token{}).Where("token = ?", token).Update("last_used_at", s.now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Revoke deactivates a token. Payment history is untouched.
func (s *Service) Revoke(ctx context.Context, token string, reason string) (*Token, error) {
	var t Token
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !t.IsActive {
			return ErrAlreadyRevoked
		}
		now := s.now()
		t.IsActive = false
		t.RevokedAt = &now
		if r := strings.TrimSpace(reason); r != "" {
			t.RevokedReason = &r
		}
		return tx.Save(&t).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) Active(ctx context.Context, leaseGroupID string) (*Token, error) {
	var t Token
	err := s.DB.WithContext(ctx).
		Where("lease_group_id = ? AND is_active = ?", leaseGroupID, true).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// List returns every token ever issued for the group, newest first.
func (s *Service) List(ctx context.Context, leaseGroupID string) ([]Token, error) {
	var rows []Token
	err := s.DB.WithContext(ctx).
		Where("lease_group_id = ?", leaseGroupID).
		Order("issued_at desc").
		Find(&rows).Error
	return rows, err
}
