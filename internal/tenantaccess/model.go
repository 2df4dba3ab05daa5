package tenantaccess

import "time"

// Token is a bearer capability that lets a tenant submit payments for one
// lease group. IsActive is the only field that flips routinely; the revocation
// fields are written once.
type Token struct {
	Token         string     `gorm:"primaryKey;type:varchar(64)" json:"token"`
	LeaseGroupID  string     `gorm:"type:varchar(36);index;not null" json:"lease_group_id"`
	IsActive      bool       `gorm:"not null" json:"is_active"`
	IssuedAt      time.Time  `gorm:"not null" json:"issued_at"`
	RevokedAt     *time.Time `json:"revoked_at"`
	RevokedReason *string    `gorm:"type:text" json:"revoked_reason"`
	LastUsedAt    *time.Time `json:"last_used_at"`
}

func (Token) TableName() string { return "tenant_tokens" }
