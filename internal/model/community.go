package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Community is the GORM model for the communities table. UniqueURL is unique
// among active rows only (partial unique index, see internal/db).
type Community struct {
	ID          string    `gorm:"type:text;primaryKey"`
	UniqueURL   string    `gorm:"column:unique_url;type:text;not null;index"`
	Name        string    `gorm:"type:text;not null"`
	Description string    `gorm:"type:text;not null;default:''"`
	IsPrivate   bool      `gorm:"not null;default:false"`
	IsActive    bool      `gorm:"not null;default:true"`
	CreatedBy   string    `gorm:"type:text;not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *Community) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Membership maps (community, user) to a role.
type Membership struct {
	ID          string     `gorm:"type:text;primaryKey"`
	CommunityID string     `gorm:"type:text;not null;uniqueIndex:idx_memberships_community_user"`
	UserID      string     `gorm:"type:text;not null;uniqueIndex:idx_memberships_community_user;index"`
	Role        Role       `gorm:"type:text;not null;default:'member'"`
	JoinedAt    time.Time  `gorm:"not null"`
	Community   *Community `gorm:"foreignKey:CommunityID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate generates a UUID primary key and join time if not set.
func (m *Membership) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	return nil
}

// Restriction is a ban or mute. ExpiresAt nil means permanent. Rows are never
// deleted; removal sets ExpiresAt to the removal time.
type Restriction struct {
	ID          string          `gorm:"type:text;primaryKey"`
	CommunityID string          `gorm:"type:text;not null;index:idx_restrictions_community_user"`
	UserID      string          `gorm:"type:text;not null;index:idx_restrictions_community_user"`
	Type        RestrictionType `gorm:"type:text;not null"`
	Reason      string          `gorm:"type:text;not null;default:''"`
	AppliedBy   string          `gorm:"type:text;not null"`
	ExpiresAt   *time.Time      `gorm:"index"`
	ArchivedAt  *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (r *Restriction) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// ActiveAt reports whether the restriction is in force at t.
func (r *Restriction) ActiveAt(t time.Time) bool {
	return r.ExpiresAt == nil || r.ExpiresAt.After(t)
}

// OwnershipTransfer is a time-bound offer of the owner role.
type OwnershipTransfer struct {
	ID             string         `gorm:"type:text;primaryKey"`
	CommunityID    string         `gorm:"type:text;not null;index"`
	CurrentOwnerID string         `gorm:"type:text;not null"`
	TargetUserID   string         `gorm:"type:text;not null"`
	Status         TransferStatus `gorm:"type:text;not null;default:'pending'"`
	ExpiresAt      time.Time      `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (t *OwnershipTransfer) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// StaleAt reports whether a pending transfer has lapsed at now even if the
// persisted status has not caught up yet.
func (t *OwnershipTransfer) StaleAt(now time.Time) bool {
	return t.Status == TransferPending && t.ExpiresAt.Before(now)
}

// JoinRequest is a pending or answered request to join a private community.
type JoinRequest struct {
	ID          string            `gorm:"type:text;primaryKey"`
	CommunityID string            `gorm:"type:text;not null;index"`
	UserID      string            `gorm:"type:text;not null;index"`
	Message     string            `gorm:"type:text;not null;default:''"`
	Status      JoinRequestStatus `gorm:"type:text;not null;default:'pending'"`
	RespondedBy *string           `gorm:"type:text"`
	RespondedAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (j *JoinRequest) BeforeCreate(_ *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// JSONMap is a free-form JSON object column.
type JSONMap map[string]any

// AuditLogEntry is an append-only record of a privileged mutation.
type AuditLogEntry struct {
	ID            string    `gorm:"type:text;primaryKey"`
	CommunityID   string    `gorm:"type:text;not null;index"`
	UserID        string    `gorm:"type:text;not null"`
	ActionType    string    `gorm:"type:text;not null;index"`
	PreviousState JSONMap   `gorm:"type:text;serializer:json"`
	NewState      JSONMap   `gorm:"type:text;serializer:json"`
	Metadata      JSONMap   `gorm:"type:text;serializer:json"`
	CreatedAt     time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *AuditLogEntry) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
