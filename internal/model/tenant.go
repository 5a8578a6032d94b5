package model

import "time"

// Subscription statuses mirrored from the billing provider. A tenant is
// entitled while the subscription is active or trialing, or while an
// explicit trial window is still open.
const (
	SubActive            = "active"
	SubTrialing          = "trialing"
	SubCanceled          = "canceled"
	SubUnpaid            = "unpaid"
	SubPastDue           = "past_due"
	SubIncompleteExpired = "incomplete_expired"
)

// Tenant owns zero or more Connections. BillingRef is the opaque customer
// identifier at the billing provider, used to resolve webhook events.
type Tenant struct {
	ID                 int64      `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	BillingRef         string     `json:"billing_ref" db:"billing_ref"`
	SubscriptionStatus string     `json:"subscription_status" db:"subscription_status"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Entitled reports whether the tenant currently has the right to use the
// service: an active paid subscription or an open trial window.
func (t *Tenant) Entitled(now time.Time) bool {
	if t.SubscriptionStatus == SubActive || t.SubscriptionStatus == SubTrialing {
		return true
	}
	return t.TrialEndsAt != nil && t.TrialEndsAt.After(now)
}

// InactiveSubStatus reports whether a billing status means the subscription
// no longer grants entitlement.
func InactiveSubStatus(status string) bool {
	switch status {
	case SubCanceled, SubUnpaid, SubPastDue, SubIncompleteExpired:
		return true
	}
	return false
}

// User is a tenant operator account for the admin surface.
type User struct {
	ID           int64      `json:"id" db:"id"`
	TenantID     int64      `json:"tenant_id" db:"tenant_id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name         string     `json:"name" db:"name"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
