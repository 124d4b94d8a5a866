// Package model defines the core domain types for the Cafezão coffee service.
package model

import "time"

// Role controls which API surface a user can reach.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// SubscriptionStatus is the lifecycle of a user's monthly subscription.
// Kept separate from PaymentStatus even though both spell "rejected";
// they are different state machines.
type SubscriptionStatus string

const (
	SubscriptionInactive   SubscriptionStatus = "inactive"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionEvaluating SubscriptionStatus = "evaluating"
	SubscriptionRejected   SubscriptionStatus = "rejected"
)

// PaymentStatus is the outcome of a submitted payment, reviewed by an admin.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Quantity is the coffee amount the dispenser accepts, spelled the way the
// machine protocol expects it.
type Quantity string

const (
	QuarterLiter Quantity = "1/4"
	HalfLiter    Quantity = "2/4"
)

// Valid reports whether q is one of the quantities the dispenser accepts.
func (q Quantity) Valid() bool {
	return q == QuarterLiter || q == HalfLiter
}

// SubscriptionWindow is how long an approved payment keeps a subscription
// active.
const SubscriptionWindow = 30 * 24 * time.Hour

// User is a registered member of the coffee service.
type User struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Email               string             `json:"email"`
	PasswordHash        string             `json:"-"`
	Role                Role               `json:"role"`
	SubscriptionStatus  SubscriptionStatus `json:"subscription_status"`
	SubscriptionEndDate *time.Time         `json:"subscription_end_date,omitempty"`
	CoffeesToday        int                `json:"coffees_today"`
	TotalCoffees        int                `json:"total_coffees"`
	LastCoffeeAt        *time.Time         `json:"last_coffee_at,omitempty"`
	Credit              float64            `json:"credit"`
	CreatedAt           time.Time          `json:"created_at"`
}

// CanDispense reports whether the user may start a dispense request.
// Only an active subscription clears the guard; evaluating and rejected do
// not.
func (u *User) CanDispense(now time.Time) bool {
	if u.SubscriptionStatus != SubscriptionActive {
		return false
	}
	if u.SubscriptionEndDate != nil && now.After(*u.SubscriptionEndDate) {
		return false
	}
	return true
}

// Payment is a user-submitted proof of payment awaiting admin review.
type Payment struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	UserName     string        `json:"user_name"`
	Amount       float64       `json:"amount"`
	Method       string        `json:"method"`
	PixCode      string        `json:"pix_code,omitempty"`
	ReceiptImage string        `json:"receipt_image,omitempty"`
	Status       PaymentStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
}

// CoffeeEvent records one successful dispense. Write-once: there is no
// update or deletion path.
type CoffeeEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Quantity  Quantity  `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CoffeeCompleted is the only status a coffee event is ever written with.
const CoffeeCompleted = "completed"

// Notification is a message shown to one user, or to everyone when Global
// is set (UserID empty).
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Global    bool      `json:"global"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemSettings is the singleton configuration record admins manage.
type SystemSettings struct {
	SubscriptionPrice float64   `json:"subscription_price"`
	PixKey            string    `json:"pix_key"`
	DispenserEnabled  bool      `json:"dispenser_enabled"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ─── Request / response payloads ─────────────────────────────────────────────

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the payload for authenticating.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the opaque session token and cached profile flags.
type LoginResponse struct {
	Token              string             `json:"token"`
	UserID             string             `json:"user_id"`
	Name               string             `json:"name"`
	Role               Role               `json:"role"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
}

// ConfirmRequest is the payload submitting the operator-entered code.
type ConfirmRequest struct {
	Code     string   `json:"code" validate:"required,min=4,numeric"`
	Quantity Quantity `json:"quantity" validate:"required,oneof=1/4 2/4"`
}

// SubmitPaymentRequest is the payload for a user submitting payment proof.
type SubmitPaymentRequest struct {
	Amount       float64 `json:"amount" validate:"required,gt=0"`
	Method       string  `json:"method" validate:"required,oneof=pix cash"`
	PixCode      string  `json:"pix_code,omitempty"`
	ReceiptImage string  `json:"receipt_image,omitempty"`
}

// NotifyRequest is the admin payload for publishing a notification.
// Leaving UserID empty publishes to the global channel.
type NotifyRequest struct {
	UserID string `json:"user_id,omitempty"`
	Title  string `json:"title" validate:"required,min=1"`
	Body   string `json:"body" validate:"required,min=1"`
}

// UpdateSettingsRequest is the super-admin payload for system settings.
type UpdateSettingsRequest struct {
	SubscriptionPrice float64 `json:"subscription_price" validate:"required,gt=0"`
	PixKey            string  `json:"pix_key" validate:"required"`
	DispenserEnabled  bool    `json:"dispenser_enabled"`
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
