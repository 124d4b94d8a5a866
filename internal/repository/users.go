package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
)

const userColumns = `id, name, email, password_hash, role, subscription_status,
	subscription_end_date, coffees_today, total_coffees, last_coffee_at,
	credit, created_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with a generated UUID and default subscription
// state. Returns ErrDuplicateEmail when the email is already taken.
func (r *UserRepository) Create(ctx context.Context, name, email, passwordHash string) (*model.User, error) {
	u := &model.User{
		ID:                 uuid.New().String(),
		Name:               name,
		Email:              email,
		PasswordHash:       passwordHash,
		Role:               model.RoleUser,
		SubscriptionStatus: model.SubscriptionInactive,
		CreatedAt:          time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, subscription_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.SubscriptionStatus, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetByID returns a single user or ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns a single user or ErrNotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// SetSubscription overwrites the user's subscription state and window.
// Passing a nil end date clears the window.
func (r *UserRepository) SetSubscription(ctx context.Context, id string, status model.SubscriptionStatus, endDate *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET subscription_status = $2, subscription_end_date = $3 WHERE id = $1`,
		id, status, endDate,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired returns users whose subscription is active but whose window
// ended before the given instant.
func (r *UserRepository) ListExpired(ctx context.Context, now time.Time) ([]model.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE subscription_status = $1 AND subscription_end_date IS NOT NULL
		   AND subscription_end_date < $2`,
		model.SubscriptionActive, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.SubscriptionStatus,
		&u.SubscriptionEndDate, &u.CoffeesToday, &u.TotalCoffees, &u.LastCoffeeAt,
		&u.Credit, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
