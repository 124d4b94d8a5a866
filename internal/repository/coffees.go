package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
)

// CoffeeRepository handles persistence for dispense events and the per-user
// aggregate counters derived from them.
type CoffeeRepository struct {
	db *pgxpool.Pool
}

// NewCoffeeRepository constructs a CoffeeRepository.
func NewCoffeeRepository(db *pgxpool.Pool) *CoffeeRepository {
	return &CoffeeRepository{db: db}
}

// Record inserts a dispense event and updates the owner's counters in a
// single transaction. Locking the user row with SELECT ... FOR UPDATE
// serialises concurrent confirmations: the second transaction blocks until
// the first commits, then sees its counters. A plain read-then-write here
// would let two devices confirming at the same moment under-count.
func (r *CoffeeRepository) Record(ctx context.Context, userID string, quantity model.Quantity, at time.Time) (*model.CoffeeEvent, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		userName     string
		coffeesToday int
		lastCoffeeAt *time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT name, coffees_today, last_coffee_at
		 FROM users
		 WHERE id = $1
		 FOR UPDATE`,
		userID,
	).Scan(&userName, &coffeesToday, &lastCoffeeAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock user row: %w", err)
	}

	// coffees_today rolls over at UTC midnight.
	if lastCoffeeAt == nil || !sameDay(*lastCoffeeAt, at) {
		coffeesToday = 0
	}
	coffeesToday++

	event := &model.CoffeeEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		UserName:  userName,
		Quantity:  quantity,
		Status:    model.CoffeeCompleted,
		CreatedAt: at.UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO coffees (id, user_id, user_name, quantity, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.UserID, event.UserName, event.Quantity, event.Status, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert coffee event: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users
		 SET coffees_today = $2, total_coffees = total_coffees + 1, last_coffee_at = $3
		 WHERE id = $1`,
		userID, coffeesToday, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update counters: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return event, nil
}

// ListByUser returns the user's dispense history, newest first.
func (r *CoffeeRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.CoffeeEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, user_name, quantity, status, created_at
		 FROM coffees
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list coffees: %w", err)
	}
	defer rows.Close()

	var events []model.CoffeeEvent
	for rows.Next() {
		var e model.CoffeeEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &e.Quantity, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan coffee event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountSince returns how many dispense events the whole system recorded at or
// after the given instant. Used by the admin dashboard.
func (r *CoffeeRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM coffees WHERE created_at >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coffees: %w", err)
	}
	return n, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
