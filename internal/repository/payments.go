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

// PaymentRepository handles persistence for submitted payments.
type PaymentRepository struct {
	db *pgxpool.Pool
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a pending payment for review.
func (r *PaymentRepository) Create(ctx context.Context, userID, userName string, req model.SubmitPaymentRequest) (*model.Payment, error) {
	p := &model.Payment{
		ID:           uuid.New().String(),
		UserID:       userID,
		UserName:     userName,
		Amount:       req.Amount,
		Method:       req.Method,
		PixCode:      req.PixCode,
		ReceiptImage: req.ReceiptImage,
		Status:       model.PaymentPending,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (id, user_id, user_name, amount, method, pix_code, receipt_image, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.UserName, p.Amount, p.Method, p.PixCode, p.ReceiptImage, p.Status, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return p, nil
}

// GetByID returns a single payment or ErrNotFound.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	var p model.Payment
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, user_name, amount, method, pix_code, receipt_image, status, created_at, reviewed_at
		 FROM payments WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.UserID, &p.UserName, &p.Amount, &p.Method, &p.PixCode,
		&p.ReceiptImage, &p.Status, &p.CreatedAt, &p.ReviewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

// ListByStatus returns payments in the given state, oldest first so review
// order matches submission order.
func (r *PaymentRepository) ListByStatus(ctx context.Context, status model.PaymentStatus) ([]model.Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, user_name, amount, method, pix_code, receipt_image, status, created_at, reviewed_at
		 FROM payments
		 WHERE status = $1
		 ORDER BY created_at ASC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.UserName, &p.Amount, &p.Method,
			&p.PixCode, &p.ReceiptImage, &p.Status, &p.CreatedAt, &p.ReviewedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SetStatus marks a payment reviewed.
func (r *PaymentRepository) SetStatus(ctx context.Context, id string, status model.PaymentStatus, reviewedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $2, reviewed_at = $3 WHERE id = $1`,
		id, status, reviewedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
