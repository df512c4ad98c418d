package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zackweld/crAPI/internal/db"
	"github.com/zackweld/crAPI/internal/phonechange/domain"
	userrepo "github.com/zackweld/crAPI/internal/user/repository"
)

const changeColumns = `id, user_id, old_phone, new_phone, otp_hash, status, attempts, max_attempts, issued_at, expires_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a phone-change repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts or overwrites the user's pending change keyed by user_id. An empty c.ID gets a new uuid.
// The original row id is kept on overwrite and written back to c.ID.
func (r *PostgresRepository) Upsert(ctx context.Context, c *domain.Change) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO otp_phone_number_change (`+changeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			old_phone    = EXCLUDED.old_phone,
			new_phone    = EXCLUDED.new_phone,
			otp_hash     = EXCLUDED.otp_hash,
			status       = EXCLUDED.status,
			attempts     = 0,
			max_attempts = EXCLUDED.max_attempts,
			issued_at    = EXCLUDED.issued_at,
			expires_at   = EXCLUDED.expires_at,
			updated_at   = EXCLUDED.updated_at
		RETURNING id`,
		c.ID, c.UserID, c.OldPhone, c.NewPhone, c.OTPHash, string(domain.StatusActive),
		c.MaxAttempts, c.IssuedAt, c.ExpiresAt, now,
	)
	if err := row.Scan(&c.ID); err != nil {
		return fmt.Errorf("upsert phone change: %w", err)
	}
	c.Status = domain.StatusActive
	c.Attempts = 0
	c.UpdatedAt = now
	return nil
}

// GetByUser returns the user's change, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (*domain.Change, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+changeColumns+` FROM otp_phone_number_change WHERE user_id = $1`, userID)
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// RecordFailedAttempt increments attempts and flips the row to LOCKED when max_attempts is reached.
func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, id string) (*domain.Change, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE otp_phone_number_change SET
			attempts   = attempts + 1,
			status     = CASE WHEN max_attempts > 0 AND attempts + 1 >= max_attempts THEN $2 ELSE status END,
			updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+changeColumns,
		id, string(domain.StatusLocked), string(domain.StatusActive),
	)
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotActive
	}
	return c, err
}

// Complete consumes the change and updates the user's phone in one transaction. The consume is
// conditional on the row still being ACTIVE with the same OTP, so a concurrent re-request or
// second verify makes this return ErrNotActive.
func (r *PostgresRepository) Complete(ctx context.Context, c *domain.Change) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE otp_phone_number_change SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3 AND otp_hash = $4`,
			c.ID, string(domain.StatusConsumed), string(domain.StatusActive), c.OTPHash,
		)
		if err != nil {
			return fmt.Errorf("consume phone change: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotActive
		}

		res, err = tx.ExecContext(ctx, `UPDATE users SET phone = $2, updated_at = now() WHERE id = $1`, c.UserID, c.NewPhone)
		if userrepo.IsUniqueViolation(err, "users_phone_key") {
			return ErrPhoneTaken
		}
		if err != nil {
			return fmt.Errorf("update user phone: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrUserNotFound
		}
		c.Status = domain.StatusConsumed
		return nil
	})
}

// PurgeStale deletes CONSUMED/LOCKED rows last touched before cutoff and ACTIVE rows that expired before cutoff.
func (r *PostgresRepository) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM otp_phone_number_change
		WHERE (status <> $2 AND updated_at < $1) OR (status = $2 AND expires_at < $1)`,
		cutoff, string(domain.StatusActive),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (*domain.Change, error) {
	var (
		c      domain.Change
		status string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.OldPhone, &c.NewPhone, &c.OTPHash, &status,
		&c.Attempts, &c.MaxAttempts, &c.IssuedAt, &c.ExpiresAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = domain.Status(status)
	return &c, nil
}
