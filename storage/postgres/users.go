package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, phone, nickname, avatar, password_hash, created_at, last_login_at`

// GetUserByPhone finds an account by normalized phone.
func (s *Storage) GetUserByPhone(ctx context.Context, phone string) (phoneAuth.UserRecord, error) {
	const op = "storage.postgres.GetUserByPhone"

	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`

	u, err := scanUser(s.db.QueryRow(ctx, query, phone))
	if err != nil {
		return phoneAuth.UserRecord{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByID finds an account by id. Ids that are not UUIDs are reported
// as not found.
func (s *Storage) GetUserByID(ctx context.Context, userID string) (phoneAuth.UserRecord, error) {
	const op = "storage.postgres.GetUserByID"

	id, err := uuid.Parse(userID)
	if err != nil {
		return phoneAuth.UserRecord{}, fmt.Errorf("%s: %w", op, phoneAuth.ErrUserNotFound)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return phoneAuth.UserRecord{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CreateUser inserts a new account. The unique index on phone makes the
// existence check atomic.
func (s *Storage) CreateUser(ctx context.Context, in phoneAuth.CreateUserInput) (phoneAuth.UserRecord, error) {
	const op = "storage.postgres.CreateUser"

	query := `
		INSERT INTO users(id, phone, nickname, avatar, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	u := phoneAuth.UserRecord{
		UserID:       uuid.NewString(),
		Phone:        in.Phone,
		Nickname:     in.Nickname,
		Avatar:       in.Avatar,
		PasswordHash: in.PasswordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := s.db.Exec(ctx, query,
		u.UserID,
		u.Phone,
		u.Nickname,
		u.Avatar,
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return phoneAuth.UserRecord{}, fmt.Errorf("%s: %w", op, phoneAuth.ErrAccountExists)
		}
		return phoneAuth.UserRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// RecordLogin stamps last_login_at.
func (s *Storage) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	const op = "storage.postgres.RecordLogin"

	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, phoneAuth.ErrUserNotFound)
	}

	tag, err := s.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, phoneAuth.ErrUserNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (phoneAuth.UserRecord, error) {
	var (
		u         phoneAuth.UserRecord
		id        uuid.UUID
		lastLogin *time.Time
	)
	err := row.Scan(
		&id,
		&u.Phone,
		&u.Nickname,
		&u.Avatar,
		&u.PasswordHash,
		&u.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return phoneAuth.UserRecord{}, phoneAuth.ErrUserNotFound
		}
		return phoneAuth.UserRecord{}, err
	}

	u.UserID = id.String()
	u.CreatedAt = u.CreatedAt.UTC()
	if lastLogin != nil {
		u.LastLoginAt = lastLogin.UTC()
	}
	return u, nil
}

var _ phoneAuth.UserProvider = (*Storage)(nil)
