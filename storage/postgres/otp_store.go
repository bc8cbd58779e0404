package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneAuth/otp"
	"github.com/jackc/pgx/v5"
)

// OTPStore keeps OTP records in the otp_codes table. Update runs inside a
// transaction holding the row lock, so concurrent verifications for one
// phone are serialized by the database.
type OTPStore struct {
	s *Storage
}

// OTP returns an otp.Store sharing this pool.
func (s *Storage) OTP() *OTPStore {
	return &OTPStore{s: s}
}

const otpColumns = `phone, code, expires_at, attempts, locked_until, last_request_time`

const upsertOTP = `
	INSERT INTO otp_codes(phone, code, expires_at, attempts, locked_until, last_request_time)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (phone) DO UPDATE SET
		code = EXCLUDED.code,
		expires_at = EXCLUDED.expires_at,
		attempts = EXCLUDED.attempts,
		locked_until = EXCLUDED.locked_until,
		last_request_time = EXCLUDED.last_request_time
`

func (o *OTPStore) Get(ctx context.Context, phone string) (*otp.Record, error) {
	rec, err := scanRecord(o.s.db.QueryRow(ctx, `SELECT `+otpColumns+` FROM otp_codes WHERE phone = $1`, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, otp.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (o *OTPStore) Upsert(ctx context.Context, rec *otp.Record) error {
	if rec == nil || rec.Phone == "" {
		return otp.ErrInvalidRecord
	}
	if _, err := o.s.db.Exec(ctx, upsertOTP, recordArgs(rec)...); err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

func (o *OTPStore) Delete(ctx context.Context, phone string) error {
	if _, err := o.s.db.Exec(ctx, `DELETE FROM otp_codes WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }

// Update reads the record with SELECT ... FOR UPDATE, applies fn and writes
// the result in the same transaction. A missing row is not locked; fn then
// sees nil and ActionSave is a no-op, so that window cannot lose a write.
func (o *OTPStore) Update(ctx context.Context, phone string, fn otp.UpdateFunc) error {
	err := pgx.BeginFunc(ctx, o.s.db, func(tx pgx.Tx) error {
		current, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+otpColumns+` FROM otp_codes WHERE phone = $1 FOR UPDATE`, phone))
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			current = nil
		case err != nil:
			return err
		}

		action, err := fn(current)
		if err != nil {
			return &callbackError{err: err}
		}

		switch action {
		case otp.ActionSave:
			if current == nil {
				return nil
			}
			current.Phone = phone
			_, err = tx.Exec(ctx, upsertOTP, recordArgs(current)...)
			return err
		case otp.ActionDelete:
			_, err = tx.Exec(ctx, `DELETE FROM otp_codes WHERE phone = $1`, phone)
			return err
		}
		return nil
	})
	if err != nil {
		var cbErr *callbackError
		if errors.As(err, &cbErr) {
			return cbErr.err
		}
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

// Purge deletes records whose code has expired and whose lock, if any, has
// lapsed at now.
func (o *OTPStore) Purge(ctx context.Context, now time.Time) (int, error) {
	tag, err := o.s.db.Exec(ctx, `
		DELETE FROM otp_codes
		WHERE expires_at < $1
		  AND (locked_until IS NULL OR locked_until <= $1)
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func recordArgs(rec *otp.Record) []any {
	var locked *time.Time
	if !rec.LockedUntil.IsZero() {
		l := rec.LockedUntil.UTC()
		locked = &l
	}
	return []any{
		rec.Phone,
		rec.Code,
		rec.ExpiresAt.UTC(),
		rec.Attempts,
		locked,
		rec.LastRequestTime.UTC(),
	}
}

func scanRecord(row pgx.Row) (*otp.Record, error) {
	var (
		rec    otp.Record
		locked *time.Time
	)
	if err := row.Scan(
		&rec.Phone,
		&rec.Code,
		&rec.ExpiresAt,
		&rec.Attempts,
		&locked,
		&rec.LastRequestTime,
	); err != nil {
		return nil, err
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.LastRequestTime = rec.LastRequestTime.UTC()
	if locked != nil {
		rec.LockedUntil = locked.UTC()
	}
	return &rec, nil
}

var (
	_ otp.Store  = (*OTPStore)(nil)
	_ otp.Purger = (*OTPStore)(nil)
)
