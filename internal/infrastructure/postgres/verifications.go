package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/id"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const verificationColumns = `id, phone_number, name, otp_code, verified, created_at, expires_at, verified_at`

type verificationRow struct {
	ID          string     `db:"id"`
	PhoneNumber string     `db:"phone_number"`
	Name        string     `db:"name"`
	OTPCode     string     `db:"otp_code"`
	Verified    bool       `db:"verified"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	VerifiedAt  *time.Time `db:"verified_at"`
}

func (r verificationRow) toDomain() domain.VerificationRecord {
	v := domain.VerificationRecord{
		ID:          r.ID,
		PhoneNumber: r.PhoneNumber,
		Name:        r.Name,
		OTPCode:     r.OTPCode,
		Verified:    r.Verified,
		CreatedAt:   r.CreatedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
	}
	if r.VerifiedAt != nil {
		t := r.VerifiedAt.UTC()
		v.VerifiedAt = &t
	}
	return v
}

type VerificationRepo struct {
	db DB
}

func NewVerificationRepo(db DB) *VerificationRepo {
	return &VerificationRepo{db: db}
}

func insertVerification(ctx context.Context, db DB, v *domain.VerificationRecord) error {
	_, err := db.Exec(ctx, `
		INSERT INTO phone_verifications (`+verificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, v.ID, v.PhoneNumber, v.Name, v.OTPCode, v.Verified, v.CreatedAt, v.ExpiresAt, v.VerifiedAt)
	return err
}

func deletePending(ctx context.Context, db DB, phoneNumber string) (int, error) {
	tag, err := db.Exec(ctx, `
		DELETE FROM phone_verifications
		WHERE phone_number=$1 AND verified=FALSE
	`, phoneNumber)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *VerificationRepo) Insert(ctx context.Context, v *domain.VerificationRecord) error {
	return insertVerification(ctx, r.db, v)
}

func (r *VerificationRepo) DeletePending(ctx context.Context, phoneNumber string) (int, error) {
	return deletePending(ctx, r.db, phoneNumber)
}

// ReplacePending runs the stale delete inside a savepoint so its failure
// rolls back alone and the insert still commits.
func (r *VerificationRepo) ReplacePending(ctx context.Context, v *domain.VerificationRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	n, err := deletePending(ctx, sp, v.PhoneNumber)
	if err != nil {
		slog.Warn("delete stale unverified records", "phone", v.PhoneNumber, "err", err)
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return rbErr
		}
	} else {
		if err := sp.Commit(ctx); err != nil {
			return err
		}
		if n > 0 {
			slog.Info("superseded unverified records", "phone", v.PhoneNumber, "count", n)
		}
	}

	if err := insertVerification(ctx, tx, v); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *VerificationRepo) FindCandidate(ctx context.Context, phoneNumber, otpCode string, now time.Time) (*domain.VerificationRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+verificationColumns+`
		FROM phone_verifications
		WHERE phone_number=$1 AND otp_code=$2 AND verified=FALSE AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, phoneNumber, otpCode, now)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[verificationRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	v := row.toDomain()
	return &v, nil
}

func (r *VerificationRepo) MarkVerified(ctx context.Context, id string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE phone_verifications
		SET verified=TRUE, verified_at=$2
		WHERE id=$1 AND verified=FALSE AND expires_at > $2
	`, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending verification %s not found: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *VerificationRepo) HasVerified(ctx context.Context, phoneNumber string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM phone_verifications WHERE phone_number=$1 AND verified=TRUE)
	`, phoneNumber).Scan(&ok)
	return ok, err
}

// listQuery builds a keyset page query ordered by id descending. ULIDs sort
// by creation time so id order is creation order.
func listQuery(f domain.ListFilter) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	switch f.Status {
	case domain.StatusVerified:
		args = append(args, true)
		where = append(where, fmt.Sprintf("verified=$%d", len(args)))
	case domain.StatusUnverified:
		args = append(args, false)
		where = append(where, fmt.Sprintf("verified=$%d", len(args)))
	}
	if f.Cursor != "" {
		if !id.Valid(f.Cursor) {
			return "", nil, fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
		}
		args = append(args, f.Cursor)
		where = append(where, fmt.Sprintf("id < $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + verificationColumns + " FROM phone_verifications")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}

// List returns records newest first. The cursor is the id of the last record
// of a full page.
func (r *VerificationRepo) List(ctx context.Context, f domain.ListFilter) ([]domain.VerificationRecord, string, error) {
	q, args, err := listQuery(f)
	if err != nil {
		return nil, "", err
	}
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[verificationRow])
	if err != nil {
		return nil, "", err
	}
	recs := make([]domain.VerificationRecord, len(list))
	for i, row := range list {
		recs[i] = row.toDomain()
	}
	next := ""
	if f.Limit > 0 && len(recs) == f.Limit {
		next = recs[len(recs)-1].ID
	}
	return recs, next, nil
}

func (r *VerificationRepo) Stats(ctx context.Context) (*domain.VerificationStats, error) {
	st := &domain.VerificationStats{}
	err := r.db.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE verified),
		       count(*) FILTER (WHERE NOT verified)
		FROM phone_verifications
	`).Scan(&st.Total, &st.Verified, &st.Unverified)
	if err != nil {
		return nil, err
	}
	return st, nil
}
