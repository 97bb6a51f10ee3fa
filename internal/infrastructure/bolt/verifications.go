// Package boltstore keeps verification records in an embedded bolt file for
// single-node deployments and local development.
package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boltdb/bolt"
	jsoniter "github.com/json-iterator/go"
	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/id"
)

var (
	bucketVerifications = []byte("phone_verifications")
	// bucketPhoneIndex keys are phone + 0x00 + id, values are empty.
	bucketPhoneIndex = []byte("phone_verifications_by_phone")
)

// record is the stored JSON form. It carries the code, which the domain
// type deliberately hides from JSON.
type record struct {
	ID          string     `json:"id"`
	PhoneNumber string     `json:"phone_number"`
	Name        string     `json:"name"`
	OTPCode     string     `json:"otp_code"`
	Verified    bool       `json:"verified"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

func fromDomain(v *domain.VerificationRecord) *record {
	return &record{
		ID: v.ID, PhoneNumber: v.PhoneNumber, Name: v.Name, OTPCode: v.OTPCode,
		Verified: v.Verified, CreatedAt: v.CreatedAt, ExpiresAt: v.ExpiresAt, VerifiedAt: v.VerifiedAt,
	}
}

func (r *record) toDomain() *domain.VerificationRecord {
	return &domain.VerificationRecord{
		ID: r.ID, PhoneNumber: r.PhoneNumber, Name: r.Name, OTPCode: r.OTPCode,
		Verified: r.Verified, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt, VerifiedAt: r.VerifiedAt,
	}
}

// VerificationStore is a bolt-backed verification store. Bolt allows a
// single writer at a time, so every Update below is serialized.
type VerificationStore struct {
	db *bolt.DB
}

// Open opens (creating if needed) the bolt file at path and its buckets.
func Open(path string) (*VerificationStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketVerifications, bucketPhoneIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &VerificationStore{db: db}, nil
}

func (s *VerificationStore) Close() error {
	return s.db.Close()
}

func (s *VerificationStore) Insert(ctx context.Context, v *domain.VerificationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, fromDomain(v))
	})
}

func (s *VerificationStore) DeletePending(ctx context.Context, phoneNumber string) (int, error) {
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		n, err = deletePending(tx, phoneNumber)
		return err
	})
	return n, err
}

// ReplacePending deletes stale unverified records and inserts v in one
// transaction. A failure while deleting is logged and the insert still runs.
func (s *VerificationStore) ReplacePending(ctx context.Context, v *domain.VerificationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if n, err := deletePending(tx, v.PhoneNumber); err != nil {
			slog.Warn("delete stale unverified records", "phone", v.PhoneNumber, "err", err)
		} else if n > 0 {
			slog.Info("superseded unverified records", "phone", v.PhoneNumber, "count", n)
		}
		return put(tx, fromDomain(v))
	})
}

func (s *VerificationStore) FindCandidate(ctx context.Context, phoneNumber, otpCode string, now time.Time) (*domain.VerificationRecord, error) {
	var found *record
	err := s.db.View(func(tx *bolt.Tx) error {
		return eachForPhone(tx, phoneNumber, func(r *record) {
			if r.OTPCode != otpCode || r.Verified || !now.Before(r.ExpiresAt) {
				return
			}
			if found == nil || r.CreatedAt.After(found.CreatedAt) ||
				(r.CreatedAt.Equal(found.CreatedAt) && r.ID > found.ID) {
				found = r
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	return found.toDomain(), nil
}

func (s *VerificationStore) MarkVerified(ctx context.Context, id string, now time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		r, err := get(tx, id)
		if err != nil {
			return err
		}
		if r == nil || r.Verified || !now.Before(r.ExpiresAt) {
			return fmt.Errorf("pending verification %s not found: %w", id, domain.ErrNotFound)
		}
		r.Verified = true
		r.VerifiedAt = &now
		return put(tx, r)
	})
}

func (s *VerificationStore) HasVerified(ctx context.Context, phoneNumber string) (bool, error) {
	var verified bool
	err := s.db.View(func(tx *bolt.Tx) error {
		return eachForPhone(tx, phoneNumber, func(r *record) {
			verified = verified || r.Verified
		})
	})
	return verified, err
}

// List walks records newest first. The cursor is the id of the last record
// of the previous page.
func (s *VerificationStore) List(ctx context.Context, f domain.ListFilter) ([]domain.VerificationRecord, string, error) {
	if f.Cursor != "" && !id.Valid(f.Cursor) {
		return nil, "", fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
	}
	var out []domain.VerificationRecord
	next := ""
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketVerifications).Cursor()
		var k, v []byte
		if f.Cursor == "" {
			k, v = c.Last()
		} else if k, _ = c.Seek([]byte(f.Cursor)); k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil; k, v = c.Prev() {
			var r record
			if err := jsoniter.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if !f.Status.Matches(r.Verified) {
				continue
			}
			out = append(out, *r.toDomain())
			if f.Limit > 0 && len(out) == f.Limit {
				next = r.ID
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, next, nil
}

func (s *VerificationStore) Stats(ctx context.Context) (*domain.VerificationStats, error) {
	st := &domain.VerificationStats{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVerifications).ForEach(func(k, v []byte) error {
			var r record
			if err := jsoniter.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			st.Total++
			if r.Verified {
				st.Verified++
			} else {
				st.Unverified++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func phoneKey(phoneNumber, id string) []byte {
	k := make([]byte, 0, len(phoneNumber)+1+len(id))
	k = append(k, phoneNumber...)
	k = append(k, 0)
	return append(k, id...)
}

func put(tx *bolt.Tx, r *record) error {
	b, err := jsoniter.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	if err := tx.Bucket(bucketVerifications).Put([]byte(r.ID), b); err != nil {
		return err
	}
	return tx.Bucket(bucketPhoneIndex).Put(phoneKey(r.PhoneNumber, r.ID), nil)
}

func get(tx *bolt.Tx, id string) (*record, error) {
	b := tx.Bucket(bucketVerifications).Get([]byte(id))
	if b == nil {
		return nil, nil
	}
	var r record
	if err := jsoniter.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &r, nil
}

// eachForPhone calls fn for every record indexed under phoneNumber, oldest first.
func eachForPhone(tx *bolt.Tx, phoneNumber string, fn func(r *record)) error {
	prefix := phoneKey(phoneNumber, "")
	c := tx.Bucket(bucketPhoneIndex).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		r, err := get(tx, string(k[len(prefix):]))
		if err != nil {
			return err
		}
		if r != nil {
			fn(r)
		}
	}
	return nil
}

func deletePending(tx *bolt.Tx, phoneNumber string) (int, error) {
	var stale []*record
	if err := eachForPhone(tx, phoneNumber, func(r *record) {
		if !r.Verified {
			stale = append(stale, r)
		}
	}); err != nil {
		return 0, err
	}
	for _, r := range stale {
		if err := tx.Bucket(bucketVerifications).Delete([]byte(r.ID)); err != nil {
			return 0, err
		}
		if err := tx.Bucket(bucketPhoneIndex).Delete(phoneKey(r.PhoneNumber, r.ID)); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
