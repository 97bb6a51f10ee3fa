package boltstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *VerificationStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRecord(phone, code string, created time.Time) *domain.VerificationRecord {
	return &domain.VerificationRecord{
		ID:          id.NewAt(created),
		PhoneNumber: phone,
		Name:        "Jane",
		OTPCode:     code,
		CreatedAt:   created,
		ExpiresAt:   created.Add(5 * time.Minute),
	}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFindCandidate_MatchesUnexpiredUnverified(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := newRecord("+15551234567", "123456", t0)
	require.NoError(t, s.Insert(ctx, rec))

	got, err := s.FindCandidate(ctx, "+15551234567", "123456", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "123456", got.OTPCode)

	_, err = s.FindCandidate(ctx, "+15551234567", "654321", t0.Add(time.Minute))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// expiresAt itself is already too late
	_, err = s.FindCandidate(ctx, "+15551234567", "123456", rec.ExpiresAt)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFindCandidate_PrefersMostRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	older := newRecord("5550001111", "111111", t0)
	newer := newRecord("5550001111", "111111", t0.Add(time.Second))
	require.NoError(t, s.Insert(ctx, newer))
	require.NoError(t, s.Insert(ctx, older))

	got, err := s.FindCandidate(ctx, "5550001111", "111111", t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}

func TestPhoneIndex_DoesNotLeakAcrossPrefixes(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, newRecord("555", "123456", t0)))

	_, err := s.FindCandidate(ctx, "55", "123456", t0)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	n, err := s.DeletePending(ctx, "55")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkVerified_OnlyOnce(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := newRecord("5550001111", "222222", t0)
	require.NoError(t, s.Insert(ctx, rec))

	require.NoError(t, s.MarkVerified(ctx, rec.ID, t0.Add(time.Minute)))
	err := s.MarkVerified(ctx, rec.ID, t0.Add(time.Minute))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	verified, err := s.HasVerified(ctx, "5550001111")
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestMarkVerified_Expired(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := newRecord("5550001111", "222222", t0)
	require.NoError(t, s.Insert(ctx, rec))

	err := s.MarkVerified(ctx, rec.ID, t0.Add(time.Hour))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestReplacePending_KeepsVerifiedHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	done := newRecord("5550001111", "111111", t0)
	require.NoError(t, s.Insert(ctx, done))
	require.NoError(t, s.MarkVerified(ctx, done.ID, t0))

	stale := newRecord("5550001111", "222222", t0.Add(time.Second))
	require.NoError(t, s.Insert(ctx, stale))

	fresh := newRecord("5550001111", "333333", t0.Add(2*time.Second))
	require.NoError(t, s.ReplacePending(ctx, fresh))

	recs, _, err := s.List(ctx, domain.ListFilter{Status: domain.StatusAll})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, fresh.ID, recs[0].ID)
	assert.Equal(t, done.ID, recs[1].ID)
	assert.True(t, recs[1].Verified)
}

func TestList_PaginatesNewestFirstWithStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		r := newRecord("55500000"+string(rune('0'+i)), "123456", t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Insert(ctx, r))
		ids = append(ids, r.ID)
		if i%2 == 0 {
			require.NoError(t, s.MarkVerified(ctx, r.ID, t0))
		}
	}

	page1, cursor, err := s.List(ctx, domain.ListFilter{Status: domain.StatusAll, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[4], page1[0].ID)
	assert.Equal(t, ids[3], page1[1].ID)
	assert.Equal(t, ids[3], cursor)

	page2, _, err := s.List(ctx, domain.ListFilter{Status: domain.StatusAll, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, ids[2], page2[0].ID)

	verified, _, err := s.List(ctx, domain.ListFilter{Status: domain.StatusVerified})
	require.NoError(t, err)
	assert.Len(t, verified, 3)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStats{Total: 5, Verified: 3, Unverified: 2}, *st)
}
