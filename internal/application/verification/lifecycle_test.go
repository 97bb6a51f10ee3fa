package verification

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phone-otp-api/internal/domain"
	boltstore "github.com/phone-otp-api/internal/infrastructure/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source shared by a test and the service under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBoltService(t *testing.T) (*service, *boltstore.VerificationStore, *clock) {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "otp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := &clock{now: fixedNow}
	s := NewService(store, nil, defaultOpts()).(*service)
	s.now = c.Now
	return s, store, c
}

func issue(t *testing.T, s *service, phone, name string) string {
	t.Helper()
	res, err := s.Issue(context.Background(), domain.IssueRequest{PhoneNumber: phone, Name: name})
	require.NoError(t, err)
	require.NotEmpty(t, res.DevOTP)
	return res.DevOTP
}

func confirm(t *testing.T, s *service, phone, code string) bool {
	t.Helper()
	res, err := s.Confirm(context.Background(), domain.ConfirmRequest{PhoneNumber: phone, OTPCode: code})
	require.NoError(t, err)
	return res.Verified
}

func TestLifecycle_ConfirmSucceedsExactlyOnce(t *testing.T) {
	s, _, _ := newBoltService(t)
	code := issue(t, s, "+1 555 123 4567", "Jane")

	assert.True(t, confirm(t, s, "+15551234567", code))
	assert.False(t, confirm(t, s, "+15551234567", code))
}

func TestLifecycle_ExpiredCodeNeverMatches(t *testing.T) {
	s, _, c := newBoltService(t)
	code := issue(t, s, "5551234567", "Jane")

	c.Advance(5 * time.Minute)
	assert.False(t, confirm(t, s, "5551234567", code))
}

func TestLifecycle_ReissueSupersedesPreviousCode(t *testing.T) {
	s, store, c := newBoltService(t)
	first := issue(t, s, "5551234567", "Jane")
	c.Advance(time.Second)
	second := issue(t, s, "5551234567", "Jane")

	if first != second {
		assert.False(t, confirm(t, s, "5551234567", first))
	}
	assert.True(t, confirm(t, s, "5551234567", second))

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}

func TestLifecycle_ReissueKeepsVerifiedHistory(t *testing.T) {
	s, store, c := newBoltService(t)
	code := issue(t, s, "5551234567", "Jane")
	require.True(t, confirm(t, s, "5551234567", code))
	c.Advance(time.Minute)
	issue(t, s, "5551234567", "Jane")

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationStats{Total: 2, Verified: 1, Unverified: 1}, *st)
}

func TestLifecycle_ConcurrentConfirmsVerifyOnce(t *testing.T) {
	s, _, _ := newBoltService(t)
	code := issue(t, s, "5551234567", "Jane")

	const n = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := s.Confirm(context.Background(), domain.ConfirmRequest{PhoneNumber: "5551234567", OTPCode: code})
			if err == nil && res.Verified {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLifecycle_EndToEnd(t *testing.T) {
	s, store, _ := newBoltService(t)
	ctx := context.Background()

	code := issue(t, s, "555-000-1111", "Jane Doe")

	recs, _, err := store.List(ctx, domain.ListFilter{Status: domain.StatusAll})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "5550001111", recs[0].PhoneNumber)
	assert.Equal(t, "Jane Doe", recs[0].Name)
	assert.False(t, recs[0].Verified)

	assert.False(t, confirm(t, s, "555-000-1111", "000000"))
	assert.True(t, confirm(t, s, "555-000-1111", code))

	recs, _, err = store.List(ctx, domain.ListFilter{Status: domain.StatusVerified})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Verified)
	require.NotNil(t, recs[0].VerifiedAt)
}
