package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/auth-api/internal/domain/entity"
	"github.com/yourusername/auth-api/internal/domain/repository"
	apperrors "github.com/yourusername/auth-api/internal/pkg/errors"
)

// fakeCodeStore is an in-memory AuthCodeRepository plus AuthCodeUnitOfWork.
// Locks are real mutexes keyed the same way the Postgres advisory locks are:
// user-keyed and email-keyed sections serialize independently, mirroring the
// production locking discipline.
type fakeCodeStore struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*entity.AuthCode

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{
		rows:  make(map[uint]*entity.AuthCode),
		locks: make(map[string]*sync.Mutex),
	}
}

func (f *fakeCodeStore) keyLock(key string) *sync.Mutex {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	if _, ok := f.locks[key]; !ok {
		f.locks[key] = &sync.Mutex{}
	}
	return f.locks[key]
}

func (f *fakeCodeStore) WithUserLock(ctx context.Context, userID uint, fn func(codes repository.AuthCodeRepository) error) error {
	l := f.keyLock("user:" + strconv.FormatUint(uint64(userID), 10))
	l.Lock()
	defer l.Unlock()
	return fn(f)
}

func (f *fakeCodeStore) WithEmailLock(ctx context.Context, email string, fn func(codes repository.AuthCodeRepository) error) error {
	l := f.keyLock("email:" + email)
	l.Lock()
	defer l.Unlock()
	return fn(f)
}

func (f *fakeCodeStore) LatestByUserID(userID uint) (*entity.AuthCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *entity.AuthCode
	for _, row := range f.rows {
		if row.UserID == userID && (latest == nil || row.ID > latest.ID) {
			latest = row
		}
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeCodeStore) FindByUserIDAndCode(userID uint, code string) (*entity.AuthCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.UserID == userID && row.Code == code {
			cp := *row
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeCodeStore) Create(code *entity.AuthCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	code.ID = f.nextID
	cp := *code
	f.rows[cp.ID] = &cp
	return nil
}

func (f *fakeCodeStore) ResetCode(id uint, newCode string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.Code = newCode
	row.ExpiresAt = expiresAt
	used := false
	row.Used = &used
	return nil
}

func (f *fakeCodeStore) ExtendExpiry(id uint, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].ExpiresAt = expiresAt
	return nil
}

func (f *fakeCodeStore) MarkValidated(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	used := true
	f.rows[id].Used = &used
	return nil
}

func (f *fakeCodeStore) DeleteExpiredByEmail(email string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.Email == email && !row.ExpiresAt.After(now) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeStore) DeleteOthersByEmail(email string, keepID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.Email == email && id != keepID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeCodeStore) row(id uint) entity.AuthCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeCodeStore) seed(row entity.AuthCode) uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	row.ID = f.nextID
	f.rows[row.ID] = &row
	return row.ID
}

// newOtpServiceWithClock wires an OtpService to the fake store with a
// test-controlled clock. Returns the service and a setter for the current time.
func newOtpServiceWithClock(t *testing.T, store *fakeCodeStore) (*OtpService, func(time.Time)) {
	t.Helper()
	svc, err := NewOtpService(store)
	require.NoError(t, err)

	var mu sync.Mutex
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	return svc, func(ts time.Time) {
		mu.Lock()
		defer mu.Unlock()
		current = ts
	}
}

var sixDigits = regexp.MustCompile(`^\d{6}$`)

func TestRequestCode_FirstIssueCreatesRow(t *testing.T) {
	store := newFakeCodeStore()
	svc, _ := newOtpServiceWithClock(t, store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	issued, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	assert.Regexp(t, sixDigits, issued.Code)
	assert.Equal(t, start.Add(2*time.Minute+time.Second), issued.ExpiresAt)
	require.Equal(t, 1, store.rowCount())

	row := store.row(1)
	assert.Equal(t, uint(42), row.UserID)
	assert.Equal(t, "user@example.com", row.Email)
	assert.False(t, row.IsUsed())
}

func TestRequestCode_ReturnsSameLiveCode(t *testing.T) {
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	// Plenty of validity left: no mutation, identical result.
	setNow(start.Add(10 * time.Second))
	second, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.Equal(t, 1, store.rowCount())
}

func TestRequestCode_ExtendsNearExpiry(t *testing.T) {
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)

	first, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	// 25s remaining, below the 30s threshold: same code, pushed-out expiry.
	almost := first.ExpiresAt.Add(-25 * time.Second)
	setNow(almost)
	second, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, almost.Add(2*time.Minute+time.Second), second.ExpiresAt)
	assert.Equal(t, 1, store.rowCount())
}

func TestRequestCode_ResetsExpiredRowInPlace(t *testing.T) {
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)

	first, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	expired := first.ExpiresAt.Add(time.Minute)
	setNow(expired)
	second, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Code, second.Code)
	assert.Equal(t, expired.Add(2*time.Minute+time.Second), second.ExpiresAt)
	// Same slot, not a second row.
	require.Equal(t, 1, store.rowCount())
	row := store.row(1)
	assert.Equal(t, second.Code, row.Code)
	assert.False(t, row.IsUsed())
}

func TestRequestCode_ResetsUsedRow(t *testing.T) {
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.ConsumeCode(context.Background(), 42, "user@example.com", first.Code))

	// Row still live by expiry but consumed: must be reset, not reused.
	setNow(start.Add(30 * time.Second))
	second, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Code, second.Code)
	require.Equal(t, 1, store.rowCount())
	row := store.row(1)
	assert.False(t, row.IsUsed())
}

func TestRequestCode_ConcurrentCallsAgreeOnOneCode(t *testing.T) {
	store := newFakeCodeStore()
	svc, _ := newOtpServiceWithClock(t, store)

	const workers = 16
	results := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued, err := svc.RequestCode(context.Background(), 42, "user@example.com")
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = issued.Code
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}
	for _, code := range results[1:] {
		assert.Equal(t, results[0], code)
	}
	assert.Equal(t, 1, store.rowCount())
}

func TestConsumeCode_MarksUsedAndSweepsSiblings(t *testing.T) {
	store := newFakeCodeStore()
	svc, _ := newOtpServiceWithClock(t, store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	issued, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	// Leftover rows sharing the email, and an unrelated address.
	store.seed(entity.AuthCode{UserID: 7, Email: "user@example.com", Code: "111111", ExpiresAt: start.Add(time.Hour)})
	otherID := store.seed(entity.AuthCode{UserID: 9, Email: "other@example.com", Code: "222222", ExpiresAt: start.Add(time.Hour)})

	require.NoError(t, svc.ConsumeCode(context.Background(), 42, "user@example.com", issued.Code))

	require.Equal(t, 2, store.rowCount())
	consumed := store.row(1)
	assert.True(t, consumed.IsUsed())
	// Rows for other addresses are untouched.
	assert.Equal(t, "other@example.com", store.row(otherID).Email)
}

func TestConsumeCode_WrongCode(t *testing.T) {
	store := newFakeCodeStore()
	svc, _ := newOtpServiceWithClock(t, store)

	_, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	err = svc.ConsumeCode(context.Background(), 42, "user@example.com", "000000")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestConsumeCode_SecondUseRejected(t *testing.T) {
	store := newFakeCodeStore()
	svc, _ := newOtpServiceWithClock(t, store)

	issued, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.ConsumeCode(context.Background(), 42, "user@example.com", issued.Code))
	err = svc.ConsumeCode(context.Background(), 42, "user@example.com", issued.Code)
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestConsumeCode_ExpiredRowIsPurgedFirst(t *testing.T) {
	// When the expired row carries the address being validated, the
	// opportunistic sweep removes it before lookup, so the failure surfaces
	// as not-found rather than expired.
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)

	issued, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	setNow(issued.ExpiresAt.Add(time.Second))
	err = svc.ConsumeCode(context.Background(), 42, "user@example.com", issued.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
	assert.Equal(t, 0, store.rowCount())
}

func TestConsumeCode_ExpiredRowWithStaleEmail(t *testing.T) {
	// Lookup is by user+code but cleanup is by email: a row whose stored
	// email no longer matches the validated address survives the sweep and
	// hits the explicit expiry check.
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.seed(entity.AuthCode{UserID: 42, Email: "old@example.com", Code: "123456", ExpiresAt: start.Add(time.Minute)})

	setNow(start.Add(2 * time.Minute))
	err := svc.ConsumeCode(context.Background(), 42, "new@example.com", "123456")
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestConsumeCode_ChecksUsedBeforeExpired(t *testing.T) {
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	used := true
	store.seed(entity.AuthCode{UserID: 42, Email: "old@example.com", Code: "123456", ExpiresAt: start.Add(time.Minute), Used: &used})

	// Both used and expired: used wins, per the check ordering.
	setNow(start.Add(2 * time.Minute))
	err := svc.ConsumeCode(context.Background(), 42, "new@example.com", "123456")
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestRequestAndConsumeUseDifferentLockDomains(t *testing.T) {
	// RequestCode locks by user, ConsumeCode by email, so the two do not
	// serialize against each other. This pins the current behavior: both
	// complete without deadlock and the consume outcome is either success
	// or a defined business failure.
	store := newFakeCodeStore()
	svc, _ := newOtpServiceWithClock(t, store)

	issued, err := svc.RequestCode(context.Background(), 42, "user@example.com")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var consumeErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.RequestCode(context.Background(), 42, "user@example.com")
	}()
	go func() {
		defer wg.Done()
		consumeErr = svc.ConsumeCode(context.Background(), 42, "user@example.com", issued.Code)
	}()
	wg.Wait()

	if consumeErr != nil {
		assert.True(t,
			errors.Is(consumeErr, ErrCodeNotFound) ||
				errors.Is(consumeErr, ErrCodeAlreadyUsed) ||
				errors.Is(consumeErr, ErrCodeExpired),
			"unexpected consume error: %v", consumeErr)
	}
}

// stubUnitOfWork fails every section with a fixed error.
type stubUnitOfWork struct{ err error }

func (s *stubUnitOfWork) WithUserLock(ctx context.Context, userID uint, fn func(repository.AuthCodeRepository) error) error {
	return s.err
}

func (s *stubUnitOfWork) WithEmailLock(ctx context.Context, email string, fn func(repository.AuthCodeRepository) error) error {
	return s.err
}

func TestRequestCode_LockTimeoutIsRetryable(t *testing.T) {
	svc, err := NewOtpService(&stubUnitOfWork{err: repository.ErrLockNotAcquired})
	require.NoError(t, err)

	_, err = svc.RequestCode(context.Background(), 42, "user@example.com")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestRequestCode_InfraFaultMapsToInternal(t *testing.T) {
	svc, err := NewOtpService(&stubUnitOfWork{err: errors.New("connection refused")})
	require.NoError(t, err)

	_, err = svc.RequestCode(context.Background(), 42, "user@example.com")
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrCodeNotFound)
}

func TestOtpLifecycleEndToEnd(t *testing.T) {
	store := newFakeCodeStore()
	svc, setNow := newOtpServiceWithClock(t, store)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	const addr = "u@example.com"

	// First request issues C1 with the full 121s window.
	first, err := svc.RequestCode(ctx, 42, addr)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(121*time.Second), first.ExpiresAt)

	// Immediate retry reuses C1 untouched.
	again, err := svc.RequestCode(ctx, 42, addr)
	require.NoError(t, err)
	assert.Equal(t, first.Code, again.Code)
	assert.Equal(t, first.ExpiresAt, again.ExpiresAt)

	// 25s remaining: C1 survives with a refreshed window.
	nearExpiry := first.ExpiresAt.Add(-25 * time.Second)
	setNow(nearExpiry)
	extended, err := svc.RequestCode(ctx, 42, addr)
	require.NoError(t, err)
	assert.Equal(t, first.Code, extended.Code)
	assert.Equal(t, nearExpiry.Add(121*time.Second), extended.ExpiresAt)

	// Fully expired: C2 replaces C1 in the same slot.
	afterExpiry := extended.ExpiresAt.Add(time.Minute)
	setNow(afterExpiry)
	fresh, err := svc.RequestCode(ctx, 42, addr)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, fresh.Code)

	// C2 validates once, then reads as already used.
	require.NoError(t, svc.ConsumeCode(ctx, 42, addr, fresh.Code))
	assert.ErrorIs(t, svc.ConsumeCode(ctx, 42, addr, fresh.Code), ErrCodeAlreadyUsed)

	// A typo is reported distinctly.
	assert.ErrorIs(t, svc.ConsumeCode(ctx, 42, addr, "000000"), ErrCodeNotFound)
}

func TestGenerateLoginCodeWidth(t *testing.T) {
	for i := 0; i < 64; i++ {
		code, err := generateLoginCode()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, code)
	}
}
