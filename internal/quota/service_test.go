package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidqr/aidqr/internal/metrics"
)

func TestIssue_CreatesRecordWithTierLimits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)
	assert.Len(t, issued.Key, 32)
	assert.Equal(t, "data:image/png;base64,"+issued.Key, issued.QRCode)
	assert.True(t, env.clock.Now().Add(12*time.Hour).Equal(issued.ExpiresAt))

	rec, ok := env.ledger.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, Allowance{Water: 3, Meals: 2}, rec.DailyLimit)
	assert.Equal(t, 0, rec.Used.Water)

	key, expires, ok := rec.ActiveKey(Water)
	require.True(t, ok)
	assert.Equal(t, issued.Key, key)
	assert.True(t, issued.ExpiresAt.Equal(expires))

	saved, saves := env.gw.saved()
	assert.GreaterOrEqual(t, saves, 1)
	assert.Equal(t, issued.Key, *saved["u1"].Keys.WaterKey)
}

func TestIssue_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, "", CategoryLowIncome, Water)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Issue(ctx, "u1", "", Water)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Issue(ctx, "u1", CategoryLowIncome, Kind("juice"))
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, env.ledger.Len())
}

func TestIssue_UnknownCategoryHasNoQuota(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Issue(context.Background(), "u9", "Wealthy", Water)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// The record still exists with a zero tier.
	rec, ok := env.ledger.Lookup("u9")
	require.True(t, ok)
	assert.Equal(t, Allowance{}, rec.DailyLimit)
	_, saves := env.gw.saved()
	assert.Equal(t, 1, saves)
}

func TestIssue_FirstSeenCategoryWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, "u1", CategoryNearPoor, Water)
	require.NoError(t, err)
	_, err = env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)

	rec, _ := env.ledger.Lookup("u1")
	assert.Equal(t, CategoryNearPoor, rec.Disadvantaged)
	assert.Equal(t, Allowance{Water: 2, Meals: 1}, rec.DailyLimit)
}

func TestIssue_NewKeyInvalidatesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)
	second, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)
	require.NotEqual(t, first.Key, second.Key)

	_, err = env.svc.Redeem(ctx, "u1", first.Key, Water)
	assert.ErrorIs(t, err, ErrInvalidKey)

	remaining, err := env.svc.Redeem(ctx, "u1", second.Key, Water)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining.Water)
}

func TestIssue_KeysArePerKind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	water, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)
	meal, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Meals)
	require.NoError(t, err)

	// A water key cannot be spent as meals.
	_, err = env.svc.Redeem(ctx, "u1", water.Key, Meals)
	assert.ErrorIs(t, err, ErrInvalidKey)

	remaining, err := env.svc.Redeem(ctx, "u1", meal.Key, Meals)
	require.NoError(t, err)
	assert.Equal(t, Allowance{Water: 3, Meals: 1}, remaining)

	remaining, err = env.svc.Redeem(ctx, "u1", water.Key, Water)
	require.NoError(t, err)
	assert.Equal(t, Allowance{Water: 2, Meals: 1}, remaining)
}

func TestIssue_RenderFailureKeepsKey(t *testing.T) {
	env := newTestEnv(t)
	env.svc.renderer = stubRenderer{err: errBoom}
	issuedBefore := testutil.ToFloat64(metrics.KeysIssuedTotal.WithLabelValues(string(Water)))

	_, err := env.svc.Issue(context.Background(), "u1", CategoryLowIncome, Water)
	assert.ErrorIs(t, err, ErrRender)

	rec, _ := env.ledger.Lookup("u1")
	_, _, ok := rec.ActiveKey(Water)
	assert.True(t, ok)
	assert.Equal(t, issuedBefore, testutil.ToFloat64(metrics.KeysIssuedTotal.WithLabelValues(string(Water))))
}

func TestIssue_CountsRenderedKeys(t *testing.T) {
	env := newTestEnv(t)
	issued := metrics.KeysIssuedTotal.WithLabelValues(string(Meals))
	before := testutil.ToFloat64(issued)

	_, err := env.svc.Issue(context.Background(), "u1", CategoryLowIncome, Meals)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(issued))
}

func TestIssue_PersistFailureIsNotSurfaced(t *testing.T) {
	env := newTestEnv(t)
	env.gw.saveErr = errBoom

	issued, err := env.svc.Issue(context.Background(), "u1", CategoryLowIncome, Water)
	require.NoError(t, err)

	_, err = env.svc.Redeem(context.Background(), "u1", issued.Key, Water)
	require.NoError(t, err)
}

// Scenario 1: issue and redeem water for a low-income user.
func TestRedeem_LowIncomeWater(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)

	rec, _ := env.ledger.Lookup("u1")
	assert.Equal(t, 0, rec.Used.Water)

	remaining, err := env.svc.Redeem(ctx, "u1", issued.Key, Water)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining.Water)
	assert.Equal(t, 2, remaining.Meals)

	rec, _ = env.ledger.Lookup("u1")
	assert.Equal(t, 1, rec.Used.Water)
	assert.Nil(t, rec.Keys.WaterKey)
	assert.Nil(t, rec.KeyExpires.WaterExpires)

	saved, _ := env.gw.saved()
	assert.Equal(t, 1, saved["u1"].Used.Water)
	assert.Nil(t, saved["u1"].Keys.WaterKey)
}

// Scenario 2: a key is single use.
func TestRedeem_SameKeyTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)
	_, err = env.svc.Redeem(ctx, "u1", issued.Key, Water)
	require.NoError(t, err)

	_, err = env.svc.Redeem(ctx, "u1", issued.Key, Water)
	assert.ErrorIs(t, err, ErrInvalidKey)

	rec, _ := env.ledger.Lookup("u1")
	assert.Equal(t, 1, rec.Used.Water)
}

// Scenario 3: near-poor meal limit is one per day.
func TestRedeem_NearPoorMealLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u2", CategoryNearPoor, Meals)
	require.NoError(t, err)
	remaining, err := env.svc.Redeem(ctx, "u2", issued.Key, Meals)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining.Meals)

	_, err = env.svc.Issue(ctx, "u2", CategoryNearPoor, Meals)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	rec, _ := env.ledger.Lookup("u2")
	assert.Equal(t, 1, rec.Used.Meals)
	_, _, ok := rec.ActiveKey(Meals)
	assert.False(t, ok)
}

// Scenario 4: a key past its expiry is rejected.
func TestRedeem_ExpiredKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)

	env.clock.Advance(12*time.Hour + time.Second)

	_, err = env.svc.Redeem(ctx, "u1", issued.Key, Water)
	assert.ErrorIs(t, err, ErrInvalidKey)

	rec, _ := env.ledger.Lookup("u1")
	assert.Equal(t, 0, rec.Used.Water)
}

func TestRedeem_ExpiryBoundaryIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)

	env.clock.Advance(12 * time.Hour)

	_, err = env.svc.Redeem(ctx, "u1", issued.Key, Water)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// Scenario 5: unknown users are not found.
func TestRedeem_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Redeem(context.Background(), "ghost", "abc", Water)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeem_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Redeem(ctx, "", "k", Water)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Redeem(ctx, "u1", "", Water)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Redeem(ctx, "u1", "k", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Redeem(ctx, "u1", "k", Kind("juice"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRedeem_WrongKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)

	_, err = env.svc.Redeem(ctx, "u1", "not-the-key", Water)
	assert.ErrorIs(t, err, ErrInvalidKey)

	// The real key is still outstanding.
	rec, _ := env.ledger.Lookup("u1")
	_, _, ok := rec.ActiveKey(Water)
	assert.True(t, ok)
}

func TestRedeem_KeyBoundToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)
	_, err = env.svc.Issue(ctx, "u2", CategoryLowIncome, Meals)
	require.NoError(t, err)

	_, err = env.svc.Redeem(ctx, "u2", issued.Key, Water)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRedeem_QuotaRecheckedAtRedemption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u2", CategoryNearPoor, Meals)
	require.NoError(t, err)

	// Usage reached the limit after the key was handed out.
	_, err = env.ledger.Update("u2", func(r *Record) error {
		r.Used.Meals = r.DailyLimit.Meals
		return nil
	})
	require.NoError(t, err)

	_, err = env.svc.Redeem(ctx, "u2", issued.Key, Meals)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestRedeem_UsageNeverExceedsLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
		require.NoError(t, err)
		_, err = env.svc.Redeem(ctx, "u1", issued.Key, Water)
		require.NoError(t, err)
	}

	_, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	rec, _ := env.ledger.Lookup("u1")
	assert.Equal(t, 3, rec.Used.Water)
	assert.Equal(t, Allowance{Water: 0, Meals: 2}, rec.Remaining())
}

func TestRedeem_ConcurrentSameKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u1", CategoryLowIncome, Water)
	require.NoError(t, err)

	const attempts = 32
	var wg sync.WaitGroup
	var ok, invalid atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Redeem(ctx, "u1", issued.Key, Water)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrInvalidKey):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(attempts-1), invalid.Load())

	rec, _ := env.ledger.Lookup("u1")
	assert.Equal(t, 1, rec.Used.Water)

	saved, _ := env.gw.saved()
	assert.Equal(t, 1, saved["u1"].Used.Water)
}

func TestIssue_LazyResetOnNewDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issued, err := env.svc.Issue(ctx, "u2", CategoryNearPoor, Meals)
	require.NoError(t, err)
	_, err = env.svc.Redeem(ctx, "u2", issued.Key, Meals)
	require.NoError(t, err)

	env.clock.Advance(24 * time.Hour)

	_, err = env.svc.Issue(ctx, "u2", CategoryNearPoor, Meals)
	require.NoError(t, err)

	rec, _ := env.ledger.Lookup("u2")
	assert.Equal(t, 0, rec.Used.Meals)
	assert.True(t, env.clock.Now().Equal(rec.LastReset))
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Status(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Issue(ctx, "u1", CategoryLowIncome, Meals)
	require.NoError(t, err)

	rec, err := env.svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.ID)
	assert.Equal(t, Allowance{Water: 3, Meals: 2}, rec.Remaining())
}
