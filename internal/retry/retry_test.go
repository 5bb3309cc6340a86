// internal/retry/retry_test.go
package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSleep records requested delays without blocking.
type recordingSleep struct{ delays []time.Duration }

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleep) total() time.Duration {
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

func TestDo_AlwaysFailingRunsExactlyMaxAttempts(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		rec := &recordingSleep{}
		r := New(zaptest.NewLogger(t), nil).WithSleep(rec.sleep)
		policy := Policy{MaxAttempts: n, BaseDelay: 500 * time.Millisecond}

		attempts := 0
		_, err := Do(context.Background(), r, policy, func(context.Context, int) (struct{}, error) {
			attempts++
			return struct{}{}, errors.New("element click intercepted")
		})

		require.Error(t, err)
		assert.Equal(t, n, attempts)
		// B * (0 + 1 + ... + (N-1))
		assert.Equal(t, 500*time.Millisecond*time.Duration(n*(n-1)/2), rec.total(), "n=%d", n)
		assert.Equal(t, policy.TotalDelay(), rec.total())
	}
}

func TestDo_DelaysGrowLinearly(t *testing.T) {
	rec := &recordingSleep{}
	r := New(nil, nil).WithSleep(rec.sleep)
	_, _ = Do(context.Background(), r, Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond},
		func(context.Context, int) (int, error) { return 0, errors.New("nope") })

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, rec.delays)
}

func TestDo_RealSleepMatchesPolicy(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond}
	start := time.Now()
	_, err := Do(context.Background(), New(zaptest.NewLogger(t), nil), policy,
		func(context.Context, int) (int, error) { return 0, errors.New("nope") })
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 60*time.Millisecond+50*time.Millisecond)
}

func TestDo_StopsOnSuccess(t *testing.T) {
	rec := &recordingSleep{}
	r := New(nil, nil).WithSleep(rec.sleep)

	var seen []int
	v, err := Do(context.Background(), r, Policy{MaxAttempts: 5, BaseDelay: time.Second},
		func(_ context.Context, attempt int) (string, error) {
			seen = append(seen, attempt)
			if attempt < 2 {
				return "", errors.New("stale element")
			}
			return "clicked", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "clicked", v)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestDo_InvalidPolicyRejectedBeforeAnyAttempt(t *testing.T) {
	for _, policy := range []Policy{{MaxAttempts: 0}, {MaxAttempts: -1}, {MaxAttempts: 2, BaseDelay: -time.Millisecond}} {
		called := false
		_, err := Do(context.Background(), nil, policy, func(context.Context, int) (int, error) {
			called = true
			return 0, nil
		})
		assert.True(t, fault.IsValidation(err), "%+v", policy)
		assert.False(t, called)
	}
}

func TestDo_ValidationErrorStopsRetrying(t *testing.T) {
	rec := &recordingSleep{}
	attempts := 0
	_, err := Do(context.Background(), New(nil, nil).WithSleep(rec.sleep), Policy{MaxAttempts: 3},
		func(context.Context, int) (int, error) {
			attempts++
			return 0, fault.Validation("locator is required")
		})

	assert.True(t, fault.IsValidation(err))
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.delays)
}

func TestDo_TerminalErrorWrapsLastCause(t *testing.T) {
	first := errors.New("first")
	last := fault.New(fault.KindTimeout, "element #go not visible within 2s")
	_, err := Do(context.Background(), New(nil, nil).WithSleep((&recordingSleep{}).sleep), Policy{MaxAttempts: 3},
		func(_ context.Context, attempt int) (int, error) {
			if attempt == 3 {
				return 0, last
			}
			return 0, first
		})

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, last)
	assert.NotErrorIs(t, err, first)
	assert.Equal(t, fault.KindTimeout, fe.Kind)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDo_CancellationDuringSleepIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Do(ctx, New(zaptest.NewLogger(t), nil), Policy{MaxAttempts: 3, BaseDelay: time.Minute},
		func(context.Context, int) (int, error) {
			attempts++
			return 0, fault.New(fault.KindTransient, "not yet")
		})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, fault.KindFatal, fault.KindOf(err))
	assert.Contains(t, err.Error(), "before attempt 2 of 3")
}

func TestDo_RecordsAttempts(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := New(nil, m).WithSleep((&recordingSleep{}).sleep)
	_, _ = Do(context.Background(), r, Policy{MaxAttempts: 3}, func(_ context.Context, attempt int) (int, error) {
		if attempt < 3 {
			return 0, errors.New("nope")
		}
		return 1, nil
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetryAttempts.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetryAttempts.WithLabelValues("success")))
}

func TestPolicyFrom(t *testing.T) {
	p := PolicyFrom(config.RetryConfig{MaxAttempts: 3, BaseDelayMillis: 500})
	assert.Equal(t, Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}, p)
	assert.Equal(t, 1500*time.Millisecond, p.TotalDelay())
	assert.Zero(t, p.Delay(1))
}
