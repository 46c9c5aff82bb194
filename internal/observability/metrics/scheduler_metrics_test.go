package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/hera/internal/authorization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: SchedulerJobReasonForbidden},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonTransient},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonTransient},
		{name: "sqlite_busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: SchedulerJobReasonTransient},
		{name: "foreign_key", err: &pgconn.PgError{Code: "23503"}, want: SchedulerJobReasonForeignKey},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	assert.Equal(t, SchedulerErrorTypeUnknown, ClassifySchedulerErrorType(nil))
	assert.Equal(t, SchedulerErrorTypeDB, ClassifySchedulerErrorType(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, SchedulerErrorTypeBusinessRule, ClassifySchedulerErrorType(gorm.ErrRecordNotFound))
	assert.Equal(t, SchedulerErrorTypeAuthorization, ClassifySchedulerErrorType(authorization.ErrForbidden))
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "hera", Environment: "test"})

	m.AddBatchProcessed("daily_posting", "branches", 3)

	got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("daily_posting", "branches"))
	assert.Equal(t, float64(3), got)
}

func TestIncPostingResult(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{})

	m.IncPostingResult(PostingOutcomePosted)
	m.IncPostingResult(PostingOutcomePosted)
	m.IncPostingResult(PostingOutcomeAlreadyPosted)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.postingResults.WithLabelValues(PostingOutcomePosted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.postingResults.WithLabelValues(PostingOutcomeAlreadyPosted)))
}

func TestRunLoopLagIsRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{})

	m.ObserveRunLoopLag(2 * time.Second)
	m.ObserveRunLoopLag(-time.Second)

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "hera_scheduler_runloop_lag_seconds" {
			h := family.GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(2), h.GetSampleCount())
			assert.Equal(t, float64(2), h.GetSampleSum())
			return
		}
	}
	t.Fatal("runloop lag histogram not registered")
}
