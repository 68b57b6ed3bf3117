package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subzone/internal/model"
)

type stubReporter struct {
	calls  atomic.Int32
	report []model.CountDrift
	err    error
}

func (s *stubReporter) DriftReport(context.Context) ([]model.CountDrift, error) {
	s.calls.Add(1)
	return s.report, s.err
}

func TestCheckDrift(t *testing.T) {
	r := &stubReporter{report: []model.CountDrift{
		{AccountID: "a", Email: "a@example.com", Stored: 3, Actual: 2},
		{AccountID: "b", Email: "b@example.com", Stored: 0, Actual: 1},
	}}
	assert.Equal(t, 2, CheckDrift(context.Background(), r, logr.Discard()))

	r = &stubReporter{err: errors.New("db down")}
	assert.Equal(t, 0, CheckDrift(context.Background(), r, logr.Discard()))
}

func TestNew_BadSchedule(t *testing.T) {
	_, err := New("every now and then", &stubReporter{}, logr.Discard())
	assert.Error(t, err)
}

func TestNew_Disabled(t *testing.T) {
	s, err := New(Disabled, &stubReporter{}, logr.Discard())
	require.NoError(t, err)
	assert.Empty(t, s.cron.Entries())
}

func TestScheduler_Runs(t *testing.T) {
	r := &stubReporter{}
	s, err := New("@every 1s", r, logr.Discard())
	require.NoError(t, err)
	require.Len(t, s.cron.Entries(), 1)

	s.Start()
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
