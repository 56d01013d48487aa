package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"order-intake/internal/extractor"
	"order-intake/internal/mailbox"
	"order-intake/internal/models"
	"order-intake/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subjectExtractor fails on "broken", skips "newsletter" and otherwise uses
// the subject as the product name.
type subjectExtractor struct{}

func (subjectExtractor) Extract(ctx context.Context, msg mailbox.Message) (*extractor.Result, error) {
	switch msg.Subject {
	case "broken":
		return nil, errors.New("unreadable body")
	case "newsletter":
		return nil, extractor.ErrNotAnOrder
	}
	return &extractor.Result{ProductName: msg.Subject, Subject: msg.Subject, Confidence: 90}, nil
}

// gateReader blocks inside FetchUnseen until released
type gateReader struct {
	entered chan struct{}
	release chan struct{}
	batch   []mailbox.Message
}

func (r *gateReader) FetchUnseen(ctx context.Context) ([]mailbox.Message, error) {
	r.entered <- struct{}{}
	<-r.release
	return r.batch, nil
}

// countingReader tracks how many fetches overlap
type countingReader struct {
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (r *countingReader) FetchUnseen(ctx context.Context) ([]mailbox.Message, error) {
	r.calls.Add(1)
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return nil, nil
}

type recordingIndexer struct {
	mu  sync.Mutex
	ids []uint
}

func (r *recordingIndexer) IndexOrder(o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, o.ID)
	return nil
}

func msg(id, subject string) mailbox.Message {
	return mailbox.Message{MessageID: fmt.Sprintf("<%s@example.com>", id), From: "buyer@shop.in", Subject: subject}
}

func TestManualScan_SkipsFailedExtraction(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reader := &mailbox.StaticReader{Batches: [][]mailbox.Message{{
		msg("1", "Rice"), msg("2", "broken"), msg("3", "Wheat"),
	}}}
	c := NewScanCoordinator(reader, subjectExtractor{}, st, CoordinatorConfig{Grace: 50 * time.Millisecond})
	idx := &recordingIndexer{}
	c.SetIndexer(idx)

	admitted, err := c.RequestManualScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, admitted)
	assert.True(t, c.Status().Processing, "processing is held for the grace window")

	orders, err := st.Scan(ctx, store.Filter{State: store.StateActive}, store.SortCreatedDesc)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.ElementsMatch(t, []string{"Rice", "Wheat"}, []string{orders[0].ProductName, orders[1].ProductName})
	for _, o := range orders {
		require.NotNil(t, o.EmailHash)
		assert.Equal(t, models.StatusPending, o.OrderStatus)
	}
	assert.Len(t, idx.ids, 2)

	assert.Eventually(t, func() bool { return !c.Status().Processing }, time.Second, 5*time.Millisecond)

	last := c.Status().LastRun
	require.NotNil(t, last)
	assert.Equal(t, "manual", last.Trigger)
	assert.Equal(t, 3, last.Fetched)
	assert.Equal(t, 1, last.Failed)
	assert.NotEmpty(t, last.RunID)
}

func TestManualScan_CreatedAtMonotonic(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	// clock steps backwards between messages
	var tick atomic.Int64
	now := func() time.Time {
		n := tick.Add(1)
		return base.Add(time.Duration(-n) * time.Second)
	}
	reader := &mailbox.StaticReader{Batches: [][]mailbox.Message{{msg("1", "A"), msg("2", "B"), msg("3", "C")}}}
	c := NewScanCoordinator(reader, subjectExtractor{}, st, CoordinatorConfig{Now: now})

	admitted, err := c.RequestManualScan(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, admitted)

	var prev time.Time
	for _, id := range []uint{1, 2, 3} {
		o, err := st.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, o.CreatedAt.Before(prev))
		prev = o.CreatedAt
	}
}

func TestManualScan_EmptyBatchLeavesIdle(t *testing.T) {
	c := NewScanCoordinator(&mailbox.StaticReader{}, subjectExtractor{}, store.NewMemoryStore(), CoordinatorConfig{Grace: time.Hour})

	admitted, err := c.RequestManualScan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, admitted)
	assert.False(t, c.Status().Processing)
}

func TestManualScan_NoGraceWhenNothingAdmitted(t *testing.T) {
	reader := &mailbox.StaticReader{Batches: [][]mailbox.Message{{msg("1", "newsletter")}}}
	c := NewScanCoordinator(reader, subjectExtractor{}, store.NewMemoryStore(), CoordinatorConfig{Grace: time.Hour})

	admitted, err := c.RequestManualScan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, admitted)
	assert.False(t, c.Status().Processing)
	assert.Equal(t, 1, c.Status().LastRun.Skipped)
}

func TestManualScan_BlockedWhileAuto(t *testing.T) {
	st := store.NewMemoryStore()
	reader := &mailbox.StaticReader{Batches: [][]mailbox.Message{{msg("1", "Rice")}}}
	c := NewScanCoordinator(reader, subjectExtractor{}, st, CoordinatorConfig{Interval: time.Hour})
	c.EnableAutoScan()
	defer func() { require.NoError(t, c.Shutdown(context.Background())) }()

	// wait for the first automatic cycle so the store count is stable
	require.Eventually(t, func() bool { return c.Status().LastRun != nil }, time.Second, 5*time.Millisecond)

	_, err := c.RequestManualScan(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))

	orders, err := st.Scan(context.Background(), store.Filter{}, store.SortCreatedDesc)
	require.NoError(t, err)
	assert.Len(t, orders, 1, "the rejected request changes nothing")
	assert.True(t, c.Status().AutoScan)
}

func TestManualScan_ConcurrentRequestIsRejected(t *testing.T) {
	reader := &gateReader{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		batch:   []mailbox.Message{msg("1", "Rice")},
	}
	c := NewScanCoordinator(reader, subjectExtractor{}, store.NewMemoryStore(), CoordinatorConfig{})

	type outcome struct {
		n   int
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		n, err := c.RequestManualScan(context.Background())
		first <- outcome{n, err}
	}()
	<-reader.entered

	_, err := c.RequestManualScan(context.Background())
	assert.True(t, errors.Is(err, ErrBlocked))

	close(reader.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.n)
}

func TestManualScan_CancelledCallerDoesNotAbortCycle(t *testing.T) {
	reader := &gateReader{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		batch:   []mailbox.Message{msg("1", "Rice")},
	}
	st := store.NewMemoryStore()
	c := NewScanCoordinator(reader, subjectExtractor{}, st, CoordinatorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		n, _ := c.RequestManualScan(ctx)
		done <- n
	}()
	<-reader.entered
	cancel()
	close(reader.release)

	assert.Equal(t, 1, <-done)
	_, err := st.Get(context.Background(), 1)
	assert.NoError(t, err)
}

func TestManualScan_FetchFailure(t *testing.T) {
	reader := &mailbox.StaticReader{Err: fmt.Errorf("%w: connection refused", mailbox.ErrFetch)}
	c := NewScanCoordinator(reader, subjectExtractor{}, store.NewMemoryStore(), CoordinatorConfig{Grace: time.Hour})

	_, err := c.RequestManualScan(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, mailbox.ErrFetch))
	assert.False(t, c.Status().Processing)
	assert.NotEmpty(t, c.Status().LastRun.Error)

	// the slot is released after a failure
	reader.Err = nil
	_, err = c.RequestManualScan(context.Background())
	assert.NoError(t, err)
}

func TestManualScan_Deduplicates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	reader := &mailbox.StaticReader{Batches: [][]mailbox.Message{
		{msg("1", "Rice"), msg("1", "Rice (resent)")},
		{msg("1", "Rice")},
	}}
	c := NewScanCoordinator(reader, subjectExtractor{}, st, CoordinatorConfig{})

	n, err := c.RequestManualScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Status().LastRun.Duplicates)

	// soft-deleted orders still block re-admission
	now := time.Now()
	require.NoError(t, st.UpdateFields(ctx, 1, store.Patch{DeletedAt: &now}))

	n, err = c.RequestManualScan(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAutoScan_SingleLoop(t *testing.T) {
	reader := &countingReader{}
	c := NewScanCoordinator(reader, subjectExtractor{}, store.NewMemoryStore(), CoordinatorConfig{Interval: time.Millisecond})

	c.EnableAutoScan()
	c.EnableAutoScan()
	c.DisableAutoScan()
	c.EnableAutoScan()

	require.Eventually(t, func() bool { return reader.calls.Load() >= 5 }, 2*time.Second, time.Millisecond)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, int32(1), reader.maxSeen.Load())
	assert.False(t, c.Status().AutoScan)

	calls := reader.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, reader.calls.Load(), "no cycles after the loop stopped")
}

func TestAutoScan_FetchErrorKeepsLooping(t *testing.T) {
	reader := &mailbox.StaticReader{Err: mailbox.ErrFetch}
	c := NewScanCoordinator(reader, subjectExtractor{}, store.NewMemoryStore(), CoordinatorConfig{Interval: time.Millisecond})
	c.EnableAutoScan()

	require.Eventually(t, func() bool {
		last := c.Status().LastRun
		return last != nil && last.Error != ""
	}, time.Second, time.Millisecond)
	assert.True(t, c.Status().AutoScan)
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestStatus_ModeString(t *testing.T) {
	assert.Equal(t, "auto", ModeAuto.String())
	assert.Equal(t, "disabled", ModeDisabled.String())
}
