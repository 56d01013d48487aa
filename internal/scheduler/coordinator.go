package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"order-intake/internal/dedup"
	"order-intake/internal/extractor"
	"order-intake/internal/logging"
	"order-intake/internal/mailbox"
	"order-intake/internal/models"
	"order-intake/internal/store"

	"github.com/google/uuid"
)

// ErrBlocked is returned when a manual scan cannot run: automatic scanning
// is enabled, or another cycle holds the scan slot.
var ErrBlocked = errors.New("scan blocked")

// Mode is the process-wide scanning mode
type Mode int

const (
	ModeDisabled Mode = iota
	ModeAuto
)

func (m Mode) String() string {
	if m == ModeAuto {
		return "auto"
	}
	return "disabled"
}

// Status is a side-effect free snapshot of the coordinator state
type Status struct {
	Mode       Mode         `json:"-"`
	AutoScan   bool         `json:"auto_scan"`
	Processing bool         `json:"is_processing"`
	LastRun    *CycleResult `json:"last_run,omitempty"`
}

// CycleResult summarizes one scan cycle
type CycleResult struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	Fetched    int       `json:"fetched"`
	Admitted   int       `json:"admitted"`
	Duplicates int       `json:"duplicates"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// Indexer receives every admitted order, e.g. for full-text search
type Indexer interface {
	IndexOrder(order *models.Order) error
}

// CoordinatorConfig tunes the polling loop
type CoordinatorConfig struct {
	Interval time.Duration // sleep between automatic cycles
	Grace    time.Duration // minimum visible processing time after admitting orders
	Now      func() time.Time
}

// ScanCoordinator owns the scan protocol: at most one cycle runs at a time,
// whether started by the automatic loop or by a manual request.
type ScanCoordinator struct {
	reader    mailbox.Reader
	extractor extractor.Extractor
	dedup     *dedup.Deduplicator
	store     store.OrderStore
	indexer   Indexer
	cfg       CoordinatorConfig

	inCycle atomic.Bool

	mu            sync.Mutex
	mode          Mode
	loopRunning   bool
	loopDone      chan struct{}
	wake          chan struct{}
	processing    bool
	processingGen uint64
	graceTimer    *time.Timer
	lastRun       *CycleResult
}

// NewScanCoordinator creates a coordinator in Disabled mode
func NewScanCoordinator(reader mailbox.Reader, ext extractor.Extractor, st store.OrderStore, cfg CoordinatorConfig) *ScanCoordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ScanCoordinator{
		reader:    reader,
		extractor: ext,
		dedup:     dedup.New(st),
		store:     st,
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
	}
}

// SetIndexer attaches an optional indexer for admitted orders
func (c *ScanCoordinator) SetIndexer(idx Indexer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexer = idx
}

// EnableAutoScan switches to automatic mode and starts the polling loop
// unless one is still alive. Calling it twice is a no-op.
func (c *ScanCoordinator) EnableAutoScan() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeAuto {
		return
	}
	c.mode = ModeAuto
	logging.For("scheduler").Infof("Scheduler: automatic scanning enabled (interval=%v)", c.cfg.Interval)

	if c.loopRunning {
		return
	}
	c.loopRunning = true
	c.loopDone = make(chan struct{})
	go c.autoLoop(c.loopDone)
}

// DisableAutoScan switches to Disabled. A cycle in flight finishes; the loop
// exits at its next iteration boundary.
func (c *ScanCoordinator) DisableAutoScan() {
	c.mu.Lock()
	wasAuto := c.mode == ModeAuto
	c.mode = ModeDisabled
	c.mu.Unlock()

	if wasAuto {
		logging.For("scheduler").Info("Scheduler: automatic scanning disabled")
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Status returns the scanning mode and processing flag
func (c *ScanCoordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Mode:       c.mode,
		AutoScan:   c.mode == ModeAuto,
		Processing: c.processing,
	}
	if c.lastRun != nil {
		last := *c.lastRun
		st.LastRun = &last
	}
	return st
}

// RequestManualScan runs one cycle synchronously and returns the number of
// admitted orders. It fails with ErrBlocked while automatic mode is on or
// another cycle is running; contention is rejected, never queued.
func (c *ScanCoordinator) RequestManualScan(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.mode == ModeAuto {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: automatic scan is running, disable it to use manual scan", ErrBlocked)
	}
	if !c.inCycle.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: a scan is already in progress", ErrBlocked)
	}
	c.mu.Unlock()
	defer c.inCycle.Store(false)

	res, err := c.runCycle(ctx, "manual")
	return res.Admitted, err
}

// Shutdown disables automatic scanning and waits for the loop to exit
func (c *ScanCoordinator) Shutdown(ctx context.Context) error {
	c.DisableAutoScan()

	c.mu.Lock()
	done := c.loopDone
	running := c.loopRunning
	c.mu.Unlock()

	if running && done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
		c.processing = false
	}
	c.mu.Unlock()
	return nil
}

func (c *ScanCoordinator) autoLoop(done chan struct{}) {
	defer close(done)
	log := logging.For("scheduler")
	log.Info("Scheduler: polling loop started")

	timer := time.NewTimer(c.cfg.Interval)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.mode != ModeAuto {
			c.loopRunning = false
			c.mu.Unlock()
			log.Info("Scheduler: polling loop stopped")
			return
		}
		c.mu.Unlock()

		// drop a stale wake-up left by an earlier disable
		select {
		case <-c.wake:
		default:
		}

		c.runAutoCycle()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.cfg.Interval)
		select {
		case <-timer.C:
		case <-c.wake:
		}
	}
}

func (c *ScanCoordinator) runAutoCycle() {
	log := logging.For("scheduler")
	if !c.inCycle.CompareAndSwap(false, true) {
		log.Debug("Scheduler: previous cycle still running, skipping tick")
		return
	}
	defer c.inCycle.Store(false)

	res, err := c.runCycle(context.Background(), "auto")
	if err != nil {
		log.Warnf("Scheduler: automatic scan failed, retrying next tick: %v", err)
		return
	}
	if res.Admitted > 0 {
		log.Infof("Scheduler: processed %d new order(s)", res.Admitted)
	} else {
		log.Debug("Scheduler: no new order emails")
	}
}

// runCycle must only be called while holding the inCycle slot.
func (c *ScanCoordinator) runCycle(ctx context.Context, trigger string) (res *CycleResult, err error) {
	// an in-flight cycle is never cancelled, even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	res = &CycleResult{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: c.cfg.Now(),
	}
	log := logging.For("scheduler").WithField("run_id", res.RunID)

	defer func() {
		res.FinishedAt = c.cfg.Now()
		if err != nil {
			res.Error = err.Error()
		}
		c.mu.Lock()
		last := *res
		c.lastRun = &last
		c.mu.Unlock()
	}()

	msgs, err := c.reader.FetchUnseen(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch unseen messages: %w", err)
	}
	res.Fetched = len(msgs)
	if len(msgs) == 0 {
		return res, nil
	}

	gen := c.markProcessing()
	defer func() { c.releaseProcessing(gen, res.Admitted > 0) }()

	c.mu.Lock()
	indexer := c.indexer
	c.mu.Unlock()

	var lastCreated time.Time
	for i, msg := range msgs {
		result, err := c.extractor.Extract(ctx, msg)
		if errors.Is(err, extractor.ErrNotAnOrder) {
			res.Skipped++
			continue
		}
		if err != nil {
			log.Warnf("Scheduler: [%d/%d] extraction failed for %q: %v", i+1, len(msgs), msg.Subject, err)
			res.Failed++
			continue
		}

		fingerprint := dedup.Fingerprint(msg)
		decision, err := c.dedup.Admit(ctx, fingerprint)
		if err != nil {
			log.Warnf("Scheduler: [%d/%d] duplicate check failed: %v", i+1, len(msgs), err)
			res.Failed++
			continue
		}
		if decision == dedup.Reject {
			log.Debugf("Scheduler: [%d/%d] duplicate message %s skipped", i+1, len(msgs), fingerprint[:12])
			res.Duplicates++
			continue
		}

		createdAt := c.cfg.Now()
		if createdAt.Before(lastCreated) {
			createdAt = lastCreated
		}
		lastCreated = createdAt

		order := result.NewOrder(fingerprint, createdAt, c.cfg.Now())
		if _, err := c.store.Insert(ctx, order); err != nil {
			log.Errorf("Scheduler: [%d/%d] failed to save order from %q: %v", i+1, len(msgs), msg.Subject, err)
			res.Failed++
			continue
		}
		res.Admitted++

		if indexer != nil {
			if err := indexer.IndexOrder(order); err != nil {
				log.Warnf("Scheduler: failed to index order %d: %v", order.ID, err)
			}
		}
	}

	log.Infof("Scheduler: %s scan finished. Fetched: %d, Admitted: %d, Duplicates: %d, Skipped: %d, Failed: %d",
		trigger, res.Fetched, res.Admitted, res.Duplicates, res.Skipped, res.Failed)
	return res, nil
}

func (c *ScanCoordinator) markProcessing() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.processingGen++
	c.processing = true
	return c.processingGen
}

// releaseProcessing resets the flag, after the grace window when orders
// were admitted. A newer cycle owns the flag once the generation moves on.
func (c *ScanCoordinator) releaseProcessing(gen uint64, hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.processingGen {
		return
	}
	if !hold || c.cfg.Grace == 0 {
		c.processing = false
		return
	}
	c.graceTimer = time.AfterFunc(c.cfg.Grace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.processingGen == gen {
			c.processing = false
			c.graceTimer = nil
		}
	})
}
