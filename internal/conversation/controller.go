package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/talent-manual/internal/assessment"
	"github.com/ashureev/talent-manual/internal/backend"
	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/report"
	"github.com/google/uuid"
)

// Pacing defaults before a generated report is revealed.
const (
	DefaultSuccessDelay = 1 * time.Second
	DefaultFailureDelay = 3 * time.Second

	quickProgress  = 30
	archiveTimeout = 5 * time.Second
)

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers the state change observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithArchive stores every produced report.
func WithArchive(a Archive) Option {
	return func(c *Controller) { c.archive = a }
}

// WithOwner tags archived reports with the owning client and tab.
func WithOwner(clientID, sessionID string) Option {
	return func(c *Controller) {
		c.clientID = clientID
		c.sessionID = sessionID
	}
}

// WithPacing sets how long a generated report stays on the loading screen.
func WithPacing(success, failure time.Duration) Option {
	return func(c *Controller) {
		c.successDelay = success
		c.failureDelay = failure
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller is the top-level state machine of one client. Each Begin or
// Restart opens a new lifetime; results of an abandoned lifetime are dropped.
type Controller struct {
	client       backend.Assessor
	observer     Observer
	archive      Archive
	clientID     string
	sessionID    string
	successDelay time.Duration
	failureDelay time.Duration
	timeout      time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	version  uint64
	epoch    uint64
	step     Step
	mode     domain.Mode
	progress int
	session  *assessment.Session
	degraded bool
	notice   string
	report   *domain.Report
	fallback bool

	// pubMu orders observer calls; never taken while holding mu.
	pubMu     sync.Mutex
	published uint64

	wg sync.WaitGroup
}

// New creates a controller on the landing step.
func New(client backend.Assessor, opts ...Option) *Controller {
	c := &Controller{
		client:       client,
		successDelay: DefaultSuccessDelay,
		failureDelay: DefaultFailureDelay,
		logger:       slog.Default(),
		step:         StepLanding,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a new journey in the given mode.
func (c *Controller) Begin(ctx context.Context, mode domain.Mode) (Snapshot, error) {
	if !mode.Valid() {
		return c.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	switch mode {
	case domain.ModeTestReport:
		return c.beginTestReport(ctx), nil
	case domain.ModeQuick:
		return c.beginQuick(ctx), nil
	default:
		return c.beginNormal(ctx), nil
	}
}

func (c *Controller) beginTestReport(ctx context.Context) Snapshot {
	c.mu.Lock()
	epoch := c.resetLocked(domain.ModeTestReport)
	c.mu.Unlock()

	c.logger.Info("Serving test report", "client_id", c.clientID)
	c.finish(ctx, epoch, report.TestFixture(), false)
	return c.Snapshot()
}

func (c *Controller) beginQuick(ctx context.Context) Snapshot {
	c.mu.Lock()
	epoch := c.resetLocked(domain.ModeQuick)
	c.raiseLocked(quickProgress)
	c.step = StepLoading
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.quickReport(bg, epoch)
	}()
	return snap
}

func (c *Controller) quickReport(ctx context.Context, epoch uint64) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	payload, err := c.client.RandomReport(callCtx)
	if err == nil && len(payload) == 0 {
		err = report.ErrEmptyPayload
	}
	if err != nil {
		c.logger.Error("Error generating random report", "client_id", c.clientID, "error", err)
		c.finish(ctx, epoch, report.QuickFallback(), true)
		return
	}
	c.finish(ctx, epoch, report.Normalize(payload), false)
}

func (c *Controller) beginNormal(ctx context.Context) Snapshot {
	c.mu.Lock()
	epoch := c.resetLocked(domain.ModeNormal)
	c.raiseLocked(assessment.ProgressStart)
	c.step = StepAssessment
	sess := assessment.New(c.client,
		assessment.WithProgress(c.progressFor(epoch)),
		assessment.WithTimeout(c.timeout),
		assessment.WithLogger(c.logger),
	)
	c.session = sess
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	res, err := sess.Start(ctx, domain.ModeNormal)
	if err != nil {
		c.logger.Error("Failed to start session", "client_id", c.clientID, "error", err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		snap = c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.degraded = res.Degraded
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return snap
}

// Submit forwards an answer to the running session. Rejected answers return
// the session's error and change nothing.
func (c *Controller) Submit(ctx context.Context, answer string) (Snapshot, error) {
	c.mu.Lock()
	if c.step != StepAssessment || c.session == nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrNotInAssessment
	}
	sess := c.session
	epoch := c.epoch
	c.mu.Unlock()

	ev, err := sess.Submit(ctx, answer)
	if err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}

	switch ev.Kind {
	case assessment.EventNextQuestion:
		c.notice = ""
	case assessment.EventError:
		c.notice = roundFailedNotice
	case assessment.EventCompleted:
		c.notice = ""
		c.raiseLocked(assessment.ProgressCap)
		c.step = StepLoading
		c.session = nil
		bg := context.WithoutCancel(ctx)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.completeSession(bg, epoch, ev.History)
		}()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return snap, nil
}

// OnSessionCompleted generates the report for a finished conversation and
// blocks until it is shown. It always ends on the report step with progress
// 100, using the fallback report when generation fails.
func (c *Controller) OnSessionCompleted(ctx context.Context, history []domain.Turn) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	c.completeSession(ctx, epoch, history)
}

func (c *Controller) completeSession(ctx context.Context, epoch uint64, history []domain.Turn) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.raiseLocked(assessment.ProgressCap)
	c.step = StepLoading
	c.session = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	callCtx, cancel := c.callContext(ctx)
	payload, err := c.client.Report(callCtx, history)
	cancel()
	if err == nil && len(payload) == 0 {
		err = report.ErrEmptyPayload
	}

	if err != nil {
		c.logger.Error("Error fetching analysis", "client_id", c.clientID, "history_len", len(history), "error", err)
		pace(ctx, c.failureDelay)
		c.finish(ctx, epoch, report.GenerationFallback(history), true)
		return
	}

	rep := report.Normalize(payload)
	pace(ctx, c.successDelay)
	c.finish(ctx, epoch, rep, false)
}

// finish shows rep and archives it, unless the lifetime was abandoned.
func (c *Controller) finish(ctx context.Context, epoch uint64, rep domain.Report, fallback bool) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug("Dropping report of abandoned session", "client_id", c.clientID)
		return
	}
	c.raiseLocked(assessment.ProgressReady)
	c.step = StepReport
	c.session = nil
	c.report = &rep
	c.fallback = fallback
	mode := c.mode
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.store(ctx, mode, rep, fallback)
}

func (c *Controller) store(ctx context.Context, mode domain.Mode, rep domain.Report, fallback bool) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	rec := &domain.ReportRecord{
		ID:        uuid.NewString(),
		ClientID:  c.clientID,
		SessionID: c.sessionID,
		Mode:      mode,
		Fallback:  fallback,
		Report:    *rep.Clone(),
		CreatedAt: time.Now(),
	}
	if err := c.archive.SaveReport(ctx, rec); err != nil {
		c.logger.Warn("Failed to archive report", "client_id", c.clientID, "report_id", rec.ID, "error", err)
	}
}

// Restart returns to the landing step and abandons any session in flight.
// Nothing is sent to the backend; late replies are ignored.
func (c *Controller) Restart() Snapshot {
	c.mu.Lock()
	c.resetLocked("")
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return snap
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until background report generation has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) resetLocked(mode domain.Mode) uint64 {
	c.epoch++
	c.step = StepLanding
	c.mode = mode
	c.progress = 0
	c.session = nil
	c.degraded = false
	c.notice = ""
	c.report = nil
	c.fallback = false
	return c.epoch
}

// raiseLocked keeps progress monotonic within a lifetime.
func (c *Controller) raiseLocked(p int) {
	if p > c.progress {
		c.progress = p
	}
}

func (c *Controller) progressFor(epoch uint64) assessment.ProgressFunc {
	return func(p int) {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		c.raiseLocked(p)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	c.version++
	s := Snapshot{
		Version:  c.version,
		Step:     c.step,
		Mode:     c.mode,
		Progress: c.progress,
		Degraded: c.degraded,
		Notice:   c.notice,
		Report:   c.report.Clone(),
		Fallback: c.fallback,
	}
	if c.session != nil {
		s.Round = c.session.Round()
		s.Prompt = c.session.Prompt()
		s.Status = c.session.Status()
	}
	return s
}

// notify hands s to the observer unless a later snapshot already went out.
// Snapshots are taken under mu but published after it is released, so two
// publishers can race; the observer only ever sees versions in order.
func (c *Controller) notify(s Snapshot) {
	if c.observer == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if s.Version <= c.published {
		return
	}
	c.published = s.Version
	c.observer.Publish(s)
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// pace waits d, or less if ctx ends first.
func pace(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
