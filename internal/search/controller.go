package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"foodlog/searchservice/internal/domain"
	"foodlog/searchservice/internal/metrics"
)

// HistoryRecorder receives the foods a user actually picks from results.
type HistoryRecorder interface {
	RecordSelection(ctx context.Context, record domain.NutritionRecord) error
}

// ControllerState is a point-in-time snapshot of the search surface. Loading
// is true from dispatch until the first admitted delta (or terminal failure).
type ControllerState struct {
	Query   string
	Results []domain.NutritionRecord
	Loading bool
	HasMore bool
	Err     error
}

// Controller is the embeddable consumer surface: it owns the debouncer, the
// current session and its supersession. Text changes funnel through
// OnTextChange; whatever session is active when new text settles gets
// cancelled, so results from a superseded query can never surface.
type Controller struct {
	orch    *Orchestrator
	history HistoryRecorder
	logger  *slog.Logger
	deb     *debouncer

	mu          sync.Mutex
	current     *Session
	lastSettled string
	state       ControllerState
	onUpdate    func(ControllerState)
}

type ControllerOption func(*Controller)

func WithHistory(history HistoryRecorder) ControllerOption {
	return func(c *Controller) { c.history = history }
}

func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUpdateListener registers a callback fired after every state change,
// outside the controller lock.
func WithUpdateListener(fn func(ControllerState)) ControllerOption {
	return func(c *Controller) { c.onUpdate = fn }
}

func NewController(orch *Orchestrator, debounceDelay time.Duration, opts ...ControllerOption) *Controller {
	c := &Controller{
		orch:   orch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.deb = newDebouncer(debounceDelay, c.settle, c.clear)
	return c
}

// OnTextChange feeds one keystroke's worth of input. Dispatch happens only
// after the debounce window passes without further changes.
func (c *Controller) OnTextChange(text string) {
	c.deb.Input(text)
}

// Close stops any pending debounce timer and cancels the active session.
func (c *Controller) Close() {
	c.deb.Stop()
	c.mu.Lock()
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
	}
	c.mu.Unlock()
}

func (c *Controller) clear() {
	c.mu.Lock()
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
	}
	c.lastSettled = ""
	c.state = ControllerState{}
	snapshot := c.state
	c.mu.Unlock()
	c.notify(snapshot)
}

func (c *Controller) settle(query string) {
	c.mu.Lock()
	// Settling on the same text the current session already searched is a
	// no-op; a blur/refocus cycle must not refetch.
	if query == c.lastSettled && c.current != nil {
		c.mu.Unlock()
		metrics.DebounceSuppressedTotal.Inc()
		return
	}
	metrics.DebounceSettlesTotal.Inc()

	if c.current != nil {
		c.current.Cancel()
	}
	sess, err := c.orch.NewSession(context.Background(), query)
	if err != nil {
		c.lastSettled = ""
		c.current = nil
		c.state = ControllerState{Query: query, Err: err}
		snapshot := c.state
		c.mu.Unlock()
		c.notify(snapshot)
		return
	}
	c.lastSettled = query
	c.current = sess
	c.state = ControllerState{Query: query, Loading: true, HasMore: true}
	snapshot := c.state
	c.mu.Unlock()
	c.notify(snapshot)

	go c.fetch(sess)
}

// LoadMore fetches the next page of the active session. Calls while a page is
// already in flight, or after the last page, return the sentinel error and
// change nothing.
func (c *Controller) LoadMore() error {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()
	if sess == nil {
		return ErrNoMorePages
	}
	page, err := sess.inner.beginPage()
	if err != nil {
		return err
	}
	go c.run(sess, page)
	return nil
}

func (c *Controller) fetch(sess *Session) {
	page, err := sess.inner.beginPage()
	if err != nil {
		return
	}
	c.run(sess, page)
}

// run executes one claimed page cycle and folds the outcome into controller
// state, dropping everything if the session was superseded mid-flight.
func (c *Controller) run(sess *Session, page int) {
	_, err := sess.fetchClaimed(page, func([]domain.NutritionRecord) {
		c.apply(sess, nil, false)
	})
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, ErrSessionSuperseded)) {
		return
	}
	c.apply(sess, err, true)
}

// apply folds a session snapshot into controller state. final marks the end
// of a page cycle: loading always clears then, even when every record of the
// cycle was filtered out or the cycle failed. Mid-cycle deltas clear it as
// soon as the first results land.
func (c *Controller) apply(sess *Session, err error, final bool) {
	results, hasMore := sess.Results()
	c.mu.Lock()
	if c.current != sess {
		c.mu.Unlock()
		return
	}
	c.state.Results = results
	c.state.HasMore = hasMore
	c.state.Err = err
	if final || len(results) > 0 {
		c.state.Loading = false
	}
	snapshot := c.state
	c.mu.Unlock()
	c.notify(snapshot)
}

// Select records that the user picked a result, feeding the history ranking.
func (c *Controller) Select(ctx context.Context, record domain.NutritionRecord) error {
	metrics.HistorySelectionsTotal.Inc()
	if c.history == nil {
		return nil
	}
	if err := c.history.RecordSelection(ctx, record); err != nil {
		c.logger.Warn("recording selection failed", "name", record.Name, "error", err)
		return err
	}
	return nil
}

// State returns the current snapshot.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.state
	snapshot.Results = append([]domain.NutritionRecord(nil), c.state.Results...)
	return snapshot
}

func (c *Controller) notify(state ControllerState) {
	if c.onUpdate != nil {
		c.onUpdate(state)
	}
}
