package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

const (
	DefaultDebounceDelay = 300 * time.Millisecond

	ValidationMessage = "Please enter a numeric user ID"
	NotFoundMessage   = "User not found. Please check the ID and try again."
)

// LookupFunc resolves a user id. The context is cancelled once a newer input
// supersedes the lookup; implementations may ignore it.
type LookupFunc func(ctx context.Context, id int) (*types.User, error)

type Snapshot struct {
	Input        string      `json:"input"`
	Phase        Phase       `json:"phase"`
	Result       *types.User `json:"result,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Sequence     uint64      `json:"sequence"`
}

type Option func(*Controller)

func WithClock(clock types.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func WithMetrics(metrics types.MetricsManager) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

var inputValidator = validator.New()

// Controller is a debounced "search as you type" session for one input
// field. Every handler runs under mu; results of lookups started before the
// latest input or reset are discarded by comparing sequence numbers.
type Controller struct {
	logger  types.Logger
	metrics types.MetricsManager
	clock   types.Clock
	lookup  LookupFunc
	delay   time.Duration
	changes *utils.Broadcaster[Snapshot]

	mu           sync.Mutex
	input        string
	phase        Phase
	result       *types.User
	errorMessage string
	sequence     uint64
	timer        types.Timer
	cancelLookup context.CancelFunc
	closed       bool
}

func NewController(lookup LookupFunc, config *types.SearchConfig, logger types.Logger, opts ...Option) *Controller {
	c := &Controller{
		logger:  logger,
		clock:   utils.RealClock(),
		lookup:  lookup,
		delay:   DefaultDebounceDelay,
		changes: utils.NewBroadcaster[Snapshot](),
		phase:   PhaseIdle,
	}

	if config != nil && config.DebounceDelay > 0 {
		c.delay = config.DebounceDelay
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Controller) OnInput(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.result = nil
	c.errorMessage = ""
	c.sequence++
	c.input = raw
	c.cancelInFlightUnsafe()

	query := strings.TrimSpace(raw)
	if query == "" {
		c.stopTimerUnsafe()
		c.phase = PhaseIdle
		c.publishUnsafe()
		return
	}

	id, ok := parseID(query)
	if !ok {
		c.stopTimerUnsafe()
		c.errorMessage = ValidationMessage
		c.phase = PhaseError
		c.publishUnsafe()
		return
	}

	c.stopTimerUnsafe()
	seq := c.sequence
	c.timer = c.clock.AfterFunc(c.delay, func() {
		c.fire(seq, id)
	})
	c.phase = PhaseDebouncing
	c.publishUnsafe()
}

// Clear resets the session to Idle from any phase.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.resetUnsafe()
	c.publishUnsafe()
}

// ConfirmSelection consumes the found user and resets the session.
func (c *Controller) ConfirmSelection() (*types.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseFound || c.result == nil {
		return nil, types.Errorf(types.ErrInvalidState, "cannot confirm selection in phase %s", c.phase)
	}

	user := c.result
	c.resetUnsafe()
	c.publishUnsafe()

	return user, nil
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) Result() *types.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorMessage
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotUnsafe()
}

// Subscribe delivers a Snapshot after every state change. Slow readers only
// see the latest one.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	return c.changes.Subscribe()
}

// Close stops the pending timer, cancels the in-flight lookup and ends all
// subscriptions. Further input is ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.sequence++
	c.stopTimerUnsafe()
	c.cancelInFlightUnsafe()
	c.changes.Close()
}

func (c *Controller) fire(seq uint64, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || seq != c.sequence {
		return
	}

	c.timer = nil
	c.phase = PhaseSearching

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelLookup = cancel
	c.publishUnsafe()

	c.logger.Debug("Search lookup started", zap.Int("id", id), zap.Uint64("sequence", seq))

	go func() {
		defer cancel()
		user, err := c.invokeLookup(ctx, id)
		c.complete(seq, id, user, err)
	}()
}

func (c *Controller) invokeLookup(ctx context.Context, id int) (user *types.User, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrClientRequestFailed, "lookup panicked: %v", r)
		}
	}()

	user, err = c.lookup(ctx, id)
	if err == nil && user == nil {
		err = types.Errorf(types.ErrResourceNotFound, "user %d", id)
	}
	return user, err
}

func (c *Controller) complete(seq uint64, id int, user *types.User, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.sequence {
		c.logger.Debug("Stale search result discarded",
			zap.Int("id", id),
			zap.Uint64("sequence", seq),
			zap.Uint64("current", c.sequence))
		c.counter("search_stale_results_total", nil).Inc()
		return
	}

	c.cancelLookup = nil

	if err != nil {
		c.logger.Warn("Search lookup failed", zap.Int("id", id), zap.Error(err))
		c.counter("search_lookups_total", map[string]string{"result": "error"}).Inc()
		c.errorMessage = NotFoundMessage
		c.phase = PhaseError
		c.publishUnsafe()
		return
	}

	c.counter("search_lookups_total", map[string]string{"result": "found"}).Inc()
	c.result = user
	c.phase = PhaseFound
	c.publishUnsafe()
}

func (c *Controller) resetUnsafe() {
	c.sequence++
	c.stopTimerUnsafe()
	c.cancelInFlightUnsafe()
	c.input = ""
	c.result = nil
	c.errorMessage = ""
	c.phase = PhaseIdle
}

func (c *Controller) stopTimerUnsafe() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) cancelInFlightUnsafe() {
	if c.cancelLookup != nil {
		c.cancelLookup()
		c.cancelLookup = nil
	}
}

func (c *Controller) snapshotUnsafe() Snapshot {
	return Snapshot{
		Input:        c.input,
		Phase:        c.phase,
		Result:       c.result,
		ErrorMessage: c.errorMessage,
		Sequence:     c.sequence,
	}
}

func (c *Controller) publishUnsafe() {
	c.changes.Publish(c.snapshotUnsafe())
}

func (c *Controller) counter(name string, labels map[string]string) types.Counter {
	if c.metrics == nil {
		return noopCounter{}
	}
	return c.metrics.Counter(name, labels)
}

// parseID accepts one or more ASCII digits that fit in an int.
func parseID(query string) (int, bool) {
	if err := inputValidator.Var(query, "number"); err != nil {
		return 0, false
	}

	id, err := strconv.Atoi(query)
	if err != nil {
		return 0, false
	}

	return id, true
}

type noopCounter struct{}

func (noopCounter) Inc()           {}
func (noopCounter) Add(_ float64)  {}
func (noopCounter) Value() float64 { return 0 }

func (s Snapshot) String() string {
	return fmt.Sprintf("phase=%s input=%q seq=%d", s.Phase, s.Input, s.Sequence)
}
