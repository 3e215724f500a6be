package tracker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

const inFlightGauge = "requests_in_flight"

// Tracker aggregates concurrent network-bound operations into one busy flag.
// It never errors: Stop without a matching Start clamps at zero.
type Tracker struct {
	logger  types.Logger
	metrics types.MetricsManager
	changes *utils.Broadcaster[types.TrackerState]
	mu      sync.Mutex
	active  int
}

func NewTracker(logger types.Logger, metrics types.MetricsManager) *Tracker {
	return &Tracker{
		logger:  logger,
		metrics: metrics,
		changes: utils.NewBroadcaster[types.TrackerState](),
	}
}

func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active++
	t.publishUnsafe()
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == 0 {
		t.logger.Debug("Tracker stop without matching start")
		return
	}

	t.active--
	t.publishUnsafe()
}

func (t *Tracker) IsBusy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active > 0
}

func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Tracker) State() types.TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.TrackerState{Active: t.active, Busy: t.active > 0}
}

// Track runs fn between Start and Stop. Stop is deferred, so it runs when fn
// returns an error or panics.
func (t *Tracker) Track(fn func() error) error {
	t.Start()
	defer t.Stop()
	return fn()
}

// Subscribe returns a channel of state changes. A slow reader only sees the
// latest state.
func (t *Tracker) Subscribe() (<-chan types.TrackerState, func()) {
	return t.changes.Subscribe()
}

func (t *Tracker) Close() {
	t.changes.Close()
}

func (t *Tracker) publishUnsafe() {
	state := types.TrackerState{Active: t.active, Busy: t.active > 0}

	if t.metrics != nil {
		t.metrics.Gauge(inFlightGauge, nil).Set(float64(state.Active))
	}

	t.changes.Publish(state)

	t.logger.Debug("Tracker state changed",
		zap.Int("active", state.Active),
		zap.Bool("busy", state.Busy))
}

var _ types.RequestTracker = (*Tracker)(nil)
