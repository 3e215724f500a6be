package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-directory/logger"
	"github.com/saiset-co/sai-directory/metrics"
	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

const delay = 300 * time.Millisecond

type fakeDirectory struct {
	mu      sync.Mutex
	calls   []int
	users   map[int]*types.User
	release map[int]chan struct{}
}

func newFakeDirectory(users ...*types.User) *fakeDirectory {
	d := &fakeDirectory{
		users:   make(map[int]*types.User),
		release: make(map[int]chan struct{}),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// hold makes lookups of id block until the returned func is called.
func (d *fakeDirectory) hold(id int) func() {
	ch := make(chan struct{})
	d.mu.Lock()
	d.release[id] = ch
	d.mu.Unlock()
	return func() { close(ch) }
}

func (d *fakeDirectory) Lookup(_ context.Context, id int) (*types.User, error) {
	d.mu.Lock()
	d.calls = append(d.calls, id)
	wait := d.release[id]
	user, ok := d.users[id]
	d.mu.Unlock()

	if wait != nil {
		<-wait
	}

	if !ok {
		return nil, types.ErrResourceNotFound
	}
	return user, nil
}

func (d *fakeDirectory) Calls() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.calls...)
}

func newTestController(t *testing.T, dir *fakeDirectory, opts ...Option) (*Controller, *utils.FakeClock) {
	t.Helper()

	clock := utils.NewFakeClock(time.Unix(0, 0))
	opts = append([]Option{WithClock(clock)}, opts...)
	c := NewController(dir.Lookup, &types.SearchConfig{DebounceDelay: delay}, logger.NewNop(), opts...)
	t.Cleanup(c.Close)
	return c, clock
}

func waitPhase(t *testing.T, c *Controller, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Phase() == phase
	}, time.Second, time.Millisecond, "expected phase %s, got %s", phase, c.Phase())
}

func TestController_InitialState(t *testing.T) {
	c, _ := newTestController(t, newFakeDirectory())

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Nil(t, c.Result())
	assert.Empty(t, c.ErrorMessage())
}

func TestController_InvalidInput(t *testing.T) {
	for _, input := range []string{"abc", "-1", "1.5", "+3", "1a", "٣"} {
		t.Run(input, func(t *testing.T) {
			dir := newFakeDirectory()
			c, clock := newTestController(t, dir)

			c.OnInput(input)

			assert.Equal(t, PhaseError, c.Phase())
			assert.Equal(t, ValidationMessage, c.ErrorMessage())
			assert.Equal(t, 0, clock.PendingTimers())

			clock.Advance(delay * 2)
			assert.Empty(t, dir.Calls())
		})
	}
}

func TestController_OverflowingIDIsInvalid(t *testing.T) {
	dir := newFakeDirectory()
	c, clock := newTestController(t, dir)

	c.OnInput("99999999999999999999999")
	clock.Advance(delay)

	assert.Equal(t, PhaseError, c.Phase())
	assert.Equal(t, ValidationMessage, c.ErrorMessage())
	assert.Empty(t, dir.Calls())
}

func TestController_WhitespaceIsTrimmed(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 7, FirstName: "Ana"})
	c, clock := newTestController(t, dir)

	c.OnInput("  7 ")
	assert.Equal(t, PhaseDebouncing, c.Phase())

	clock.Advance(delay)
	waitPhase(t, c, PhaseFound)
	assert.Equal(t, 7, c.Result().ID)
}

func TestController_EmptyInputIsIdle(t *testing.T) {
	dir := newFakeDirectory()
	c, clock := newTestController(t, dir)

	c.OnInput("   ")

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, 0, clock.PendingTimers())
	assert.Empty(t, dir.Calls())
}

func TestController_Found(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 1, Email: "george.bluth@reqres.in"})
	c, clock := newTestController(t, dir)

	c.OnInput("1")
	assert.Equal(t, PhaseDebouncing, c.Phase())

	clock.Advance(delay - time.Millisecond)
	assert.Equal(t, PhaseDebouncing, c.Phase())
	assert.Empty(t, dir.Calls())

	clock.Advance(time.Millisecond)
	waitPhase(t, c, PhaseFound)

	require.NotNil(t, c.Result())
	assert.Equal(t, 1, c.Result().ID)
	assert.Empty(t, c.ErrorMessage())
	assert.Equal(t, []int{1}, dir.Calls())
}

func TestController_NotFound(t *testing.T) {
	dir := newFakeDirectory()
	c, clock := newTestController(t, dir)

	c.OnInput("999")
	clock.Advance(delay)
	waitPhase(t, c, PhaseError)

	assert.Equal(t, NotFoundMessage, c.ErrorMessage())
	assert.Nil(t, c.Result())
}

func TestController_DebounceKeepsLatestInput(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 1}, &types.User{ID: 2})
	c, clock := newTestController(t, dir)

	c.OnInput("1")
	clock.Advance(delay / 2)
	c.OnInput("2")
	assert.Equal(t, 1, clock.PendingTimers())

	clock.Advance(delay)
	waitPhase(t, c, PhaseFound)

	assert.Equal(t, []int{2}, dir.Calls())
	assert.Equal(t, 2, c.Result().ID)
}

func TestController_EmptyBeforeFireCancels(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 5})
	c, clock := newTestController(t, dir)

	c.OnInput("5")
	c.OnInput("")
	clock.Advance(delay * 3)

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, dir.Calls())
}

func TestController_InvalidAfterValidCancelsTimer(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 5})
	c, clock := newTestController(t, dir)

	c.OnInput("5")
	c.OnInput("5x")
	clock.Advance(delay)

	assert.Equal(t, PhaseError, c.Phase())
	assert.Equal(t, ValidationMessage, c.ErrorMessage())
	assert.Empty(t, dir.Calls())
}

func TestController_StaleResultDiscarded(t *testing.T) {
	m, err := metrics.NewManager(&types.MetricsConfig{Enabled: true, Type: "prometheus"}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	defer m.Stop()

	dir := newFakeDirectory(&types.User{ID: 1}, &types.User{ID: 2})
	release := dir.hold(1)
	c, clock := newTestController(t, dir, WithMetrics(m))

	c.OnInput("1")
	clock.Advance(delay)
	waitPhase(t, c, PhaseSearching)
	require.Eventually(t, func() bool { return len(dir.Calls()) == 1 }, time.Second, time.Millisecond)

	c.OnInput("2")
	clock.Advance(delay)
	waitPhase(t, c, PhaseFound)
	assert.Equal(t, 2, c.Result().ID)

	release()
	require.Eventually(t, func() bool {
		return m.Counter("search_stale_results_total", nil).Value() == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, PhaseFound, c.Phase())
	assert.Equal(t, 2, c.Result().ID)
	assert.Equal(t, float64(1), m.Counter("search_lookups_total", map[string]string{"result": "found"}).Value())
}

func TestController_ClearDuringSearching(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 3})
	release := dir.hold(3)
	c, clock := newTestController(t, dir)

	c.OnInput("3")
	clock.Advance(delay)
	waitPhase(t, c, PhaseSearching)

	c.Clear()
	assert.Equal(t, PhaseIdle, c.Phase())

	release()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Nil(t, c.Result())
}

func TestController_LookupCancelledWhenSuperseded(t *testing.T) {
	cancelled := make(chan struct{})
	lookup := func(ctx context.Context, id int) (*types.User, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}

	clock := utils.NewFakeClock(time.Unix(0, 0))
	c := NewController(lookup, nil, logger.NewNop(), WithClock(clock))
	defer c.Close()

	c.OnInput("4")
	clock.Advance(DefaultDebounceDelay)
	waitPhase(t, c, PhaseSearching)

	c.OnInput("")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("lookup context was not cancelled")
	}
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestController_LookupPanicEndsInError(t *testing.T) {
	lookup := func(context.Context, int) (*types.User, error) {
		panic("transport exploded")
	}

	clock := utils.NewFakeClock(time.Unix(0, 0))
	c := NewController(lookup, nil, logger.NewNop(), WithClock(clock))
	defer c.Close()

	c.OnInput("8")
	clock.Advance(DefaultDebounceDelay)
	waitPhase(t, c, PhaseError)
	assert.Equal(t, NotFoundMessage, c.ErrorMessage())
}

func TestController_ConfirmSelection(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 6, FirstName: "Tracey"})
	c, clock := newTestController(t, dir)

	c.OnInput("6")
	clock.Advance(delay)
	waitPhase(t, c, PhaseFound)

	user, err := c.ConfirmSelection()
	require.NoError(t, err)
	assert.Equal(t, 6, user.ID)

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, c.Input())
	assert.Nil(t, c.Result())
	assert.Empty(t, c.ErrorMessage())
}

func TestController_ConfirmSelectionOutsideFound(t *testing.T) {
	c, clock := newTestController(t, newFakeDirectory())

	_, err := c.ConfirmSelection()
	assert.ErrorIs(t, err, types.ErrInvalidState)

	c.OnInput("12")
	_, err = c.ConfirmSelection()
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, PhaseDebouncing, c.Phase())

	clock.Advance(delay)
	waitPhase(t, c, PhaseError)
	_, err = c.ConfirmSelection()
	assert.True(t, errors.Is(err, types.ErrInvalidState))
}

func TestController_ClearFromDebouncing(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 9})
	c, clock := newTestController(t, dir)

	c.OnInput("9")
	c.Clear()

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, 0, clock.PendingTimers())

	clock.Advance(delay)
	assert.Empty(t, dir.Calls())
}

func TestController_ReTriggerAfterError(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 2})
	c, clock := newTestController(t, dir)

	c.OnInput("abc")
	require.Equal(t, PhaseError, c.Phase())

	c.OnInput("2")
	assert.Empty(t, c.ErrorMessage())
	clock.Advance(delay)
	waitPhase(t, c, PhaseFound)
}

func TestController_Subscribe(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 1})
	c, clock := newTestController(t, dir)

	ch, cancel := c.Subscribe()
	defer cancel()

	c.OnInput("1")
	snap := <-ch
	assert.Equal(t, PhaseDebouncing, snap.Phase)
	assert.Equal(t, "1", snap.Input)

	clock.Advance(delay)
	require.Eventually(t, func() bool {
		select {
		case snap = <-ch:
		default:
		}
		return snap.Phase == PhaseFound
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, snap.Result.ID)
}

func TestController_CloseIgnoresInput(t *testing.T) {
	dir := newFakeDirectory(&types.User{ID: 1})
	c, clock := newTestController(t, dir)

	ch, _ := c.Subscribe()
	c.Close()

	c.OnInput("1")
	clock.Advance(delay)

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, dir.Calls())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestSnapshot_JSONPhase(t *testing.T) {
	data, err := utils.Marshal(Snapshot{Phase: PhaseFound, Sequence: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":"","phase":"found","sequence":3}`, string(data))
}
