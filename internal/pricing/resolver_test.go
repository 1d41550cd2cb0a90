package pricing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arenakiosk/internal/models"
)

type fakeGroups struct {
	groups map[string]*models.RateGroup
	err    error
	calls  int
}

func (f *fakeGroups) Get(_ context.Context, id string) (*models.RateGroup, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.groups[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return g, nil
}

type fakeWindows struct {
	windows []models.DiscountWindow
	err     error
	lastDay string
	calls   int
}

func (f *fakeWindows) ListActive(_ context.Context, groupID, weekday string) ([]models.DiscountWindow, error) {
	f.calls++
	f.lastDay = weekday
	if f.err != nil {
		return nil, f.err
	}
	var out []models.DiscountWindow
	for _, w := range f.windows {
		if w.GroupID == groupID && w.Day == weekday && w.Status == models.DiscountWindowActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }

// 2026-10-12 is a Monday.
var monday1430 = time.Date(2026, 10, 12, 14, 30, 0, 0, time.UTC)

func newTestResolver(groups *fakeGroups, windows *fakeWindows) *Resolver {
	return NewResolver(groups, windows, time.UTC, 0, zap.NewNop())
}

func standardGroups() *fakeGroups {
	return &fakeGroups{groups: map[string]*models.RateGroup{"g1": {ID: "g1", Price: 100}}}
}

func TestResolveWithoutDiscount(t *testing.T) {
	r := newTestResolver(standardGroups(), &fakeWindows{})

	for _, hours := range []float64{0.5, 1, 2, 3.25} {
		res := r.Resolve(context.Background(), "g1", hours, monday1430)
		assert.InDelta(t, 100*hours, res.BaseCost, 1e-9)
		assert.Equal(t, res.BaseCost, res.FinalCost)
		assert.False(t, res.DiscountApplied)
		assert.Zero(t, res.DiscountAmount)
	}
}

func TestResolvePercentageDiscount(t *testing.T) {
	windows := &fakeWindows{windows: []models.DiscountWindow{{
		ID: "w1", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday",
		StartTime: "14:00", EndTime: "16:00", DiscountPercentage: ptr(20),
	}}}
	r := newTestResolver(standardGroups(), windows)

	res := r.Resolve(context.Background(), "g1", 2, monday1430)
	assert.Equal(t, 200.0, res.BaseCost)
	assert.Equal(t, 40.0, res.DiscountAmount)
	assert.Equal(t, 160.0, res.FinalCost)
	assert.Equal(t, 20.0, res.DiscountRate)
	assert.True(t, res.DiscountApplied)
	assert.Equal(t, "Monday", windows.lastDay)
}

func TestResolveFixedRateDiscount(t *testing.T) {
	windows := &fakeWindows{windows: []models.DiscountWindow{{
		ID: "w1", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday",
		StartTime: "14:00", EndTime: "16:00", FixedRate: ptr(60),
	}}}
	r := newTestResolver(standardGroups(), windows)

	res := r.Resolve(context.Background(), "g1", 2, monday1430)
	assert.Equal(t, 200.0, res.BaseCost)
	assert.Equal(t, 120.0, res.FinalCost)
	assert.Equal(t, 80.0, res.DiscountAmount)
	assert.Equal(t, 40.0, res.DiscountRate)
	assert.True(t, res.DiscountApplied)
}

func TestResolveFirstMatchingWindowWins(t *testing.T) {
	windows := &fakeWindows{windows: []models.DiscountWindow{
		{ID: "early", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday", StartTime: "09:00", EndTime: "11:00", DiscountPercentage: ptr(50)},
		{ID: "first", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday", StartTime: "14:00", EndTime: "15:00", DiscountPercentage: ptr(10)},
		{ID: "second", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday", StartTime: "14:15", EndTime: "18:00", DiscountPercentage: ptr(30)},
	}}
	r := newTestResolver(standardGroups(), windows)

	res := r.Resolve(context.Background(), "g1", 1, monday1430)
	assert.Equal(t, "first", res.WindowID)
	assert.Equal(t, 90.0, res.FinalCost)
}

func TestResolveWindowBoundsAreInclusive(t *testing.T) {
	windows := &fakeWindows{windows: []models.DiscountWindow{{
		ID: "w1", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday",
		StartTime: "14:30", EndTime: "14:30", DiscountPercentage: ptr(10),
	}}}
	r := newTestResolver(standardGroups(), windows)

	assert.True(t, r.Resolve(context.Background(), "g1", 1, monday1430).DiscountApplied)
	assert.False(t, r.Resolve(context.Background(), "g1", 1, monday1430.Add(time.Minute)).DiscountApplied)
}

func TestResolveOtherWeekdayOrInactiveDoesNotApply(t *testing.T) {
	windows := &fakeWindows{windows: []models.DiscountWindow{
		{ID: "tue", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Tuesday", StartTime: "00:00", EndTime: "23:59", DiscountPercentage: ptr(50)},
		{ID: "off", GroupID: "g1", Status: models.DiscountWindowInactive, Day: "Monday", StartTime: "00:00", EndTime: "23:59", DiscountPercentage: ptr(50)},
	}}
	r := newTestResolver(standardGroups(), windows)

	res := r.Resolve(context.Background(), "g1", 1, monday1430)
	assert.False(t, res.DiscountApplied)
	assert.Equal(t, 100.0, res.FinalCost)
}

func TestResolveUsesVenueLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	windows := &fakeWindows{windows: []models.DiscountWindow{{
		ID: "w1", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday",
		StartTime: "19:00", EndTime: "21:00", DiscountPercentage: ptr(20),
	}}}
	r := NewResolver(standardGroups(), windows, loc, 0, zap.NewNop())

	// 14:30 UTC is 20:00 in IST.
	res := r.Resolve(context.Background(), "g1", 1, monday1430)
	assert.True(t, res.DiscountApplied)
}

func TestResolveInvalidDurationFallsBackToOneHour(t *testing.T) {
	r := newTestResolver(standardGroups(), &fakeWindows{})

	for _, hours := range []float64{0, -2, math.NaN(), math.Inf(1)} {
		res := r.Resolve(context.Background(), "g1", hours, monday1430)
		assert.Equal(t, 100.0, res.BaseCost)
	}
}

func TestResolveFailuresYieldZeroResult(t *testing.T) {
	groups := standardGroups()
	groups.groups["free"] = &models.RateGroup{ID: "free"}

	r := newTestResolver(groups, &fakeWindows{})
	assert.Equal(t, Result{}, r.Resolve(context.Background(), "", 1, monday1430))
	assert.Equal(t, Result{}, r.Resolve(context.Background(), "missing", 1, monday1430))
	assert.Equal(t, Result{}, r.Resolve(context.Background(), "free", 1, monday1430))

	groups.err = errors.New("store offline")
	assert.Equal(t, Result{}, r.Resolve(context.Background(), "g1", 1, monday1430))
}

func TestResolveWindowErrorKeepsBaseCost(t *testing.T) {
	r := newTestResolver(standardGroups(), &fakeWindows{err: errors.New("timeout")})

	res := r.Resolve(context.Background(), "g1", 2, monday1430)
	assert.Equal(t, 200.0, res.FinalCost)
	assert.False(t, res.DiscountApplied)
}

func TestResolveFixedRateAboveBaseStillApplies(t *testing.T) {
	windows := &fakeWindows{windows: []models.DiscountWindow{{
		ID: "w1", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday",
		StartTime: "14:00", EndTime: "16:00", FixedRate: ptr(150),
	}}}
	r := newTestResolver(standardGroups(), windows)

	res := r.Resolve(context.Background(), "g1", 1, monday1430)
	assert.True(t, res.DiscountApplied)
	assert.Equal(t, "w1", res.WindowID)
	assert.Equal(t, 100.0, res.BaseCost)
	assert.Equal(t, 150.0, res.FinalCost)
	assert.Equal(t, 0.0, res.DiscountAmount)
	assert.Equal(t, 0.0, res.DiscountRate)
}

func TestResolveFractionalDurationIsExact(t *testing.T) {
	r := newTestResolver(standardGroups(), &fakeWindows{})

	hours := 20.0 / 60
	res := r.Resolve(context.Background(), "g1", hours, monday1430)
	assert.InDelta(t, 100*hours, res.BaseCost, 1e-9)
	assert.InDelta(t, 100*hours, res.FinalCost, 1e-9)

	windows := &fakeWindows{windows: []models.DiscountWindow{{
		ID: "w1", GroupID: "g1", Status: models.DiscountWindowActive, Day: "Monday",
		StartTime: "14:00", EndTime: "16:00", DiscountPercentage: ptr(15),
	}}}
	res = newTestResolver(standardGroups(), windows).Resolve(context.Background(), "g1", hours, monday1430)
	assert.InDelta(t, 100*hours, res.BaseCost, 1e-9)
	assert.InDelta(t, 100*hours*0.15, res.DiscountAmount, 1e-9)
	assert.InDelta(t, res.BaseCost-res.DiscountAmount, res.FinalCost, 1e-9)
	assert.Equal(t, 15.0, res.DiscountRate)
}

func TestResolveCachesLookups(t *testing.T) {
	groups := standardGroups()
	windows := &fakeWindows{}
	r := NewResolver(groups, windows, time.UTC, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		r.Resolve(context.Background(), "g1", 1, monday1430)
	}
	require.Equal(t, 1, groups.calls)
	require.Equal(t, 1, windows.calls)
}
