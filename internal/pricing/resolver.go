package pricing

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"arenakiosk/internal/models"
)

// ErrNoPrice is reported when a rate group has no usable hourly price.
var ErrNoPrice = errors.New("pricing: rate group has no price")

// GroupSource loads rate groups.
type GroupSource interface {
	Get(ctx context.Context, id string) (*models.RateGroup, error)
}

// WindowSource lists active discount windows of a group for one weekday in stable order.
type WindowSource interface {
	ListActive(ctx context.Context, groupID, weekday string) ([]models.DiscountWindow, error)
}

// Result is the priced outcome of a duration on a rate group.
type Result struct {
	BaseCost        float64 `json:"base_cost"`
	FinalCost       float64 `json:"final_cost"`
	DiscountAmount  float64 `json:"discount_amount"`
	DiscountRate    float64 `json:"discount_rate"`
	DiscountApplied bool    `json:"discount_applied"`
	WindowID        string  `json:"window_id,omitempty"`
}

// Resolver computes session cost with at most one happy-hour window applied.
type Resolver struct {
	groups   GroupSource
	windows  WindowSource
	location *time.Location
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewResolver builds a resolver. A positive cacheTTL keeps group and window lookups in memory.
func NewResolver(groups GroupSource, windows WindowSource, location *time.Location, cacheTTL time.Duration, logger *zap.Logger) *Resolver {
	if location == nil {
		location = time.Local
	}
	r := &Resolver{
		groups:   groups,
		windows:  windows,
		location: location,
		logger:   logger,
	}
	if cacheTTL > 0 {
		r.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return r
}

// Resolve prices hours on the group at now. It never fails: lookup problems yield the zero Result.
func (r *Resolver) Resolve(ctx context.Context, groupID string, hours float64, now time.Time) Result {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		r.logger.Warn("invalid duration, pricing one hour instead",
			zap.String("group_id", groupID),
			zap.Float64("hours", hours),
		)
		hours = 1
	}

	group, err := r.group(ctx, groupID)
	if err != nil {
		r.logger.Warn("rate group lookup failed, cost is zero", zap.String("group_id", groupID), zap.Error(err))
		return Result{}
	}
	if group.Price <= 0 || math.IsNaN(group.Price) || math.IsInf(group.Price, 0) {
		r.logger.Warn("rate group has no price, cost is zero", zap.String("group_id", groupID), zap.Error(ErrNoPrice))
		return Result{}
	}

	base := group.Price * hours
	result := Result{BaseCost: base, FinalCost: base}

	local := now.In(r.location)
	weekday := local.Weekday().String()
	clock := local.Format("15:04")

	windows, err := r.activeWindows(ctx, groupID, weekday)
	if err != nil {
		r.logger.Warn("discount window lookup failed, pricing without discount",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		return result
	}

	for _, w := range windows {
		if !w.Covers(clock) {
			continue
		}
		return r.apply(result, base, hours, w)
	}
	return result
}

func (r *Resolver) apply(result Result, base, hours float64, w models.DiscountWindow) Result {
	switch {
	case w.DiscountPercentage != nil:
		pct := clamp(*w.DiscountPercentage, 0, 100)
		discount := base * pct / 100
		result.DiscountAmount = discount
		result.FinalCost = base - discount
		result.DiscountRate = pct
	case w.FixedRate != nil:
		// A fixed rate above the hourly price still applies; the discount then floors at zero.
		final := math.Max(0, *w.FixedRate) * hours
		discount := math.Max(0, base-final)
		result.FinalCost = final
		result.DiscountAmount = discount
		if base > 0 {
			result.DiscountRate = discount / base * 100
		}
	default:
		return result
	}
	result.DiscountApplied = true
	result.WindowID = w.ID
	r.logger.Debug("discount window applied",
		zap.String("window_id", w.ID),
		zap.Float64("base_cost", result.BaseCost),
		zap.Float64("final_cost", result.FinalCost),
	)
	return result
}

func (r *Resolver) group(ctx context.Context, id string) (*models.RateGroup, error) {
	if id == "" {
		return nil, errors.New("pricing: device has no rate group")
	}
	key := "group:" + id
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*models.RateGroup), nil
		}
	}
	g, err := r.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetDefault(key, g)
	}
	return g, nil
}

func (r *Resolver) activeWindows(ctx context.Context, groupID, weekday string) ([]models.DiscountWindow, error) {
	key := "windows:" + groupID + ":" + weekday
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.([]models.DiscountWindow), nil
		}
	}
	windows, err := r.windows.ListActive(ctx, groupID, weekday)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetDefault(key, windows)
	}
	return windows, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
