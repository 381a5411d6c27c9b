package forecast

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"bakerypos/backend/internal/cache"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/metrics"
)

type SeriesSource interface {
	DailySeries(ctx context.Context) ([]domain.DailySales, error)
}

// Reporter wraps the Engine output with the history it was fitted on and caches
// the result per distinct series.
type Reporter struct {
	series   SeriesSource
	engine   *Engine
	cache    cache.ForecastCache
	cacheTTL time.Duration
	metrics  *metrics.Recorder
	now      func() time.Time
}

func NewReporter(series SeriesSource, engine *Engine, cacheStore cache.ForecastCache, cacheTTL time.Duration, recorder *metrics.Recorder) *Reporter {
	if engine == nil {
		engine = NewEngine()
	}
	if cacheStore == nil {
		cacheStore = cache.NoopForecastCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Reporter{
		series:   series,
		engine:   engine,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		metrics:  recorder,
		now:      time.Now,
	}
}

// Report returns the forecast for the current ledger; cached reports the cache status.
func (r *Reporter) Report(ctx context.Context) (report domain.ForecastReport, cached bool, err error) {
	series, err := r.series.DailySeries(ctx)
	if err != nil {
		r.metrics.ObserveForecast("error", false)
		return domain.ForecastReport{}, false, err
	}

	key := buildCacheKey(series)
	if hit, ok, cacheErr := r.cache.Get(ctx, key); cacheErr == nil && ok {
		r.metrics.ObserveForecast("ok", true)
		return *hit, true, nil
	}

	points, err := r.engine.Forecast(series)
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrInsufficientData) {
			result = "insufficient_data"
		}
		r.metrics.ObserveForecast(result, false)
		return domain.ForecastReport{}, false, err
	}

	report = domain.ForecastReport{
		History:     series,
		Predictions: points,
		GeneratedAt: r.now().UTC(),
	}
	_ = r.cache.Set(ctx, key, &report, r.cacheTTL)
	r.metrics.ObserveForecast("ok", false)
	return report, false, nil
}

func buildCacheKey(series []domain.DailySales) string {
	parts := make([]string, 0, len(series)+1)
	parts = append(parts, fmt.Sprintf("h:%d", Horizon))
	for _, day := range series {
		parts = append(parts, fmt.Sprintf("%s:%d", day.Date.Format(domain.DateLayout), day.TotalQuantity))
	}

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "pos:forecast:" + hex.EncodeToString(hash[:])
}
