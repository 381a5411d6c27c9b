// Package forecast projects near-term daily sales from the historical series.
package forecast

import (
	"fmt"
	"time"

	"bakerypos/backend/internal/domain"
)

const (
	// Horizon is the number of calendar days predicted after the last observed date.
	Horizon = 7
	// MinHistoryDays is the shortest series a forecast is attempted on.
	MinHistoryDays = 2
)

type Engine struct {
	newModel func() Regressor
}

type Option func(*Engine)

// WithModel replaces the regressor factory. A fresh model is built per forecast.
func WithModel(factory func() Regressor) Option {
	return func(e *Engine) {
		if factory != nil {
			e.newModel = factory
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{newModel: func() Regressor { return NewBaggedTrees() }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Forecast fits day-of-week to quantity over every day of series, zero-filled
// days included, and predicts the Horizon days following the last date.
func (e *Engine) Forecast(series []domain.DailySales) ([]domain.ForecastPoint, error) {
	days := distinctDays(series)
	if days < MinHistoryDays {
		return nil, &domain.InsufficientDataError{Days: days, Required: MinHistoryDays}
	}

	x := make([][]float64, len(series))
	y := make([]float64, len(series))
	last := series[0].Date
	for i, day := range series {
		x[i] = []float64{WeekdayFeature(day.Date)}
		y[i] = float64(day.TotalQuantity)
		if day.Date.After(last) {
			last = day.Date
		}
	}

	model := e.newModel()
	if err := model.Fit(x, y); err != nil {
		return nil, fmt.Errorf("fit forecast model: %w", err)
	}

	future := make([]time.Time, Horizon)
	features := make([][]float64, Horizon)
	for i := range future {
		future[i] = last.AddDate(0, 0, i+1)
		features[i] = []float64{WeekdayFeature(future[i])}
	}
	predicted, err := model.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("predict forecast: %w", err)
	}
	if len(predicted) != Horizon {
		return nil, fmt.Errorf("predict forecast: model returned %d values, want %d", len(predicted), Horizon)
	}

	points := make([]domain.ForecastPoint, Horizon)
	for i, date := range future {
		points[i] = domain.ForecastPoint{
			Date:              date,
			Weekday:           date.Weekday().String(),
			PredictedQuantity: predicted[i],
		}
	}
	return points, nil
}

// WeekdayFeature encodes the day of week with Monday as 0 and Sunday as 6.
func WeekdayFeature(t time.Time) float64 {
	return float64((int(t.Weekday()) + 6) % 7)
}

func distinctDays(series []domain.DailySales) int {
	seen := make(map[time.Time]struct{}, len(series))
	for _, day := range series {
		seen[day.Date] = struct{}{}
	}
	return len(seen)
}
