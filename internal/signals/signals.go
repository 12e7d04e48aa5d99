// Package signals supplies the market-volatility inputs for freshness
// scoring: competitor activity counts and per-industry volatility
// coefficients.
package signals

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/marketlens-ai/marketlens/internal/store"
)

// Provider supplies the two activity signals consumed by the scorer.
type Provider interface {
	// CompetitorEvents counts competitor-tracking events detected for the
	// business since the given time.
	CompetitorEvents(ctx context.Context, businessID string, since time.Time) (int, error)
	// Volatility returns the industry volatility coefficient in [0, 1].
	Volatility(industry string) float64
}

// DefaultVolatility applies to industries missing from the table.
const DefaultVolatility = 0.5

// industryVolatility maps normalized industry names to how quickly market
// conditions shift. Higher values decay cached analyses faster.
var industryVolatility = map[string]float64{
	"technology":    0.9,
	"saas":          0.9,
	"ecommerce":     0.8,
	"retail":        0.8,
	"media":         0.8,
	"finance":       0.7,
	"marketing":     0.7,
	"hospitality":   0.6,
	"healthcare":    0.5,
	"education":     0.5,
	"manufacturing": 0.4,
	"construction":  0.4,
	"legal":         0.4,
}

// StoreSignals reads competitor events from the store and volatility from
// the static table.
type StoreSignals struct {
	store store.Store
}

func NewStoreSignals(s store.Store) *StoreSignals {
	return &StoreSignals{store: s}
}

func (s *StoreSignals) CompetitorEvents(ctx context.Context, businessID string, since time.Time) (int, error) {
	count, err := s.store.CountCompetitorEvents(ctx, businessID, since)
	if err != nil {
		return 0, eris.Wrapf(err, "signals: count competitor events for %s", businessID)
	}
	return count, nil
}

func (s *StoreSignals) Volatility(industry string) float64 {
	return LookupVolatility(industry)
}

// LookupVolatility resolves an industry name to its coefficient,
// case-insensitively.
func LookupVolatility(industry string) float64 {
	if v, ok := industryVolatility[strings.ToLower(strings.TrimSpace(industry))]; ok {
		return v
	}
	return DefaultVolatility
}

// Static is a fixed Provider used in tests.
type Static struct {
	Events      int
	EventsErr   error
	Coefficient float64
}

func (s Static) CompetitorEvents(context.Context, string, time.Time) (int, error) {
	return s.Events, s.EventsErr
}

func (s Static) Volatility(string) float64 { return s.Coefficient }
