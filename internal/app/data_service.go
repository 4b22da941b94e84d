package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"predictor/clients/predictorapi"

	"go.uber.org/zap"
)

const (
	// DefaultCacheLifetime is how long a fetched resource is served from memory.
	DefaultCacheLifetime = 5 * time.Minute

	trendingLimit  = 10
	trendingWindow = 3 * 24 * time.Hour
	featuredLimit  = 6

	isoDate = "2006-01-02"
)

// Fetcher is the backend transport read by the data service.
type Fetcher interface {
	GetPredictions(ctx context.Context, filters predictorapi.PredictionFilters) ([]predictorapi.Prediction, error)
	GetUpcomingGames(ctx context.Context, filters predictorapi.GameFilters) ([]predictorapi.Game, error)
	GetPerformance(ctx context.Context, filters predictorapi.PerformanceFilters) (*predictorapi.Performance, error)
	GetSports(ctx context.Context) ([]string, error)
}

// EntryStatus describes one cache entry.
type EntryStatus struct {
	Resource  predictorapi.Resource `json:"resource"`
	Valid     bool                  `json:"valid"`
	FetchedAt string                `json:"fetched_at,omitempty"`
}

// DataService serves the four backend resources through a short-lived
// in-memory cache. Each entry holds one complete payload and the time it was
// fetched; it is replaced only by a successful fetch and dropped only by Clear.
//
// Concurrent misses for the same resource are not coalesced: each one queries
// the backend and the last response to arrive wins.
type DataService struct {
	logger   *zap.Logger
	fetcher  Fetcher
	lifetime time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	predictions []predictorapi.Prediction
	games       []predictorapi.Game
	performance *predictorapi.Performance
	sports      []string
	lastFetch   map[predictorapi.Resource]time.Time
}

// NewDataService creates a data service reading through fetcher.
// A non-positive lifetime falls back to DefaultCacheLifetime.
func NewDataService(logger *zap.Logger, fetcher Fetcher, lifetime time.Duration) *DataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lifetime <= 0 {
		lifetime = DefaultCacheLifetime
	}

	return &DataService{
		logger:    logger.Named("data-service"),
		fetcher:   fetcher,
		lifetime:  lifetime,
		now:       time.Now,
		lastFetch: make(map[predictorapi.Resource]time.Time),
	}
}

// SetClock replaces the time source (useful for testing).
func (s *DataService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetLifetime changes the lifetime applied to existing and future entries.
// Non-positive values are ignored.
func (s *DataService) SetLifetime(lifetime time.Duration) {
	if lifetime <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifetime = lifetime
}

// IsValid reports whether the entry for resource was fetched less than one
// lifetime ago.
func (s *DataService) IsValid(resource predictorapi.Resource) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isValidLocked(resource)
}

func (s *DataService) isValidLocked(resource predictorapi.Resource) bool {
	fetched, ok := s.lastFetch[resource]
	if !ok {
		return false
	}
	return s.now().Sub(fetched) < s.lifetime
}

// Clear drops every cache entry and its fetch time.
func (s *DataService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.predictions = nil
	s.games = nil
	s.performance = nil
	s.sports = nil
	s.lastFetch = make(map[predictorapi.Resource]time.Time)

	s.logger.Info("cache cleared")
}

// Status reports the state of every cache entry.
func (s *DataService) Status() []EntryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EntryStatus, 0, len(predictorapi.Resources))
	for _, r := range predictorapi.Resources {
		st := EntryStatus{Resource: r, Valid: s.isValidLocked(r)}
		if fetched, ok := s.lastFetch[r]; ok {
			st.FetchedAt = fetched.UTC().Format(time.RFC3339)
		}
		out = append(out, st)
	}
	return out
}

// GetPredictions returns predictions. A valid cache entry is filtered locally
// and returned without a network call. Otherwise the backend is queried with
// the filters, the whole response replaces the entry, and the response is
// returned as the backend sent it.
func (s *DataService) GetPredictions(
	ctx context.Context,
	filters predictorapi.PredictionFilters,
) ([]predictorapi.Prediction, error) {
	s.mu.RLock()
	if s.isValidLocked(predictorapi.ResourcePredictions) {
		out := filterPredictions(s.predictions, filters)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	preds, err := s.fetcher.GetPredictions(ctx, filters)
	if err != nil {
		s.logFetchError(predictorapi.ResourcePredictions, err)
		return nil, err
	}

	s.mu.Lock()
	s.predictions = append([]predictorapi.Prediction(nil), preds...)
	s.lastFetch[predictorapi.ResourcePredictions] = s.now()
	s.mu.Unlock()

	return preds, nil
}

// GetUpcomingGames returns scheduled games. Cache hits are filtered by sport
// only; other filters are sent to the backend on a miss.
func (s *DataService) GetUpcomingGames(
	ctx context.Context,
	filters predictorapi.GameFilters,
) ([]predictorapi.Game, error) {
	s.mu.RLock()
	if s.isValidLocked(predictorapi.ResourceUpcomingGames) {
		out := filterGames(s.games, filters)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	games, err := s.fetcher.GetUpcomingGames(ctx, filters)
	if err != nil {
		s.logFetchError(predictorapi.ResourceUpcomingGames, err)
		return nil, err
	}

	s.mu.Lock()
	s.games = append([]predictorapi.Game(nil), games...)
	s.lastFetch[predictorapi.ResourceUpcomingGames] = s.now()
	s.mu.Unlock()

	return games, nil
}

// GetPerformance returns the accuracy snapshot. Cache hits ignore filters.
func (s *DataService) GetPerformance(
	ctx context.Context,
	filters predictorapi.PerformanceFilters,
) (*predictorapi.Performance, error) {
	s.mu.RLock()
	if s.isValidLocked(predictorapi.ResourcePerformance) {
		out := s.performance.Clone()
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	perf, err := s.fetcher.GetPerformance(ctx, filters)
	if err != nil {
		s.logFetchError(predictorapi.ResourcePerformance, err)
		return nil, err
	}

	s.mu.Lock()
	s.performance = perf.Clone()
	s.lastFetch[predictorapi.ResourcePerformance] = s.now()
	s.mu.Unlock()

	return perf, nil
}

// GetSports returns the list of sport codes.
func (s *DataService) GetSports(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	if s.isValidLocked(predictorapi.ResourceSports) {
		out := append([]string(nil), s.sports...)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	sports, err := s.fetcher.GetSports(ctx)
	if err != nil {
		s.logFetchError(predictorapi.ResourceSports, err)
		return nil, err
	}

	s.mu.Lock()
	s.sports = append([]string(nil), sports...)
	s.lastFetch[predictorapi.ResourceSports] = s.now()
	s.mu.Unlock()

	return sports, nil
}

// HighConfidencePredictions returns predictions in the High tier.
func (s *DataService) HighConfidencePredictions(ctx context.Context) ([]predictorapi.Prediction, error) {
	preds, err := s.GetPredictions(ctx, predictorapi.PredictionFilters{
		Confidence: predictorapi.ConfidenceHigh,
	})
	if err != nil {
		s.logger.Error("failed to fetch high confidence predictions", zap.Error(err))
		return nil, err
	}
	return preds, nil
}

// FeaturedPredictions returns the first few high confidence predictions.
func (s *DataService) FeaturedPredictions(ctx context.Context) ([]predictorapi.Prediction, error) {
	preds, err := s.HighConfidencePredictions(ctx)
	if err != nil {
		return nil, err
	}
	if len(preds) > featuredLimit {
		preds = preds[:featuredLimit]
	}
	return preds, nil
}

// TrendingPredictions returns up to ten High tier predictions for games in the
// next three days, most decisive first.
func (s *DataService) TrendingPredictions(ctx context.Context) ([]predictorapi.Prediction, error) {
	s.mu.RLock()
	now := s.now()
	s.mu.RUnlock()

	preds, err := s.GetPredictions(ctx, predictorapi.PredictionFilters{
		Confidence: predictorapi.ConfidenceHigh,
		DateFrom:   now.UTC().Format(isoDate),
		DateTo:     now.Add(trendingWindow).UTC().Format(isoDate),
	})
	if err != nil {
		s.logger.Error("failed to fetch trending predictions", zap.Error(err))
		return nil, err
	}

	return rankByDecisiveness(preds, trendingLimit), nil
}

// PlayerPredictions returns every prediction for the player.
func (s *DataService) PlayerPredictions(ctx context.Context, playerID string) ([]predictorapi.Prediction, error) {
	preds, err := s.GetPredictions(ctx, predictorapi.PredictionFilters{})
	if err != nil {
		s.logger.Error("failed to fetch player predictions",
			zap.String("player_id", playerID),
			zap.Error(err),
		)
		return nil, err
	}
	return selectPredictions(preds, func(p predictorapi.Prediction) bool {
		return p.PlayerID == playerID
	}), nil
}

// GamePredictions returns every prediction for the game.
func (s *DataService) GamePredictions(ctx context.Context, gameID string) ([]predictorapi.Prediction, error) {
	preds, err := s.GetPredictions(ctx, predictorapi.PredictionFilters{})
	if err != nil {
		s.logger.Error("failed to fetch game predictions",
			zap.String("game_id", gameID),
			zap.Error(err),
		)
		return nil, err
	}
	return selectPredictions(preds, func(p predictorapi.Prediction) bool {
		return p.GameID == gameID
	}), nil
}

// SportPredictions returns predictions for one sport.
func (s *DataService) SportPredictions(ctx context.Context, sport string) ([]predictorapi.Prediction, error) {
	preds, err := s.GetPredictions(ctx, predictorapi.PredictionFilters{Sport: sport})
	if err != nil {
		s.logger.Error("failed to fetch sport predictions",
			zap.String("sport", sport),
			zap.Error(err),
		)
		return nil, err
	}
	return preds, nil
}

func (s *DataService) logFetchError(resource predictorapi.Resource, err error) {
	s.logger.Error("failed to fetch resource",
		zap.String("kind", string(resource)),
		zap.Error(err),
	)
}

// filterPredictions returns the predictions matching every set filter. The
// input slice is never modified.
func filterPredictions(preds []predictorapi.Prediction, f predictorapi.PredictionFilters) []predictorapi.Prediction {
	from, hasFrom := parseDate(f.DateFrom)
	to, hasTo := parseDate(f.DateTo)

	return selectPredictions(preds, func(p predictorapi.Prediction) bool {
		if f.Sport != "" && p.Sport != f.Sport {
			return false
		}
		if hasFrom || hasTo {
			// Unparseable game dates never compare, so they are kept.
			if d, ok := parseDate(p.GameDate); ok {
				if hasFrom && d.Before(from) {
					return false
				}
				if hasTo && d.After(to) {
					return false
				}
			}
		}
		if f.Confidence != "" && p.Confidence != f.Confidence {
			return false
		}
		return true
	})
}

func filterGames(games []predictorapi.Game, f predictorapi.GameFilters) []predictorapi.Game {
	out := make([]predictorapi.Game, 0, len(games))
	for _, g := range games {
		if f.Sport != "" && g.Sport != f.Sport {
			continue
		}
		out = append(out, g)
	}
	return out
}

func selectPredictions(preds []predictorapi.Prediction, keep func(predictorapi.Prediction) bool) []predictorapi.Prediction {
	out := make([]predictorapi.Prediction, 0, len(preds))
	for _, p := range preds {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// rankByDecisiveness returns a sorted copy, furthest from 0.5 first, keeping
// the incoming order for ties.
func rankByDecisiveness(preds []predictorapi.Prediction, limit int) []predictorapi.Prediction {
	ranked := append([]predictorapi.Prediction(nil), preds...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Decisiveness() > ranked[j].Decisiveness()
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// parseDate accepts a bare date or a full timestamp.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{isoDate, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
