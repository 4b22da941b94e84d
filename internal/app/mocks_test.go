package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"predictor/clients/notifier"
	"predictor/clients/predictorapi"
)

// MockFetcher is a mock implementation of Fetcher for testing.
type MockFetcher struct {
	mu sync.Mutex

	predictions []predictorapi.Prediction
	games       []predictorapi.Game
	performance *predictorapi.Performance
	sports      []string
	err         error

	calls             map[predictorapi.Resource]int
	predictionFilters []predictorapi.PredictionFilters
	gameFilters       []predictorapi.GameFilters
}

// NewMockFetcher creates a new mock fetcher with empty payloads.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		calls: make(map[predictorapi.Resource]int),
	}
}

// SetError makes every subsequent call fail with err.
func (m *MockFetcher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPredictions replaces the predictions payload.
func (m *MockFetcher) SetPredictions(preds []predictorapi.Prediction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions = preds
}

// Calls returns how many times resource was requested.
func (m *MockFetcher) Calls(resource predictorapi.Resource) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[resource]
}

// LastPredictionFilters returns the filters of the most recent predictions call.
func (m *MockFetcher) LastPredictionFilters() predictorapi.PredictionFilters {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.predictionFilters) == 0 {
		return predictorapi.PredictionFilters{}
	}
	return m.predictionFilters[len(m.predictionFilters)-1]
}

func (m *MockFetcher) GetPredictions(ctx context.Context, filters predictorapi.PredictionFilters) ([]predictorapi.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[predictorapi.ResourcePredictions]++
	m.predictionFilters = append(m.predictionFilters, filters)
	if m.err != nil {
		return nil, &predictorapi.FetchError{Resource: predictorapi.ResourcePredictions, Err: m.err}
	}
	return append([]predictorapi.Prediction(nil), m.predictions...), nil
}

func (m *MockFetcher) GetUpcomingGames(ctx context.Context, filters predictorapi.GameFilters) ([]predictorapi.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[predictorapi.ResourceUpcomingGames]++
	m.gameFilters = append(m.gameFilters, filters)
	if m.err != nil {
		return nil, &predictorapi.FetchError{Resource: predictorapi.ResourceUpcomingGames, Err: m.err}
	}
	return append([]predictorapi.Game(nil), m.games...), nil
}

func (m *MockFetcher) GetPerformance(ctx context.Context, filters predictorapi.PerformanceFilters) (*predictorapi.Performance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[predictorapi.ResourcePerformance]++
	if m.err != nil {
		return nil, &predictorapi.FetchError{Resource: predictorapi.ResourcePerformance, Err: m.err}
	}
	if m.performance == nil {
		return &predictorapi.Performance{}, nil
	}
	return m.performance.Clone(), nil
}

func (m *MockFetcher) GetSports(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[predictorapi.ResourceSports]++
	if m.err != nil {
		return nil, &predictorapi.FetchError{Resource: predictorapi.ResourceSports, Err: m.err}
	}
	return append([]string(nil), m.sports...), nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// MockNotifier records digests for testing.
type MockNotifier struct {
	mu      sync.Mutex
	digests []notifier.PicksDigest
	closed  bool
}

func (m *MockNotifier) SendDigest(digest notifier.PicksDigest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digests = append(m.digests, digest)
}

func (m *MockNotifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockNotifier) Digests() []notifier.PicksDigest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifier.PicksDigest(nil), m.digests...)
}

// makePredictions builds n predictions for sport with distinct ids starting at startID.
func makePredictions(sport string, startID, n int) []predictorapi.Prediction {
	preds := make([]predictorapi.Prediction, 0, n)
	for i := 0; i < n; i++ {
		id := startID + i
		preds = append(preds, predictorapi.Prediction{
			ID:              id,
			Sport:           sport,
			PlayerID:        fmt.Sprintf("player-%d", id),
			PlayerName:      fmt.Sprintf("Player %d", id),
			Team:            "Home",
			Opponent:        "Away",
			GameID:          fmt.Sprintf("game-%d", id%3),
			GameDate:        "2026-10-20",
			StatType:        "points",
			Line:            20.5,
			PredictedValue:  22.0,
			OverProbability: 0.6,
			Confidence:      predictorapi.ConfidenceHigh,
		})
	}
	return preds
}
