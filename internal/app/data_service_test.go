package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"predictor/clients/predictorapi"

	"go.uber.org/zap"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestDataService(fetcher Fetcher) (*DataService, *fakeClock) {
	clock := newFakeClock(testNow)
	ds := NewDataService(zap.NewNop(), fetcher, 5*time.Minute)
	ds.SetClock(clock.Now)
	return ds, clock
}

func TestNewDataService_DefaultLifetime(t *testing.T) {
	ds := NewDataService(nil, NewMockFetcher(), 0)

	if ds.lifetime != DefaultCacheLifetime {
		t.Errorf("expected default lifetime, got %v", ds.lifetime)
	}
	if ds.logger == nil {
		t.Error("expected logger to be set")
	}
}

func TestGetPredictions_ColdCacheFetchesUnfiltered(t *testing.T) {
	fetcher := NewMockFetcher()
	all := append(makePredictions("nba", 1, 10), makePredictions("nfl", 11, 10)...)
	fetcher.SetPredictions(all)
	ds, _ := newTestDataService(fetcher)

	preds, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{Sport: "nba"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fetcher.Calls(predictorapi.ResourcePredictions) != 1 {
		t.Errorf("expected 1 network call, got %d", fetcher.Calls(predictorapi.ResourcePredictions))
	}
	if fetcher.LastPredictionFilters().Sport != "nba" {
		t.Errorf("expected sport filter to be sent, got %+v", fetcher.LastPredictionFilters())
	}
	// Fresh responses are returned as the backend sent them.
	if len(preds) != 20 {
		t.Errorf("expected unfiltered response of 20, got %d", len(preds))
	}
	if len(ds.predictions) != 20 {
		t.Errorf("expected full response cached, got %d", len(ds.predictions))
	}
	if !ds.IsValid(predictorapi.ResourcePredictions) {
		t.Error("expected cache to be valid after fetch")
	}
}

func TestGetPredictions_WarmCacheFiltersLocally(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetPredictions(append(makePredictions("nba", 1, 10), makePredictions("nfl", 11, 10)...))
	ds, clock := newTestDataService(fetcher)

	if _, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(4 * time.Minute)

	preds, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{Sport: "nba"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fetcher.Calls(predictorapi.ResourcePredictions) != 1 {
		t.Errorf("expected no further network call, got %d calls", fetcher.Calls(predictorapi.ResourcePredictions))
	}
	if len(preds) != 10 {
		t.Fatalf("expected 10 nba predictions, got %d", len(preds))
	}
	for _, p := range preds {
		if p.Sport != "nba" {
			t.Errorf("unexpected sport in result: %s", p.Sport)
		}
	}
}

func TestGetPredictions_ExpiredCacheRefetches(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetPredictions(makePredictions("nba", 1, 2))
	ds, clock := newTestDataService(fetcher)

	ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	clock.Advance(5 * time.Minute)

	if ds.IsValid(predictorapi.ResourcePredictions) {
		t.Error("expected cache to be invalid at exactly one lifetime")
	}

	ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	if fetcher.Calls(predictorapi.ResourcePredictions) != 2 {
		t.Errorf("expected refetch after expiry, got %d calls", fetcher.Calls(predictorapi.ResourcePredictions))
	}
}

func TestGetPredictions_FailureKeepsPriorEntry(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetPredictions(makePredictions("nba", 1, 3))
	ds, clock := newTestDataService(fetcher)

	ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	fetchedAt := ds.lastFetch[predictorapi.ResourcePredictions]

	clock.Advance(6 * time.Minute)
	fetcher.SetError(errors.New("connection refused"))

	_, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	if err == nil {
		t.Fatal("expected error")
	}

	var fetchErr *predictorapi.FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("expected FetchError to be surfaced, got %T", err)
	}
	if len(ds.predictions) != 3 {
		t.Errorf("expected prior entry to survive, got %d predictions", len(ds.predictions))
	}
	if !ds.lastFetch[predictorapi.ResourcePredictions].Equal(fetchedAt) {
		t.Error("expected prior fetch time to survive")
	}
}

func TestGetPredictions_FailureOnColdCache(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetError(errors.New("boom"))
	ds, _ := newTestDataService(fetcher)

	if _, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{}); err == nil {
		t.Fatal("expected error")
	}
	if ds.IsValid(predictorapi.ResourcePredictions) {
		t.Error("expected no cache entry after failed fetch")
	}
}

func TestGetPredictions_CallerCannotMutateCache(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetPredictions(makePredictions("nba", 1, 2))
	ds, _ := newTestDataService(fetcher)

	fresh, _ := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	fresh[0].Sport = "mutated"

	cached, _ := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	cached[1].Sport = "mutated"

	again, _ := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	for _, p := range again {
		if p.Sport != "nba" {
			t.Errorf("cache was mutated through a returned slice: %+v", p)
		}
	}
}

func TestSetLifetime(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetPredictions(makePredictions("nba", 1, 1))
	ds, clock := newTestDataService(fetcher)

	if _, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(3 * time.Minute)

	ds.SetLifetime(2 * time.Minute)
	if ds.IsValid(predictorapi.ResourcePredictions) {
		t.Error("expected shorter lifetime to expire the entry")
	}

	ds.SetLifetime(0)
	if ds.lifetime != 2*time.Minute {
		t.Errorf("expected non-positive lifetime to be ignored, got %v", ds.lifetime)
	}
}

func TestIsValid_NeverFetched(t *testing.T) {
	ds, _ := newTestDataService(NewMockFetcher())

	for _, r := range predictorapi.Resources {
		if ds.IsValid(r) {
			t.Errorf("expected %s to be invalid before any fetch", r)
		}
	}
}

func TestClear(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.sports = []string{"nba"}
	ds, _ := newTestDataService(fetcher)
	ctx := context.Background()

	ds.GetPredictions(ctx, predictorapi.PredictionFilters{})
	ds.GetUpcomingGames(ctx, predictorapi.GameFilters{})
	ds.GetPerformance(ctx, predictorapi.PerformanceFilters{})
	ds.GetSports(ctx)

	for _, r := range predictorapi.Resources {
		if !ds.IsValid(r) {
			t.Errorf("expected %s to be valid after fetch", r)
		}
	}

	ds.Clear()

	for _, r := range predictorapi.Resources {
		if ds.IsValid(r) {
			t.Errorf("expected %s to be invalid after clear", r)
		}
	}
	if ds.performance != nil || ds.sports != nil || ds.games != nil || ds.predictions != nil {
		t.Error("expected all payloads to be dropped")
	}

	ds.GetSports(ctx)
	if fetcher.Calls(predictorapi.ResourceSports) != 2 {
		t.Errorf("expected refetch after clear, got %d calls", fetcher.Calls(predictorapi.ResourceSports))
	}
}

func TestGetUpcomingGames_CacheHitFiltersBySportOnly(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.games = []predictorapi.Game{
		{ID: "1", Sport: "nba"},
		{ID: "2", Sport: "nfl"},
		{ID: "3", Sport: "nba"},
	}
	ds, _ := newTestDataService(fetcher)
	ctx := context.Background()

	ds.GetUpcomingGames(ctx, predictorapi.GameFilters{DaysAhead: 3})

	games, err := ds.GetUpcomingGames(ctx, predictorapi.GameFilters{Sport: "nba", DaysAhead: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(games) != 2 {
		t.Errorf("expected 2 nba games, got %d", len(games))
	}
	if fetcher.Calls(predictorapi.ResourceUpcomingGames) != 1 {
		t.Errorf("expected one network call, got %d", fetcher.Calls(predictorapi.ResourceUpcomingGames))
	}
}

func TestGetPerformance_CacheHitIgnoresFilters(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.performance = &predictorapi.Performance{
		OverallAccuracy: 64,
		SportBreakdown:  map[string]predictorapi.AccuracyStats{"nba": {Total: 10}},
	}
	ds, _ := newTestDataService(fetcher)
	ctx := context.Background()

	ds.GetPerformance(ctx, predictorapi.PerformanceFilters{})
	perf, err := ds.GetPerformance(ctx, predictorapi.PerformanceFilters{Sport: "nfl", Days: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if perf.OverallAccuracy != 64 || perf.SportBreakdown["nba"].Total != 10 {
		t.Errorf("expected stored payload unmodified, got %+v", perf)
	}
	if fetcher.Calls(predictorapi.ResourcePerformance) != 1 {
		t.Errorf("expected one network call, got %d", fetcher.Calls(predictorapi.ResourcePerformance))
	}

	perf.SportBreakdown["nba"] = predictorapi.AccuracyStats{Total: 0}
	again, _ := ds.GetPerformance(ctx, predictorapi.PerformanceFilters{})
	if again.SportBreakdown["nba"].Total != 10 {
		t.Error("cached snapshot was mutated through a returned value")
	}
}

func TestFilterPredictions(t *testing.T) {
	preds := []predictorapi.Prediction{
		{ID: 1, Sport: "nba", GameDate: "2026-10-18", Confidence: predictorapi.ConfidenceHigh},
		{ID: 2, Sport: "nba", GameDate: "2026-10-19", Confidence: predictorapi.ConfidenceLow},
		{ID: 3, Sport: "nfl", GameDate: "2026-10-20", Confidence: predictorapi.ConfidenceHigh},
		{ID: 4, Sport: "nba", GameDate: "2026-10-21", Confidence: predictorapi.ConfidenceHigh},
		{ID: 5, Sport: "nba", GameDate: "garbage", Confidence: predictorapi.ConfidenceHigh},
	}

	tests := []struct {
		name    string
		filters predictorapi.PredictionFilters
		want    []int
	}{
		{"no filters", predictorapi.PredictionFilters{}, []int{1, 2, 3, 4, 5}},
		{"sport", predictorapi.PredictionFilters{Sport: "nfl"}, []int{3}},
		{"date from inclusive", predictorapi.PredictionFilters{DateFrom: "2026-10-20"}, []int{3, 4, 5}},
		{"date to inclusive", predictorapi.PredictionFilters{DateTo: "2026-10-19"}, []int{1, 2, 5}},
		{"confidence", predictorapi.PredictionFilters{Confidence: predictorapi.ConfidenceLow}, []int{2}},
		{"all anded", predictorapi.PredictionFilters{
			Sport:      "nba",
			DateFrom:   "2026-10-19",
			DateTo:     "2026-10-21",
			Confidence: predictorapi.ConfidenceHigh,
		}, []int{4, 5}},
		{"unparseable bound ignored", predictorapi.PredictionFilters{DateFrom: "soon"}, []int{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterPredictions(preds, tt.filters)
			if len(got) != len(tt.want) {
				t.Fatalf("expected ids %v, got %d results", tt.want, len(got))
			}
			for i, p := range got {
				if p.ID != tt.want[i] {
					t.Errorf("result %d: expected id %d, got %d", i, tt.want[i], p.ID)
				}
			}

			again := filterPredictions(got, tt.filters)
			if len(again) != len(got) {
				t.Errorf("filter not idempotent: %d then %d", len(got), len(again))
			}
		})
	}

	if len(preds) != 5 || preds[0].ID != 1 {
		t.Error("filtering modified its input")
	}
}

func TestTrendingPredictions(t *testing.T) {
	fetcher := NewMockFetcher()
	probs := []float64{0.55, 0.95, 0.2, 0.6, 0.05, 0.7, 0.45, 0.8, 0.3, 0.65, 0.9, 0.1}
	preds := make([]predictorapi.Prediction, 0, len(probs))
	for i, p := range probs {
		preds = append(preds, predictorapi.Prediction{
			ID:              i + 1,
			Sport:           "nba",
			GameDate:        "2026-10-20",
			OverProbability: p,
			Confidence:      predictorapi.ConfidenceHigh,
		})
	}
	fetcher.SetPredictions(preds)
	ds, _ := newTestDataService(fetcher)

	trending, err := ds.TrendingPredictions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := fetcher.LastPredictionFilters()
	if f.Confidence != predictorapi.ConfidenceHigh {
		t.Errorf("expected High confidence filter, got %s", f.Confidence)
	}
	if f.DateFrom != "2026-10-19" || f.DateTo != "2026-10-22" {
		t.Errorf("unexpected date window: %s..%s", f.DateFrom, f.DateTo)
	}

	if len(trending) != 10 {
		t.Fatalf("expected 10 trending predictions, got %d", len(trending))
	}
	for i := 1; i < len(trending); i++ {
		if trending[i].Decisiveness() > trending[i-1].Decisiveness() {
			t.Errorf("not sorted at %d: %v after %v", i, trending[i].OverProbability, trending[i-1].OverProbability)
		}
	}
	leaders := map[int]bool{trending[0].ID: true, trending[1].ID: true}
	if !leaders[2] || !leaders[5] {
		t.Errorf("expected 0.95 and 0.05 to lead, got ids %d, %d", trending[0].ID, trending[1].ID)
	}
	last := trending[len(trending)-1].OverProbability
	if last == 0.55 || last == 0.45 {
		t.Errorf("least decisive predictions should be cut, got %v", last)
	}

	// Ranking must not reorder the cached payload.
	if ds.predictions[0].ID != 1 {
		t.Error("trending ranking reordered the cache")
	}
}

func TestTrendingPredictions_WarmCacheAppliesWindow(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetPredictions([]predictorapi.Prediction{
		{ID: 1, GameDate: "2026-10-18", OverProbability: 0.99, Confidence: predictorapi.ConfidenceHigh},
		{ID: 2, GameDate: "2026-10-20", OverProbability: 0.7, Confidence: predictorapi.ConfidenceHigh},
		{ID: 3, GameDate: "2026-10-21", OverProbability: 0.9, Confidence: predictorapi.ConfidenceLow},
		{ID: 4, GameDate: "2026-10-25", OverProbability: 0.9, Confidence: predictorapi.ConfidenceHigh},
	})
	ds, _ := newTestDataService(fetcher)
	ctx := context.Background()

	ds.GetPredictions(ctx, predictorapi.PredictionFilters{})

	trending, err := ds.TrendingPredictions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trending) != 1 || trending[0].ID != 2 {
		t.Errorf("expected only prediction 2, got %+v", trending)
	}
}

func TestPlayerAndGamePredictions(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetPredictions(makePredictions("nba", 1, 9))
	ds, _ := newTestDataService(fetcher)
	ctx := context.Background()

	byPlayer, err := ds.PlayerPredictions(ctx, "player-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byPlayer) != 1 || byPlayer[0].ID != 4 {
		t.Errorf("unexpected player predictions: %+v", byPlayer)
	}
	if (fetcher.LastPredictionFilters() != predictorapi.PredictionFilters{}) {
		t.Error("expected player lookup to fetch unfiltered predictions")
	}

	byGame, err := ds.GamePredictions(ctx, "game-0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// ids 3, 6, 9 map to game-0
	if len(byGame) != 3 {
		t.Errorf("expected 3 game predictions, got %d", len(byGame))
	}

	none, _ := ds.PlayerPredictions(ctx, "player-4x")
	if len(none) != 0 {
		t.Error("expected exact player id match")
	}
}

func TestSportAndHighConfidencePredictions(t *testing.T) {
	fetcher := NewMockFetcher()
	preds := append(makePredictions("nba", 1, 8), makePredictions("nfl", 9, 2)...)
	preds[0].Confidence = predictorapi.ConfidenceLow
	fetcher.SetPredictions(preds)
	ds, _ := newTestDataService(fetcher)
	ctx := context.Background()

	// Cold: sport filter is forwarded and response returned as-is.
	if _, err := ds.SportPredictions(ctx, "nfl"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.LastPredictionFilters().Sport != "nfl" {
		t.Error("expected sport filter to be sent")
	}

	nfl, _ := ds.SportPredictions(ctx, "nfl")
	if len(nfl) != 2 {
		t.Errorf("expected 2 nfl predictions from cache, got %d", len(nfl))
	}

	high, _ := ds.HighConfidencePredictions(ctx)
	if len(high) != 9 {
		t.Errorf("expected 9 high confidence predictions, got %d", len(high))
	}

	featured, _ := ds.FeaturedPredictions(ctx)
	if len(featured) != featuredLimit {
		t.Errorf("expected %d featured predictions, got %d", featuredLimit, len(featured))
	}
}

func TestDerivedQueries_PropagateErrors(t *testing.T) {
	fetcher := NewMockFetcher()
	fetcher.SetError(errors.New("down"))
	ds, _ := newTestDataService(fetcher)
	ctx := context.Background()

	if _, err := ds.HighConfidencePredictions(ctx); err == nil {
		t.Error("expected error from HighConfidencePredictions")
	}
	if _, err := ds.TrendingPredictions(ctx); err == nil {
		t.Error("expected error from TrendingPredictions")
	}
	if _, err := ds.PlayerPredictions(ctx, "p"); err == nil {
		t.Error("expected error from PlayerPredictions")
	}
	if _, err := ds.GamePredictions(ctx, "g"); err == nil {
		t.Error("expected error from GamePredictions")
	}
	if _, err := ds.SportPredictions(ctx, "nba"); err == nil {
		t.Error("expected error from SportPredictions")
	}
	if _, err := ds.FeaturedPredictions(ctx); err == nil {
		t.Error("expected error from FeaturedPredictions")
	}
}

func TestStatus(t *testing.T) {
	ds, clock := newTestDataService(NewMockFetcher())

	ds.GetSports(context.Background())
	clock.Advance(time.Minute)

	status := ds.Status()
	if len(status) != len(predictorapi.Resources) {
		t.Fatalf("expected %d entries, got %d", len(predictorapi.Resources), len(status))
	}
	for _, st := range status {
		if st.Resource == predictorapi.ResourceSports {
			if !st.Valid || st.FetchedAt != "2026-10-19T12:00:00Z" {
				t.Errorf("unexpected sports status: %+v", st)
			}
		} else if st.Valid || st.FetchedAt != "" {
			t.Errorf("expected %s to be empty, got %+v", st.Resource, st)
		}
	}
}

// gatedFetcher holds each predictions call until the test releases it, so
// several calls can be in flight at once.
type gatedFetcher struct {
	*MockFetcher
	arrived   chan int
	release   []chan struct{}
	responses [][]predictorapi.Prediction
	calls     atomic.Int32
}

func newGatedFetcher(responses ...[]predictorapi.Prediction) *gatedFetcher {
	g := &gatedFetcher{
		MockFetcher: NewMockFetcher(),
		arrived:     make(chan int, len(responses)),
		responses:   responses,
	}
	for range responses {
		g.release = append(g.release, make(chan struct{}))
	}
	return g
}

func (g *gatedFetcher) GetPredictions(ctx context.Context, filters predictorapi.PredictionFilters) ([]predictorapi.Prediction, error) {
	i := int(g.calls.Add(1)) - 1
	g.arrived <- i
	<-g.release[i]
	return g.responses[i], nil
}

func TestGetPredictions_ConcurrentMissesAreNotCoalesced(t *testing.T) {
	first := makePredictions("nba", 1, 1)
	second := makePredictions("nfl", 100, 2)
	fetcher := newGatedFetcher(first, second)
	ds, _ := newTestDataService(fetcher)

	results := make(chan []predictorapi.Prediction, 2)
	for i := 0; i < 2; i++ {
		go func() {
			preds, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results <- preds
		}()
	}

	// Both misses reach the backend before either is answered.
	for i := 0; i < 2; i++ {
		select {
		case <-fetcher.arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 2 backend calls in flight, got %d", fetcher.calls.Load())
		}
	}

	close(fetcher.release[0])
	if got := <-results; len(got) != 1 || got[0].Sport != "nba" {
		t.Fatalf("expected first caller to get the first response, got %+v", got)
	}

	close(fetcher.release[1])
	if got := <-results; len(got) != 2 || got[0].Sport != "nfl" {
		t.Fatalf("expected second caller to get the second response, got %+v", got)
	}

	if n := fetcher.calls.Load(); n != 2 {
		t.Errorf("expected 2 backend calls, got %d", n)
	}

	// The last response to arrive owns the entry.
	ds.mu.RLock()
	cached := ds.predictions
	ds.mu.RUnlock()
	if len(cached) != 2 || cached[0].Sport != "nfl" || cached[1].ID != 101 {
		t.Errorf("expected cache to hold the second response, got %+v", cached)
	}

	preds, err := ds.GetPredictions(context.Background(), predictorapi.PredictionFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 2 || fetcher.calls.Load() != 2 {
		t.Errorf("expected warm hit on the second response, got %d preds and %d calls", len(preds), fetcher.calls.Load())
	}
}
