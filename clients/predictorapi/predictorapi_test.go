package predictorapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"predictor/config"
	"testing"
	"time"
)

func newTestClient(baseURL string) *PredictorApiClient {
	cfg := &config.Config{
		PredictorAPI: config.PredictorAPIConfig{
			BaseURL: baseURL,
			Timeout: 5 * time.Second,
		},
	}
	return NewPredictorApiClient(nil, cfg)
}

func TestNewPredictorApiClient(t *testing.T) {
	cfg := &config.Config{
		PredictorAPI: config.PredictorAPIConfig{
			BaseURL: "https://predictor.example.com",
		},
	}

	client := NewPredictorApiClient(nil, cfg)

	if client.logger == nil {
		t.Error("expected logger to be set")
	}
	if client.baseURL != "https://predictor.example.com" {
		t.Errorf("unexpected base URL: %s", client.baseURL)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("expected default timeout, got: %v", client.httpClient.Timeout)
	}
}

func TestGetPredictions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/predictions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("unexpected accept header: %s", r.Header.Get("Accept"))
		}

		q := r.URL.Query()
		if q.Get("sport") != "nba" {
			t.Errorf("unexpected sport: %s", q.Get("sport"))
		}
		if q.Get("confidence") != "High" {
			t.Errorf("unexpected confidence: %s", q.Get("confidence"))
		}
		if _, ok := q["date_from"]; ok {
			t.Error("expected empty date_from to be omitted")
		}
		if _, ok := q["date_to"]; ok {
			t.Error("expected empty date_to to be omitted")
		}

		w.Write([]byte(`{
			"success": true,
			"predictions_count": 2,
			"predictions": [
				{"id": 1, "sport": "nba", "player_name": "A", "game_date": "2026-10-20", "over_probability": 0.8, "line": 20.5, "confidence": "High"},
				{"id": 2, "sport": "nba", "player_name": "B", "game_date": "2026-10-21", "over_probability": 0.3, "line": 5.5, "confidence": "High", "actual_value": 7}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	preds, err := client.GetPredictions(context.Background(), PredictionFilters{Sport: "nba", Confidence: ConfidenceHigh})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(preds))
	}
	if preds[0].Line != 20.5 {
		t.Errorf("unexpected line: %f", preds[0].Line)
	}
	if preds[0].ActualValue != nil {
		t.Error("expected nil actual value for unresolved prediction")
	}
	if preds[1].ActualValue == nil || *preds[1].ActualValue != 7 {
		t.Error("expected actual value 7 for resolved prediction")
	}
}

func TestGetPredictions_NoFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("expected no query params, got: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"predictions": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	preds, err := client.GetPredictions(context.Background(), PredictionFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 0 {
		t.Errorf("expected no predictions, got %d", len(preds))
	}
}

func TestGetUpcomingGames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upcoming_games" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("days_ahead") != "3" {
			t.Errorf("unexpected days_ahead: %s", r.URL.Query().Get("days_ahead"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"games": []Game{
				{ID: "g1", Sport: "nfl", HomeTeam: "Home", AwayTeam: "Away", Scheduled: "2026-10-20T18:00:00Z"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	games, err := client.GetUpcomingGames(context.Background(), GameFilters{DaysAhead: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(games) != 1 || games[0].HomeTeam != "Home" {
		t.Errorf("unexpected games: %+v", games)
	}
}

func TestGetPerformance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/performance" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("days") != "30" {
			t.Errorf("unexpected days: %s", r.URL.Query().Get("days"))
		}
		w.Write([]byte(`{
			"overall_accuracy": 61.5,
			"total_predictions": 200,
			"correct_predictions": 123,
			"confidence_breakdown": {"high": {"accuracy": 70, "correct": 70, "total": 100}},
			"sport_breakdown": {"nba": {"accuracy": 60, "correct": 60, "total": 100}}
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	perf, err := client.GetPerformance(context.Background(), PerformanceFilters{Days: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perf.OverallAccuracy != 61.5 {
		t.Errorf("unexpected accuracy: %f", perf.OverallAccuracy)
	}
	if perf.ConfidenceBreakdown.High.Total != 100 {
		t.Errorf("unexpected high total: %d", perf.ConfidenceBreakdown.High.Total)
	}
	if perf.SportBreakdown["nba"].Correct != 60 {
		t.Errorf("unexpected nba stats: %+v", perf.SportBreakdown["nba"])
	}
}

func TestPerformance_LegacySportAccuracyKey(t *testing.T) {
	var perf Performance
	data := []byte(`{"overall_accuracy": 50, "sport_accuracy": {"nhl": {"accuracy": 55, "correct": 11, "total": 20}}}`)
	if err := json.Unmarshal(data, &perf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perf.OverallAccuracy != 50 {
		t.Errorf("unexpected accuracy: %f", perf.OverallAccuracy)
	}
	if perf.SportBreakdown["nhl"].Total != 20 {
		t.Errorf("expected sport_accuracy to populate SportBreakdown, got: %+v", perf.SportBreakdown)
	}
}

func TestPerformance_Clone(t *testing.T) {
	perf := &Performance{
		OverallAccuracy: 60,
		SportBreakdown:  map[string]AccuracyStats{"nba": {Total: 10}},
	}

	clone := perf.Clone()
	clone.SportBreakdown["nba"] = AccuracyStats{Total: 99}

	if perf.SportBreakdown["nba"].Total != 10 {
		t.Error("clone shares sport breakdown map with original")
	}

	var nilPerf *Performance
	if nilPerf.Clone() != nil {
		t.Error("expected nil clone of nil snapshot")
	}
}

func TestGetSports(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sports" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`["nba", "nfl", "mlb"]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	sports, err := client.GetSports(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sports) != 3 || sports[1] != "nfl" {
		t.Errorf("unexpected sports: %v", sports)
	}
}

func TestBaseURLPathPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prefix/api/sports" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL + "/prefix/")

	if _, err := client.GetSports(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFetchError_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("server error"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetPredictions(context.Background(), PredictionFilters{})
	if err == nil {
		t.Fatal("expected error on server error")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.Resource != ResourcePredictions {
		t.Errorf("unexpected resource: %s", fetchErr.Resource)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("unexpected status: %d", fetchErr.StatusCode)
	}
	if fetchErr.Body != "server error" {
		t.Errorf("unexpected body: %s", fetchErr.Body)
	}
}

func TestFetchError_Transport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url)

	_, err := client.GetSports(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Errorf("expected no status for transport failure, got %d", fetchErr.StatusCode)
	}
	if fetchErr.Resource != ResourceSports {
		t.Errorf("unexpected resource: %s", fetchErr.Resource)
	}
}

func TestFetchError_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetUpcomingGames(context.Background(), GameFilters{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
}

func TestFetchError_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetSports(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got: %v", err)
	}
}

func TestPredictionDecisiveness(t *testing.T) {
	tests := []struct {
		prob float64
		want float64
		over bool
	}{
		{0.9, 0.4, true},
		{0.1, 0.4, false},
		{0.5, 0, false},
		{0.75, 0.25, true},
	}

	for _, tt := range tests {
		p := Prediction{OverProbability: tt.prob}
		if got := p.Decisiveness(); got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("Decisiveness(%v) = %v, want %v", tt.prob, got, tt.want)
		}
		if p.IsOver() != tt.over {
			t.Errorf("IsOver(%v) = %v, want %v", tt.prob, p.IsOver(), tt.over)
		}
	}
}
