package predictorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"predictor/config"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Resource names one of the read-only collections served by the backend.
type Resource string

const (
	ResourcePredictions   Resource = "predictions"
	ResourceUpcomingGames Resource = "upcoming_games"
	ResourcePerformance   Resource = "performance"
	ResourceSports        Resource = "sports"
)

// Resources lists every resource kind the backend serves.
var Resources = []Resource{
	ResourcePredictions,
	ResourceUpcomingGames,
	ResourcePerformance,
	ResourceSports,
}

// path returns the endpoint path for the resource.
func (r Resource) path() string {
	return "/api/" + string(r)
}

type PredictorApiClient struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

func NewPredictorApiClient(logger *zap.Logger, cfg *config.Config) *PredictorApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.PredictorAPI.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &PredictorApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.PredictorAPI.BaseURL,
	}
}

// ---- API types ----

// Confidence is the reliability bucket assigned upstream to a prediction.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Prediction is a single player prop prediction.
type Prediction struct {
	ID              int        `json:"id"`
	Sport           string     `json:"sport"`
	PlayerID        string     `json:"player_id"`
	PlayerName      string     `json:"player_name"`
	Team            string     `json:"team"`
	Opponent        string     `json:"opponent"`
	GameID          string     `json:"game_id"`
	GameDate        string     `json:"game_date"` // YYYY-MM-DD
	StatType        string     `json:"stat_type"`
	Line            float64    `json:"line"`
	PredictedValue  float64    `json:"predicted_value"`
	OverProbability float64    `json:"over_probability"` // 0-1
	Confidence      Confidence `json:"confidence"`
	TopFactors      string     `json:"top_factors,omitempty"`
	ActualValue     *float64   `json:"actual_value,omitempty"` // Set once the game completes
	CreatedAt       string     `json:"created_at,omitempty"`
}

// IsOver reports whether the model leans over the line.
func (p Prediction) IsOver() bool {
	return p.OverProbability > 0.5
}

// Decisiveness is the distance of the over probability from a coin flip.
func (p Prediction) Decisiveness() float64 {
	d := p.OverProbability - 0.5
	if d < 0 {
		return -d
	}
	return d
}

// Game is an upcoming scheduled game.
type Game struct {
	ID        string `json:"id"`
	Sport     string `json:"sport"`
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	Scheduled string `json:"scheduled"` // RFC3339
	Venue     string `json:"venue,omitempty"`
}

// AccuracyStats holds hit counts for a slice of resolved predictions.
type AccuracyStats struct {
	Accuracy float64 `json:"accuracy"` // Percentage, 0-100
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
}

// ConfidenceBreakdown splits accuracy by confidence tier.
type ConfidenceBreakdown struct {
	High   AccuracyStats `json:"high"`
	Medium AccuracyStats `json:"medium"`
	Low    AccuracyStats `json:"low"`
}

// Performance is a snapshot of prediction accuracy.
type Performance struct {
	OverallAccuracy     float64                  `json:"overall_accuracy"`
	TotalPredictions    int                      `json:"total_predictions"`
	CorrectPredictions  int                      `json:"correct_predictions"`
	ConfidenceBreakdown ConfidenceBreakdown      `json:"confidence_breakdown"`
	SportBreakdown      map[string]AccuracyStats `json:"sport_breakdown"`
}

// UnmarshalJSON accepts the per-sport map under either sport_breakdown or the
// older sport_accuracy key.
func (p *Performance) UnmarshalJSON(data []byte) error {
	type alias Performance
	aux := struct {
		*alias
		SportAccuracy map[string]AccuracyStats `json:"sport_accuracy"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.SportBreakdown == nil && aux.SportAccuracy != nil {
		p.SportBreakdown = aux.SportAccuracy
	}
	return nil
}

// Clone returns a deep copy of the snapshot.
func (p *Performance) Clone() *Performance {
	if p == nil {
		return nil
	}
	clone := *p
	if p.SportBreakdown != nil {
		clone.SportBreakdown = make(map[string]AccuracyStats, len(p.SportBreakdown))
		for k, v := range p.SportBreakdown {
			clone.SportBreakdown[k] = v
		}
	}
	return &clone
}

// ---- Filters ----

// PredictionFilters narrows the predictions collection. Empty fields are ignored.
type PredictionFilters struct {
	Sport      string
	DateFrom   string // YYYY-MM-DD, inclusive
	DateTo     string // YYYY-MM-DD, inclusive
	Confidence Confidence
}

// Query encodes the non-empty filters as request parameters.
func (f PredictionFilters) Query() url.Values {
	q := url.Values{}
	setIf(q, "sport", f.Sport)
	setIf(q, "date_from", f.DateFrom)
	setIf(q, "date_to", f.DateTo)
	setIf(q, "confidence", string(f.Confidence))
	return q
}

// GameFilters narrows the upcoming games collection.
type GameFilters struct {
	Sport     string
	DaysAhead int
}

// Query encodes the non-empty filters as request parameters.
func (f GameFilters) Query() url.Values {
	q := url.Values{}
	setIf(q, "sport", f.Sport)
	setIntIf(q, "days_ahead", f.DaysAhead)
	return q
}

// PerformanceFilters narrows the performance snapshot.
type PerformanceFilters struct {
	Sport string
	Days  int
}

// Query encodes the non-empty filters as request parameters.
func (f PerformanceFilters) Query() url.Values {
	q := url.Values{}
	setIf(q, "sport", f.Sport)
	setIntIf(q, "days", f.Days)
	return q
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setIntIf(q url.Values, key string, value int) {
	if value != 0 {
		q.Set(key, strconv.Itoa(value))
	}
}

// ---- Errors ----

// FetchError is returned when a resource request does not complete or the
// backend answers with a non-success status.
type FetchError struct {
	Resource   Resource
	StatusCode int    // Zero when no response was received
	Body       string // Response body for non-success statuses
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status=%d body=%s", e.Resource, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ---- Endpoints ----

type predictionsResponse struct {
	Predictions []Prediction `json:"predictions"`
}

type gamesResponse struct {
	Games []Game `json:"games"`
}

// GetPredictions fetches predictions matching the filters.
func (c *PredictorApiClient) GetPredictions(ctx context.Context, filters PredictionFilters) ([]Prediction, error) {
	var resp predictionsResponse
	if err := c.doGet(ctx, ResourcePredictions, filters.Query(), &resp); err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}

// GetUpcomingGames fetches scheduled games matching the filters.
func (c *PredictorApiClient) GetUpcomingGames(ctx context.Context, filters GameFilters) ([]Game, error) {
	var resp gamesResponse
	if err := c.doGet(ctx, ResourceUpcomingGames, filters.Query(), &resp); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// GetPerformance fetches the accuracy snapshot.
func (c *PredictorApiClient) GetPerformance(ctx context.Context, filters PerformanceFilters) (*Performance, error) {
	var perf Performance
	if err := c.doGet(ctx, ResourcePerformance, filters.Query(), &perf); err != nil {
		return nil, err
	}
	return &perf, nil
}

// GetSports fetches the list of sport codes that have predictions.
func (c *PredictorApiClient) GetSports(ctx context.Context) ([]string, error) {
	var sports []string
	if err := c.doGet(ctx, ResourceSports, nil, &sports); err != nil {
		return nil, err
	}
	return sports, nil
}

func (c *PredictorApiClient) doGet(ctx context.Context, resource Resource, query url.Values, dest any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return &FetchError{Resource: resource, Err: fmt.Errorf("invalid baseURL: %w", err)}
	}
	u.Path = strings.TrimRight(u.Path, "/") + resource.path()
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &FetchError{Resource: resource, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Resource: resource, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{Resource: resource, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode/100 != 2 {
		return &FetchError{
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return &FetchError{Resource: resource, Err: fmt.Errorf("decode json: %w", err)}
	}

	c.logger.Debug("fetched resource",
		zap.String("resource", string(resource)),
		zap.String("url", u.String()),
		zap.Int("bytes", len(body)),
	)

	return nil
}
