package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"predictor/clients/predictorapi"
	"predictor/internal/app/templates"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	wsWriteWait = 10 * time.Second

	// Upcoming games shown when the caller does not ask for a window
	defaultDaysAhead = 3

	requestTimeout = 30 * time.Second
)

// DashboardConfig holds configuration for the dashboard server.
type DashboardConfig struct {
	Port           int
	AllowedOrigins []string
	PushInterval   time.Duration
}

// DashboardServer serves HTML fragments, chart data and a websocket stream of
// performance snapshots, all read through the data service.
type DashboardServer struct {
	logger   *zap.Logger
	data     *DataService
	stats    func() ServiceStats
	cfg      DashboardConfig
	upgrader websocket.Upgrader

	wsClients atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
}

// performanceSnapshot is pushed to websocket clients.
type performanceSnapshot struct {
	Type        string                    `json:"type"` // "performance" or "error"
	ClientID    string                    `json:"client_id"`
	Performance *predictorapi.Performance `json:"performance,omitempty"`
	Cache       []EntryStatus             `json:"cache"`
	Error       string                    `json:"error,omitempty"`
	SentAt      string                    `json:"sent_at"`
}

// NewDashboardServer creates a dashboard server. stats may be nil.
func NewDashboardServer(logger *zap.Logger, data *DataService, stats func() ServiceStats, cfg DashboardConfig) *DashboardServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &DashboardServer{
		logger: logger.Named("dashboard"),
		data:   data,
		stats:  stats,
		cfg:    cfg,
		done:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return s
}

// Routes builds the dashboard router.
func (s *DashboardServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Long-lived, so kept out of the request timeout
	r.Get("/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		r.Get("/", s.handleIndex)
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/fragments", func(r chi.Router) {
			r.Get("/featured", s.handleFeatured)
			r.Get("/upcoming", s.handleUpcoming)
			r.Get("/performance", s.handlePerformance)
			r.Get("/predictions", s.handlePredictions)
			r.Get("/high-confidence", s.handleHighConfidence)
			r.Get("/trending", s.handleTrending)
			r.Get("/by-player/{playerID}", s.handleByPlayer)
			r.Get("/by-game/{gameID}", s.handleByGame)
			r.Get("/by-sport/{sport}", s.handleBySport)
		})

		r.Route("/charts", func(r chi.Router) {
			r.Get("/performance", s.handleSportChart)
			r.Get("/confidence", s.handleConfidenceChart)
			r.Get("/player/{playerID}", s.handlePlayerChart)
			r.Get("/over-under", s.handleOverUnderChart)
			r.Get("/trending-stats", s.handleTrendingStatsChart)
		})

		r.Get("/api/predictions", s.handlePredictionsJSON)
		r.Post("/cache/clear", s.handleCacheClear)
	})

	return r
}

// Start listens on the configured port in the background.
func (s *DashboardServer) Start() {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard server error", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard server started", zap.Int("port", s.cfg.Port))
}

// Shutdown stops the server and ends websocket streams.
func (s *DashboardServer) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// WSClients returns the number of connected websocket clients.
func (s *DashboardServer) WSClients() int {
	return int(s.wsClients.Load())
}

// ---- Fragments ----

func (s *DashboardServer) handleFeatured(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.FeaturedPredictions(r.Context())
	s.serveFragment(w, r, err, "Error loading featured predictions. Please try again later.", func() templ.Component {
		return templates.FeaturedPredictions(preds)
	})
}

func (s *DashboardServer) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	filters := gameFiltersFromQuery(r.URL.Query())
	games, err := s.data.GetUpcomingGames(r.Context(), filters)
	s.serveFragment(w, r, err, "Error loading upcoming games. Please try again later.", func() templ.Component {
		return templates.UpcomingGames(games)
	})
}

func (s *DashboardServer) handlePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.data.GetPerformance(r.Context(), performanceFiltersFromQuery(r.URL.Query()))
	s.serveFragment(w, r, err, "Error loading performance metrics. Please try again later.", func() templ.Component {
		return templates.PerformanceMetrics(perf)
	})
}

func (s *DashboardServer) handlePredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.GetPredictions(r.Context(), predictionFiltersFromQuery(r.URL.Query()))
	s.serveFragment(w, r, err, "Error loading predictions. Please try again later.", func() templ.Component {
		return templates.PredictionTable(preds, "No predictions found matching your filters.")
	})
}

func (s *DashboardServer) handleHighConfidence(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.HighConfidencePredictions(r.Context())
	s.serveFragment(w, r, err, "Error loading high confidence predictions. Please try again later.", func() templ.Component {
		return templates.PredictionTable(preds, "No high confidence predictions available at this time.")
	})
}

func (s *DashboardServer) handleTrending(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.TrendingPredictions(r.Context())
	s.serveFragment(w, r, err, "Error loading trending predictions. Please try again later.", func() templ.Component {
		return templates.PredictionTable(preds, "No trending predictions available at this time.")
	})
}

func (s *DashboardServer) handleByPlayer(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.PlayerPredictions(r.Context(), chi.URLParam(r, "playerID"))
	s.serveFragment(w, r, err, "Error loading player predictions. Please try again later.", func() templ.Component {
		return templates.PredictionTable(preds, "No predictions found for this player.")
	})
}

func (s *DashboardServer) handleByGame(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.GamePredictions(r.Context(), chi.URLParam(r, "gameID"))
	s.serveFragment(w, r, err, "Error loading game predictions. Please try again later.", func() templ.Component {
		return templates.PredictionTable(preds, "No predictions found for this game.")
	})
}

func (s *DashboardServer) handleBySport(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.SportPredictions(r.Context(), chi.URLParam(r, "sport"))
	s.serveFragment(w, r, err, "Error loading sport predictions. Please try again later.", func() templ.Component {
		return templates.PredictionTable(preds, "No predictions found for this sport.")
	})
}

// serveFragment renders the component built by render, or the error banner
// with 502 when the data could not be fetched.
func (s *DashboardServer) serveFragment(w http.ResponseWriter, r *http.Request, err error, failMessage string, render func() templ.Component) {
	if err != nil {
		s.logger.Warn("fragment fetch failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		templ.Handler(templates.ErrorBanner(failMessage), templ.WithStatus(http.StatusBadGateway)).ServeHTTP(w, r)
		return
	}
	templ.Handler(render()).ServeHTTP(w, r)
}

// ---- Charts ----

func (s *DashboardServer) handleSportChart(w http.ResponseWriter, r *http.Request) {
	perf, err := s.data.GetPerformance(r.Context(), performanceFiltersFromQuery(r.URL.Query()))
	if err != nil {
		s.writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sportAccuracyChart(perf))
}

func (s *DashboardServer) handleConfidenceChart(w http.ResponseWriter, r *http.Request) {
	perf, err := s.data.GetPerformance(r.Context(), performanceFiltersFromQuery(r.URL.Query()))
	if err != nil {
		s.writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confidenceChart(perf))
}

func (s *DashboardServer) handlePlayerChart(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.PlayerPredictions(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playerPerformanceChart(preds))
}

func (s *DashboardServer) handleOverUnderChart(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.GetPredictions(r.Context(), predictionFiltersFromQuery(r.URL.Query()))
	if err != nil {
		s.writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overUnderChart(preds))
}

func (s *DashboardServer) handleTrendingStatsChart(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.TrendingPredictions(r.Context())
	if err != nil {
		s.writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trendingStatsChart(preds))
}

// ---- JSON and control ----

func (s *DashboardServer) handlePredictionsJSON(w http.ResponseWriter, r *http.Request) {
	preds, err := s.data.GetPredictions(r.Context(), predictionFiltersFromQuery(r.URL.Query()))
	if err != nil {
		s.writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": preds})
}

func (s *DashboardServer) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.data.Clear()
	toast := templates.Toast("toast-"+uuid.NewString(), "Cache cleared. Fresh data will be loaded on the next request.", true)
	templ.Handler(toast).ServeHTTP(w, r)
}

func (s *DashboardServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *DashboardServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"cache": s.data.Status()})
		return
	}
	writeJSON(w, http.StatusOK, s.stats())
}

func (s *DashboardServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(dashboardHTML))
}

func (s *DashboardServer) writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("fetch failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
}

// ---- Websocket ----

// handleWebSocket streams a performance snapshot on connect and every push
// interval until the client goes away or the server shuts down.
func (s *DashboardServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	logger := s.logger.With(zap.String("client_id", clientID))

	s.wsClients.Add(1)
	defer s.wsClients.Add(-1)
	logger.Info("websocket client connected")

	// Reads are drained so close frames are handled.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()

	ctx := r.Context()
	if err := s.pushSnapshot(ctx, conn, clientID); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			logger.Info("websocket client disconnected")
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pushSnapshot(ctx, conn, clientID); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *DashboardServer) pushSnapshot(ctx context.Context, conn *websocket.Conn, clientID string) error {
	snap := performanceSnapshot{
		Type:     "performance",
		ClientID: clientID,
	}

	perf, err := s.data.GetPerformance(ctx, predictorapi.PerformanceFilters{})
	if err != nil {
		snap.Type = "error"
		snap.Error = err.Error()
	} else {
		snap.Performance = perf
	}
	snap.Cache = s.data.Status()
	snap.SentAt = time.Now().UTC().Format(time.RFC3339)

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(snap)
}

// ---- Helpers ----

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func predictionFiltersFromQuery(q url.Values) predictorapi.PredictionFilters {
	return predictorapi.PredictionFilters{
		Sport:      strings.TrimSpace(q.Get("sport")),
		DateFrom:   strings.TrimSpace(q.Get("date_from")),
		DateTo:     strings.TrimSpace(q.Get("date_to")),
		Confidence: parseConfidence(q.Get("confidence")),
	}
}

func gameFiltersFromQuery(q url.Values) predictorapi.GameFilters {
	f := predictorapi.GameFilters{
		Sport:     strings.TrimSpace(q.Get("sport")),
		DaysAhead: defaultDaysAhead,
	}
	if n, ok := queryInt(q, "days_ahead"); ok {
		f.DaysAhead = n
	}
	return f
}

func performanceFiltersFromQuery(q url.Values) predictorapi.PerformanceFilters {
	f := predictorapi.PerformanceFilters{Sport: strings.TrimSpace(q.Get("sport"))}
	if n, ok := queryInt(q, "days"); ok {
		f.Days = n
	}
	return f
}

func queryInt(q url.Values, key string) (int, bool) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseConfidence accepts a tier name in any case.
func parseConfidence(s string) predictorapi.Confidence {
	for _, c := range []predictorapi.Confidence{
		predictorapi.ConfidenceHigh,
		predictorapi.ConfidenceMedium,
		predictorapi.ConfidenceLow,
	} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c
		}
	}
	return ""
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Predictor Dashboard</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css">
    <style>
        .high-confidence { border-left: 3px solid #198754; }
        .medium-confidence { border-left: 3px solid #ffc107; }
        .low-confidence { border-left: 3px solid #dc3545; }
        .status-dot { display: inline-block; width: 10px; height: 10px; border-radius: 50%; background: #dc3545; }
        .status-dot.connected { background: #198754; }
    </style>
</head>
<body class="container py-4">
    <div class="d-flex justify-content-between align-items-center mb-4">
        <h1 class="h3">Predictor Dashboard</h1>
        <div>
            <span id="wsDot" class="status-dot"></span> <span id="wsStatus">Connecting...</span>
            <button id="clearCache" class="btn btn-sm btn-outline-secondary ms-3">Clear cache</button>
        </div>
    </div>

    <h2 class="h5">Performance</h2>
    <div id="performance-metrics" data-src="/fragments/performance"></div>

    <h2 class="h5 mt-4">Featured Predictions</h2>
    <div id="featured-predictions" data-src="/fragments/featured"></div>

    <h2 class="h5 mt-4">Trending</h2>
    <div id="trending" data-src="/fragments/trending"></div>

    <h2 class="h5 mt-4">Upcoming Games</h2>
    <div id="upcoming-games" data-src="/fragments/upcoming"></div>

    <h2 class="h5 mt-4">Details</h2>
    <div id="details"><div class="alert alert-info">Select a player or game to see its predictions.</div></div>

    <div id="toast-container" class="toast-container position-fixed bottom-0 end-0 p-3"></div>

    <script>
        const spinner = '<div class="text-center"><div class="spinner-border" role="status"><span class="visually-hidden">Loading...</span></div></div>';

        async function load(el, src) {
            el.innerHTML = spinner;
            const resp = await fetch(src);
            el.innerHTML = await resp.text();
        }

        function loadAll() {
            document.querySelectorAll('[data-src]').forEach(el => load(el, el.dataset.src));
        }

        document.addEventListener('click', (e) => {
            const link = e.target.closest('a[data-fragment]');
            if (!link) return;
            e.preventDefault();
            const details = document.getElementById('details');
            load(details, link.getAttribute('href'));
            details.scrollIntoView({ behavior: 'smooth' });
        });

        document.getElementById('clearCache').addEventListener('click', async () => {
            const resp = await fetch('/cache/clear', { method: 'POST' });
            document.getElementById('toast-container').insertAdjacentHTML('beforeend', await resp.text());
            loadAll();
        });

        function connect() {
            const protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(protocol + '//' + window.location.host + '/ws');
            const dot = document.getElementById('wsDot');
            const status = document.getElementById('wsStatus');

            ws.onopen = () => {
                dot.className = 'status-dot connected';
                status.textContent = 'Live';
            };
            ws.onclose = () => {
                dot.className = 'status-dot';
                status.textContent = 'Reconnecting...';
                setTimeout(connect, 2000);
            };
            ws.onmessage = (e) => {
                const snap = JSON.parse(e.data);
                if (snap.type === 'performance') {
                    load(document.getElementById('performance-metrics'), '/fragments/performance');
                } else {
                    status.textContent = 'Backend unavailable';
                }
            };
        }

        loadAll();
        connect();
    </script>
</body>
</html>
`
