package app

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	clts "predictor/clients"
	"predictor/clients/notifier"
	"predictor/config"

	"go.uber.org/zap"
)

// ensure Runner implements ConfigObserver
var _ config.ConfigObserver = (*Runner)(nil)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

const shutdownTimeout = 5 * time.Second

type Runner struct {
	clients    *clts.Clients
	liveConfig *config.LiveConfig
	logger     *zap.Logger
	data       *DataService
	digest     *Digest
	dashboard  *DashboardServer
	startTime  time.Time
}

// ServiceStats holds service statistics served on /stats.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	// Cache entries
	Cache []EntryStatus `json:"cache"`

	Digest DigestStats `json:"digest"`

	Dashboard struct {
		Enabled   bool `json:"enabled"`
		WSClients int  `json:"ws_clients"`
	} `json:"dashboard"`

	// Notification status
	Notifications struct {
		Channels         int    `json:"channels"` // notifiers the digest fans out to
		DiscordEnabled   bool   `json:"discord_enabled"`
		DiscordChannelID string `json:"discord_channel_id,omitempty"`
		TelegramEnabled  bool   `json:"telegram_enabled"`
		TelegramChatID   string `json:"telegram_chat_id,omitempty"`
	} `json:"notifications"`

	ConfigUpdatedAt string `json:"config_updated_at"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`  // bytes currently allocated on heap
		HeapInuse  uint64 `json:"heap_inuse"`  // bytes in in-use spans
		NumGC      uint32 `json:"num_gc"`      // number of completed GC cycles
		LastGC     string `json:"last_gc"`     // time of last GC
		NumCPU     int    `json:"num_cpu"`     // number of CPUs
		GOOS       string `json:"goos"`        // operating system
		GOARCH     string `json:"goarch"`      // architecture
	} `json:"runtime"`
}

func NewRunner(clients *clts.Clients, liveConfig *config.LiveConfig) *Runner {
	logger := clients.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := liveConfig.Get()

	return &Runner{
		clients:    clients,
		liveConfig: liveConfig,
		logger:     logger,
		data:       NewDataService(logger, clients.Predictor, cfg.Cache.Lifetime),
	}
}

// OnConfigUpdate applies a reloaded config. Only the cache lifetime takes
// effect without a restart.
// Implements config.ConfigObserver interface.
func (r *Runner) OnConfigUpdate(cfg *config.Config) {
	r.data.SetLifetime(cfg.Cache.Lifetime)
	r.logger.Info("config update applied",
		zap.Duration("cacheLifetime", cfg.Cache.Lifetime),
	)
}

// Run starts the dashboard and digest as configured and blocks until ctx is
// done, then shuts them down.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	cfg := r.liveConfig.Get()

	r.liveConfig.AddObserver(r)

	r.logger.Info("starting predictor",
		zap.String("backend", cfg.PredictorAPI.BaseURL),
		zap.Duration("cacheLifetime", cfg.Cache.Lifetime),
		zap.Bool("dashboard", cfg.Dashboard.Enabled),
		zap.Bool("digest", cfg.Digest.Enabled),
	)

	// Both are assigned before either starts so GetStats never races the setup.
	if cfg.Digest.Enabled {
		r.digest = NewDigest(r.logger, r.data, r.clients.Notifier, DigestConfig{
			Interval:     cfg.Digest.Interval,
			DashboardURL: cfg.Digest.DashboardURL,
		})
	}
	if cfg.Dashboard.Enabled {
		r.dashboard = NewDashboardServer(r.logger, r.data, r.GetStats, DashboardConfig{
			Port:           cfg.Dashboard.Port,
			AllowedOrigins: cfg.Dashboard.AllowedOrigins,
			PushInterval:   cfg.Dashboard.PushInterval,
		})
	}

	if r.dashboard != nil {
		r.dashboard.Start()
	}
	if r.digest != nil {
		go r.digest.Run(ctx)
	}

	<-ctx.Done()
	r.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if r.dashboard != nil {
		if err := r.dashboard.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("dashboard shutdown failed", zap.Error(err))
		}
	}
	if r.clients.Notifier != nil {
		if err := r.clients.Notifier.Close(); err != nil {
			r.logger.Warn("failed to close notifiers", zap.Error(err))
		}
	}

	return nil
}

// GetStats returns a snapshot of service statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats
	cfg := r.liveConfig.Get()

	// Build info
	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	// Service info
	if !r.startTime.IsZero() {
		stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
		uptime := time.Since(r.startTime)
		stats.Uptime = uptime.Round(time.Second).String()
		stats.UptimeSec = int64(uptime.Seconds())
	}

	stats.Cache = r.data.Status()

	if r.digest != nil {
		stats.Digest = r.digest.Stats()
	}

	if r.dashboard != nil {
		stats.Dashboard.Enabled = true
		stats.Dashboard.WSClients = r.dashboard.WSClients()
	}

	// Notification status
	switch n := r.clients.Notifier.(type) {
	case *notifier.MultiNotifier:
		stats.Notifications.Channels = n.Count()
	case nil:
	default:
		stats.Notifications.Channels = 1
	}
	stats.Notifications.DiscordEnabled = cfg.Discord.BotToken != ""
	stats.Notifications.TelegramEnabled = cfg.Telegram.BotToken != ""
	if cfg.IsProd {
		stats.Notifications.DiscordChannelID = cfg.Discord.ProdChannelID
		stats.Notifications.TelegramChatID = cfg.Telegram.ProdChatID
	} else {
		stats.Notifications.DiscordChannelID = cfg.Discord.BetaChannelID
		stats.Notifications.TelegramChatID = cfg.Telegram.BetaChatID
	}

	stats.ConfigUpdatedAt = r.liveConfig.LastUpdated().UTC().Format(time.RFC3339)

	// Runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.HeapInuse = memStats.HeapInuse
	stats.Runtime.NumGC = memStats.NumGC
	if memStats.LastGC > 0 {
		stats.Runtime.LastGC = time.Unix(0, int64(memStats.LastGC)).UTC().Format(time.RFC3339)
	}
	stats.Runtime.NumCPU = runtime.NumCPU()
	stats.Runtime.GOOS = runtime.GOOS
	stats.Runtime.GOARCH = runtime.GOARCH

	return stats
}
