package app

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"predictor/clients/notifier"
	"predictor/clients/predictorapi"

	"go.uber.org/zap"
)

// TrendingSource supplies the picks sent in a digest.
type TrendingSource interface {
	TrendingPredictions(ctx context.Context) ([]predictorapi.Prediction, error)
}

// DigestConfig holds configuration for the trending digest.
type DigestConfig struct {
	Interval     time.Duration
	DashboardURL string
}

// DigestStats is a snapshot of digest activity.
type DigestStats struct {
	Enabled    bool   `json:"enabled"`
	Sent       int    `json:"sent"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	LastSentAt string `json:"last_sent_at,omitempty"`
}

// Digest periodically sends the trending picks to the notifiers. A digest is
// only sent when the set of picks differs from the last one sent.
type Digest struct {
	logger   *zap.Logger
	source   TrendingSource
	notifier notifier.Notifier
	cfg      DigestConfig
	now      func() time.Time

	mu         sync.Mutex
	lastKey    string
	sent       int
	skipped    int
	failed     int
	lastSentAt time.Time
}

// NewDigest creates a digest worker.
func NewDigest(logger *zap.Logger, source TrendingSource, n notifier.Notifier, cfg DigestConfig) *Digest {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Digest{
		logger:   logger.Named("digest"),
		source:   source,
		notifier: n,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run sends a digest immediately and then every interval until ctx is done.
func (d *Digest) Run(ctx context.Context) {
	d.logger.Info("digest started", zap.Duration("interval", d.cfg.Interval))

	if _, err := d.RunOnce(ctx); err != nil {
		d.logger.Warn("digest run failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("digest stopped")
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.logger.Warn("digest run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce computes the trending picks and sends them if they changed. It
// reports whether a digest was sent.
func (d *Digest) RunOnce(ctx context.Context) (bool, error) {
	preds, err := d.source.TrendingPredictions(ctx)
	if err != nil {
		d.mu.Lock()
		d.failed++
		d.mu.Unlock()
		return false, err
	}

	key := digestKey(preds)

	d.mu.Lock()
	if len(preds) == 0 || key == d.lastKey {
		d.skipped++
		d.mu.Unlock()
		d.logger.Debug("digest unchanged, skipping", zap.Int("picks", len(preds)))
		return false, nil
	}
	d.mu.Unlock()

	digest := notifier.PicksDigest{
		Title:        "🔥 Trending Picks",
		DashboardURL: d.cfg.DashboardURL,
		Picks:        make([]notifier.Pick, 0, len(preds)),
		Timestamp:    d.now(),
	}
	for _, p := range preds {
		digest.Picks = append(digest.Picks, toPick(p))
	}

	d.notifier.SendDigest(digest)

	d.mu.Lock()
	d.lastKey = key
	d.sent++
	d.lastSentAt = digest.Timestamp
	d.mu.Unlock()

	d.logger.Info("digest sent", zap.Int("picks", len(preds)))
	return true, nil
}

// Stats returns a snapshot of digest activity.
func (d *Digest) Stats() DigestStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := DigestStats{
		Enabled: true,
		Sent:    d.sent,
		Skipped: d.skipped,
		Failed:  d.failed,
	}
	if !d.lastSentAt.IsZero() {
		stats.LastSentAt = d.lastSentAt.UTC().Format(time.RFC3339)
	}
	return stats
}

// digestKey identifies a set of predictions independent of their order.
func digestKey(preds []predictorapi.Prediction) string {
	ids := make([]int, len(preds))
	for i, p := range preds {
		ids[i] = p.ID
	}
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func toPick(p predictorapi.Prediction) notifier.Pick {
	return notifier.Pick{
		PredictionID:    p.ID,
		PlayerName:      p.PlayerName,
		Team:            p.Team,
		Opponent:        p.Opponent,
		Sport:           p.Sport,
		GameDate:        p.GameDate,
		StatType:        p.StatType,
		Line:            p.Line,
		PredictedValue:  p.PredictedValue,
		OverProbability: p.OverProbability,
		Confidence:      string(p.Confidence),
	}
}
