package notifier

import (
	"time"
)

// Pick is a single prediction summarized for a digest.
type Pick struct {
	PredictionID    int
	PlayerName      string
	Team            string
	Opponent        string
	Sport           string
	GameDate        string // YYYY-MM-DD
	StatType        string
	Line            float64
	PredictedValue  float64
	OverProbability float64 // 0-1
	Confidence      string
}

// Side returns OVER when the model leans over the line, UNDER otherwise.
func (p Pick) Side() string {
	if p.OverProbability > 0.5 {
		return "OVER"
	}
	return "UNDER"
}

// SideProbability is the probability of the side the model leans toward.
func (p Pick) SideProbability() float64 {
	if p.OverProbability > 0.5 {
		return p.OverProbability
	}
	return 1 - p.OverProbability
}

// PicksDigest contains the data needed for a trending picks notification.
type PicksDigest struct {
	Title        string
	DashboardURL string // Optional link back to the dashboard
	Picks        []Pick
	Timestamp    time.Time
}

// Notifier is the interface for sending digests to various channels.
type Notifier interface {
	// SendDigest sends a picks digest notification.
	SendDigest(digest PicksDigest)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts digests to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendDigest sends the digest to all registered notifiers.
func (m *MultiNotifier) SendDigest(digest PicksDigest) {
	for _, n := range m.notifiers {
		n.SendDigest(digest)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
