package templates

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"predictor/clients/predictorapi"

	"github.com/a-h/templ"
)

func matchup(p predictorapi.Prediction) string {
	if p.Opponent == "" {
		return p.Team
	}
	return p.Team + " vs " + p.Opponent
}

// fragmentLink builds a dashboard fragment path. The id is path-escaped;
// templ escapes the attribute.
func fragmentLink(kind, id string) string {
	return "/fragments/" + kind + "/" + url.PathEscape(id)
}

// formatDate renders a YYYY-MM-DD or RFC3339 value as "Jan 2, 2006".
// Unparseable input is returned as-is.
func formatDate(s string) string {
	t, ok := parseDate(s)
	if !ok {
		return s
	}
	return t.Format("Jan 2, 2006")
}

// formatTime renders the clock time of an RFC3339 timestamp as "3:04 PM".
func formatTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return ""
	}
	return t.Format("3:04 PM")
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatStatName turns "points_rebounds" into "Points Rebounds".
func FormatStatName(stat string) string {
	words := strings.Fields(strings.ReplaceAll(stat, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func oneDecimal(f float64) string {
	return fmt.Sprintf("%.1f", f)
}

func wholePercent(f float64) string {
	return fmt.Sprintf("%.0f", f)
}

// barWidth is the inline width of a progress bar at pct percent.
func barWidth(pct float64) templ.SafeCSS {
	return templ.SafeCSS(fmt.Sprintf("width: %.1f%%;", pct))
}

func leanSide(p predictorapi.Prediction) string {
	if p.IsOver() {
		return "OVER"
	}
	return "UNDER"
}

func leanClass(p predictorapi.Prediction) string {
	if p.IsOver() {
		return "bg-success"
	}
	return "bg-danger"
}

// leanWidth is the probability of the side the model leans toward, in percent.
func leanWidth(p predictorapi.Prediction) float64 {
	if p.IsOver() {
		return p.OverProbability * 100
	}
	return (1 - p.OverProbability) * 100
}

func confidenceClass(c predictorapi.Confidence) string {
	switch c {
	case predictorapi.ConfidenceHigh:
		return "high-confidence"
	case predictorapi.ConfidenceMedium:
		return "medium-confidence"
	case predictorapi.ConfidenceLow:
		return "low-confidence"
	default:
		return ""
	}
}

func badgeClass(c predictorapi.Confidence) string {
	switch c {
	case predictorapi.ConfidenceHigh:
		return "bg-success"
	case predictorapi.ConfidenceMedium:
		return "bg-warning text-dark"
	case predictorapi.ConfidenceLow:
		return "bg-danger"
	default:
		return "bg-secondary"
	}
}

// progressBarClass picks a colour for a percentage in 0-100.
func progressBarClass(pct float64) string {
	switch {
	case pct >= 70:
		return "bg-success"
	case pct >= 50:
		return "bg-info"
	case pct >= 30:
		return "bg-warning"
	default:
		return "bg-danger"
	}
}

func toastHeaderClass(success bool) string {
	if success {
		return "bg-success text-white"
	}
	return "bg-danger text-white"
}

func toastTitle(success bool) string {
	if success {
		return "Success"
	}
	return "Error"
}

func venueOrTBD(venue string) string {
	if venue == "" {
		return "Venue TBD"
	}
	return venue
}

func overallStats(perf *predictorapi.Performance) predictorapi.AccuracyStats {
	return predictorapi.AccuracyStats{
		Accuracy: perf.OverallAccuracy,
		Correct:  perf.CorrectPredictions,
		Total:    perf.TotalPredictions,
	}
}

type gameDay struct {
	Date  string
	Games []predictorapi.Game
}

// groupGamesByDate buckets games by the date part of their scheduled time.
// Days come back in ascending order; games keep their input order.
func groupGamesByDate(games []predictorapi.Game) []gameDay {
	byDate := make(map[string][]predictorapi.Game)
	for _, g := range games {
		date, _, _ := strings.Cut(g.Scheduled, "T")
		byDate[date] = append(byDate[date], g)
	}

	days := make([]gameDay, 0, len(byDate))
	for _, date := range sortedKeys(byDate) {
		days = append(days, gameDay{Date: date, Games: byDate[date]})
	}
	return days
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
