package app

import (
	"fmt"
	"sort"
	"strings"

	"predictor/clients/predictorapi"
	"predictor/internal/app/templates"
)

// ChartData is a Chart.js data object.
type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

// ChartDataset is one Chart.js series. A nil entry in Data is drawn as a gap.
type ChartDataset struct {
	Label           string     `json:"label"`
	Data            []*float64 `json:"data"`
	BackgroundColor any        `json:"backgroundColor,omitempty"` // string or []string
	BorderColor     any        `json:"borderColor,omitempty"`
	BorderWidth     int        `json:"borderWidth,omitempty"`
	BorderDash      []int      `json:"borderDash,omitempty"`
	Fill            *bool      `json:"fill,omitempty"`
}

type rgb struct{ r, g, b int }

func (c rgb) alpha(a string) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.r, c.g, c.b, a)
}

var (
	blue   = rgb{54, 162, 235}
	teal   = rgb{75, 192, 192}
	red    = rgb{255, 99, 132}
	yellow = rgb{255, 206, 86}
	purple = rgb{153, 102, 255}

	chartPalette = []rgb{blue, teal, red, yellow, purple}
)

// sportAccuracyChart builds a bar chart of accuracy per sport. Sports are
// upper-cased and sorted.
func sportAccuracyChart(perf *predictorapi.Performance) ChartData {
	chart := ChartData{Labels: []string{}, Datasets: []ChartDataset{}}
	if perf == nil {
		return chart
	}

	sports := sortedKeys(perf.SportBreakdown)
	data := make([]*float64, 0, len(sports))
	for _, sport := range sports {
		chart.Labels = append(chart.Labels, strings.ToUpper(sport))
		data = append(data, floatPtr(perf.SportBreakdown[sport].Accuracy))
	}

	bg, border := paletteColors(len(sports))
	chart.Datasets = append(chart.Datasets, ChartDataset{
		Label:           "Accuracy (%)",
		Data:            data,
		BackgroundColor: bg,
		BorderColor:     border,
		BorderWidth:     1,
	})
	return chart
}

// confidenceChart builds a bar chart of accuracy per confidence tier.
func confidenceChart(perf *predictorapi.Performance) ChartData {
	chart := ChartData{
		Labels:   []string{"High", "Medium", "Low"},
		Datasets: []ChartDataset{},
	}
	if perf == nil {
		return chart
	}

	b := perf.ConfidenceBreakdown
	colors := []rgb{teal, yellow, red}
	bg := make([]string, len(colors))
	border := make([]string, len(colors))
	for i, c := range colors {
		bg[i], border[i] = c.alpha("0.7"), c.alpha("1")
	}

	chart.Datasets = append(chart.Datasets, ChartDataset{
		Label:           "Accuracy (%)",
		Data:            []*float64{floatPtr(b.High.Accuracy), floatPtr(b.Medium.Accuracy), floatPtr(b.Low.Accuracy)},
		BackgroundColor: bg,
		BorderColor:     border,
		BorderWidth:     1,
	})
	return chart
}

// playerPerformanceChart builds a line chart of a player's predictions in
// game date order: actual result, predicted value and the line.
func playerPerformanceChart(preds []predictorapi.Prediction) ChartData {
	sorted := append([]predictorapi.Prediction(nil), preds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, okI := parseDate(sorted[i].GameDate)
		dj, okJ := parseDate(sorted[j].GameDate)
		if okI != okJ {
			return okI
		}
		return di.Before(dj)
	})

	labels := make([]string, 0, len(sorted))
	actual := make([]*float64, 0, len(sorted))
	predicted := make([]*float64, 0, len(sorted))
	line := make([]*float64, 0, len(sorted))
	for _, p := range sorted {
		label := p.GameDate
		if d, ok := parseDate(p.GameDate); ok {
			label = d.Format("Jan 2")
		}
		labels = append(labels, label)

		var a *float64
		if p.ActualValue != nil {
			a = floatPtr(*p.ActualValue)
		}
		actual = append(actual, a)
		predicted = append(predicted, floatPtr(p.PredictedValue))
		line = append(line, floatPtr(p.Line))
	}

	noFill := false
	return ChartData{
		Labels: labels,
		Datasets: []ChartDataset{
			{Label: "Actual", Data: actual, BorderColor: blue.alpha("1"), BackgroundColor: blue.alpha("0.2"), Fill: &noFill},
			{Label: "Predicted", Data: predicted, BorderColor: red.alpha("1"), BackgroundColor: red.alpha("0.2"), Fill: &noFill},
			{Label: "Line", Data: line, BorderColor: teal.alpha("1"), BackgroundColor: teal.alpha("0.2"), BorderDash: []int{5, 5}, Fill: &noFill},
		},
	}
}

// overUnderChart counts resolved predictions by lean and outcome. Predictions
// without an actual value are skipped.
func overUnderChart(preds []predictorapi.Prediction) ChartData {
	var correct, incorrect [2]float64 // over, under
	for _, p := range preds {
		if p.ActualValue == nil {
			continue
		}
		side := 1
		if p.IsOver() {
			side = 0
		}
		if (*p.ActualValue > p.Line) == p.IsOver() {
			correct[side]++
		} else {
			incorrect[side]++
		}
	}

	return ChartData{
		Labels: []string{"Over", "Under"},
		Datasets: []ChartDataset{
			{
				Label:           "Correct",
				Data:            []*float64{floatPtr(correct[0]), floatPtr(correct[1])},
				BackgroundColor: []string{teal.alpha("0.7"), blue.alpha("0.7")},
				BorderColor:     []string{teal.alpha("1"), blue.alpha("1")},
				BorderWidth:     1,
			},
			{
				Label:           "Incorrect",
				Data:            []*float64{floatPtr(incorrect[0]), floatPtr(incorrect[1])},
				BackgroundColor: []string{red.alpha("0.7"), red.alpha("0.7")},
				BorderColor:     []string{red.alpha("1"), red.alpha("1")},
				BorderWidth:     1,
			},
		},
	}
}

// trendingStatsChart counts picks per stat type, one bar series per sport.
// Stat types are ordered by total count, most picked first; sports are
// upper-cased and sorted.
func trendingStatsChart(preds []predictorapi.Prediction) ChartData {
	counts := make(map[string]map[string]float64) // sport -> stat -> picks
	totals := make(map[string]int)
	for _, p := range preds {
		if p.StatType == "" {
			continue
		}
		sport := strings.ToUpper(p.Sport)
		if counts[sport] == nil {
			counts[sport] = make(map[string]float64)
		}
		counts[sport][p.StatType]++
		totals[p.StatType]++
	}

	stats := sortedKeys(totals)
	sort.SliceStable(stats, func(i, j int) bool {
		return totals[stats[i]] > totals[stats[j]]
	})

	chart := ChartData{Labels: make([]string, 0, len(stats)), Datasets: []ChartDataset{}}
	for _, stat := range stats {
		chart.Labels = append(chart.Labels, templates.FormatStatName(stat))
	}

	for i, sport := range sortedKeys(counts) {
		data := make([]*float64, len(stats))
		for j, stat := range stats {
			data[j] = floatPtr(counts[sport][stat])
		}
		c := chartPalette[i%len(chartPalette)]
		chart.Datasets = append(chart.Datasets, ChartDataset{
			Label:           sport,
			Data:            data,
			BackgroundColor: c.alpha("0.5"),
			BorderColor:     c.alpha("1"),
			BorderWidth:     1,
		})
	}
	return chart
}

// paletteColors cycles through the chart palette for n bars.
func paletteColors(n int) (bg, border []string) {
	bg = make([]string, n)
	border = make([]string, n)
	for i := 0; i < n; i++ {
		c := chartPalette[i%len(chartPalette)]
		bg[i], border[i] = c.alpha("0.7"), c.alpha("1")
	}
	return bg, border
}

func floatPtr(f float64) *float64 {
	return &f
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
