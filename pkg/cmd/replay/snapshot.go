package replay

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/mpapenbr/lapsync/pkg/dashboard"
	"github.com/mpapenbr/lapsync/pkg/model"
)

var ErrTooFewSamples = errors.New("at least two samples are needed for a chart")

const (
	snapshotWidth  = 1200
	snapshotHeight = 400
)

func writeChartSnapshot(path string, view *dashboard.ChartView) error {
	var cursor *model.ChannelSample
	if c, ok := view.Cursor(); ok {
		cursor = &c.Sample
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := renderChart(f, view.Channel(), view.Samples(), cursor); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// renderChart draws the samples as a line and the cursor, if any, as a
// vertical marker.
//
//nolint:whitespace // can't make both editor and linter happy
func renderChart(
	w io.Writer,
	channel string,
	samples []model.ChannelSample,
	cursor *model.ChannelSample,
) error {
	if len(samples) < 2 {
		return fmt.Errorf("%s: %w", channel, ErrTooFewSamples)
	}
	xs := lo.Map(samples, func(s model.ChannelSample, _ int) float64 { return s.Time })
	ys := lo.Map(samples, func(s model.ChannelSample, _ int) float64 { return s.Value })
	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    channel,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: chart.ColorBlue,
				StrokeWidth: 1.5,
			},
		},
	}
	if cursor != nil {
		series = append(series, chart.ContinuousSeries{
			Name:    "cursor",
			XValues: []float64{cursor.Time, cursor.Time},
			YValues: []float64{lo.Min(ys), lo.Max(ys)},
			Style: chart.Style{
				StrokeColor: chart.ColorRed,
				StrokeWidth: 2,
			},
		})
	}
	ch := chart.Chart{
		Title:  channel,
		Width:  snapshotWidth,
		Height: snapshotHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 16, Right: 12, Bottom: 16},
		},
		XAxis:  chart.XAxis{Name: "time [s]"},
		YAxis:  chart.YAxis{Name: channel},
		Series: series,
	}
	return ch.Render(chart.PNG, w)
}
