package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"market-news-alerts/internal/model"
)

// decisionBucket aggregates decision outcomes per hour for charting.
type decisionBucket struct {
	Start      time.Time
	Allowed    int
	Suppressed int
}

// Export renders decision history as CSV and/or a PNG chart of per-hour
// allowed/suppressed counts.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-7 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	decisions, err := audit.ListDecisionsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		a.Logger.Info().Msg("no decisions found for export window")
		return nil
	}

	if len(decisions) > opts.MaxPoints {
		decisions = decisions[len(decisions)-opts.MaxPoints:]
	}
	a.Logger.Info().Int("exported", len(decisions)).Msg("exporting decisions")

	if opts.CSVPath != "" {
		if err := writeDecisionsCSV(opts.CSVPath, decisions); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		buckets := clampPoints(bucketDecisions(decisions), opts.MaxPoints)
		if err := writeDecisionsPNG(opts.PNGPath, buckets); err != nil {
			return err
		}
	}

	return nil
}

func bucketDecisions(decisions []model.AlertDecision) []decisionBucket {
	grouped := make(map[time.Time]*decisionBucket)
	for _, d := range decisions {
		start := d.EvaluatedAt.UTC().Truncate(time.Hour)
		bucket, ok := grouped[start]
		if !ok {
			bucket = &decisionBucket{Start: start}
			grouped[start] = bucket
		}
		if d.Allowed {
			bucket.Allowed++
		} else {
			bucket.Suppressed++
		}
	}

	buckets := make([]decisionBucket, 0, len(grouped))
	for _, bucket := range grouped {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets
}

func writeDecisionsCSV(path string, decisions []model.AlertDecision) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"evaluated_at", "user_id", "event_id", "allowed", "reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, d := range decisions {
		allowed := "false"
		if d.Allowed {
			allowed = "true"
		}
		record := []string{
			d.EvaluatedAt.UTC().Format(time.RFC3339),
			d.UserID,
			d.EventID,
			allowed,
			string(d.Reason),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeDecisionsPNG(path string, buckets []decisionBucket) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(buckets) < 2 {
		return errors.New("need at least two buckets to chart")
	}

	x := make([]time.Time, len(buckets))
	allowed := make([]float64, len(buckets))
	suppressed := make([]float64, len(buckets))

	for i, bucket := range buckets {
		x[i] = bucket.Start
		allowed[i] = float64(bucket.Allowed)
		suppressed[i] = float64(bucket.Suppressed)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Decisions per hour",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Allowed",
				XValues: x,
				YValues: allowed,
			},
			chart.TimeSeries{
				Name:    "Suppressed",
				XValues: x,
				YValues: suppressed,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// clampPoints downsamples buckets to at most max evenly spaced points.
func clampPoints(buckets []decisionBucket, max int) []decisionBucket {
	if max <= 0 || len(buckets) <= max {
		return buckets
	}
	result := make([]decisionBucket, 0, max)
	step := float64(len(buckets)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
		result = append(result, buckets[idx])
	}
	return result
}
