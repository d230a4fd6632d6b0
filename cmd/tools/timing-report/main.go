// Command timing-report renders per-unit decode and conversion timings
// recorded by the playback server into an HTML chart.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/scanreplay/internal/telemetry"
)

func main() {
	dbPath := flag.String("db", "telemetry.db", "telemetry database path")
	sessionID := flag.String("session", "", "session id (defaults to the most recent)")
	output := flag.String("o", "timing-report.html", "output HTML path")
	flag.Parse()

	store, err := telemetry.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open telemetry store: %v", err)
	}
	defer store.Close()

	session := *sessionID
	if session == "" {
		sessions, err := store.Sessions()
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("telemetry store has no sessions")
		}
		session = sessions[0]
		log.Printf("using most recent session %s", session)
	}

	timings, err := store.UnitTimings(session)
	if err != nil {
		log.Fatalf("failed to load timings: %v", err)
	}
	if len(timings) == 0 {
		log.Fatalf("session %s has no recorded units", session)
	}

	labels := make([]string, 0, len(timings))
	decode := make([]opts.BarData, 0, len(timings))
	convert := make([]opts.BarData, 0, len(timings))
	var totalPoints int
	for _, t := range timings {
		labels = append(labels, fmt.Sprintf("unit %d", t.UnitIndex))
		decode = append(decode, opts.BarData{Value: float64(t.DecodeNanos) / 1e6})
		convert = append(convert, opts.BarData{Value: float64(t.ConvertNanos) / 1e6})
		totalPoints += t.Points
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Unit Timings", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Per-unit decode and convert times",
			Subtitle: fmt.Sprintf("session=%s units=%d points=%d", session, len(timings), totalPoints),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	bar.SetXAxis(labels).
		AddSeries("decode", decode).
		AddSeries("convert", convert)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()
	if err := bar.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("✓ Created: %s", *output)
}
