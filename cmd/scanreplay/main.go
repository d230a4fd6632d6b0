// Command scanreplay serves a recorded sensor-log dataset over HTTP for
// frame-by-frame playback.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/scanreplay/internal/playback"
	"github.com/banshee-data/scanreplay/internal/scan"
	"github.com/banshee-data/scanreplay/internal/scanlog"
	"github.com/banshee-data/scanreplay/internal/telemetry"
	"github.com/banshee-data/scanreplay/internal/unitpool"
)

var (
	dataset     = flag.String("dataset", "", "Path to the dataset directory")
	listen      = flag.String("listen", ":8080", "Listen address")
	workers     = flag.Int("workers", unitpool.DefaultWorkers, "Decode pool size")
	useKernel   = flag.Bool("kernel", true, "Use the data-parallel conversion backend")
	telemetryDB = flag.String("telemetry", "", "Telemetry database path (empty disables)")
)

func main() {
	flag.Parse()

	if *dataset == "" {
		log.Fatal("dataset directory is required (-dataset)")
	}

	ds, err := scanlog.Open(*dataset)
	if err != nil {
		log.Fatalf("failed to open dataset: %v", err)
	}
	log.Printf("opened dataset %s: %d frames in %d units",
		ds.Header().DatasetID, len(ds.Timestamps()), ds.NumUnits())

	calibs, err := ds.CalibrationSet()
	if err != nil {
		log.Fatalf("bad calibrations: %v", err)
	}

	var store *telemetry.Store
	if *telemetryDB != "" {
		store, err = telemetry.Open(*telemetryDB)
		if err != nil {
			log.Fatalf("failed to open telemetry store: %v", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := unitpool.New(ctx, ds, calibs, unitpool.Options{
		Workers: *workers,
		Backend: scan.DefaultBackend(*useKernel),
	})
	if err != nil {
		log.Fatalf("failed to start decode pool: %v", err)
	}

	session, err := playback.NewSession(ctx, playback.Config{
		Pool:        pool,
		Timestamps:  ds.Timestamps(),
		Annotations: playback.NewAnnotationIndex(ds.Header().Poses, ds.Header().Detections),
		Telemetry:   store,
	})
	if err != nil {
		log.Fatalf("failed to open session: %v", err)
	}
	defer session.Close()
	log.Printf("session %s ready, prefetching remaining units", session.ID)
	session.StartPrefetch(ctx)

	mux := http.NewServeMux()
	mux.Handle("/api/", playback.NewServer(session, store).ServeMux())

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("got request %q", r.URL.Path)
		mux.ServeHTTP(w, r)
	})

	server := &http.Server{
		Addr:    *listen,
		Handler: h,
	}

	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
