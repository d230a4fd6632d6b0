// Command gen-scanlog generates synthetic datasets for testing playback.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/scanreplay/internal/scanlog"
)

func main() {
	output := flag.String("o", "sample.scanlog", "output dataset directory")
	frames := flag.Int("n", 200, "number of frames")
	sensors := flag.Int("sensors", 2, "number of sensors")
	height := flag.Int("height", 8, "range image rows")
	width := flag.Int("width", 64, "range image columns")
	perUnit := flag.Int("frames-per-unit", scanlog.DefaultFramesPerUnit, "frames per unit chunk")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	err := scanlog.Synthesize(*output, scanlog.SynthOptions{
		Frames:        *frames,
		Sensors:       *sensors,
		Height:        *height,
		Width:         *width,
		FramesPerUnit: *perUnit,
		Seed:          *seed,
	})
	if err != nil {
		log.Fatalf("failed to generate dataset: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames)", *output, *frames)
}
