// Command gen-telemetry writes a synthetic sensor batch as JSON, for feeding
// plantsafe -input or seeding test fixtures.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/foundryline/plantsafe/internal/telemetry"
)

func main() {
	out := flag.String("o", "", "output file (stdout when empty)")
	count := flag.Int("n", 100, "number of readings")
	seed := flag.Int64("seed", 42, "generator seed")
	interval := flag.Duration("interval", time.Second, "spacing between readings")
	normal := flag.Float64("normal", 1, "weight of the normal regime")
	degraded := flag.Float64("degraded", 1, "weight of the degraded regime")
	critical := flag.Float64("critical", 1, "weight of the critical regime")
	flag.Parse()

	readings, err := telemetry.GenerateBatch(telemetry.GeneratorOptions{
		Seed:     *seed,
		Count:    *count,
		Start:    time.Now().UTC(),
		Interval: *interval,
		Mix: map[telemetry.Regime]float64{
			telemetry.RegimeNormal:   *normal,
			telemetry.RegimeDegraded: *degraded,
			telemetry.RegimeCritical: *critical,
		},
	})
	if err != nil {
		log.Fatalf("generate batch: %v", err)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create output file: %v", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(readings); err != nil {
		log.Fatalf("encode readings: %v", err)
	}
	if *out != "" {
		log.Printf("wrote %d readings to %s", len(readings), *out)
	}
}
