// Command plantsafe runs the decision engines over a sensor telemetry batch:
// clustering, risk classification, accident prediction, parameter
// optimization, floor route planning, alert grading, and historical
// analytics. Actions can be combined; the results are printed as a report
// and optionally exported as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foundryline/plantsafe/internal/alerts"
	"github.com/foundryline/plantsafe/internal/config"
	"github.com/foundryline/plantsafe/internal/modelstore"
	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
	"github.com/foundryline/plantsafe/internal/version"
)

var (
	inputFile  = flag.String("input", "", "JSON telemetry batch file (synthetic demo batch when empty)")
	configFile = flag.String("config", "", "safety config JSON file (compiled defaults when empty)")
	modelsDir  = flag.String("models", "models", "model artifact directory")
	jsonOut    = flag.String("json", "", "write the full JSON report to this file ('-' for stdout)")

	doCluster   = flag.Bool("cluster", false, "group the batch into operating clusters")
	doClassify  = flag.Bool("classify", false, "classify each reading's risk tier")
	doPredict   = flag.Bool("predict", false, "score accident probability for each reading")
	doOptimize  = flag.Bool("optimize", false, "optimize the batch's mean operating point")
	doRoute     = flag.Bool("route", false, "plan floor routes between -start and -goal")
	doAlerts    = flag.Bool("alerts", false, "grade the batch against alert thresholds")
	doAnalytics = flag.Bool("analytics", false, "run trend, anomaly, and maintenance reports")
	doPlots     = flag.Bool("plots", false, "write diagnostic PNG charts for the batch")
	doWatch     = flag.Bool("watch", false, "re-evaluate alerts on an interval until interrupted")

	clusterK  = flag.Int("k", 0, "fixed cluster count for -cluster and -plots (0 = elbow sweep)")
	seed      = flag.Int64("seed", 42, "seed for clustering, optimization, and synthetic batches")
	count     = flag.Int("count", 120, "synthetic batch size when -input is empty")
	gridFile  = flag.String("grid", "", "floor grid JSON for -route (built-in demo floor when empty)")
	startCell = flag.String("start", "", "route start cell as row,col")
	goalCell  = flag.String("goal", "", "route goal cell as row,col")
	plotDir   = flag.String("plot-dir", "plots", "base directory for -plots output")
	interval  = flag.Duration("interval", 5*time.Second, "watch re-evaluation interval")

	showVersion = flag.Bool("version", false, "print build information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("plantsafe %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	store, err := modelstore.NewStore(*modelsDir)
	if err != nil {
		log.Fatalf("open model store: %v", err)
	}
	a := &app{cfg: cfg, store: store}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *doWatch {
		if err := a.watch(ctx); err != nil {
			log.Fatalf("watch: %v", err)
		}
		return
	}

	if !*doCluster && !*doClassify && !*doPredict && !*doOptimize &&
		!*doRoute && !*doAlerts && !*doAnalytics && !*doPlots {
		flag.Usage()
		log.Fatal("no action selected")
	}

	readings, source, err := loadBatch(*inputFile, *seed, *count)
	if err != nil {
		log.Fatalf("load batch: %v", err)
	}
	report := &Report{Source: source, Readings: len(readings)}

	if *doCluster {
		if report.Cluster, err = a.runCluster(ctx, readings, *clusterK, *seed); err != nil {
			log.Fatalf("cluster: %v", err)
		}
	}
	if *doClassify {
		if report.Classify, err = a.runClassify(readings); err != nil {
			log.Fatalf("classify: %v", err)
		}
	}
	if *doPredict {
		if report.Predict, err = a.runPredict(readings); err != nil {
			log.Fatalf("predict: %v", err)
		}
	}
	if *doOptimize {
		if report.Optimize, err = a.runOptimize(ctx, readings, *seed); err != nil {
			log.Fatalf("optimize: %v", err)
		}
	}
	if *doRoute {
		if report.Route, err = a.runRoute(ctx, *gridFile, *startCell, *goalCell); err != nil {
			log.Fatalf("route: %v", err)
		}
	}
	if *doAlerts {
		if report.Alerts, err = a.runAlerts(readings); err != nil {
			log.Fatalf("alerts: %v", err)
		}
	}
	if *doAnalytics {
		if report.Analytics, err = a.runAnalytics(readings); err != nil {
			log.Fatalf("analytics: %v", err)
		}
	}
	if *doPlots {
		if report.Plots, err = a.runPlots(ctx, readings, *clusterK, *seed, *plotDir, *inputFile); err != nil {
			log.Fatalf("plots: %v", err)
		}
	}

	printReport(report)
	if *jsonOut != "" {
		if err := exportJSON(report, *jsonOut); err != nil {
			log.Fatalf("export report: %v", err)
		}
	}
}

// watch re-evaluates the alert thresholds until the context is canceled.
// With an input file the file is re-read every tick so a collector can keep
// replacing it with fresh batches; without one each tick draws a new
// synthetic batch.
func (a *app) watch(ctx context.Context) error {
	ev, err := alerts.NewEvaluator(alertParams(a.cfg))
	if err != nil {
		return err
	}
	scorer := a.accidentScorer()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for tick := int64(0); ; tick++ {
		readings, source, err := loadBatch(*inputFile, *seed+tick, *count)
		if err != nil {
			return err
		}
		events, err := ev.EvaluateBatch(readings, scorer)
		if err != nil {
			return err
		}
		sum := alerts.Summarize(events)
		log.Printf("%s: %d readings, %d alerts (%d critical, %d warning), status %s",
			source, len(readings), sum.Total, sum.Critical, sum.Warning, sum.Status)
		for _, e := range events {
			if e.Severity == alerts.SeverityCritical {
				log.Printf("  %s: %s", e.SensorID, e.Message)
			}
		}

		select {
		case <-ctx.Done():
			log.Print("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func loadConfig(path string) (*config.SafetyConfig, error) {
	if path == "" {
		return config.EmptySafetyConfig(), nil
	}
	return config.LoadSafetyConfig(path)
}

// loadBatch reads a JSON reading array, or generates a synthetic batch when
// no path is given.
func loadBatch(path string, seed int64, count int) ([]telemetry.SensorReading, string, error) {
	if path == "" {
		readings, err := telemetry.GenerateBatch(telemetry.GeneratorOptions{Seed: seed, Count: count})
		if err != nil {
			return nil, "", err
		}
		return readings, fmt.Sprintf("synthetic batch (seed %d)", seed), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read batch file: %w", err)
	}
	var readings []telemetry.SensorReading
	if err := json.Unmarshal(data, &readings); err != nil {
		return nil, "", fmt.Errorf("parse batch file: %w", err)
	}
	if len(readings) == 0 {
		return nil, "", fmt.Errorf("batch file %s holds no readings", path)
	}
	return readings, path, nil
}

func printReport(r *Report) {
	fmt.Println("\n=== PlantSafe Report ===")
	fmt.Printf("Source: %s\n", r.Source)
	fmt.Printf("Readings: %d\n", r.Readings)

	if r.Cluster != nil {
		fmt.Println("\n--- Clustering ---")
		fmt.Printf("Clusters: %d (auto: %v), inertia %.2f, silhouette %.3f\n",
			r.Cluster.K, r.Cluster.AutoK, r.Cluster.Inertia, r.Cluster.Silhouette)
		for _, g := range r.Cluster.Groups {
			fmt.Printf("  cluster %d: %d sensors, risk %s (%.2f) - %s\n",
				g.ID, g.Size, g.RiskLevel, g.RiskScore, g.Recommendation)
		}
		fmt.Printf("  anomalies: %d\n", len(r.Cluster.Anomalies))
	}
	if r.Classify != nil {
		fmt.Println("\n--- Risk Classification ---")
		for _, level := range risk.Levels() {
			fmt.Printf("  %s: %d\n", level, r.Classify.Counts[level])
		}
	}
	if r.Predict != nil {
		fmt.Println("\n--- Accident Prediction ---")
		fmt.Printf("  mean probability: %.1f%%\n", r.Predict.MeanProbability*100)
		for _, imp := range r.Predict.Importance {
			fmt.Printf("  %s: weight %+.3f (%.0f%%)\n", imp.Feature, imp.Weight, imp.Share*100)
		}
	}
	if r.Optimize != nil {
		fmt.Println("\n--- Parameter Optimization ---")
		fmt.Printf("  score %.3f -> %.3f (+%.3f) in %d iterations (converged: %v)\n",
			r.Optimize.InitialScore, r.Optimize.OptimizedScore, r.Optimize.Improvement,
			r.Optimize.Iterations, r.Optimize.Converged)
		o := r.Optimize.Optimized
		fmt.Printf("  optimized point: temp %.1f, vibration %.2f, load %.2f\n",
			o.Temperature, o.Vibration, o.Load)
	}
	if r.Route != nil {
		fmt.Println("\n--- Route Planning ---")
		fmt.Printf("  %v -> %v\n", r.Route.Start, r.Route.Goal)
		if r.Route.Planned.Length == 0 {
			fmt.Println("  planned: unreachable")
		} else {
			fmt.Printf("  planned: %d cells, cost %.2f, risk %.2f\n",
				r.Route.Planned.Length, r.Route.Planned.Cost, r.Route.Planned.Risk)
		}
		fmt.Printf("  recommended strategy: %s\n", r.Route.Comparison.Recommended)
	}
	if r.Alerts != nil {
		fmt.Println("\n--- Alerts ---")
		s := r.Alerts.Summary
		fmt.Printf("  %d raised (%d critical, %d warning), status %s\n",
			s.Total, s.Critical, s.Warning, s.Status)
		for _, e := range r.Alerts.Events {
			if e.Severity == alerts.SeverityCritical {
				fmt.Printf("  %s: %s\n", e.SensorID, e.Message)
			}
		}
	}
	if r.Analytics != nil {
		fmt.Println("\n--- Analytics ---")
		for _, metric := range telemetry.DefaultFeatures() {
			if t, ok := r.Analytics.Trends[metric]; ok {
				fmt.Printf("  %s: %s (%.1f%% change)\n", metric, t.Direction, t.RateOfChangePercent)
			}
		}
		if r.Analytics.Anomalies != nil {
			fmt.Printf("  anomalies: %d\n", len(r.Analytics.Anomalies.Anomalies))
		}
		if r.Analytics.Maintenance != nil {
			m := r.Analytics.Maintenance
			fmt.Printf("  maintenance needed: %v (urgency %s)\n", m.NeedsMaintenance, m.UrgencyLevel)
		}
	}
	if len(r.Plots) > 0 {
		fmt.Println("\n--- Plots ---")
		for _, p := range r.Plots {
			fmt.Printf("  %s\n", p)
		}
	}
}

func exportJSON(r *Report, path string) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
