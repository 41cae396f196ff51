// Package cluster groups sensor feature vectors with k-means and derives
// per-cluster safety profiles, anomaly flags, and maintenance groupings.
// Partitioning runs in standardized feature space; reported statistics are
// in raw units.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// ErrInvalidInput reports readings or options the clusterer cannot use.
var ErrInvalidInput = errors.New("invalid clustering input")

// Clustering defaults.
const (
	DefaultMaxIterations    = 300
	DefaultMaxAutoK         = 10
	DefaultAnomalyThreshold = 2.0
	// FallbackK is chosen when the elbow sweep finds no clear bend.
	FallbackK = 3
)

// Confidence cutoffs for Assign, in standardized distance.
const (
	assignHighDistance   = 1.0
	assignMediumDistance = 2.0
)

// Options configures one clustering run.
type Options struct {
	K                int      // fixed cluster count; zero selects the elbow sweep
	Features         []string // nil selects telemetry.DefaultFeatures()
	MaxIterations    int      // zero selects DefaultMaxIterations
	MaxAutoK         int      // sweep ceiling; zero selects DefaultMaxAutoK
	AnomalyThreshold float64  // std devs beyond the cluster mean; zero selects DefaultAnomalyThreshold
	Seed             int64
	Profile          ProfileParams // zero value selects DefaultProfileParams()
	// AccidentScore supplies the accident probability used for risk
	// profiling, typically a trained predictor's PredictReading. Nil
	// profiles on the temperature and vibration bands alone.
	AccidentScore func(telemetry.SensorReading) (float64, error)
}

// Group is one cluster of the partition. Centroid lives in standardized
// feature space; Mean and Std report every canonical metric in raw units.
type Group struct {
	ID              int                `json:"cluster_id"` // 1-indexed for display
	Size            int                `json:"size"`
	SensorIDs       []string           `json:"sensor_ids"`
	Centroid        []float64          `json:"centroid"`
	Mean            map[string]float64 `json:"mean_values"`
	Std             map[string]float64 `json:"std_values"`
	Characteristics map[string]string  `json:"characteristics"`
	AccidentProxy   float64            `json:"mean_accident_probability"`
	RiskScore       float64            `json:"risk_score"`
	RiskLevel       risk.Level         `json:"risk_level"`
	Recommendation  string             `json:"recommendation"`
}

// Anomaly is a reading sitting unusually far from its own centroid.
type Anomaly struct {
	SensorIndex  int     `json:"sensor_index"`
	SensorID     string  `json:"sensor_id"`
	ClusterID    int     `json:"cluster_id"` // matches Group.ID
	Distance     float64 `json:"distance_from_center"`
	MeanDistance float64 `json:"avg_cluster_distance"`
	Score        float64 `json:"anomaly_score"` // std devs beyond the cluster mean
}

// KInertia is one candidate of the elbow sweep.
type KInertia struct {
	K       int     `json:"k"`
	Inertia float64 `json:"inertia"`
}

// Result is a finished clustering. It is JSON-serializable and carries the
// scaler and centroids needed to Assign new readings later.
type Result struct {
	K          int              `json:"n_clusters"`
	AutoK      bool             `json:"auto_k"`
	Groups     []Group          `json:"clusters"`
	Anomalies  []Anomaly        `json:"anomalies"`
	Features   []string         `json:"features_used"`
	Inertia    float64          `json:"inertia"`
	Silhouette float64          `json:"silhouette_score"`
	Converged  bool             `json:"converged"`
	ElbowCurve []KInertia       `json:"elbow_curve,omitempty"`
	Scaler     telemetry.Scaler `json:"scaler"`
}

// Cluster partitions the readings. With Options.K zero the cluster count is
// chosen by the elbow sweep; cancellation is honored between candidate
// counts and between iterations.
func Cluster(ctx context.Context, readings []telemetry.SensorReading, opts Options) (*Result, error) {
	if len(readings) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 readings, got %d", ErrInvalidInput, len(readings))
	}
	features := opts.Features
	if features == nil {
		features = telemetry.DefaultFeatures()
	}
	maxIter := opts.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}
	if maxIter < 1 {
		return nil, fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidInput, maxIter)
	}
	threshold := opts.AnomalyThreshold
	if threshold == 0 {
		threshold = DefaultAnomalyThreshold
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: anomaly threshold must be positive, got %f", ErrInvalidInput, threshold)
	}
	maxAutoK := opts.MaxAutoK
	if maxAutoK == 0 {
		maxAutoK = DefaultMaxAutoK
	}
	if maxAutoK < 2 {
		return nil, fmt.Errorf("%w: max auto k must be at least 2, got %d", ErrInvalidInput, maxAutoK)
	}
	if opts.K < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", ErrInvalidInput, opts.K)
	}
	profile := opts.Profile
	if profile == (ProfileParams{}) {
		profile = DefaultProfileParams()
	}
	if err := profile.validate(); err != nil {
		return nil, err
	}

	rows, err := telemetry.Matrix(readings, features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	scaler, err := telemetry.FitScaler(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	std, err := scaler.TransformMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var run kmeansRun
	var curve []KInertia
	autoK := opts.K == 0
	if autoK {
		run, curve, err = sweepK(ctx, std, maxAutoK, maxIter, opts.Seed)
	} else {
		k := opts.K
		if k >= len(std) {
			k = len(std) - 1
		}
		run, err = runKMeans(ctx, std, k, maxIter, rand.New(rand.NewSource(opts.Seed)))
	}
	if err != nil {
		return nil, err
	}

	groups, err := buildGroups(readings, run, profile, opts.AccidentScore)
	if err != nil {
		return nil, err
	}

	return &Result{
		K:          run.k,
		AutoK:      autoK,
		Groups:     groups,
		Anomalies:  findAnomalies(std, run, telemetry.SensorIDs(readings), threshold),
		Features:   features,
		Inertia:    run.inertia,
		Silhouette: silhouetteScore(std, run.labels, run.k),
		Converged:  run.converged,
		ElbowCurve: curve,
		Scaler:     *scaler,
	}, nil
}

// Assignment places a new reading into an existing clustering.
type Assignment struct {
	ClusterID  int     `json:"cluster_id"` // matches Group.ID
	Distance   float64 `json:"distance_from_center"`
	Confidence string  `json:"confidence"` // high, medium, or low
}

// Assign maps a new reading onto the nearest cluster of a finished result.
// Confidence tiers follow the standardized distance to that centroid.
func (r *Result) Assign(reading telemetry.SensorReading) (Assignment, error) {
	if r == nil || len(r.Groups) == 0 {
		return Assignment{}, fmt.Errorf("%w: empty clustering result", ErrInvalidInput)
	}
	if err := reading.Validate(); err != nil {
		return Assignment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	vec, err := reading.Vector(r.Features)
	if err != nil {
		return Assignment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	std, err := r.Scaler.Transform(vec)
	if err != nil {
		return Assignment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	best := 0
	bestDist := math.Inf(1)
	for i, g := range r.Groups {
		if d := sqDist(std, g.Centroid); d < bestDist {
			best, bestDist = i, d
		}
	}
	d := math.Sqrt(bestDist)
	confidence := "low"
	switch {
	case d < assignHighDistance:
		confidence = "high"
	case d < assignMediumDistance:
		confidence = "medium"
	}
	return Assignment{ClusterID: r.Groups[best].ID, Distance: d, Confidence: confidence}, nil
}

// kmeansRun is the raw outcome of one k-means run in standardized space.
type kmeansRun struct {
	k         int
	centroids [][]float64
	labels    []int
	inertia   float64
	converged bool
}

// runKMeans is one seeded k-means pass: k-means++ seeding, then alternating
// assignment and centroid updates until assignments stop changing or the
// iteration cap is hit.
func runKMeans(ctx context.Context, rows [][]float64, k, maxIter int, rng *rand.Rand) (kmeansRun, error) {
	n := len(rows)
	centroids := seedCentroids(rows, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	converged := false
	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return kmeansRun{}, err
		}
		changed := false
		for i, row := range rows {
			best := nearestCentroid(row, centroids)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			converged = true
			break
		}
		updateCentroids(rows, labels, centroids)
	}
	if !converged {
		// Iteration cap hit after an update; realign labels with the final
		// centroids so the reported partition is self-consistent.
		for i, row := range rows {
			labels[i] = nearestCentroid(row, centroids)
		}
	}

	var inertia float64
	for i, row := range rows {
		inertia += sqDist(row, centroids[labels[i]])
	}
	return kmeansRun{k: k, centroids: centroids, labels: labels, inertia: inertia, converged: converged}, nil
}

// seedCentroids places the initial centroids with k-means++ weighting: the
// first uniformly at random, each further one with probability proportional
// to squared distance from the nearest already-chosen centroid.
func seedCentroids(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(rows[rng.Intn(n)]))

	weights := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, row := range rows {
			weights[i] = sqDistToNearest(row, centroids)
			total += weights[i]
		}
		idx := n - 1
		if total == 0 {
			// Every point already coincides with a centroid.
			idx = rng.Intn(n)
		} else {
			draw := rng.Float64() * total
			for i, w := range weights {
				if draw < w {
					idx = i
					break
				}
				draw -= w
			}
		}
		centroids = append(centroids, clone(rows[idx]))
	}
	return centroids
}

// nearestCentroid breaks distance ties on the lowest centroid index so
// repeated runs assign identically.
func nearestCentroid(row []float64, centroids [][]float64) int {
	best := 0
	bestDist := sqDist(row, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := sqDist(row, centroids[c]); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// updateCentroids recomputes each centroid as the mean of its members. An
// empty cluster is re-seeded from the point farthest from every non-empty
// centroid.
func updateCentroids(rows [][]float64, labels []int, centroids [][]float64) {
	k := len(centroids)
	dims := len(rows[0])
	counts := make([]int, k)
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, row := range rows {
		c := labels[i]
		counts[c]++
		for j, v := range row {
			sums[c][j] += v
		}
	}

	var empty []int
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			empty = append(empty, c)
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
	if len(empty) == 0 {
		return
	}

	filled := make([]int, 0, k)
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			filled = append(filled, c)
		}
	}
	for _, c := range empty {
		far, farDist := 0, -1.0
		for i, row := range rows {
			d := math.Inf(1)
			for _, f := range filled {
				if s := sqDist(row, centroids[f]); s < d {
					d = s
				}
			}
			if d > farDist {
				far, farDist = i, d
			}
		}
		copy(centroids[c], rows[far])
		filled = append(filled, c)
	}
}

// sweepK runs the elbow sweep over candidate cluster counts. Each candidate
// runs from its own derived seed.
func sweepK(ctx context.Context, rows [][]float64, maxAutoK, maxIter int, seed int64) (kmeansRun, []KInertia, error) {
	maxK := maxAutoK
	if limit := len(rows) - 1; limit < maxK {
		maxK = limit
	}
	if maxK < 2 {
		// Too few points to compare candidates.
		run, err := runKMeans(ctx, rows, 1, maxIter, rand.New(rand.NewSource(seed)))
		return run, nil, err
	}

	runs := make([]kmeansRun, 0, maxK-1)
	curve := make([]KInertia, 0, maxK-1)
	for k := 2; k <= maxK; k++ {
		if err := ctx.Err(); err != nil {
			return kmeansRun{}, nil, err
		}
		run, err := runKMeans(ctx, rows, k, maxIter, rand.New(rand.NewSource(seed+int64(k))))
		if err != nil {
			return kmeansRun{}, nil, err
		}
		runs = append(runs, run)
		curve = append(curve, KInertia{K: k, Inertia: run.inertia})
	}
	return runs[elbowK(curve)-2], curve, nil
}

// elbowK picks the candidate where the marginal inertia reduction drops the
// most (largest second difference). With fewer than four candidates, or no
// drop anywhere, it falls back to FallbackK.
func elbowK(curve []KInertia) int {
	fallback := FallbackK
	if last := curve[len(curve)-1].K; last < fallback {
		fallback = last
	}
	if len(curve) < 4 {
		return fallback
	}
	best, bestDrop := -1, 0.0
	for i := 0; i+2 < len(curve); i++ {
		d0 := curve[i].Inertia - curve[i+1].Inertia
		d1 := curve[i+1].Inertia - curve[i+2].Inertia
		if drop := d0 - d1; drop > bestDrop {
			best, bestDrop = i, drop
		}
	}
	if best < 0 {
		return fallback
	}
	return curve[best+1].K
}

// findAnomalies flags points sitting beyond threshold standard deviations
// of their cluster's mean centroid distance. A cluster whose distances have
// zero spread flags nothing.
func findAnomalies(rows [][]float64, run kmeansRun, ids []string, threshold float64) []Anomaly {
	dists := make([]float64, len(rows))
	byCluster := make([][]float64, run.k)
	for i, row := range rows {
		dists[i] = math.Sqrt(sqDist(row, run.centroids[run.labels[i]]))
		byCluster[run.labels[i]] = append(byCluster[run.labels[i]], dists[i])
	}
	means := make([]float64, run.k)
	stds := make([]float64, run.k)
	for c, d := range byCluster {
		if len(d) == 0 {
			continue
		}
		means[c] = stat.Mean(d, nil)
		stds[c] = stat.PopStdDev(d, nil)
	}

	anomalies := []Anomaly{}
	for i, d := range dists {
		c := run.labels[i]
		if stds[c] == 0 || d <= means[c]+threshold*stds[c] {
			continue
		}
		anomalies = append(anomalies, Anomaly{
			SensorIndex:  i,
			SensorID:     ids[i],
			ClusterID:    c + 1,
			Distance:     d,
			MeanDistance: means[c],
			Score:        (d - means[c]) / stds[c],
		})
	}
	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Score > anomalies[j].Score
	})
	return anomalies
}

// silhouetteScore is the mean over points of (b-a)/max(a,b), where a is the
// mean distance to the point's own cluster and b the lowest mean distance
// to another cluster. Points in singleton clusters contribute zero.
func silhouetteScore(rows [][]float64, labels []int, k int) float64 {
	if k < 2 {
		return 0
	}
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}

	sums := make([]float64, k)
	var total float64
	for i, row := range rows {
		own := labels[i]
		if counts[own] < 2 {
			continue
		}
		for c := range sums {
			sums[c] = 0
		}
		for j, other := range rows {
			if i == j {
				continue
			}
			sums[labels[j]] += math.Sqrt(sqDist(row, other))
		}
		a := sums[own] / float64(counts[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			if m := sums[c] / float64(counts[c]); m < b {
				b = m
			}
		}
		if math.IsInf(b, 1) {
			continue
		}
		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(rows))
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func sqDistToNearest(row []float64, centroids [][]float64) float64 {
	best := math.Inf(1)
	for _, c := range centroids {
		if d := sqDist(row, c); d < best {
			best = d
		}
	}
	return best
}

func clone(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
