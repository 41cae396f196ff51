package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// blobReadings builds three well-separated operating groups of six sensors
// each. Duplicate readings per group keep the partition deterministic for
// any seed.
func blobReadings() []telemetry.SensorReading {
	centers := []struct {
		prefix               string
		temp, vib, rpm, load float64
	}{
		{"COOL", 65, 2.0, 950, 0.40},
		{"WARM", 78, 4.0, 1200, 0.65},
		{"HOT", 92, 6.5, 1450, 0.85},
	}
	var readings []telemetry.SensorReading
	for _, c := range centers {
		for i := 0; i < 6; i++ {
			readings = append(readings, telemetry.SensorReading{
				SensorID:    fmt.Sprintf("%s_%d", c.prefix, i),
				Temperature: c.temp,
				Vibration:   c.vib,
				RPM:         c.rpm,
				Load:        c.load,
				Timestamp:   time.Unix(int64(i), 0).UTC(),
			})
		}
	}
	return readings
}

func idPrefix(id string) string {
	return strings.SplitN(id, "_", 2)[0]
}

// assertBlobPartition checks that every non-empty cluster holds exactly one
// operating group and that all three groups are covered.
func assertBlobPartition(t *testing.T, groups []Group) {
	t.Helper()
	seen := map[string]int{}
	for _, g := range groups {
		if g.Size == 0 {
			continue
		}
		prefixes := map[string]bool{}
		for _, id := range g.SensorIDs {
			prefixes[idPrefix(id)] = true
		}
		require.Len(t, prefixes, 1, "cluster %d mixes groups: %v", g.ID, g.SensorIDs)
		for p := range prefixes {
			seen[p]++
		}
		assert.Equal(t, 6, g.Size)
	}
	assert.Equal(t, map[string]int{"COOL": 1, "WARM": 1, "HOT": 1}, seen)
}

// groupByTemp finds the cluster whose mean temperature matches want.
func groupByTemp(t *testing.T, res *Result, want float64) Group {
	t.Helper()
	for _, g := range res.Groups {
		if math.Abs(g.Mean[telemetry.FeatureTemperature]-want) < 1e-6 {
			return g
		}
	}
	t.Fatalf("no cluster with mean temperature %.1f", want)
	return Group{}
}

// TestClusterSeparatesOperatingGroups checks that a fixed-k run recovers
// three well-separated operating groups exactly.
func TestClusterSeparatesOperatingGroups(t *testing.T) {
	t.Parallel()

	res, err := Cluster(context.Background(), blobReadings(), Options{K: 3, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, 3, res.K)
	assert.False(t, res.AutoK)
	assert.True(t, res.Converged)
	assert.Equal(t, telemetry.DefaultFeatures(), res.Features)
	assert.Nil(t, res.ElbowCurve)
	assertBlobPartition(t, res.Groups)

	t.Run("tight groups score a perfect silhouette", func(t *testing.T) {
		assert.InDelta(t, 1.0, res.Silhouette, 1e-12)
		assert.InDelta(t, 0.0, res.Inertia, 1e-12)
		assert.Empty(t, res.Anomalies)
	})

	t.Run("cluster ids are sequential from one", func(t *testing.T) {
		for i, g := range res.Groups {
			assert.Equal(t, i+1, g.ID)
			assert.Len(t, g.Centroid, len(res.Features))
		}
	})

	t.Run("statistics are reported in raw units", func(t *testing.T) {
		hot := groupByTemp(t, res, 92)
		assert.InDelta(t, 92, hot.Mean[telemetry.FeatureTemperature], 1e-9)
		assert.InDelta(t, 6.5, hot.Mean[telemetry.FeatureVibration], 1e-9)
		assert.InDelta(t, 1450, hot.Mean[telemetry.FeatureRPM], 1e-9)
		assert.InDelta(t, 0.85, hot.Mean[telemetry.FeatureLoad], 1e-9)
		for _, name := range telemetry.DefaultFeatures() {
			assert.InDelta(t, 0, hot.Std[name], 1e-12)
		}
	})

	t.Run("characteristics label the hot group", func(t *testing.T) {
		hot := groupByTemp(t, res, 92)
		assert.Equal(t, map[string]string{
			telemetry.FeatureTemperature: "High Temperature",
			telemetry.FeatureVibration:   "High Vibration",
			telemetry.FeatureRPM:         "Value: 1450.00",
			telemetry.FeatureLoad:        "High Load",
		}, hot.Characteristics)
	})

	t.Run("band bumps alone stay below the medium cutoff", func(t *testing.T) {
		hot := groupByTemp(t, res, 92)
		assert.Zero(t, hot.AccidentProxy)
		assert.InDelta(t, 0.6, hot.RiskScore, 1e-9)
		assert.Equal(t, risk.Low, hot.RiskLevel)
	})
}

// TestClusterAutoK checks the elbow sweep: with three tight groups the
// inertia curve bends exactly at k=3.
func TestClusterAutoK(t *testing.T) {
	t.Parallel()

	t.Run("elbow picks three clusters", func(t *testing.T) {
		t.Parallel()
		res, err := Cluster(context.Background(), blobReadings(), Options{Seed: 11})
		require.NoError(t, err)

		assert.Equal(t, 3, res.K)
		assert.True(t, res.AutoK)
		assertBlobPartition(t, res.Groups)

		require.Len(t, res.ElbowCurve, 9)
		for i, point := range res.ElbowCurve {
			assert.Equal(t, i+2, point.K)
		}
		assert.Greater(t, res.ElbowCurve[0].Inertia, 0.0)
		assert.InDelta(t, 0.0, res.ElbowCurve[1].Inertia, 1e-12)
	})

	t.Run("few candidates fall back without a bend", func(t *testing.T) {
		t.Parallel()
		res, err := Cluster(context.Background(), blobReadings()[5:8], Options{Seed: 3})
		require.NoError(t, err)

		assert.Equal(t, 2, res.K)
		assert.True(t, res.AutoK)
		require.Len(t, res.ElbowCurve, 1)
		assert.Equal(t, 2, res.ElbowCurve[0].K)
		total := 0
		for _, g := range res.Groups {
			total += g.Size
		}
		assert.Equal(t, 3, total)
	})
}

// TestClusterFindsAnomalies plants a single outlier in an otherwise uniform
// fleet and checks the flag and its score.
func TestClusterFindsAnomalies(t *testing.T) {
	t.Parallel()

	readings := make([]telemetry.SensorReading, 0, 12)
	for i := 0; i < 12; i++ {
		temp := 70.0
		if i == 11 {
			temp = 100.0
		}
		readings = append(readings, telemetry.SensorReading{
			SensorID:    fmt.Sprintf("TEMP_%d", i),
			Temperature: temp,
			Vibration:   3.0,
			RPM:         1000,
			Load:        0.5,
		})
	}

	res, err := Cluster(context.Background(), readings, Options{K: 1, Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, res.K)
	assert.True(t, res.Converged)
	assert.Zero(t, res.Silhouette)
	assert.InDelta(t, 11.0, res.Inertia, 1e-9)

	require.Len(t, res.Anomalies, 1)
	a := res.Anomalies[0]
	assert.Equal(t, 11, a.SensorIndex)
	assert.Equal(t, "TEMP_11", a.SensorID)
	assert.Equal(t, 1, a.ClusterID)
	assert.InDelta(t, 3.175426, a.Distance, 1e-6)
	assert.InDelta(t, 0.529238, a.MeanDistance, 1e-6)
	assert.InDelta(t, math.Sqrt(11), a.Score, 1e-9)

	t.Run("profile reflects the pooled fleet", func(t *testing.T) {
		g := res.Groups[0]
		assert.Equal(t, 12, g.Size)
		assert.InDelta(t, 72.5, g.Mean[telemetry.FeatureTemperature], 1e-9)
		assert.InDelta(t, 8.291562, g.Std[telemetry.FeatureTemperature], 1e-6)
		assert.Equal(t, "Moderate Temperature", g.Characteristics[telemetry.FeatureTemperature])
		assert.Equal(t, "Normal Vibration", g.Characteristics[telemetry.FeatureVibration])
		assert.Equal(t, "Low Load", g.Characteristics[telemetry.FeatureLoad])
		assert.Equal(t, "Value: 1000.00", g.Characteristics[telemetry.FeatureRPM])
		assert.Equal(t, risk.Low, g.RiskLevel)
	})
}

// TestClusterReseedsEmptyClusters asks for more clusters than distinct
// readings exist; the surplus cluster ends empty but the run still
// converges and the real groups stay intact.
func TestClusterReseedsEmptyClusters(t *testing.T) {
	t.Parallel()

	res, err := Cluster(context.Background(), blobReadings(), Options{K: 4, Seed: 5})
	require.NoError(t, err)

	assert.Equal(t, 4, res.K)
	assert.True(t, res.Converged)
	assert.InDelta(t, 0.0, res.Inertia, 1e-12)
	assertBlobPartition(t, res.Groups)

	empties := 0
	for _, g := range res.Groups {
		if g.Size != 0 {
			continue
		}
		empties++
		assert.Empty(t, g.SensorIDs)
		assert.Empty(t, g.Mean)
		assert.Empty(t, g.Characteristics)
		assert.Equal(t, risk.Low, g.RiskLevel)
		assert.Equal(t, recommendLow, g.Recommendation)
	}
	assert.Equal(t, 1, empties)
}

// TestClusterCapsClusterCount checks that a requested k larger than the
// reading count is capped.
func TestClusterCapsClusterCount(t *testing.T) {
	t.Parallel()

	t.Run("k is capped below the reading count", func(t *testing.T) {
		t.Parallel()
		readings := blobReadings()[:5]
		for i := range readings {
			readings[i].Temperature += float64(i) // make the five readings distinct
		}
		res, err := Cluster(context.Background(), readings, Options{K: 10, Seed: 2})
		require.NoError(t, err)

		assert.Equal(t, 4, res.K)
		assert.True(t, res.Converged)
		total := 0
		for _, g := range res.Groups {
			total += g.Size
		}
		assert.Equal(t, 5, total)
	})

	t.Run("two readings collapse to one cluster", func(t *testing.T) {
		t.Parallel()
		res, err := Cluster(context.Background(), blobReadings()[:2], Options{K: 5, Seed: 2})
		require.NoError(t, err)

		assert.Equal(t, 1, res.K)
		require.Len(t, res.Groups, 1)
		assert.Equal(t, 2, res.Groups[0].Size)
	})
}

// TestClusterDeterministicForSeed checks that identical options reproduce
// identical results and that the recovered partition does not depend on
// the seed.
func TestClusterDeterministicForSeed(t *testing.T) {
	t.Parallel()

	partition := func(res *Result) []string {
		var sig []string
		for _, g := range res.Groups {
			if g.Size == 0 {
				continue
			}
			ids := append([]string(nil), g.SensorIDs...)
			sort.Strings(ids)
			sig = append(sig, strings.Join(ids, ","))
		}
		return sig
	}

	first, err := Cluster(context.Background(), blobReadings(), Options{K: 3, Seed: 42})
	require.NoError(t, err)
	second, err := Cluster(context.Background(), blobReadings(), Options{K: 3, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := Cluster(context.Background(), blobReadings(), Options{K: 3, Seed: 1042})
	require.NoError(t, err)
	assert.ElementsMatch(t, partition(first), partition(other))
}

// TestClusterReportsNonConvergence caps MaxIterations at one pass and
// checks the result is flagged but still self-consistent.
func TestClusterReportsNonConvergence(t *testing.T) {
	t.Parallel()

	res, err := Cluster(context.Background(), blobReadings(), Options{K: 3, Seed: 9, MaxIterations: 1})
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assertBlobPartition(t, res.Groups)
}

// TestClusterAssignsNewReadings checks centroid assignment of unseen
// readings and its distance-based confidence tiers.
func TestClusterAssignsNewReadings(t *testing.T) {
	t.Parallel()

	res, err := Cluster(context.Background(), blobReadings(), Options{K: 3, Seed: 7})
	require.NoError(t, err)
	hot := groupByTemp(t, res, 92)
	warm := groupByTemp(t, res, 78)

	t.Run("reading at a centroid assigns with high confidence", func(t *testing.T) {
		got, err := res.Assign(telemetry.SensorReading{
			SensorID: "NEW_0", Temperature: 92, Vibration: 6.5, RPM: 1450, Load: 0.85,
		})
		require.NoError(t, err)
		assert.Equal(t, hot.ID, got.ClusterID)
		assert.InDelta(t, 0, got.Distance, 1e-9)
		assert.Equal(t, "high", got.Confidence)
	})

	t.Run("moderately displaced reading assigns with medium confidence", func(t *testing.T) {
		shift := 1.2 * res.Scaler.Std[0] // temperature is the first feature
		got, err := res.Assign(telemetry.SensorReading{
			SensorID: "NEW_1", Temperature: 78 + shift, Vibration: 4.0, RPM: 1200, Load: 0.65,
		})
		require.NoError(t, err)
		assert.Equal(t, warm.ID, got.ClusterID)
		assert.InDelta(t, 1.2, got.Distance, 1e-9)
		assert.Equal(t, "medium", got.Confidence)
	})

	t.Run("far reading assigns with low confidence", func(t *testing.T) {
		got, err := res.Assign(telemetry.SensorReading{
			SensorID: "NEW_2", Temperature: 120, Vibration: 9.0, RPM: 2000, Load: 1.0,
		})
		require.NoError(t, err)
		assert.Equal(t, "low", got.Confidence)
		assert.Greater(t, got.Distance, 2.0)
	})

	t.Run("invalid reading is rejected", func(t *testing.T) {
		_, err := res.Assign(telemetry.SensorReading{
			SensorID: "NEW_3", Temperature: math.NaN(), Vibration: 1, RPM: 1000, Load: 0.5,
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("empty result is rejected", func(t *testing.T) {
		var empty *Result
		_, err := empty.Assign(telemetry.SensorReading{SensorID: "NEW_4", Load: 0.5})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

// TestClusterResultJSONRoundTrip checks a result can be stored as JSON and
// still assign readings identically after reloading.
func TestClusterResultJSONRoundTrip(t *testing.T) {
	t.Parallel()

	res, err := Cluster(context.Background(), blobReadings(), Options{K: 3, Seed: 7})
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var reloaded Result
	require.NoError(t, json.Unmarshal(raw, &reloaded))

	assert.Equal(t, res.K, reloaded.K)
	assert.Equal(t, res.Features, reloaded.Features)
	require.Len(t, reloaded.Groups, 3)

	reading := telemetry.SensorReading{SensorID: "NEW_0", Temperature: 92, Vibration: 6.5, RPM: 1450, Load: 0.85}
	want, err := res.Assign(reading)
	require.NoError(t, err)
	got, err := reloaded.Assign(reading)
	require.NoError(t, err)
	assert.Equal(t, want.ClusterID, got.ClusterID)
	assert.Equal(t, want.Confidence, got.Confidence)
	assert.InDelta(t, want.Distance, got.Distance, 1e-12)
}

// TestClusterHonorsCancellation checks both the fixed-k run and the elbow
// sweep abort on a canceled context.
func TestClusterHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Cluster(ctx, blobReadings(), Options{K: 3})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)

	res, err = Cluster(ctx, blobReadings(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

// TestClusterRejectsBadInput covers the validation surface.
func TestClusterRejectsBadInput(t *testing.T) {
	t.Parallel()

	invertedBands := DefaultProfileParams()
	invertedBands.TempHigh = 60

	negativeWeight := DefaultProfileParams()
	negativeWeight.AccidentWeight = -1

	nanReading := blobReadings()
	nanReading[0].Temperature = math.NaN()

	cases := []struct {
		name     string
		readings []telemetry.SensorReading
		opts     Options
	}{
		{"one reading", blobReadings()[:1], Options{}},
		{"negative k", blobReadings(), Options{K: -1}},
		{"negative max iterations", blobReadings(), Options{K: 3, MaxIterations: -5}},
		{"nan anomaly threshold", blobReadings(), Options{K: 3, AnomalyThreshold: math.NaN()}},
		{"negative anomaly threshold", blobReadings(), Options{K: 3, AnomalyThreshold: -1}},
		{"max auto k below two", blobReadings(), Options{MaxAutoK: 1}},
		{"unknown feature", blobReadings(), Options{K: 3, Features: []string{"temperature", "pressure"}}},
		{"non-finite reading", nanReading, Options{K: 3}},
		{"inverted profile bands", blobReadings(), Options{K: 3, Profile: invertedBands}},
		{"negative profile weight", blobReadings(), Options{K: 3, Profile: negativeWeight}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := Cluster(context.Background(), tc.readings, tc.opts)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, res)
		})
	}
}
