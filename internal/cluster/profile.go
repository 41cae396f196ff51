package cluster

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// ProfileParams sets the bands used to characterize clusters and the
// weights that compose the per-cluster risk score.
type ProfileParams struct {
	TempHigh     float64 // °F
	TempElevated float64
	VibHigh      float64 // m/s²
	VibElevated  float64
	LoadHigh     float64 // fraction of rated capacity
	LoadElevated float64
	// Risk score composition: AccidentWeight multiplies the cluster's mean
	// accident probability, the bumps add on for exceeded bands.
	AccidentWeight float64
	HighBump       float64
	ElevatedBump   float64
	// Score cutoffs mapping the composite onto risk tiers.
	HighScore   float64
	MediumScore float64
}

// DefaultProfileParams returns the reference profiling bands.
func DefaultProfileParams() ProfileParams {
	return ProfileParams{
		TempHigh:       80,
		TempElevated:   70,
		VibHigh:        5.0,
		VibElevated:    3.5,
		LoadHigh:       0.8,
		LoadElevated:   0.5,
		AccidentWeight: 3.0,
		HighBump:       0.3,
		ElevatedBump:   0.1,
		HighScore:      2.0,
		MediumScore:    1.0,
	}
}

func (p ProfileParams) validate() error {
	if p.TempHigh <= p.TempElevated {
		return fmt.Errorf("%w: profile temperature bands inverted (high %.1f, elevated %.1f)", ErrInvalidInput, p.TempHigh, p.TempElevated)
	}
	if p.VibHigh <= p.VibElevated {
		return fmt.Errorf("%w: profile vibration bands inverted (high %.1f, elevated %.1f)", ErrInvalidInput, p.VibHigh, p.VibElevated)
	}
	if p.LoadHigh <= p.LoadElevated {
		return fmt.Errorf("%w: profile load bands inverted (high %.2f, elevated %.2f)", ErrInvalidInput, p.LoadHigh, p.LoadElevated)
	}
	if p.AccidentWeight < 0 || p.HighBump < 0 || p.ElevatedBump < 0 {
		return fmt.Errorf("%w: profile weights must not be negative", ErrInvalidInput)
	}
	if p.HighScore <= p.MediumScore {
		return fmt.Errorf("%w: profile score cutoffs inverted (high %.1f, medium %.1f)", ErrInvalidInput, p.HighScore, p.MediumScore)
	}
	return nil
}

// riskScore composes the cluster risk from the mean accident probability
// plus band bumps on the cluster's mean temperature and vibration.
func (p ProfileParams) riskScore(mean map[string]float64, accidentProxy float64) float64 {
	score := accidentProxy * p.AccidentWeight
	if t := mean[telemetry.FeatureTemperature]; t > p.TempHigh {
		score += p.HighBump
	} else if t > p.TempElevated {
		score += p.ElevatedBump
	}
	if v := mean[telemetry.FeatureVibration]; v > p.VibHigh {
		score += p.HighBump
	} else if v > p.VibElevated {
		score += p.ElevatedBump
	}
	return score
}

func (p ProfileParams) riskLevel(score float64) risk.Level {
	switch {
	case score > p.HighScore:
		return risk.High
	case score > p.MediumScore:
		return risk.Medium
	default:
		return risk.Low
	}
}

// characterize labels each canonical metric's cluster mean with a
// human-readable band.
func (p ProfileParams) characterize(mean map[string]float64) map[string]string {
	out := make(map[string]string, len(mean))
	for name, v := range mean {
		switch name {
		case telemetry.FeatureTemperature:
			switch {
			case v > p.TempHigh:
				out[name] = "High Temperature"
			case v > p.TempElevated:
				out[name] = "Moderate Temperature"
			default:
				out[name] = "Normal Temperature"
			}
		case telemetry.FeatureVibration:
			switch {
			case v > p.VibHigh:
				out[name] = "High Vibration"
			case v > p.VibElevated:
				out[name] = "Moderate Vibration"
			default:
				out[name] = "Normal Vibration"
			}
		case telemetry.FeatureLoad:
			switch {
			case v > p.LoadHigh:
				out[name] = "High Load"
			case v > p.LoadElevated:
				out[name] = "Moderate Load"
			default:
				out[name] = "Low Load"
			}
		default:
			out[name] = fmt.Sprintf("Value: %.2f", v)
		}
	}
	return out
}

// Maintenance recommendations per risk tier, surfaced verbatim in reports.
const (
	recommendHigh   = "Immediate inspection and maintenance required. Consider reducing load or adjusting parameters."
	recommendMedium = "Schedule preventive maintenance. Monitor closely for any changes."
	recommendLow    = "Normal operation. Continue regular maintenance schedule."
)

func recommendationFor(level risk.Level) string {
	switch level {
	case risk.High:
		return recommendHigh
	case risk.Medium:
		return recommendMedium
	default:
		return recommendLow
	}
}

// buildGroups assembles the per-cluster profiles. Statistics cover every
// canonical metric in raw units regardless of which features were
// clustered, so a partition on a feature subset still profiles fully.
func buildGroups(readings []telemetry.SensorReading, run kmeansRun, p ProfileParams, scorer func(telemetry.SensorReading) (float64, error)) ([]Group, error) {
	canonical := telemetry.DefaultFeatures()
	full, err := telemetry.Matrix(readings, canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ids := telemetry.SensorIDs(readings)

	groups := make([]Group, run.k)
	for c := 0; c < run.k; c++ {
		g := Group{
			ID:              c + 1,
			SensorIDs:       []string{},
			Centroid:        run.centroids[c],
			Mean:            map[string]float64{},
			Std:             map[string]float64{},
			Characteristics: map[string]string{},
		}
		var members []int
		for i, l := range run.labels {
			if l == c {
				members = append(members, i)
			}
		}
		g.Size = len(members)
		if g.Size == 0 {
			// Only degenerate duplicate input leaves a cluster empty after
			// re-seeding; report it with zeroed statistics.
			g.RiskLevel = risk.Low
			g.Recommendation = recommendationFor(risk.Low)
			groups[c] = g
			continue
		}

		for _, i := range members {
			g.SensorIDs = append(g.SensorIDs, ids[i])
		}
		col := make([]float64, len(members))
		for j, name := range canonical {
			for mi, i := range members {
				col[mi] = full[i][j]
			}
			g.Mean[name] = stat.Mean(col, nil)
			g.Std[name] = stat.PopStdDev(col, nil)
		}
		g.Characteristics = p.characterize(g.Mean)

		if scorer != nil {
			var sum float64
			for _, i := range members {
				prob, err := scorer(readings[i])
				if err != nil {
					return nil, fmt.Errorf("accident score for %s: %w", ids[i], err)
				}
				sum += prob
			}
			g.AccidentProxy = sum / float64(g.Size)
		}
		g.RiskScore = p.riskScore(g.Mean, g.AccidentProxy)
		g.RiskLevel = p.riskLevel(g.RiskScore)
		g.Recommendation = recommendationFor(g.RiskLevel)
		groups[c] = g
	}
	return groups, nil
}

// MaintenanceGroup collects the clusters sharing one maintenance priority.
type MaintenanceGroup struct {
	Priority       int        `json:"priority"` // 1 is most urgent
	RiskLevel      risk.Level `json:"risk_level"`
	ClusterIDs     []int      `json:"cluster_ids"`
	SensorIDs      []string   `json:"sensor_ids"`
	Recommendation string     `json:"recommendation"`
}

// MaintenanceGroups orders the result's clusters by descending risk so
// crews can be scheduled against the most urgent groups first. Tiers with
// no clusters are omitted.
func MaintenanceGroups(res *Result) []MaintenanceGroup {
	if res == nil {
		return nil
	}
	levels := risk.Levels()
	var out []MaintenanceGroup
	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]
		var members []Group
		for _, g := range res.Groups {
			if g.RiskLevel == level {
				members = append(members, g)
			}
		}
		if len(members) == 0 {
			continue
		}
		sort.SliceStable(members, func(a, b int) bool {
			return members[a].RiskScore > members[b].RiskScore
		})
		mg := MaintenanceGroup{
			Priority:       len(out) + 1,
			RiskLevel:      level,
			ClusterIDs:     []int{},
			SensorIDs:      []string{},
			Recommendation: recommendationFor(level),
		}
		for _, g := range members {
			mg.ClusterIDs = append(mg.ClusterIDs, g.ID)
			mg.SensorIDs = append(mg.SensorIDs, g.SensorIDs...)
		}
		out = append(out, mg)
	}
	return out
}

// RiskZone summarizes one cluster as a floor zone.
type RiskZone struct {
	ClusterID    int        `json:"cluster_id"`
	RiskLevel    risk.Level `json:"risk_level"`
	RiskScore    float64    `json:"risk_score"`
	SensorCount  int        `json:"sensor_count"`
	AnomalyCount int        `json:"anomaly_count"`
	Description  string     `json:"description"`
}

// RiskZones summarizes every cluster as a zone, most severe first.
func RiskZones(res *Result) []RiskZone {
	if res == nil {
		return nil
	}
	anomalies := make(map[int]int, len(res.Groups))
	for _, a := range res.Anomalies {
		anomalies[a.ClusterID]++
	}
	zones := make([]RiskZone, len(res.Groups))
	for i, g := range res.Groups {
		zones[i] = RiskZone{
			ClusterID:    g.ID,
			RiskLevel:    g.RiskLevel,
			RiskScore:    g.RiskScore,
			SensorCount:  g.Size,
			AnomalyCount: anomalies[g.ID],
			Description:  fmt.Sprintf("Cluster %d: %d sensors with %s risk level", g.ID, g.Size, g.RiskLevel),
		}
	}
	sort.SliceStable(zones, func(i, j int) bool {
		if zones[i].RiskLevel != zones[j].RiskLevel {
			return zones[i].RiskLevel.MoreSevere(zones[j].RiskLevel)
		}
		return zones[i].RiskScore > zones[j].RiskScore
	})
	return zones
}
