package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/foundryline/plantsafe/internal/alerts"
	"github.com/foundryline/plantsafe/internal/analytics"
	"github.com/foundryline/plantsafe/internal/cluster"
	"github.com/foundryline/plantsafe/internal/config"
	"github.com/foundryline/plantsafe/internal/optimize"
	"github.com/foundryline/plantsafe/internal/pathplan"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// The engines take plain parameter structs and never read config themselves.
// These helpers are the single place the safety config maps onto them.

func scoreParams(cfg *config.SafetyConfig) optimize.ScoreParams {
	return optimize.ScoreParams{
		TemperatureOptimal:   cfg.GetTemperatureOptimal(),
		TemperatureTolerance: cfg.GetTemperatureTolerance(),
		VibrationOptimal:     cfg.GetVibrationOptimal(),
		VibrationTolerance:   cfg.GetVibrationTolerance(),
		LoadOptimal:          cfg.GetLoadOptimal(),
		LoadTolerance:        cfg.GetLoadTolerance(),
		WeightTemperature:    cfg.GetWeightTemperature(),
		WeightVibration:      cfg.GetWeightVibration(),
		WeightLoad:           cfg.GetWeightLoad(),
	}
}

func optimizeParams(cfg *config.SafetyConfig, seed int64) optimize.Params {
	return optimize.Params{
		Score:             scoreParams(cfg),
		TemperatureBounds: optimize.Bounds{Min: cfg.GetTemperatureMin(), Max: cfg.GetTemperatureMax()},
		VibrationBounds:   optimize.Bounds{Min: cfg.GetVibrationMin(), Max: cfg.GetVibrationMax()},
		LoadBounds:        optimize.Bounds{Min: cfg.GetLoadMin(), Max: cfg.GetLoadMax()},
		StepTemperature:   cfg.GetStepTemperature(),
		StepVibration:     cfg.GetStepVibration(),
		StepLoad:          cfg.GetStepLoad(),
		MaxIterations:     cfg.GetMaxIterations(),
		ConvergenceWindow: cfg.GetConvergenceWindow(),
		Seed:              seed,
		RecordTrace:       true,
	}
}

func clusterOptions(cfg *config.SafetyConfig, k int, seed int64, scorer func(telemetry.SensorReading) (float64, error)) cluster.Options {
	profile := cluster.DefaultProfileParams()
	profile.TempElevated = cfg.GetProfileTempElevated()
	profile.TempHigh = cfg.GetProfileTempHigh()
	profile.VibElevated = cfg.GetProfileVibElevated()
	profile.VibHigh = cfg.GetProfileVibHigh()
	return cluster.Options{
		K:                k,
		MaxIterations:    cfg.GetKMeansMaxIterations(),
		MaxAutoK:         cfg.GetAutoKMax(),
		AnomalyThreshold: cfg.GetAnomalyStdThreshold(),
		Seed:             seed,
		Profile:          profile,
		AccidentScore:    scorer,
	}
}

func alertParams(cfg *config.SafetyConfig) alerts.Params {
	return alerts.Params{
		Temperature: alerts.Thresholds{
			Warning:  cfg.GetAlertTemperatureWarning(),
			Critical: cfg.GetAlertTemperatureCritical(),
		},
		Vibration: alerts.Thresholds{
			Warning:  cfg.GetAlertVibrationWarning(),
			Critical: cfg.GetAlertVibrationCritical(),
		},
		RPM: alerts.Thresholds{
			Warning:  cfg.GetAlertRPMWarning(),
			Critical: cfg.GetAlertRPMCritical(),
		},
		Load: alerts.Thresholds{
			Warning:  cfg.GetAlertLoadWarning(),
			Critical: cfg.GetAlertLoadCritical(),
		},
		AccidentProbability: alerts.Thresholds{
			Warning:  cfg.GetAlertProbabilityWarning(),
			Critical: cfg.GetAlertProbabilityCritical(),
		},
	}
}

func maintenanceThresholds(cfg *config.SafetyConfig) analytics.MaintenanceThresholds {
	return analytics.MaintenanceThresholds{
		Temperature: cfg.GetMaintenanceTemperature(),
		Vibration:   cfg.GetMaintenanceVibration(),
		RPM:         cfg.GetMaintenanceRPM(),
		Load:        cfg.GetMaintenanceLoad(),
	}
}

// riskSpec is one hazard cell in a grid file.
type riskSpec struct {
	Cell pathplan.Cell `json:"cell"`
	Risk float64       `json:"risk"`
}

// gridSpec is the JSON layout of a floor grid: dimensions, blocked cells,
// hazard cells, and optional default endpoints.
type gridSpec struct {
	Rows    int             `json:"rows"`
	Cols    int             `json:"cols"`
	Blocked []pathplan.Cell `json:"blocked,omitempty"`
	Risks   []riskSpec      `json:"risks,omitempty"`
	Start   *pathplan.Cell  `json:"start,omitempty"`
	Goal    *pathplan.Cell  `json:"goal,omitempty"`
}

func (s gridSpec) build() (*pathplan.Grid, error) {
	sources := make([]pathplan.RiskSource, len(s.Risks))
	for i, r := range s.Risks {
		sources[i] = pathplan.RiskSource{Cell: r.Cell, Risk: r.Risk}
	}
	g, err := pathplan.BuildRiskGrid(s.Rows, s.Cols, sources)
	if err != nil {
		return nil, err
	}
	for _, c := range s.Blocked {
		if err := g.SetBlocked(c, true); err != nil {
			return nil, fmt.Errorf("blocked cell %d,%d: %w", c.Row, c.Col, err)
		}
	}
	return g, nil
}

func loadGridSpec(path string) (gridSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gridSpec{}, fmt.Errorf("read grid file: %w", err)
	}
	var spec gridSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return gridSpec{}, fmt.Errorf("parse grid file %s: %w", path, err)
	}
	return spec, nil
}

// demoGrid is a 10x14 floor with a partial wall and two hazard zones, used
// when no grid file is given.
func demoGrid() gridSpec {
	var blocked []pathplan.Cell
	for row := 2; row <= 7; row++ {
		blocked = append(blocked, pathplan.Cell{Row: row, Col: 6})
	}
	return gridSpec{
		Rows:    10,
		Cols:    14,
		Blocked: blocked,
		Risks: []riskSpec{
			{Cell: pathplan.Cell{Row: 1, Col: 10}, Risk: 0.9},
			{Cell: pathplan.Cell{Row: 1, Col: 11}, Risk: 0.8},
			{Cell: pathplan.Cell{Row: 2, Col: 10}, Risk: 0.7},
			{Cell: pathplan.Cell{Row: 2, Col: 11}, Risk: 0.6},
			{Cell: pathplan.Cell{Row: 8, Col: 3}, Risk: 0.4},
			{Cell: pathplan.Cell{Row: 8, Col: 4}, Risk: 0.3},
		},
	}
}

// parseCell parses a "row,col" flag value.
func parseCell(s string) (pathplan.Cell, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return pathplan.Cell{}, fmt.Errorf("cell %q: want row,col", s)
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return pathplan.Cell{}, fmt.Errorf("cell %q: %w", s, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return pathplan.Cell{}, fmt.Errorf("cell %q: %w", s, err)
	}
	return pathplan.Cell{Row: row, Col: col}, nil
}
