package models

// Brew states reported in TelemetrySnapshot.BrewState.
const (
	BrewStateIdle    = "IDLE"
	BrewStateBrewing = "BREWING"
	BrewStateRinsing = "RINSING"
	BrewStateUnknown = "UNKNOWN"
)

// TelemetrySnapshot is one shot/scale reading produced by a telemetry source.
type TelemetrySnapshot struct {
	WeightG        float64 `json:"weight_g"`
	FlowGPerS      float64 `json:"flow_g_s"`
	ShotTimeMs     int64   `json:"shot_time_ms"`
	TargetWeightG  float64 `json:"target_weight_g"`
	PressureBar    float64 `json:"pressure_bar"`
	BoilerTempC    float64 `json:"boiler_temp_c"`
	GroupTempC     float64 `json:"group_temp_c"`
	BrewState      string  `json:"brew_state"`
	ScaleConnected bool    `json:"scale_connected"`
	Notes          string  `json:"notes,omitempty"` // source label or transient error text
}
