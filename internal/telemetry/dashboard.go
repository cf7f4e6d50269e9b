package telemetry

import (
	"strings"
	"time"

	"espresso_rig/internal/cloud"
	"espresso_rig/internal/models"
)

// parseDashboard maps the dashboard widgets onto a reading. Live scale values are not
// exposed by the cloud, so weight, flow, pressure, group temperature and scale state
// are carried over from prev.
func parseDashboard(d cloud.Dashboard, prev models.TelemetrySnapshot, now time.Time) models.TelemetrySnapshot {
	out := prev
	if len(d.Widgets) == 0 {
		out.Notes = NoDashboardNote
		return out
	}

	status := d.Output(cloud.MachineStatusWidget)
	out.BrewState = brewState(status["status"])
	out.ShotTimeMs = 0
	if start, ok := status["brewingStartTime"].(float64); ok {
		out.ShotTimeMs = max(0, now.UnixMilli()-int64(start))
	}

	if w := doseWeight(d.Output(cloud.BrewByWeightDosesWidget)); w > 0 {
		out.TargetWeightG = w
	}

	boiler := d.Output(cloud.CoffeeBoilerWidget)
	if t := number(boiler["target"]); t > 0 {
		out.BoilerTempC = t
	} else if t := number(boiler["temperature"]); t > 0 {
		out.BoilerTempC = t
	}

	out.Notes = CloudNote
	return out
}

// brewState normalizes the machine status; unknown values pass through upper-cased.
func brewState(v any) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return models.BrewStateUnknown
	}
	switch up := strings.ToUpper(s); up {
	case "BREWING":
		return models.BrewStateBrewing
	case "RINSING", "FLUSHING", "BACKFLUSHING":
		return models.BrewStateRinsing
	case "STANDBY", "POWEREDON", "READY", "IDLE":
		return models.BrewStateIdle
	default:
		return up
	}
}

func doseWeight(out map[string]any) float64 {
	doses, ok := out["doses"].(map[string]any)
	if !ok {
		return 0
	}
	for _, key := range []string{"dose_1", "Dose1"} {
		if dose, ok := doses[key].(map[string]any); ok {
			return number(dose["weight"])
		}
	}
	return 0
}

func number(v any) float64 {
	f, _ := v.(float64)
	return f
}
