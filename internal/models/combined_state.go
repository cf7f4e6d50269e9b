package models

import (
	"strings"
	"time"
)

// CombinedState is the unit published to the display: both halves come from the same poll cycle.
type CombinedState struct {
	Timestamp time.Time         `json:"timestamp"`
	Device    DeviceStatus      `json:"device"`
	Shot      TelemetrySnapshot `json:"shot"`
}

// Clone returns a copy that shares no mutable memory with s.
func (s CombinedState) Clone() CombinedState {
	out := s
	if s.Device.Raw != nil {
		out.Device.Raw = cloneRaw(s.Device.Raw)
	}
	return out
}

// cloneRaw deep-copies a decoded JSON object; nested objects and arrays are copied too.
func cloneRaw(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneRaw(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneJSONValue(e)
		}
		return out
	default:
		return v
	}
}

// StatusLine joins the device error and the telemetry note the way the display shows them.
func (s CombinedState) StatusLine() string {
	parts := make([]string, 0, 2)
	if s.Device.LastError != "" {
		parts = append(parts, s.Device.LastError)
	}
	if s.Shot.Notes != "" {
		parts = append(parts, s.Shot.Notes)
	}
	return strings.Join(parts, " | ")
}
