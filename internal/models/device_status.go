package models

// Override values accepted by the controller's /override endpoint.
const (
	OverrideOn       = "1"
	OverrideForceOff = "0"
	OverrideDisabled = "off"
)

// ModeUnknown is reported when the controller did not send a mode.
const ModeUnknown = "UNKNOWN"

// DeviceStatus mirrors the controller's /status response for a single poll cycle.
type DeviceStatus struct {
	Mode              string         `json:"mode"`   // AUTO | MANUAL | UNKNOWN
	Paddle            int            `json:"paddle"` // 1 = closed (brewing)
	RelayMain         int            `json:"relay_main"`
	Override          string         `json:"override"` // on | off | 1 | 0
	FlushActive       bool           `json:"flush_active"`
	GestureEnabled    bool           `json:"gesture_enabled"`
	GestureFlushMs    int            `json:"gesture_flush_ms"`
	GesturePulseMinMs int            `json:"gesture_pulse_min_ms"`
	GesturePulseMaxMs int            `json:"gesture_pulse_max_ms"`
	Raw               map[string]any `json:"raw,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
}

// DefaultDeviceStatus returns the status reported when nothing could be read.
func DefaultDeviceStatus() DeviceStatus {
	return DeviceStatus{
		Mode:           ModeUnknown,
		Override:       OverrideDisabled,
		GestureEnabled: true,
	}
}

// PaddleClosed reports whether a shot is being pulled on the controller.
func (s DeviceStatus) PaddleClosed() bool {
	return s.Paddle == 1
}

// OverrideState collapses the controller's override spellings into a tri-state.
func (s DeviceStatus) OverrideState() string {
	switch s.Override {
	case "on", OverrideOn:
		return OverrideOn
	case OverrideForceOff:
		return OverrideForceOff
	default:
		return OverrideDisabled
	}
}
