package device

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"espresso_rig/internal/models"
)

// parseStatus maps the decoded /status object onto a DeviceStatus. Missing or mistyped fields
// keep their defaults; the whole object is kept in Raw.
func parseStatus(data map[string]any) models.DeviceStatus {
	st := models.DefaultDeviceStatus()

	st.Mode = asString(data["mode"], st.Mode)
	st.Paddle = asInt(data["paddle"], 0)
	st.RelayMain = asInt(data["relay_main"], 0)
	st.Override = asString(data["override"], st.Override)
	st.FlushActive = asBool(data["flush_active"], false)
	st.GestureEnabled = asBool(data["gesture_enabled"], true)
	st.GestureFlushMs = asInt(data["gesture_flush_ms"], 0)
	st.GesturePulseMinMs = asInt(data["gesture_pulse_min_ms"], 0)
	st.GesturePulseMaxMs = asInt(data["gesture_pulse_max_ms"], 0)
	st.Raw = data
	return st
}

func asString(v any, def string) string {
	switch t := v.(type) {
	case nil:
		return def
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return def
	}
}

func asInt(v any, def int) int {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return def
		}
		return int(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return int(f)
		}
		return def
	default:
		return def
	}
}

func asBool(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "yes":
			return true
		case "off", "no":
			return false
		}
		return def
	default:
		return def
	}
}
