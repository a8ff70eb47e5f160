package model

import "math"

// Sample is one CPU/RPS reading reported by a device.
type Sample struct {
	DeviceID  string  `json:"device_id,omitempty"`
	CPU       float64 `json:"cpu"`
	RPS       float64 `json:"rps"`
	Timestamp int64   `json:"timestamp"`
}

// Valid reports whether both readings are finite. Windows order samples,
// so NaN must never reach them.
func (s Sample) Valid() bool {
	if math.IsNaN(s.CPU) || math.IsNaN(s.RPS) {
		return false
	}
	if math.IsInf(s.CPU, 0) || math.IsInf(s.RPS, 0) {
		return false
	}
	return true
}
