package serialmux

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	EventTypePose    = "pose"
	EventTypeControl = "control"
	EventTypeUnknown = "unknown"
)

// Control commands accepted on the feed.
const (
	ControlStart  = "start"
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlStop   = "stop"
)

// Pose is one world-frame pose report.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// ClassifyPayload inspects a line and returns its event type token. It
// only looks at the shape of the line; ParsePose does the validation.
func ClassifyPayload(payload string) string {
	p := strings.TrimSpace(payload)
	switch {
	case p == "":
		return EventTypeUnknown
	case isControl(p):
		return EventTypeControl
	case strings.HasPrefix(p, "{"):
		if strings.Contains(p, `"x"`) && strings.Contains(p, `"y"`) {
			return EventTypePose
		}
		return EventTypeUnknown
	case strings.Count(p, ",") == 1 || strings.Count(p, ",") == 2:
		return EventTypePose
	}
	return EventTypeUnknown
}

func isControl(p string) bool {
	switch strings.ToLower(p) {
	case ControlStart, ControlPause, ControlResume, ControlStop:
		return true
	}
	return false
}

// ParsePose decodes "x,y[,theta]" or {"x":..,"y":..,"theta":..}. Theta
// defaults to 0. Non-finite values are rejected.
func ParsePose(payload string) (Pose, error) {
	p := strings.TrimSpace(payload)
	var pose Pose

	if strings.HasPrefix(p, "{") {
		var raw struct {
			X     *float64 `json:"x"`
			Y     *float64 `json:"y"`
			Theta *float64 `json:"theta"`
		}
		if err := json.Unmarshal([]byte(p), &raw); err != nil {
			return Pose{}, fmt.Errorf("failed to unmarshal pose JSON: %w", err)
		}
		if raw.X == nil || raw.Y == nil {
			return Pose{}, fmt.Errorf("pose JSON missing x or y: %s", p)
		}
		pose.X, pose.Y = *raw.X, *raw.Y
		if raw.Theta != nil {
			pose.Theta = *raw.Theta
		}
	} else {
		segments := strings.Split(p, ",")
		if len(segments) != 2 && len(segments) != 3 {
			return Pose{}, fmt.Errorf("invalid pose format: %s, expected x,y[,theta]", p)
		}
		values := make([]float64, 3)
		for i, seg := range segments {
			v, err := strconv.ParseFloat(strings.TrimSpace(seg), 64)
			if err != nil {
				return Pose{}, fmt.Errorf("failed to parse pose field %d: %w", i, err)
			}
			values[i] = v
		}
		pose = Pose{X: values[0], Y: values[1], Theta: values[2]}
	}

	for _, v := range []float64{pose.X, pose.Y, pose.Theta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Pose{}, fmt.Errorf("pose has non-finite value: %s", p)
		}
	}
	return pose, nil
}
