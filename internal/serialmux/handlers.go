package serialmux

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/missionmap/internal/missionmap"
	"github.com/banshee-data/missionmap/internal/monitoring"
	"github.com/banshee-data/missionmap/internal/timeutil"
)

// PoseEvent is one pose taken off the feed, whether or not the session
// recorded it.
type PoseEvent struct {
	SessionID  string
	Pose       Pose
	Recorded   bool
	ReceivedAt time.Time
}

// Handler applies feed lines to a session.
type Handler struct {
	Session *missionmap.Session
	// OnPose, when set, receives every parsed pose.
	OnPose func(PoseEvent) error
	Logf   monitoring.Logf
	Clock  timeutil.Clock
}

// HandleEvent applies a single feed line to session without logging poses.
func HandleEvent(session *missionmap.Session, payload string) error {
	return (&Handler{Session: session, Logf: monitoring.Discard}).HandleEvent(payload)
}

// HandleEvent classifies payload and applies it. Poses received while the
// session is not recording are dropped by the session but still logged.
func (h *Handler) HandleEvent(payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypePose:
		pose, err := ParsePose(payload)
		if err != nil {
			return fmt.Errorf("failed to handle pose event: %w", err)
		}
		recorded := h.Session.UpdatePose(pose.X, pose.Y, pose.Theta)
		if h.OnPose != nil {
			err := h.OnPose(PoseEvent{
				SessionID:  h.Session.ID(),
				Pose:       pose,
				Recorded:   recorded,
				ReceivedAt: h.clock().Now(),
			})
			if err != nil {
				h.logf()("failed to log pose: %v", err)
			}
		}
	case EventTypeControl:
		if err := h.applyControl(strings.ToLower(strings.TrimSpace(payload))); err != nil {
			return fmt.Errorf("failed to handle control event: %w", err)
		}
	default:
		h.logf()("unknown event type: %s", payload)
	}
	return nil
}

func (h *Handler) applyControl(cmd string) error {
	var err error
	switch cmd {
	case ControlStart:
		err = h.Session.Start()
	case ControlPause:
		err = h.Session.Pause()
	case ControlResume:
		err = h.Session.Resume()
	case ControlStop:
		err = h.Session.Stop()
	default:
		return fmt.Errorf("unknown control command %q", cmd)
	}
	if err == nil {
		h.logf()("control %s: session now %s", cmd, h.Session.State())
	}
	return err
}

// Run subscribes to mux and handles lines until ctx is done or the mux
// closes the subscription.
func (h *Handler) Run(ctx context.Context, mux SerialMuxInterface) {
	id, c := mux.Subscribe()
	defer mux.Unsubscribe(id)
	for {
		select {
		case payload, ok := <-c:
			if !ok {
				h.logf()("subscription closed")
				return
			}
			if err := h.HandleEvent(payload); err != nil {
				h.logf()("error handling event: %v", err)
			}
		case <-ctx.Done():
			h.logf()("subscribe routine terminated")
			return
		}
	}
}

func (h *Handler) logf() monitoring.Logf {
	return monitoring.OrDefault(h.Logf)
}

func (h *Handler) clock() timeutil.Clock {
	if h.Clock == nil {
		return timeutil.RealClock{}
	}
	return h.Clock
}
