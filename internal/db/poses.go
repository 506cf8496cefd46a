package db

import (
	"fmt"
	"time"
)

// PoseEvent is one pose received from the feed.
type PoseEvent struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Theta      float64   `json:"theta"`
	Recorded   bool      `json:"recorded"` // false when the session was not recording
	ReceivedAt time.Time `json:"received_at"`
}

// RecordPose appends a pose to the raw pose log.
func (db *DB) RecordPose(e PoseEvent) error {
	_, err := db.Exec(
		`INSERT INTO pose_events (session_id, x, y, theta, recorded, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.X, e.Y, e.Theta, e.Recorded, formatTime(e.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pose: %w", err)
	}
	return nil
}

// PoseEvents returns the logged poses of a session in arrival order.
func (db *DB) PoseEvents(sessionID string) ([]PoseEvent, error) {
	rows, err := db.Query(
		`SELECT event_id, session_id, x, y, theta, recorded, received_at
		FROM pose_events WHERE session_id = ? ORDER BY event_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query poses: %w", err)
	}
	defer rows.Close()

	var out []PoseEvent
	for rows.Next() {
		var (
			e  PoseEvent
			at string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.X, &e.Y, &e.Theta, &e.Recorded, &at); err != nil {
			return nil, fmt.Errorf("failed to scan pose: %w", err)
		}
		if e.ReceivedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
