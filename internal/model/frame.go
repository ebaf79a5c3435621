package model

import "time"

// DefaultCameraID is used when a producer or consumer omits the camera id.
const DefaultCameraID = "default"

// Frame represents the most recent image captured by one camera.
// Payload is opaque to the relay and must not be modified once stored.
type Frame struct {
	CameraID   string    `json:"cameraId"`
	Payload    string    `json:"imageData"`
	CapturedAt time.Time `json:"timestamp"`
}

// Age reports how old the frame is at the given instant.
func (f Frame) Age(now time.Time) time.Duration {
	return now.Sub(f.CapturedAt)
}

// Expired reports whether the frame is older than ttl at the given instant.
func (f Frame) Expired(now time.Time, ttl time.Duration) bool {
	return f.Age(now) > ttl
}
