package geo

import (
	"errors"
	"fmt"
	"time"
)

// Position is a single device fix.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Options mirror what the mobile client asks the device for. The server uses
// MaxAge to reject stale fixes.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// DefaultOptions are the check-in settings: high accuracy, 15s to acquire,
// fixes up to a minute old.
var DefaultOptions = Options{
	HighAccuracy: true,
	Timeout:      15 * time.Second,
	MaxAge:       60 * time.Second,
}

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location unavailable")
	ErrTimeout             = errors.New("location request timed out")
	ErrUnsupported         = errors.New("geolocation not supported")
	ErrInvalidPosition     = errors.New("invalid position")
	ErrStalePosition       = errors.New("position is too old")
)

// Device error codes as reported by the browser geolocation API.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// FromCode maps a device error code to its sentinel error.
func FromCode(code int) error {
	switch code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodePositionUnavailable:
		return ErrPositionUnavailable
	case CodeTimeout:
		return ErrTimeout
	default:
		return fmt.Errorf("geolocation error code %d", code)
	}
}

// Message returns the text shown to the crew member for err.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location permission denied. Please enable GPS in settings."
	case errors.Is(err, ErrPositionUnavailable):
		return "Location unavailable. Please try again."
	case errors.Is(err, ErrTimeout):
		return "Location request timed out. Please try again."
	case errors.Is(err, ErrUnsupported):
		return "Geolocation is not supported on this device"
	case errors.Is(err, ErrStalePosition):
		return "Location fix is out of date. Please try again."
	case errors.Is(err, ErrInvalidPosition):
		return "Location coordinates are invalid."
	default:
		return "Unable to get location"
	}
}

// Validate checks coordinate ranges and, when CapturedAt is set, that the fix
// is no older than opts.MaxAge at now.
func (p Position) Validate(now time.Time, opts Options) error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidPosition, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidPosition, p.Longitude)
	}
	if p.Accuracy < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidPosition)
	}
	if !p.CapturedAt.IsZero() && opts.MaxAge > 0 && now.Sub(p.CapturedAt) > opts.MaxAge {
		return fmt.Errorf("%w: captured %s ago", ErrStalePosition, now.Sub(p.CapturedAt).Round(time.Second))
	}
	return nil
}
