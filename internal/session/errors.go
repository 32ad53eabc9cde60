package session

import (
	"errors"
	"fmt"
)

// ErrSetupFailed matches every [*SetupError] via errors.Is.
var ErrSetupFailed = errors.New("session: setup failed")

// ErrSuperseded is returned by a Start whose attempt was invalidated by a
// Stop before negotiation completed. Everything it built is torn down.
var ErrSuperseded = errors.New("session: start superseded")

// FailureKind classifies a failed session start.
type FailureKind string

const (
	// KindPermission: the microphone or speaker could not be acquired.
	KindPermission FailureKind = "permission"

	// KindOffer: the peer connection, data channel, track or local offer
	// could not be created.
	KindOffer FailureKind = "offer"

	// KindNegotiation: the backend exchange failed or its answer was
	// rejected.
	KindNegotiation FailureKind = "negotiation"
)

// SetupError reports why Start failed.
type SetupError struct {
	Kind FailureKind
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("session: %s failed: %v", e.Kind, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrSetupFailed].
func (e *SetupError) Is(target error) bool { return target == ErrSetupFailed }

func setupError(kind FailureKind, err error) error {
	return &SetupError{Kind: kind, Err: err}
}
