package snapshot

import (
	"errors"
	"strings"

	"worthbar/internal/hostdata"
)

// ErrNoBalanceData indicates filtering left no balance rows to total.
var ErrNoBalanceData = errors.New("no balance totals available")

// Classification codes for a fully failed snapshot attempt.
const (
	CodeSigninRequired = "signin_required"
	CodeUnavailable    = "unavailable"
)

// ClassifiedError is the combined failure of both acquisition paths. Err
// is the original live-path error.
type ClassifiedError struct {
	Code string
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Code + ": " + e.Err.Error() }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// signinKeywords mark error messages that indicate missing or invalid
// session data rather than a transient failure.
var signinKeywords = []string{"authsession", "signed in", "logged in", "refreshtoken", "datasetid"}

// Classify downgrades failures that indicate "not signed in" to
// CodeSigninRequired so the caller can render a prompt instead of an
// error; everything else is CodeUnavailable.
func Classify(err error) string {
	if errors.Is(err, hostdata.ErrSessionNotFound) {
		return CodeSigninRequired
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range signinKeywords {
		if strings.Contains(msg, kw) {
			return CodeSigninRequired
		}
	}
	return CodeUnavailable
}
