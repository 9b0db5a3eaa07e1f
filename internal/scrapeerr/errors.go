// Package scrapeerr holds the failure taxonomy shared by the browser,
// challenge and retry layers and the workflows built on top of them.
package scrapeerr

import (
	"errors"
	"fmt"
	"time"
)

// ErrCaptchaUnresolved matches any CaptchaUnresolvedError via errors.Is.
var ErrCaptchaUnresolved = errors.New("captcha unresolved")

// Kind is the coarse class a workflow uses to decide between skip, stop and abort.
type Kind int

const (
	KindTransient Kind = iota
	KindConfiguration
	KindSessionLaunch
	KindCaptcha
	KindRetryExhausted
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindSessionLaunch:
		return "session_launch"
	case KindCaptcha:
		return "captcha_unresolved"
	case KindRetryExhausted:
		return "retry_exhausted"
	default:
		return "transient"
	}
}

// ConfigurationError reports malformed or empty fingerprint/selector configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// SessionLaunchError reports that the browser process or its context could not be started.
type SessionLaunchError struct {
	Stage string
	Err   error
}

func (e *SessionLaunchError) Error() string {
	return fmt.Sprintf("failed to launch browser session (%s): %v", e.Stage, e.Err)
}

func (e *SessionLaunchError) Unwrap() error {
	return e.Err
}

// CaptchaUnresolvedError is returned when a challenge did not clear in time.
// Phase is "before" or "after" the guarded action.
type CaptchaUnresolvedError struct {
	Phase  string
	Waited time.Duration
}

func (e *CaptchaUnresolvedError) Error() string {
	return fmt.Sprintf("captcha unresolved %s action after %s", e.Phase, e.Waited.Round(time.Second))
}

func (e *CaptchaUnresolvedError) Is(target error) bool {
	return target == ErrCaptchaUnresolved
}

// RetryExhaustedError wraps the last transient error once the attempt cap is reached.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// Classify maps err onto the taxonomy. Unknown errors are transient.
func Classify(err error) Kind {
	var (
		cfgErr    *ConfigurationError
		launchErr *SessionLaunchError
		retryErr  *RetryExhaustedError
	)
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, ErrCaptchaUnresolved):
		return KindCaptcha
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &launchErr):
		return KindSessionLaunch
	case errors.As(err, &retryErr):
		return KindRetryExhausted
	default:
		return KindTransient
	}
}
