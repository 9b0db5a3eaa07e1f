package scrapeerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", errors.New("element not found"), KindTransient},
		{"configuration", &ConfigurationError{Field: "user_agents", Reason: "empty"}, KindConfiguration},
		{"wrapped launch", fmt.Errorf("open: %w", &SessionLaunchError{Stage: "launch", Err: errors.New("no binary")}), KindSessionLaunch},
		{"captcha", &CaptchaUnresolvedError{Phase: "before", Waited: 300 * time.Second}, KindCaptcha},
		{"wrapped captcha", fmt.Errorf("item: %w", &CaptchaUnresolvedError{Phase: "after"}), KindCaptcha},
		{"retry exhausted", &RetryExhaustedError{Attempts: 3, Last: errors.New("timeout")}, KindRetryExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryExhaustedUnwrap(t *testing.T) {
	last := errors.New("navigation timeout")
	err := &RetryExhaustedError{Attempts: 3, Last: last}

	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestCaptchaUnresolvedIs(t *testing.T) {
	err := &CaptchaUnresolvedError{Phase: "after", Waited: 300 * time.Second}

	assert.ErrorIs(t, err, ErrCaptchaUnresolved)
	assert.Equal(t, "captcha unresolved after action after 5m0s", err.Error())
}
