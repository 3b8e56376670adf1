package recaptchabuster

import (
	"fmt"
	"time"
)

// ConfigurationError is returned when a session cannot be provisioned from the given settings,
// e.g. the extension package does not exist or no browser executable was found
type ConfigurationError struct {
	Message string
	Cause   error
}

func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		Message: message,
		Cause:   cause,
	}
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// ElementNotFoundError is returned when none of the selectors matched an element in the current frame
type ElementNotFoundError struct {
	Selectors []string
}

func NewElementNotFoundError(selectors ...string) *ElementNotFoundError {
	return &ElementNotFoundError{
		Selectors: selectors,
	}
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %q", e.Selectors)
}

// TimeoutError is returned when a wait exceeded its deadline without the condition being met
type TimeoutError struct {
	Message string
	Timeout time.Duration
}

func NewTimeoutError(message string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{
		Message: message,
		Timeout: timeout,
	}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Timeout, e.Message)
}
