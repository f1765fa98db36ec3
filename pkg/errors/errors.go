package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents page loads that produced no HTML
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeExtraction represents unexpected failures while extracting an item
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypePersistence represents sink errors
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeSession represents a browser session that cannot be used at all
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
)

// ScrapeError represents a typed pipeline error
type ScrapeError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error must abort the whole run
func (e *ScrapeError) IsFatal() bool {
	return e.Type == ErrorTypeSession
}

// IsRetryable returns true if the same request may succeed when repeated.
// Rate limits are not retryable inside their block window.
func (e *ScrapeError) IsRetryable() bool {
	return e.Type == ErrorTypeNavigation
}

// New creates a new ScrapeError
func New(errType ErrorType, source, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(source, message string, err error) *ScrapeError {
	return New(ErrorTypeNavigation, source, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(source, message string, err error) *ScrapeError {
	return New(ErrorTypeExtraction, source, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *ScrapeError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewPersistence creates a new persistence error
func NewPersistence(source, message string, err error) *ScrapeError {
	return New(ErrorTypePersistence, source, message, err)
}

// NewSession creates a new session error
func NewSession(message string, err error) *ScrapeError {
	return New(ErrorTypeSession, "browser", message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *ScrapeError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the ErrorType of the first ScrapeError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Type, true
	}
	return "", false
}

// IsFatal reports whether err's chain contains a fatal ScrapeError
func IsFatal(err error) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.IsFatal()
}

// IsRetryable reports whether err's chain contains a retryable ScrapeError
func IsRetryable(err error) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.IsRetryable()
}
