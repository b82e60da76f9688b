package classifier

import (
	"context"
	"errors"
	"fmt"
)

// Provider names recorded on FileRecord.Provider
const (
	ProviderOllama   = "ollama"
	ProviderLMStudio = "lmstudio"
	ProviderOffline  = "offline"
)

// Classifier produces a category, summary and keywords for one file
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Result, error)
	Name() string
}

// Request describes the file to classify. Content holds at most the
// configured read cap; it is never the whole of a large file.
type Request struct {
	Path    string
	Name    string
	Ext     string // Lower-cased, with leading dot; empty if none
	Size    int64
	Content []byte
}

// Result is a classification
type Result struct {
	Category string   `json:"category"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Reason categorizes a classification failure
type Reason string

const (
	ReasonUnreachable Reason = "unreachable"
	ReasonTimeout     Reason = "timeout"
	ReasonMalformed   Reason = "malformed-response"
)

// ClassificationError is returned by remote classifiers
type ClassificationError struct {
	Reason  Reason
	Message string
	Cause   error
}

func (e *ClassificationError) Error() string {
	msg := string(e.Reason)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClassificationError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt might succeed
func (e *ClassificationError) Retryable() bool {
	return e.Reason == ReasonUnreachable || e.Reason == ReasonTimeout
}

// IsRetryable reports whether err is a retryable *ClassificationError
func IsRetryable(err error) bool {
	var ce *ClassificationError
	return errors.As(err, &ce) && ce.Retryable()
}

// ReasonOf returns the failure reason of err, or "" if err is not a *ClassificationError
func ReasonOf(err error) Reason {
	var ce *ClassificationError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

func newError(reason Reason, cause error, format string, args ...any) *ClassificationError {
	return &ClassificationError{Reason: reason, Message: fmt.Sprintf(format, args...), Cause: cause}
}
