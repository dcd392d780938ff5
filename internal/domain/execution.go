package domain

import (
	"errors"
	"fmt"
)

// ExecutionRequest is one run of a buffer, resolved against the execution service's runtimes.
// It is built fresh for each run and never modified after submission.
type ExecutionRequest struct {
	Language        Language
	ServiceLanguage string
	RuntimeVersion  string
	FileName        string
	SourceContent   string
	Stdin           string
}

// ServiceRequest is the JSON body accepted by the execution service.
type ServiceRequest struct {
	Language           string        `json:"language"`
	Version            string        `json:"version"`
	Files              []ServiceFile `json:"files"`
	Stdin              string        `json:"stdin"`
	Args               []string      `json:"args"`
	CompileTimeout     int           `json:"compile_timeout"`
	RunTimeout         int           `json:"run_timeout"`
	CompileMemoryLimit int64         `json:"compile_memory_limit"`
	RunMemoryLimit     int64         `json:"run_memory_limit"`
}

type ServiceFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ServiceResponse is the JSON body returned by the execution service.
// Compile is only present for compiled languages. A response without Run is a
// contract violation unless the compile phase failed.
type ServiceResponse struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Compile  *ServicePhase `json:"compile,omitempty"`
	Run      *ServicePhase `json:"run,omitempty"`
	// Message is set by the service when it rejects the request.
	Message string `json:"message,omitempty"`
}

// ServicePhase is the outcome of the compile or run stage.
type ServicePhase struct {
	Stdout *string  `json:"stdout,omitempty"`
	Stderr *string  `json:"stderr,omitempty"`
	Output string   `json:"output"`
	Code   *int     `json:"code"`
	Signal *string  `json:"signal"`
	Time   *float64 `json:"time,omitempty"`
	// WallTime is reported by newer service versions instead of Time.
	WallTime *float64 `json:"wall_time,omitempty"`
}

// Runtime describes a language the execution service can run.
type Runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

var (
	// ErrEmptyBuffer is returned when a run is requested for an empty buffer.
	ErrEmptyBuffer = errors.New("no code to execute")
	// ErrExecutionInFlight is returned when a run is requested while another is outstanding.
	ErrExecutionInFlight = errors.New("an execution is already in progress")
	// ErrInvalidResponse marks a response that decoded but lacks the expected result shape.
	ErrInvalidResponse = errors.New("invalid response format")
	// ErrDiscarded is returned for a response that arrived after the client moved on.
	ErrDiscarded = errors.New("execution result discarded")
)

// TransportError is a failed exchange with the execution service: a non-success
// status, a network failure, or a body that is not valid JSON.
type TransportError struct {
	// Status is the HTTP status, zero when no response was received.
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("execution service returned %d: %s", e.Status, e.Message)
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("execution service returned %d: %v", e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("execution service returned %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("execution service unreachable: %v", e.Err)
	default:
		return "execution service call failed"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NoticeKind classifies a user-visible notification.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeFailure
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeSuccess:
		return "success"
	case NoticeFailure:
		return "failure"
	default:
		return "info"
	}
}

// Notifier surfaces events to the user (toasts in a UI, log lines in the CLI).
type Notifier interface {
	Notify(kind NoticeKind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind NoticeKind, message string)

func (f NotifierFunc) Notify(kind NoticeKind, message string) { f(kind, message) }

// Discard is a Notifier that drops everything.
var Discard Notifier = NotifierFunc(func(NoticeKind, string) {})
