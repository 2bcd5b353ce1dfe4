package jobs

import (
	"errors"
	"fmt"
)

// ErrorKind splits stage failures into the two classes the queue contract
// cares about. Permanent failures terminate the job and must not be
// redelivered; transient failures leave the job untouched so the queue's
// backoff policy can redeliver the same invocation.
type ErrorKind int

const (
	ErrorKindPermanent ErrorKind = iota
	ErrorKindTransient
)

func (k ErrorKind) String() string {
	if k == ErrorKindTransient {
		return "transient"
	}
	return "permanent"
}

// StageError carries the classification decided at the point the error is
// raised. Classifying here, instead of pattern-matching on message text at
// the worker boundary, keeps the retry decision with the code that actually
// knows whether retrying can converge.
type StageError struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

func Permanent(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: ErrorKindPermanent, Stage: stage, Err: err}
}

func Permanentf(stage string, format string, args ...any) error {
	return &StageError{Kind: ErrorKindPermanent, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func Transient(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: ErrorKindTransient, Stage: stage, Err: err}
}

func Transientf(stage string, format string, args ...any) error {
	return &StageError{Kind: ErrorKindTransient, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is classified transient. Untyped errors
// default to permanent: an unclassified failure is a logic bug and retrying
// it blindly never converges.
func IsTransient(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == ErrorKindTransient
	}
	return false
}

func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}

// StageOf returns the stage recorded on a classified error, if any.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
