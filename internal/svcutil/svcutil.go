// Package svcutil runs components under a suture supervisor and tells the
// supervisor how to treat the errors they stop with.
package svcutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/thejerf/suture/v4"
)

// ServiceTimeout bounds how long a service may take to stop.
const ServiceTimeout = 10 * time.Second

type ExitStatus int

const (
	ExitSuccess ExitStatus = 0
	ExitError   ExitStatus = 1
)

func (s ExitStatus) AsInt() int { return int(s) }

// FatalErr is returned by a service that cannot continue. It matches
// suture.ErrTerminateSupervisorTree, so the whole tree stops and the
// process exits with Status.
type FatalErr struct {
	Err    error
	Status ExitStatus
}

func AsFatalErr(err error, status ExitStatus) *FatalErr {
	var fatal *FatalErr
	if errors.As(err, &fatal) {
		return fatal
	}
	return &FatalErr{Err: err, Status: status}
}

func (e *FatalErr) Error() string { return e.Err.Error() }

func (e *FatalErr) Unwrap() error { return e.Err }

func (e *FatalErr) Is(target error) bool { return target == suture.ErrTerminateSupervisorTree }

// NoRestartErr marks a clean, final stop. A nil err becomes
// suture.ErrDoNotRestart itself.
func NoRestartErr(err error) error {
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return stoppedErr{err}
}

type stoppedErr struct{ error }

func (e stoppedErr) Unwrap() error { return e.error }

func (e stoppedErr) Is(target error) bool { return target == suture.ErrDoNotRestart }

// AsService turns a blocking function into a named suture.Service.
func AsService(fn func(ctx context.Context) error, name string) suture.Service {
	return funcService{name: name, fn: fn}
}

type funcService struct {
	name string
	fn   func(ctx context.Context) error
}

func (s funcService) Serve(ctx context.Context) error { return s.fn(ctx) }

func (s funcService) String() string { return fmt.Sprintf("svcutil.AsService(%s)", s.name) }

// SpecWithLogger returns the supervisor spec used by every tree in this
// module, with supervisor events logged at debug level.
func SpecWithLogger(l log.Logger) suture.Spec {
	return suture.Spec{
		EventHook: func(e suture.Event) {
			level.Debug(l).Log("msg", "supervisor event", "event", e.String())
		},
		Timeout:           ServiceTimeout,
		PassThroughPanics: true,
	}
}
