package kernel

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/hal"
	"golang.org/x/exp/slog"
)

// Reporter receives conditions the kernel cannot recover from. Fatal is not expected to return.
type Reporter interface {
	Fatal(err error)
}

// ExitCode is a value written to QEMU's isa-debug-exit device
type ExitCode uint8

const (
	ExitSuccess ExitCode = 0x10
	ExitFailed  ExitCode = 0x11
)

// Status is the host process exit status QEMU reports after code is written to isa-debug-exit
func (c ExitCode) Status() int {
	return (int(c) << 1) | 1
}

// ExitReporter ends the machine through an isa-debug-exit style device. Fatal errors exit with
// ExitFailed.
type ExitReporter struct {
	Logger *slog.Logger
	// Port is the debug exit device. It may be nil when there is no such device.
	Port hal.Port
	// Exit terminates the host process with a status. Defaults to os.Exit.
	Exit func(status int)
}

var _ Reporter = &ExitReporter{}

func (r *ExitReporter) exit(code ExitCode) {
	if r.Port != nil {
		r.Port.Write(uint8(code))
	}

	exit := r.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(code.Status())
}

func (r *ExitReporter) Fatal(err error) {
	if r.Logger != nil {
		r.Logger.Error("kernel fatal error", slog.Any("error", err))
	}
	r.exit(ExitFailed)
}

// Success ends the machine with ExitSuccess
func (r *ExitReporter) Success() {
	r.exit(ExitSuccess)
}

// HaltReporter logs fatal errors and stops the processor for good
type HaltReporter struct {
	Logger *slog.Logger
	CPU    hal.CPU
}

var _ Reporter = &HaltReporter{}

func (r *HaltReporter) Fatal(err error) {
	if r.Logger != nil {
		r.Logger.Error("kernel fatal error, halting", slog.Any("error", err))
	}

	r.CPU.DisableInterrupts()
	for {
		r.CPU.Halt()
	}
}

// RecoverFatal turns a panic into a call to reporter.Fatal. It must be deferred directly.
func RecoverFatal(reporter Reporter) {
	r := recover()
	if r == nil {
		return
	}

	err, ok := r.(error)
	if !ok {
		err = errors.Newf("panic: %v", r)
	} else {
		err = errors.Wrap(err, "panic")
	}
	reporter.Fatal(err)
}
