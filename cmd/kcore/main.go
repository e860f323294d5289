// Command kcore boots the kernel core on a simulated machine and feeds it keystrokes from the
// terminal. Typed characters travel through the keyboard interrupt, the scancode bridge and the
// echo task before they appear on screen.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/boot"
	"github.com/kcore-dev/kcore/hal/sim"
	"github.com/kcore-dev/kcore/heap"
	"github.com/kcore-dev/kcore/kernel"
	"github.com/kcore-dev/kcore/task"
	"github.com/mattn/go-tty"
	"golang.org/x/exp/slog"
)

var memorySize = flag.Uint64("memory", sim.DefaultMemorySize, "physical memory of the simulated machine in bytes")
var heapAlgorithm = flag.String("heap", "freelist", "heap algorithm: freelist or bump")
var bootInfoPath = flag.String("boot-info", "", "JSON boot info to use instead of the generated memory map")
var tickInterval = flag.Duration("tick", 100*time.Millisecond, "timer interrupt interval, 0 disables the timer")
var logLevel = flag.String("log", "info", "log level: debug, info, warn or error")
var printStats = flag.Bool("stats", false, "print heap statistics as JSON on exit")

const ctrlC = 3

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return 0, errors.Newf("unknown log level %q", name)
}

func machineOptions() (sim.MachineOptions, error) {
	options := sim.MachineOptions{MemorySize: *memorySize}
	if *bootInfoPath == "" {
		return options, nil
	}

	data, err := os.ReadFile(*bootInfoPath)
	if err != nil {
		return options, errors.Wrap(err, "failed to read boot info")
	}

	info, err := boot.DecodeInfo(data)
	if err != nil {
		return options, errors.Wrapf(err, "failed to decode %s", *bootInfoPath)
	}

	options.PhysicalMemoryOffset = info.PhysicalMemoryOffset
	options.MemoryMap = info.MemoryMap
	return options, nil
}

// crlfWriter translates line feeds for a terminal in raw mode
type crlfWriter struct {
	out io.Writer
}

func (w crlfWriter) Write(p []byte) (int, error) {
	_, err := io.WriteString(w.out, strings.ReplaceAll(string(p), "\n", "\r\n"))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func exampleTask(logger *slog.Logger) task.Future {
	return task.Async(func(aw *task.Await) {
		var number int
		aw.Wait(task.Async(func(aw *task.Await) {
			aw.Yield()
			number = 42
		}))

		logger.Info("async number", slog.Int("Number", number))
	})
}

func main() {
	flag.Parse()

	level, err := parseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))

	algorithm, err := heap.ParseAlgorithm(*heapAlgorithm)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	options, err := machineOptions()
	if err != nil {
		logger.Error("invalid boot info", slog.Any("error", err))
		os.Exit(1)
	}

	machine, err := sim.NewMachine(options)
	if err != nil {
		logger.Error("failed to create machine", slog.Any("error", err))
		os.Exit(1)
	}
	defer machine.Close()

	terminal, err := tty.Open()
	if err != nil {
		logger.Error("failed to open terminal", slog.Any("error", err))
		os.Exit(1)
	}
	var closeTerminal sync.Once
	restoreTerminal := func() {
		closeTerminal.Do(func() {
			_ = terminal.Close()
		})
	}
	defer restoreTerminal()
	_ = terminal.MustRaw()

	reporter := &kernel.ExitReporter{
		Logger: logger,
		Exit: func(status int) {
			restoreTerminal()
			os.Exit(status)
		},
	}
	defer kernel.RecoverFatal(reporter)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	k, err := kernel.Boot(ctx, logger, machine.Hardware(), machine.BootInfo(), kernel.Config{
		HeapAlgorithm: algorithm,
		Reporter:      reporter,
	})
	if err != nil {
		reporter.Fatal(errors.Wrap(err, "boot failed"))
		return
	}

	if _, err := k.Spawn(exampleTask(logger)); err != nil {
		reporter.Fatal(err)
		return
	}
	if _, err := k.SpawnKeyboardEcho(crlfWriter{out: terminal.Output()}); err != nil {
		reporter.Fatal(err)
		return
	}

	go func() {
		for {
			r, err := terminal.ReadRune()
			if err != nil {
				cancel()
				return
			}

			if r == ctrlC {
				cancel()
				return
			}

			if !machine.Keyboard.Type(r) {
				logger.Debug("keystroke not delivered", slog.String("Rune", string(r)))
			}
		}
	}()

	if *tickInterval > 0 {
		go machine.Timer.Run(ctx, *tickInterval)
	}

	// A halted CPU only returns at the next interrupt, so stopping it is what ends the run
	go func() {
		<-ctx.Done()
		machine.CPU.Stop()
	}()

	err = k.RunContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		reporter.Fatal(err)
		return
	}
	restoreTerminal()

	logger.Info("kernel stopped",
		slog.Uint64("Ticks", k.Ticks()),
		slog.Uint64("DroppedScancodes", k.Bridge().Dropped()),
		slog.Int("Tasks", k.Executor().Len()),
	)

	if *printStats {
		fmt.Println(k.Heap().BuildStatsString(true))
	}
}
