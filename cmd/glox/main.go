package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kristofer/glox/pkg/compiler"
	"github.com/kristofer/glox/pkg/vm"
)

// Exit codes follow the BSD sysexits convention the interpreter's test
// harnesses expect.
const (
	exitOK           = 0
	exitCompileError = 65
	exitIOError      = 74
	exitRuntimeError = 75
)

func main() {
	verbose := flag.Bool("verbose", false, "log per-instruction execution traces")
	gcLog := flag.Bool("gc-log", false, "log garbage collection activity")
	stressGC := flag.Bool("stress-gc", false, "collect on every allocation")
	historyFile := flag.String("history-file", defaultHistoryFile(), "REPL history file path")
	flag.Parse()

	log := buildLogger(*verbose || *gcLog)
	defer log.Sync()

	opts := []vm.Option{vm.WithLogger(log)}
	if *verbose {
		opts = append(opts, vm.WithTrace())
	}
	if *stressGC {
		opts = append(opts, vm.WithStressGC())
	}

	if flag.NArg() >= 1 {
		os.Exit(runFile(flag.Arg(0), opts))
	}
	os.Exit(runREPL(*historyFile, opts))
}

// buildLogger returns a debug-level console logger when tracing or GC
// logging is requested, and a no-op logger otherwise.
func buildLogger(enabled bool) *zap.Logger {
	if !enabled {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		return zap.NewNop()
	}
	return log
}

// defaultHistoryFile resolves ~/.glox_history, overridable through the
// GLOX_HISTORY_FILE environment variable.
func defaultHistoryFile() string {
	if fromEnv := os.Getenv("GLOX_HISTORY_FILE"); fromEnv != "" {
		return fromEnv
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".glox_history"
	}
	return filepath.Join(home, ".glox_history")
}

// runFile executes a script file and returns the process exit code
func runFile(path string, opts []vm.Option) int {
	source, err := os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "reading %s", path)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitIOError
	}

	machine := vm.New(opts...)
	return report(machine.Interpret(string(source)))
}

// report prints an interpreter error and maps it to an exit code
func report(err error) int {
	switch e := err.(type) {
	case nil:
		return exitOK
	case compiler.ErrorList:
		for _, diag := range e {
			fmt.Fprintln(os.Stderr, diag)
		}
		return exitCompileError
	case *vm.RuntimeError:
		fmt.Fprintln(os.Stderr, e)
		return exitRuntimeError
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitIOError
	}
}

// runREPL reads and executes one line at a time until EOF or interrupt.
//
// The VM persists across inputs, so globals defined in one line remain
// available in subsequent lines. Errors are printed but do not end the
// session.
func runREPL(historyFile string, opts []vm.Option) int {
	fmt.Println("glox REPL")
	fmt.Println("Press Ctrl-D to exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	machine := vm.New(opts...)

	for {
		input, err := line.Prompt("glox> ")
		if err != nil {
			// EOF or Ctrl-C ends the session
			break
		}
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if err := machine.Interpret(input); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	if err := saveHistory(line, historyFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return exitOK
}

// saveHistory writes the session's history back to the history file
func saveHistory(line *liner.State, historyFile string) error {
	f, err := os.Create(historyFile)
	if err != nil {
		return errors.Wrap(err, "saving history")
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		return errors.Wrap(err, "writing history")
	}
	return nil
}
