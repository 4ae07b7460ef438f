package tidy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Command is one external formatter run.
type Command struct {
	Path  string
	Args  []string
	Dir   string
	Stdin string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner runs an external formatter: it feeds Stdin, closes it, and returns
// everything the process wrote to stdout. Launch failures are *StartError.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) ([]byte, error) {
	return f(ctx, cmd)
}

// ExecRunner runs commands with os/exec. The exit status is ignored; only
// launch and stream failures are errors.
type ExecRunner struct {
	// Stderr receives the process stderr. Nil discards it.
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stderr = r.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &StartError{Path: c.Path, Err: err}
	}

	var out bytes.Buffer
	// stdin and stdout are pumped together so neither pipe buffer can fill up
	var g errgroup.Group
	g.Go(func() error {
		_, werr := io.WriteString(stdin, c.Stdin)
		cerr := stdin.Close()
		if inputClosed(werr) {
			// the process stopped reading; its stdout is still the result
			return nil
		}
		if werr != nil {
			return fmt.Errorf("write stdin: %w", werr)
		}
		if cerr != nil {
			return fmt.Errorf("close stdin: %w", cerr)
		}
		return nil
	})
	g.Go(func() error {
		if _, rerr := io.Copy(&out, stdout); rerr != nil {
			return fmt.Errorf("read stdout: %w", rerr)
		}
		return nil
	})
	streamErr := g.Wait()
	waitErr := cmd.Wait()
	if streamErr != nil {
		return nil, streamErr
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("wait: %w", waitErr)
	}
	return out.Bytes(), nil
}

// inputClosed reports whether err means the process closed its end of stdin.
func inputClosed(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
