// Package tidy runs the external perltidy formatter over a piece of text.
package tidy

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"tidyls/internal/settings"
	"tidyls/internal/trace"
)

const (
	// DefaultExecutable is used when no executable is configured.
	DefaultExecutable = "perltidy"
	// ProfileFileName is the perltidy configuration looked up by auto-disable.
	ProfileFileName = ".perltidyrc"
)

// Outcome tags a completed formatting call.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota + 1
	// OutcomeSkipped means the document must be left untouched.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is a successful or skipped call. Text is the formatter output,
// verbatim.
type Result struct {
	Outcome Outcome
	Text    string
}

// FormatContext locates the document being formatted.
type FormatContext struct {
	// WorkspaceRoot is the folder owning the document. Empty means the
	// document belongs to no workspace.
	WorkspaceRoot string
	// DocumentPath is empty for virtual documents.
	DocumentPath string
}

// Request is a fully resolved formatter invocation.
type Request struct {
	Text           string
	Dir            string
	Executable     string
	Profile        string
	SkipIfNoConfig bool

	configured string // executable as written in the configuration
}

// Args returns the perltidy arguments: output to stdout, no added terminal
// newline, and the optional profile.
func (r Request) Args() []string {
	args := []string{"-st", "-natnl"}
	if r.Profile != "" {
		args = append(args, "--profile="+r.Profile)
	}
	return args
}

// Options configures an Invoker.
type Options struct {
	Settings settings.Source
	Runner   Runner // defaults to ExecRunner
}

// Invoker formats text with an external perltidy process. It is safe for
// concurrent use; calls share no state.
type Invoker struct {
	settings settings.Source
	runner   Runner
	getwd    func() (string, error)
}

// New constructs an Invoker.
func New(opts Options) *Invoker {
	src := opts.Settings
	if src == nil {
		src = settings.Chain{}
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Invoker{settings: src, runner: runner, getwd: os.Getwd}
}

// Format runs the formatter over text. Failures are *ConfigError or
// *InternalError. Cancelling ctx does not stop a process that has started.
func (inv *Invoker) Format(ctx context.Context, text string, fc FormatContext) (Result, error) {
	if text == "" {
		return Result{Outcome: OutcomeSuccess}, nil
	}
	req, err := inv.Prepare(text, fc)
	if err != nil {
		return Result{}, err
	}
	if req.SkipIfNoConfig && !HasProfile(fc.WorkspaceRoot) {
		trace.Point(trace.FromContext(ctx), trace.ScopeProcess, "skip", "no "+ProfileFileName+" in "+fc.WorkspaceRoot)
		return Result{Outcome: OutcomeSkipped}, nil
	}
	out, err := inv.run(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeSuccess, Text: out}, nil
}

// Prepare reads the configuration and resolves the executable and working
// directory for a call.
func (inv *Invoker) Prepare(text string, fc FormatContext) (Request, error) {
	if fc.WorkspaceRoot == "" {
		return Request{}, &ConfigError{Msg: "document is not part of a workspace; open its folder to format it"}
	}
	cfg, err := inv.settings.Load(fc.WorkspaceRoot)
	if err != nil {
		return Request{}, &ConfigError{Msg: "invalid " + settings.Section + " configuration: " + err.Error(), Err: err}
	}

	req := Request{
		Text:           text,
		Profile:        cfg.Profile,
		SkipIfNoConfig: cfg.AutoDisable,
		configured:     cfg.Executable,
	}
	if req.configured == "" {
		req.configured = DefaultExecutable
	}

	if fc.DocumentPath != "" {
		req.Dir = filepath.Dir(fc.DocumentPath)
	} else if wd, err := inv.getwd(); err == nil {
		req.Dir = wd
	}

	req.Executable = req.configured
	if !filepath.IsAbs(req.configured) {
		local := filepath.Join(fc.WorkspaceRoot, req.configured)
		if info, err := os.Stat(local); err == nil && !info.IsDir() {
			// a workspace-local perltidy finds its own config from the root
			req.Executable = local
			req.Dir = fc.WorkspaceRoot
		}
	}
	return req, nil
}

func (inv *Invoker) run(ctx context.Context, req Request) (string, error) {
	cmd := Command{
		Path:  req.Executable,
		Args:  req.Args(),
		Dir:   req.Dir,
		Stdin: req.Text,
	}
	_, span := trace.Start(ctx, trace.ScopeProcess, "perltidy")
	span.WithExtra("cmd", cmd.String()).WithExtra("dir", cmd.Dir).WithExtra("in", strconv.Itoa(len(req.Text)))

	out, err := inv.runner.Run(context.WithoutCancel(ctx), cmd)
	if err != nil {
		err = classify(req, err)
		span.Fail(err)
		return "", err
	}
	span.WithExtra("out", strconv.Itoa(len(out))).End("")
	return string(out), nil
}

func classify(req Request, err error) error {
	var startErr *StartError
	if errors.As(err, &startErr) {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return notFoundError(req.configured, err)
		}
		return &InternalError{Op: "launch " + req.Executable, Err: err}
	}
	return &InternalError{Op: "run " + req.Executable, Err: err}
}

// HasProfile reports whether root holds a .perltidyrc file.
func HasProfile(root string) bool {
	if root == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(root, ProfileFileName))
	return err == nil && !info.IsDir()
}
