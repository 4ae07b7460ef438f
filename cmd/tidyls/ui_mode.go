package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// uiMode is the --ui flag value.
type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	mode := uiMode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff:
		return mode, nil
	}
	return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
}

// fmtOutput describes where a fmt run writes its report. The progress view
// owns the terminal, so it runs only for text reports that are not quiet and
// do not stream formatted code to stdout.
type fmtOutput struct {
	mode   uiMode
	format string
	stdout bool
	quiet  bool
}

// shouldUseTUI reports whether out leaves room for the progress view.
// tty is consulted only in auto mode.
func shouldUseTUI(out fmtOutput, tty func() bool) bool {
	if out.stdout || out.quiet || out.format != "text" {
		return false
	}
	switch out.mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	}
	return tty()
}

func stdoutIsTerminal() bool {
	return isTerminal(os.Stdout)
}

func readFmtOutput(cmd *cobra.Command, format string, stdout, quiet bool) (fmtOutput, error) {
	raw, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmtOutput{}, err
	}
	mode, err := readUIMode(raw)
	if err != nil {
		return fmtOutput{}, err
	}
	return fmtOutput{mode: mode, format: format, stdout: stdout, quiet: quiet}, nil
}
