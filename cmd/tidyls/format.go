package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tidyls/internal/cache"
	"tidyls/internal/driver"
	"tidyls/internal/settings"
	"tidyls/internal/source"
	"tidyls/internal/tidy"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [flags] <path|-> [path...]",
	Short: "Format Perl files with perltidy",
	Long: `Format Perl files with perltidy. Directories are searched for .pl, .pm,
.t and .psgi files. A single "-" reads stdin and writes the result to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFmt,
}

func init() {
	addFmtFlags(fmtCmd)
}

func addFmtFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("check", false, "list files whose formatting would change")
	flags.String("format", "text", "output format (text|json)")
	flags.Bool("stdout", false, "print formatted code to stdout instead of rewriting files")
	flags.String("range", "", "format only L:C-L:C or whole lines L-L (1-based, single file)")
	flags.Int("jobs", 0, "parallel perltidy processes (0 = GOMAXPROCS)")
	flags.Bool("cache", false, "reuse results for unchanged inputs")
	flags.Bool("clear-cache", false, "drop cached results before running")
	flags.String("ui", "auto", "progress UI (auto|on|off)")
	flags.String("root", "", "workspace root (default: current directory)")
	addSettingsFlags(cmd)
}

func runFmt(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	check, err := cmd.Flags().GetBool("check")
	if err != nil {
		return err
	}
	outputFormat, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	writeToStdout, err := cmd.Flags().GetBool("stdout")
	if err != nil {
		return err
	}
	if writeToStdout && check {
		return fmt.Errorf("fmt: --stdout cannot be used with --check")
	}
	if writeToStdout && outputFormat != "text" {
		return fmt.Errorf("fmt: --stdout is only supported with text output")
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}

	opts, err := fmtOptions(cmd, quiet)
	if err != nil {
		return err
	}
	opts.Check, opts.Stdout = check, writeToStdout

	if len(args) == 1 && args[0] == "-" {
		res, err := driver.FormatReader(cmd.Context(), cmd.InOrStdin(), opts)
		if err != nil {
			return fmt.Errorf("fmt: %w", err)
		}
		if check {
			if res.Changed {
				return fmt.Errorf("fmt: formatting changes required")
			}
			return nil
		}
		_, err = cmd.OutOrStdout().Write(res.Formatted)
		return err
	}

	output, err := readFmtOutput(cmd, outputFormat, writeToStdout, quiet)
	if err != nil {
		return err
	}

	var formatResults []driver.FormatResult
	if shouldUseTUI(output, stdoutIsTerminal) {
		formatResults, err = runFmtWithUI(cmd.Context(), "perltidy", args, opts)
	} else {
		formatResults, err = driver.FormatPaths(cmd.Context(), args, opts)
	}
	if err != nil {
		return err
	}

	var hasErrors bool
	var hasChanges bool

	switch outputFormat {
	case "text":
		if writeToStdout {
			renderFmtStdout(cmd.OutOrStdout(), cmd.ErrOrStderr(), formatResults, &hasErrors)
			break
		}
		renderFmtText(cmd.OutOrStdout(), cmd.ErrOrStderr(), formatResults, check, quiet, &hasErrors, &hasChanges)
	case "json":
		if err := renderFmtJSON(cmd.OutOrStdout(), formatResults, check); err != nil {
			return err
		}
		for _, res := range formatResults {
			hasErrors = hasErrors || res.Err != nil
			hasChanges = hasChanges || res.Changed
		}
	default:
		return fmt.Errorf("fmt: unsupported output format %q", outputFormat)
	}

	if hasErrors {
		return fmt.Errorf("fmt: failed to format some files")
	}
	if check && hasChanges {
		return fmt.Errorf("fmt: formatting changes required")
	}
	return nil
}

// fmtOptions builds the driver options from flags. Settings flags override
// the workspace tidyls.toml.
func fmtOptions(cmd *cobra.Command, quiet bool) (driver.FormatOptions, error) {
	var opts driver.FormatOptions
	flags := cmd.Flags()

	root, err := flags.GetString("root")
	if err != nil {
		return opts, err
	}
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return opts, err
		}
	}
	overrides, err := settingsFlags(cmd)
	if err != nil {
		return opts, err
	}
	opts.Root = root
	opts.Invoker = tidy.New(tidy.Options{
		Settings: settings.Chain{settings.FileSource{}, settings.Static(overrides)},
		Runner:   tidy.ExecRunner{Stderr: cmd.ErrOrStderr()},
	})

	if opts.Jobs, err = flags.GetInt("jobs"); err != nil {
		return opts, err
	}
	rangeStr, err := flags.GetString("range")
	if err != nil {
		return opts, err
	}
	if rangeStr != "" {
		span, err := source.ParseSpan(rangeStr)
		if err != nil {
			return opts, fmt.Errorf("fmt: %w", err)
		}
		opts.Range = &span
	}

	useCache, err := flags.GetBool("cache")
	if err != nil {
		return opts, err
	}
	clearCache, err := flags.GetBool("clear-cache")
	if err != nil {
		return opts, err
	}
	if useCache || clearCache {
		disk, err := cache.Open("tidyls")
		if err != nil {
			return opts, fmt.Errorf("fmt: open cache: %w", err)
		}
		if clearCache {
			if err := disk.DropAll(); err != nil {
				return opts, fmt.Errorf("fmt: clear cache: %w", err)
			}
			if !quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "fmt: cleared cache %s\n", disk.Dir())
			}
		}
		if useCache {
			opts.Cache = disk
		}
	}
	return opts, nil
}

func renderFmtStdout(out, errOut io.Writer, results []driver.FormatResult, hasErrors *bool) {
	for _, res := range results {
		if res.Err != nil {
			*hasErrors = true
			fmt.Fprintf(errOut, "fmt: %s: %v\n", res.Path, res.Err)
			continue
		}
		_, _ = out.Write(res.Formatted)
	}
}

func renderFmtText(out, errOut io.Writer, results []driver.FormatResult, check, quiet bool, hasErrors, hasChanges *bool) {
	errColor := color.New(color.FgRed, color.Bold)
	skipLabel := color.New(color.FgYellow).Sprint("skipped")
	for _, res := range results {
		if res.Err != nil {
			*hasErrors = true
			fmt.Fprintf(errOut, "fmt: %s: %v\n", errColor.Sprint(res.Path), res.Err)
			continue
		}
		if res.Skipped {
			if !quiet {
				fmt.Fprintf(errOut, "fmt: %s %s (no %s)\n", skipLabel, res.Path, tidy.ProfileFileName)
			}
			continue
		}

		if check {
			if res.Changed {
				*hasChanges = true
				if !quiet {
					fmt.Fprintln(out, res.Path)
				}
			}
			continue
		}

		if res.Changed && !quiet {
			fmt.Fprintf(out, "reformatted %s\n", res.Path)
		}
	}
}

func renderFmtJSON(out io.Writer, results []driver.FormatResult, check bool) error {
	type jsonResult struct {
		Path     string `json:"path"`
		Changed  bool   `json:"changed"`
		Skipped  bool   `json:"skipped,omitempty"`
		Cached   bool   `json:"cached,omitempty"`
		Error    string `json:"error,omitempty"`
		CheckRun bool   `json:"check"`
	}

	payload := make([]jsonResult, 0, len(results))
	for _, res := range results {
		jr := jsonResult{Path: res.Path, Changed: res.Changed, Skipped: res.Skipped, Cached: res.Cached, CheckRun: check}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		payload = append(payload, jr)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
