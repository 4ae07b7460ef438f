package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"tidyls/internal/version"
)

// buildInfo is what "tidyls version" reports. Commit and date come from
// -ldflags, falling back to the VCS stamp the go tool embeds.
type buildInfo struct {
	Tool    string `json:"tool"`
	Version string `json:"version"`
	Commit  string `json:"git_commit,omitempty"`
	Date    string `json:"build_date,omitempty"`
}

func init() {
	flags := versionCmd.Flags()
	flags.Bool("hash", false, "include git commit hash")
	flags.Bool("date", false, "include build timestamp")
	flags.Bool("full", false, "show all build metadata")
	flags.String("format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show tidyls build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		format, _ := flags.GetString("format")
		hash, _ := flags.GetBool("hash")
		date, _ := flags.GetBool("date")
		full, _ := flags.GetBool("full")

		info := currentBuild(debug.ReadBuildInfo).only(hash || full, date || full)
		switch strings.ToLower(format) {
		case "pretty":
			info.writePretty(cmd.OutOrStdout())
			return nil
		case "json":
			return info.writeJSON(cmd.OutOrStdout())
		}
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	},
}

// currentBuild merges the linked-in version variables with the module build
// settings returned by read.
func currentBuild(read func() (*debug.BuildInfo, bool)) buildInfo {
	info := buildInfo{
		Tool:    "tidyls",
		Version: strings.TrimSpace(version.Version),
		Commit:  strings.TrimSpace(version.GitCommit),
		Date:    strings.TrimSpace(version.BuildDate),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if bi, ok := read(); ok && bi != nil {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.Date == "":
				info.Date = s.Value
			}
		}
	}
	return info
}

// only keeps the requested optional fields. Requested but unknown values
// read "unknown".
func (b buildInfo) only(commit, date bool) buildInfo {
	b.Commit = pick(commit, b.Commit)
	b.Date = pick(date, b.Date)
	return b
}

func pick(want bool, value string) string {
	switch {
	case !want:
		return ""
	case value == "":
		return "unknown"
	}
	return value
}

func (b buildInfo) writePretty(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", b.Tool, version.Colored(b.Version))
	if b.Commit != "" {
		fmt.Fprintf(w, "commit: %s\n", b.Commit)
	}
	if b.Date != "" {
		fmt.Fprintf(w, "built:  %s\n", b.Date)
	}
}

func (b buildInfo) writeJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}
