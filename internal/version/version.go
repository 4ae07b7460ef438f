package version

import "github.com/fatih/color"

// Version information for the tidyls CLI.
// These variables can be overridden at build time via -ldflags.

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// Colored renders v with each dotted component in its own color. Suffixes
// after the patch number are kept plain.
func Colored(v string) string {
	parts := []*color.Color{versionMajorColor, versionMinorColor, versionPatchColor}
	out := ""
	start := 0
	for i := 0; i < len(parts); i++ {
		end := start
		for end < len(v) && v[end] >= '0' && v[end] <= '9' {
			end++
		}
		if end == start {
			break
		}
		if i > 0 {
			out += "."
		}
		out += parts[i].Sprint(v[start:end])
		start = end
		if i < len(parts)-1 {
			if start >= len(v) || v[start] != '.' {
				break
			}
			start++
		}
	}
	if start == 0 {
		return v
	}
	return out + v[start:]
}
