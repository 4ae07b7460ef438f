// Package driver runs perltidy over files on disk for the batch CLI.
package driver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"tidyls/internal/cache"
	"tidyls/internal/source"
	"tidyls/internal/tidy"
	"tidyls/internal/trace"
)

// Extensions lists the file suffixes collected from directories.
var Extensions = []string{".pl", ".pm", ".t", ".psgi"}

// FormatOptions configures batch formatting.
type FormatOptions struct {
	Check  bool
	Stdout bool
	// Range limits formatting to one span; only meaningful for one file.
	Range *source.Span
	Jobs  int
	// Root is the workspace root handed to the invoker for every file.
	Root     string
	Invoker  *tidy.Invoker
	Cache    *cache.Disk
	Progress ProgressSink
}

// FormatResult captures the result of formatting a single file.
type FormatResult struct {
	Path      string
	Changed   bool
	Skipped   bool
	Cached    bool
	Err       error
	Formatted []byte
}

// FormatPaths formats provided files or directories (recursively collecting
// Perl files). When opts.Check is true, files are not modified; Changed
// indicates whether formatting would update the file contents. When
// opts.Stdout is true, formatted content is returned in the results without
// touching files on disk.
func FormatPaths(ctx context.Context, paths []string, opts FormatOptions) ([]FormatResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Invoker == nil {
		return nil, errors.New("format: missing invoker")
	}

	files, err := CollectFiles(ctx, paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("format: no Perl files found")
	}
	if opts.Range != nil && len(files) > 1 {
		return nil, errors.New("format: --range needs exactly one file")
	}
	for _, path := range files {
		emit(opts.Progress, Event{File: path, Status: StatusQueued})
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// each goroutine owns its slot
	results := make([]FormatResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = formatFile(gctx, path, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// FormatReader formats text read from r as a virtual document.
func FormatReader(ctx context.Context, r io.Reader, opts FormatOptions) (FormatResult, error) {
	if opts.Invoker == nil {
		return FormatResult{}, errors.New("format: missing invoker")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return FormatResult{}, err
	}
	doc := source.NewDocument("stdin", "", data)
	result := FormatResult{Path: "-"}
	result.Formatted, result.Skipped, result.Cached, err = tidyDocument(ctx, doc, opts)
	if err != nil {
		return result, err
	}
	result.Changed = !bytes.Equal(data, result.Formatted)
	return result, nil
}

func formatFile(ctx context.Context, path string, opts FormatOptions) FormatResult {
	start := time.Now()
	result := FormatResult{Path: path}
	emit(opts.Progress, Event{File: path, Status: StatusTidying})
	defer func() {
		evt := Event{File: path, Status: StatusDone, Err: result.Err, Elapsed: time.Since(start)}
		switch {
		case result.Err != nil:
			evt.Status = StatusError
		case result.Skipped:
			evt.Status = StatusSkipped
		case result.Cached:
			evt.Status = StatusCached
		}
		emit(opts.Progress, evt)
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		result.Err = err
		return result
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	doc := source.NewDocument("file://"+filepath.ToSlash(abs), abs, data)
	formatted, skipped, cached, err := tidyDocument(ctx, doc, opts)
	result.Skipped, result.Cached = skipped, cached
	if err != nil {
		result.Err = err
		return result
	}
	changed := !bytes.Equal(data, formatted)

	switch {
	case opts.Check:
		result.Changed = changed
	case opts.Stdout:
		result.Formatted = formatted
		result.Changed = changed
	case changed:
		mode := os.FileMode(0o644)
		if info, statErr := os.Stat(path); statErr == nil {
			mode = info.Mode()
		}
		if err := os.WriteFile(path, formatted, mode.Perm()); err != nil {
			result.Err = err
		} else {
			result.Changed = true
		}
	}
	return result
}

// tidyDocument runs perltidy over the selected span of doc and splices the
// output back into the full content.
func tidyDocument(ctx context.Context, doc *source.Document, opts FormatOptions) (out []byte, skipped, cached bool, err error) {
	span := source.Resolve(doc, opts.Range, nil)
	if opts.Range != nil {
		span = source.ExpandToLineStart(doc, span)
	}
	text := doc.Text(span)
	fc := tidy.FormatContext{WorkspaceRoot: opts.Root, DocumentPath: doc.Path}

	ctx, sp := trace.Start(ctx, trace.ScopeRequest, "fmt")
	sp.WithExtra("file", doc.URI)
	defer func() {
		if err != nil {
			sp.Fail(err)
		} else {
			sp.End("")
		}
	}()

	key, exe, useCache := cacheKey(opts, text, fc)
	if useCache {
		if entry, ok, getErr := opts.Cache.Get(key); getErr == nil && ok {
			return splice(doc, span, entry.Output), false, true, nil
		}
	}

	res, err := opts.Invoker.Format(ctx, text, fc)
	if err != nil {
		return nil, false, false, err
	}
	if res.Outcome == tidy.OutcomeSkipped {
		return doc.Content, true, false, nil
	}
	if useCache {
		if putErr := opts.Cache.Put(key, &cache.Entry{Executable: exe, Output: res.Text}); putErr != nil {
			sp.WithExtra("cache", putErr.Error())
		}
	}
	return splice(doc, span, res.Text), false, false, nil
}

// cacheKey reports the key for text, or false when the run must not be
// cached: no cache, unusable configuration, or an auto-disabled workspace.
func cacheKey(opts FormatOptions, text string, fc tidy.FormatContext) (cache.Digest, string, bool) {
	if opts.Cache == nil || text == "" {
		return cache.Digest{}, "", false
	}
	req, err := opts.Invoker.Prepare(text, fc)
	if err != nil {
		return cache.Digest{}, "", false
	}
	if req.SkipIfNoConfig && !tidy.HasProfile(fc.WorkspaceRoot) {
		return cache.Digest{}, "", false
	}
	rcPath := activeProfile(req)
	rc, _ := os.ReadFile(rcPath)
	return cache.Key(text, req.Executable, rcPath, rc), req.Executable, true
}

// activeProfile returns the path of the configuration file perltidy loads
// for req, or "" when none exists. The lookup mirrors perltidy's own:
// --profile, then $PERLTIDY, then .perltidyrc in the working directory,
// then the home directory, then the system-wide files.
func activeProfile(req tidy.Request) string {
	if req.Profile != "" {
		if filepath.IsAbs(req.Profile) {
			return req.Profile
		}
		return filepath.Join(req.Dir, req.Profile)
	}
	if env := os.Getenv("PERLTIDY"); env != "" {
		return env
	}
	candidates := []string{filepath.Join(req.Dir, tidy.ProfileFileName)}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, tidy.ProfileFileName))
	}
	candidates = append(candidates, "/usr/local/etc/perltidyrc", "/etc/perltidyrc")
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func splice(doc *source.Document, span source.Span, text string) []byte {
	start, end := doc.Offset(span.Start), doc.Offset(span.End)
	out := make([]byte, 0, len(doc.Content)-(end-start)+len(text))
	out = append(out, doc.Content[:start]...)
	out = append(out, text...)
	return append(out, doc.Content[end:]...)
}

// CollectFiles expands paths into a sorted, de-duplicated list of Perl
// files. Explicit file arguments are kept whatever their extension.
func CollectFiles(ctx context.Context, paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	addFile := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			addFile(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && d.Name()[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			if isPerlFile(path) {
				addFile(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

func isPerlFile(path string) bool {
	return slices.Contains(Extensions, filepath.Ext(path))
}
