package graph

import (
	"context"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"golang.org/x/sync/semaphore"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// skipDirs are vendored or generated trees never worth parsing.
var skipDirs = map[string]bool{
	".git":          true,
	"venv":          true,
	".venv":         true,
	"env":           true,
	"node_modules":  true,
	"vendor":        true,
	"site-packages": true,
	"__pycache__":   true,
	"dist":          true,
	"build":         true,
	".tox":          true,
}

// Stats counts what one extraction wrote to the graph.
type Stats struct {
	FilesProcessed    int `json:"files_processed"`
	ClassesCreated    int `json:"classes_created"`
	MethodsCreated    int `json:"methods_created"`
	FunctionsCreated  int `json:"functions_created"`
	AttributesCreated int `json:"attributes_created"`
}

func (s *Stats) add(info *FileInfo) {
	s.FilesProcessed++
	s.ClassesCreated += len(info.Classes)
	s.FunctionsCreated += len(info.Functions)
	for _, c := range info.Classes {
		s.MethodsCreated += len(c.Methods)
		s.AttributesCreated += len(c.Attributes)
	}
}

// Extractor parses repositories into the property graph. Writes are upserts
// keyed by full_name, so re-running a repository is idempotent.
type Extractor struct {
	runner Runner
	retry  ragerr.RetryConfig
}

// NewExtractor wires an extractor. maxRetries bounds graph-write retries.
func NewExtractor(runner Runner, maxRetries int) *Extractor {
	retry := ragerr.DefaultRetryConfig()
	if maxRetries > 0 {
		retry.MaxRetries = maxRetries
	}
	retry.InitialDelay = 500 * time.Millisecond
	return &Extractor{runner: runner, retry: retry}
}

// ParseRepository clones repoURL shallowly into a scratch directory and
// extracts its structure.
func (e *Extractor) ParseRepository(ctx context.Context, repoURL string) (*Stats, error) {
	name, err := RepoName(repoURL)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "ragmill-repo-*")
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeInternal, "create scratch dir", err)
	}
	defer os.RemoveAll(dir)

	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
	})
	if err != nil {
		return nil, ragerr.FetchError("clone "+repoURL, err)
	}
	return e.ParseDirectory(ctx, dir, name)
}

// ParseDirectory extracts every Python file under dir into the graph as
// repository repoName.
func (e *Extractor) ParseDirectory(ctx context.Context, dir, repoName string) (*Stats, error) {
	if err := e.write(ctx, "MERGE (r:Repository {name: $repo})", map[string]any{"repo": repoName}); err != nil {
		return nil, err
	}

	parser := NewParser()
	defer parser.Close()

	stats := &Stats{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		info, perr := parser.ParseFile(ctx, dir, path)
		if perr != nil {
			slog.Warn("skipping unparseable file",
				slog.String("path", path), slog.String("error", perr.Error()))
			return nil
		}
		if werr := e.writeFile(ctx, repoName, info); werr != nil {
			return werr
		}
		stats.add(info)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return stats, ragerr.Cancelled("repository partially extracted")
		}
		return stats, err
	}
	return stats, nil
}

// writeFile upserts one file's structure as a single batch of statements.
func (e *Extractor) writeFile(ctx context.Context, repo string, info *FileInfo) error {
	fileParams := map[string]any{
		"repo":    repo,
		"path":    info.Path,
		"module":  info.Module,
		"imports": info.Imports,
	}
	if err := e.write(ctx, `
		MATCH (r:Repository {name: $repo})
		MERGE (f:File {repo: $repo, path: $path})
		SET f.module = $module, f.imports = $imports
		MERGE (f)-[:PART_OF]->(r)`, fileParams); err != nil {
		return err
	}

	var classes, methods, attrs []map[string]any
	for _, c := range info.Classes {
		classes = append(classes, map[string]any{"name": c.Name, "full_name": c.FullName})
		for _, m := range c.Methods {
			methods = append(methods, map[string]any{
				"class":     c.FullName,
				"name":      m.Name,
				"full_name": m.FullName,
				"params":    m.Params,
				"return":    m.ReturnType,
			})
		}
		for _, a := range c.Attributes {
			attrs = append(attrs, map[string]any{
				"class":     c.FullName,
				"name":      a.Name,
				"full_name": c.FullName + "." + a.Name,
				"type":      a.Type,
			})
		}
	}
	var functions []map[string]any
	for _, fn := range info.Functions {
		functions = append(functions, map[string]any{
			"name":      fn.Name,
			"full_name": fn.FullName,
			"params":    fn.Params,
			"return":    fn.ReturnType,
		})
	}

	if len(classes) > 0 {
		if err := e.write(ctx, `
			MATCH (f:File {repo: $repo, path: $path})
			UNWIND $classes AS c
			MERGE (cl:Class {full_name: c.full_name})
			SET cl.name = c.name
			MERGE (cl)-[:DEFINED_IN]->(f)`,
			map[string]any{"repo": repo, "path": info.Path, "classes": classes}); err != nil {
			return err
		}
	}
	if len(methods) > 0 {
		if err := e.write(ctx, `
			UNWIND $methods AS m
			MATCH (cl:Class {full_name: m.class})
			MERGE (me:Method {full_name: m.full_name})
			SET me.name = m.name, me.params_list = m.params, me.return_type = m.return
			MERGE (cl)-[:HAS_METHOD]->(me)`,
			map[string]any{"methods": methods}); err != nil {
			return err
		}
	}
	if len(attrs) > 0 {
		if err := e.write(ctx, `
			UNWIND $attrs AS a
			MATCH (cl:Class {full_name: a.class})
			MERGE (at:Attribute {full_name: a.full_name})
			SET at.name = a.name, at.type = a.type
			MERGE (cl)-[:HAS_ATTRIBUTE]->(at)`,
			map[string]any{"attrs": attrs}); err != nil {
			return err
		}
	}
	if len(functions) > 0 {
		if err := e.write(ctx, `
			MATCH (f:File {repo: $repo, path: $path})
			UNWIND $functions AS fn
			MERGE (fu:Function {full_name: fn.full_name})
			SET fu.name = fn.name, fu.params_list = fn.params, fu.return_type = fn.return
			MERGE (fu)-[:DEFINED_IN]->(f)`,
			map[string]any{"repo": repo, "path": info.Path, "functions": functions}); err != nil {
			return err
		}
	}
	return nil
}

// write runs one statement with backoff on transient failures.
func (e *Extractor) write(ctx context.Context, cypher string, params map[string]any) error {
	return ragerr.Retry(ctx, e.retry, func() error {
		_, err := e.runner.Run(ctx, cypher, params)
		return err
	})
}

// RepoResult is one repository's outcome in a batch parse.
type RepoResult struct {
	RepoURL string `json:"repo_url"`
	Stats   *Stats `json:"stats,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ParseRepositories processes repositories in parallel, at most
// maxConcurrent at a time. Per-repository failures are reported in the
// result slice, not surfaced.
func (e *Extractor) ParseRepositories(ctx context.Context, repoURLs []string, maxConcurrent int) []RepoResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([]RepoResult, len(repoURLs))

	for i, repoURL := range repoURLs {
		results[i].RepoURL = repoURL
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Error = ragerr.Cancelled("batch aborted").Error()
			continue
		}
		go func(i int, repoURL string) {
			defer sem.Release(1)
			stats, err := e.ParseRepository(ctx, repoURL)
			if err != nil {
				results[i].Error = err.Error()
				return
			}
			results[i].Stats = stats
		}(i, repoURL)
	}

	// Drain the semaphore so every goroutine has finished.
	if err := sem.Acquire(context.Background(), int64(maxConcurrent)); err == nil {
		sem.Release(int64(maxConcurrent))
	}
	return results
}

// RepoName derives the graph repository name from a clone URL.
func RepoName(repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host == "" || u.Path == "" {
		return "", ragerr.ValidationError("invalid repository URL: " + repoURL, nil)
	}
	name := strings.TrimSuffix(path.Base(strings.TrimSuffix(u.Path, "/")), ".git")
	if name == "" || name == "/" || name == "." {
		return "", ragerr.ValidationError("invalid repository URL: " + repoURL, nil)
	}
	return name, nil
}
