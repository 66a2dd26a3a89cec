package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
)

// Builder resolves one parsed site into a build result
type Builder interface {
	Build(ctx context.Context, facts model.RawFacts) (*model.BuildResult, error)
}

// BuildOutcome is the result of one batch entry
type BuildOutcome struct {
	Path   string
	Result *model.BuildResult
	Error  error
}

// BatchProcessor builds many RawFacts documents concurrently
type BatchProcessor struct {
	builder     Builder
	concurrency int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(builder Builder, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		builder:     builder,
		concurrency: concurrency,
	}
}

// ProcessFiles builds each facts file. Outcomes keep the order of paths.
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*BuildOutcome {
	if len(paths) == 0 {
		return []*BuildOutcome{}
	}

	pool := NewPool[*BuildOutcome](ctx, b.concurrency)
	pool.Start()

	for _, path := range paths {
		p := path
		pool.Submit(func(ctx context.Context) *BuildOutcome {
			return b.buildFile(ctx, p)
		})
	}

	outcomes := pool.Wait()
	for i, o := range outcomes {
		if o == nil {
			outcomes[i] = &BuildOutcome{Path: paths[i], Error: ctx.Err()}
		}
	}
	return outcomes
}

func (b *BatchProcessor) buildFile(ctx context.Context, path string) *BuildOutcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return &BuildOutcome{Path: path, Error: fmt.Errorf("read facts: %w", err)}
	}
	facts, err := model.ParseRawFacts(data)
	if err != nil {
		return &BuildOutcome{Path: path, Error: err}
	}
	result, err := b.builder.Build(ctx, facts)
	if err != nil {
		return &BuildOutcome{Path: path, Error: err}
	}
	return &BuildOutcome{Path: path, Result: result}
}

// ProcessList reads facts file paths from a list file and builds them
func (b *BatchProcessor) ProcessList(ctx context.Context, listPath string) ([]*BuildOutcome, error) {
	paths, err := ReadPathsFromFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("read paths: %w", err)
	}
	return b.ProcessFiles(ctx, paths), nil
}

// ReadPathsFromFile reads one path per line, skipping blanks, comments and
// duplicates. Relative paths are resolved against the list file's directory.
func ReadPathsFromFile(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	dir := filepath.Dir(listPath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(dir, line)
		}
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}

// FactsInDir lists *.json files directly under dir, sorted
func FactsInDir(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}
