package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/siteintent/internal/metrics"
	"github.com/ppiankov/siteintent/internal/pipeline"
	"github.com/ppiankov/siteintent/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchPublish bool
	metricsAddr  string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dir|list>",
	Short: "Resolve many facts files in parallel",
	Long: `Batch resolves many RawFacts JSON documents concurrently:
- A directory argument resolves every *.json file in it
- Any other argument is a list file with one facts path per line
- Each build is independent; results keep input order
- JSON and Markdown results are written per input

Example:
  siteintent batch ./facts
  siteintent batch sites.txt --concurrency 8 --output-dir ./results
  siteintent batch ./facts --publish --publish-dir ./payloads`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./siteintent-results", "output directory for results")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchPublish, "publish", false, "run the publish gate and push each payload")
	batchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (e.g. :9090)")
	addPipelineFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	input := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, proxySettings())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "Warning: metrics server: %v\n", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	paths, err := batchInputs(input)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  siteintent batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:        %s (%d files)\n", input, len(paths))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	processor := worker.NewBatchProcessor(a.pipeline, concurrency)
	outcomes := processor.ProcessFiles(ctx, paths)

	renderer := pipeline.NewRenderer(os.Stderr)
	var success, failures, passed int
	for _, o := range outcomes {
		if o.Error != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.Path, o.Error)
			continue
		}
		success++

		if batchPublish {
			if _, err := a.pipeline.Publish(ctx, o.Result, a.pusher); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.Path, err)
			}
		}

		base := filepath.Join(outputDir, resultName(o.Path))
		if err := renderer.RenderJSON(o.Result, base+".json"); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", o.Path, err)
			continue
		}
		if err := renderer.RenderMarkdown(o.Result, base+".md"); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", o.Path, err)
			continue
		}

		status := "fail (" + string(o.Result.ResolveGate.Reason) + ")"
		if o.Result.ResolveGate.Pass {
			passed++
			status = "pass"
		}
		fmt.Fprintf(os.Stderr, "✓ %s (coverage: %.0f%%, resolve: %s)\n", o.Path, o.Result.Coverage.Pct*100, status)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d files\n", len(outcomes))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", success)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failures)
	fmt.Fprintf(os.Stderr, "  Passed:    %d\n", passed)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// batchInputs expands a directory or reads a list file
func batchInputs(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("batch input: %w", err)
	}
	if info.IsDir() {
		return worker.FactsInDir(input)
	}
	return worker.ReadPathsFromFile(input)
}

// resultName derives an output file stem from an input path
func resultName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	replacer := strings.NewReplacer(" ", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	name = replacer.Replace(name)
	if name == "" || name == "." {
		return "result"
	}
	return name
}
