package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/siteintent/internal/model"
	"github.com/ppiankov/siteintent/internal/parse"
	"github.com/ppiankov/siteintent/internal/pipeline"
)

var (
	outJSON        string
	outMD          string
	pageURL        string
	resolveTimeout time.Duration
	doPublish      bool
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve <file>...",
	Short: "Resolve one site's facts into profile fields",
	Long: `Resolve reads the facts of one site and runs the field pipeline:
- Seed pre-keyed facts
- Dispatch every intent map key by category
- Enforce constraints and drop non-conforming values
- Compute coverage and the resolve gate

Inputs are RawFacts JSON documents and/or saved HTML pages (.html, .htm);
all inputs are merged as pages of one site.

Example:
  siteintent resolve facts.json
  siteintent resolve index.html about.html --url https://acme.com.au/
  siteintent resolve facts.json --json out.json --md out.md --publish`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&outJSON, "json", "-", "output JSON path (- for stdout)")
	resolveCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	resolveCmd.Flags().StringVar(&pageURL, "url", "", "page URL for HTML inputs, used to resolve relative links")
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 2*time.Minute, "overall resolve timeout")
	resolveCmd.Flags().BoolVar(&doPublish, "publish", false, "run the publish gate and push the payload")
	addPipelineFlags(resolveCmd)
}

// addPipelineFlags binds the flags shared by resolve and batch to config keys
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("intent-map", "", "intent map YAML (default: built-in map)")
	f.String("llm-provider", "", "LLM provider (openai, anthropic, ollama); empty disables")
	f.String("llm-model", "", "LLM model name")
	f.Bool("prefetch", false, "ask the LLM for all LLM fields in one round before dispatch")
	f.Bool("profile", false, "run the two-stage evidence/profile LLM flow")
	f.Float64("threshold", 0, "resolve gate coverage threshold (clamped to [0.5, 1])")
	f.String("publish-dir", "", "write publish payloads to this directory")

	bind := map[string]string{
		"resolve.intent_map": "intent-map",
		"llm.provider":       "llm-provider",
		"llm.model":          "llm-model",
		"llm.prefetch":       "prefetch",
		"profile.enabled":    "profile",
		"gate.threshold":     "threshold",
		"publish.dir":        "publish-dir",
	}
	// bound at run time so resolve and batch do not overwrite each other
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, name := range bind {
			if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
				if err := viper.BindPFlag(key, fl); err != nil {
					return fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		return nil
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
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

	facts, err := loadFacts(args, pageURL)
	if err != nil {
		return err
	}

	result, err := a.pipeline.Build(ctx, facts)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	if doPublish {
		outcome, err := a.pipeline.Publish(ctx, result, a.pusher)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else if !outcome.Gate.Pass {
			fmt.Fprintf(os.Stderr, "Publish blocked: %s\n", outcome.Gate.Reason)
		} else if !outcome.Pushed {
			fmt.Fprintf(os.Stderr, "Publish gate passed; no publish target configured\n")
		}
	}

	renderer := pipeline.NewRenderer(os.Stderr)
	if outJSON == "-" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
	} else if outJSON != "" {
		if err := renderer.RenderJSON(result, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", outJSON)
		}
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(result, outMD); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", outMD)
		}
	}
	if verbose || outJSON != "-" {
		renderer.RenderSummary(result)
	}
	return nil
}

// loadFacts reads every input as one site. HTML pages are parsed; JSON
// documents are decoded as RawFacts.
func loadFacts(paths []string, base string) (model.RawFacts, error) {
	pages := make([]model.RawFacts, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return model.RawFacts{}, fmt.Errorf("read %s: %w", path, err)
		}

		var facts model.RawFacts
		switch strings.ToLower(filepath.Ext(path)) {
		case ".html", ".htm":
			facts, err = parse.HTML(base, string(data))
		default:
			facts, err = model.ParseRawFacts(data)
		}
		if err != nil {
			return model.RawFacts{}, fmt.Errorf("%s: %w", path, err)
		}
		pages = append(pages, facts)
	}
	if len(pages) == 1 {
		return pages[0], nil
	}
	return parse.Merge(pages...), nil
}
