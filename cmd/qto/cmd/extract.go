package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/buildscan/qto/internal/aggregate"
	"github.com/buildscan/qto/internal/config"
	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/pipeline"
	"github.com/buildscan/qto/internal/recognize"
)

var (
	extractLanguage string
	extractFormat   string
	extractOutput   string
	extractStub     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract quantities from a construction document PDF",
	Long: `Extract structured floors, rooms and quantity line items from a
construction document PDF.

The document is split into chunks, each chunk is recognized and mapped
concurrently, and the per-chunk results are merged into a single
document-level result. Partial results are reported when some chunks
fail.

Examples:
  qto extract plans.pdf
  qto extract plans.pdf --language he --format yaml
  qto extract boq.pdf --output result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractLanguage, "language", "l", "en", "document language (en, he)")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "json", "output format (json, yaml, text)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "output file (default stdout)")
	extractCmd.Flags().BoolVar(&extractStub, "stub", false, "use deterministic stub recognition and mapping services")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lang := mapper.Language(extractLanguage)
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q (supported: en, he)", extractLanguage)
	}

	switch extractFormat {
	case "json", "yaml", "text":
	default:
		return fmt.Errorf("unsupported format %q (supported: json, yaml, text)", extractFormat)
	}

	pdfBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	orch, err := buildOrchestrator(ctx, cfg, extractStub)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	result, err := orch.Extract(ctx, pipeline.Request{
		PDF:      pdfBytes,
		Language: lang,
	})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	out := os.Stdout
	if extractOutput != "" {
		f, err := os.Create(extractOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeResult(out, result, extractFormat); err != nil {
		return err
	}

	if result.Partial {
		slog.Warn("extraction completed with failures",
			"chunks_total", result.ChunksTotal,
			"chunks_succeeded", result.ChunksSucceeded)
	}
	return nil
}

// buildOrchestrator wires the pipeline from loaded configuration. With stub
// enabled, both remote services are replaced by deterministic in-process
// stubs; useful for smoke tests and offline demos.
func buildOrchestrator(ctx context.Context, cfg *config.Config, stub bool) (*pipeline.Orchestrator, error) {
	var (
		rec recognize.Recognizer
		mpr mapper.Mapper
		err error
	)

	if stub || cfg.Recognition.Stub {
		rec = &recognize.Stub{}
	} else {
		rec, err = recognize.NewClient(cfg.RecognitionSettings())
		if err != nil {
			return nil, fmt.Errorf("recognition client: %w", err)
		}
	}

	if stub || cfg.Mapping.Stub {
		mpr = &mapper.Stub{}
	} else {
		mpr, err = mapper.NewGemini(ctx, cfg.MappingSettings())
		if err != nil {
			return nil, fmt.Errorf("mapping client: %w", err)
		}
	}

	pc := cfg.PipelineSettings()
	return pipeline.NewBuilder().
		WithMaxUploadBytes(pc.MaxUploadBytes).
		WithSplitter(pc.Splitter).
		WithPreParseMinQuality(pc.PreParseMinQuality).
		WithMaxInFlightChunks(pc.MaxInFlightChunks).
		WithPipelineTimeout(pc.PipelineTimeout).
		WithRecognizer(rec).
		WithMapper(mpr).
		WithLogger(slog.Default()).
		Build()
}

func writeResult(out *os.File, result *aggregate.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(result)
	case "text":
		return writeTextResult(out, result)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeTextResult(out *os.File, result *aggregate.Result) error {
	for _, floor := range result.Floors {
		fmt.Fprintf(out, "%s\n", floor.Label)
		for _, room := range floor.Rooms {
			fmt.Fprintf(out, "  %s\n", room.Label)
			for _, item := range room.Items {
				fmt.Fprintf(out, "    %-30s %s %s\n", item.Material, item.Quantity.String(), item.Unit)
			}
		}
	}
	if len(result.Summary) > 0 {
		fmt.Fprintf(out, "\nTotals:\n")
		for _, total := range result.Summary {
			fmt.Fprintf(out, "  %-30s %s %s\n", total.Material, total.Total.String(), total.Unit)
		}
	}
	if result.Partial {
		fmt.Fprintf(out, "\nPartial result: %d/%d chunks succeeded\n",
			result.ChunksSucceeded, result.ChunksTotal)
		for _, f := range result.Failures {
			fmt.Fprintf(out, "  pages %s: %s (%s)\n", f.PageRange, f.Message, f.Kind)
		}
	}
	return nil
}
