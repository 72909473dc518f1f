package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/example/face-verify/internal/backends"
	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/embedding"
	"github.com/example/face-verify/internal/tensorcache"
)

type generateOptions struct {
	Src     string
	Dest    string
	Workers int
	MaxSide int
	JSON    bool
	Quiet   bool
	Backend backends.Settings
}

func newGenerateCmd() *cobra.Command {
	opts := generateOptions{}
	if cfg, err := config.FromEnv(); err == nil {
		opts.Backend = backends.FromConfig(cfg)
		opts.MaxSide = cfg.MaxImageSide
	}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Embed every image in a directory and write one cache entry per file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Src, "src", "s", "", "Directory of source images (searched recursively)")
	f.StringVarP(&opts.Dest, "dest", "d", "", "Directory to write .emb entries to")
	f.IntVarP(&opts.Workers, "workers", "w", 1, "Number of images embedded concurrently")
	f.IntVar(&opts.MaxSide, "max-side", opts.MaxSide, "Downscale images whose longest side exceeds this (0 keeps size)")
	f.BoolVar(&opts.JSON, "json", false, "Print the report as JSON")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "Hide the progress bar")
	f.StringVarP(&opts.Backend.Backend, "backend", "b", opts.Backend.Backend, "Embedding backend: grpc, deepface, dlib, mock")
	f.IntVar(&opts.Backend.Dim, "dim", opts.Backend.Dim, "Embedding dimension the backend produces")
	f.StringVar(&opts.Backend.ImageProcessorAddr, "addr", opts.Backend.ImageProcessorAddr, "gRPC inference server address")
	f.StringVar(&opts.Backend.DeepFaceURL, "deepface-url", opts.Backend.DeepFaceURL, "DeepFace server URL")
	f.StringVar(&opts.Backend.DlibModelsDir, "dlib-models", opts.Backend.DlibModelsDir, "Directory holding the dlib model files")

	_ = cmd.MarkFlagRequired("src")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	ctx := cmd.Context()

	backend, closeBackend, err := backends.New(ctx, opts.Backend, logger)
	if err != nil {
		return err
	}
	defer closeBackend() //nolint:errcheck

	provider, err := embedding.NewProvider(backend, opts.Backend.Dim, opts.MaxSide, logger)
	if err != nil {
		return err
	}

	blobs, err := tensorcache.NewDiskBlobs(opts.Dest)
	if err != nil {
		return err
	}
	cache := tensorcache.New(tensorcache.NewBlobStore(blobs), opts.Backend.Dim, logger)

	genOpts := tensorcache.GenerateOptions{Workers: opts.Workers}
	var bar *progressbar.ProgressBar
	if !opts.Quiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Embedding"),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
		)
		genOpts.Progress = func(done, total int) {
			bar.ChangeMax(total)
			_ = bar.Set(done)
		}
	}

	report, err := cache.Generate(ctx, opts.Src, provider, genOpts)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return fmt.Errorf("generate cache: %w", err)
	}

	return printReport(cmd.OutOrStdout(), report, opts.JSON)
}

func printReport(w io.Writer, report *tensorcache.GenerateReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	for _, skipped := range report.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", skipped.Path, skipped.Reason)
	}
	fmt.Fprintf(w, "wrote %d entries, skipped %d\n", report.Count(), len(report.Skipped))
	return nil
}
