package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/veedubyou/stemsplit/src/shared/config/envvar"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/executor"
	"github.com/veedubyou/stemsplit/src/shared/lib/working_dir"
	"github.com/veedubyou/stemsplit/src/worker/audio"
	"github.com/veedubyou/stemsplit/src/worker/audio/codec"
	"github.com/veedubyou/stemsplit/src/worker/separation"
)

type separateOptions struct {
	model      string
	format     string
	outDir     string
	ffmpegPath string
}

func newSeparateCommand() *cobra.Command {
	opts := separateOptions{}

	cmd := &cobra.Command{
		Use:   "separate <file>",
		Short: "Separate a local audio file into stems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := separateFile(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}

			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.model, "model", separation.DefaultModelName, "Built-in model name or path to a model file")
	cmd.Flags().StringVar(&opts.format, "format", string(codec.WAV), "Output format for the stems")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "Directory for the stems (defaults to <file>-stems)")
	cmd.Flags().StringVar(&opts.ffmpegPath, "ffmpeg", envvar.GetOr(envvar.FFMPEG_BIN_PATH, "ffmpeg"), "ffmpeg binary used for non wav audio")

	return cmd
}

// separateFile runs decode, separate and encode on one file without the
// orchestrator and returns the written stem paths in model order.
func separateFile(ctx context.Context, inputPath string, opts separateOptions) ([]string, error) {
	errctx := cerr.Field("input_path", inputPath)

	inputFormat, err := codec.FormatFromPath(inputPath)
	if err != nil {
		return nil, errctx.Wrap(err).Error("Unsupported input")
	}

	outputFormat, err := codec.ParseFormat(opts.format)
	if err != nil {
		return nil, errctx.Wrap(err).Error("Unsupported output format")
	}

	model, err := separation.LoadModel(opts.model)
	if err != nil {
		return nil, err
	}

	outDir := opts.outDir
	if outDir == "" {
		outDir = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "-stems"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errctx.Wrap(err).Error("Failed to create output dir")
	}

	scratch, err := os.MkdirTemp("", "stemsplit-cli-*")
	if err != nil {
		return nil, errctx.Wrap(err).Error("Failed to create scratch dir")
	}
	defer os.RemoveAll(scratch)

	workingDir, err := working_dir.NewWorkingDir(scratch)
	if err != nil {
		return nil, err
	}

	ffmpeg := codec.NewFFmpeg(opts.ffmpegPath, executor.BinaryFileExecutor{})
	decoder := codec.NewDecoder(ffmpeg, workingDir, model.Target())
	encoder := codec.NewEncoder(ffmpeg, workingDir)
	engine := separation.NewEngine(model, 0)

	buf, err := decoder.DecodeFile(ctx, inputPath, inputFormat)
	if err != nil {
		return nil, err
	}

	written := []string{}
	err = engine.Separate(ctx, buf, func(ctx context.Context, stem audio.Stem) error {
		data, err := encoder.Encode(ctx, stem.Buffer, outputFormat)
		if err != nil {
			return err
		}

		path := filepath.Join(outDir, stem.Name+outputFormat.Extension())
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return cerr.Field("stem_path", path).Wrap(err).Error("Failed to write stem")
		}

		written = append(written, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return written, nil
}
