package classify

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/pneumodetect/internal/classifier/backend"
	"github.com/tphakala/pneumodetect/internal/conf"
)

// Command creates the command that classifies images from the command line.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify chest X-ray images without starting the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.OutOrStdout(), cmd.ErrOrStderr(), settings, args)
		},
	}

	cmd.Flags().String("model", "", "Path to the .tflite or .onnx model")
	conf.MarkFlag(cmd.Flags(), "model", "model.path")

	return cmd
}

// Run prints one tab separated line per image: path, label and confidence.
// Unreadable images are reported on errOut and make the command fail after
// the remaining images are processed.
func Run(out, errOut io.Writer, settings *conf.Settings, paths []string) error {
	if err := conf.ValidateModelSettings(settings); err != nil {
		return err
	}

	cls, err := backend.Open(settings.Model)
	if err != nil {
		return err
	}
	defer cls.Close()

	failed := 0
	for _, path := range paths {
		result, err := cls.Classify(path)
		if err != nil {
			failed++
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%.2f%%\n", path, result.Label, result.Confidence)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be classified", failed, len(paths))
	}
	return nil
}
