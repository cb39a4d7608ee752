package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/pipscan/internal/imaging"
	"github.com/andresmejia3/pipscan/internal/normalize"
	"github.com/andresmejia3/pipscan/internal/pips"
	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/andresmejia3/pipscan/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var pipsCmd = &cobra.Command{
	Use:         "pips <image>",
	Short:       "Count pips on an image cropped to a single die face",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runPips(args[0], os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(pipsCmd)
}

func runPips(path string, out io.Writer) error {
	frame, err := utils.LoadFrame(path)
	if err != nil {
		return fmt.Errorf("failed to load die image: %w", err)
	}
	gray := imaging.Grayscale(frame)
	tile := normalize.Face(gray, types.Roi{X: 0, Y: 0, Width: frame.Width, Height: frame.Height})
	count := pips.Count(tile)

	Log.WithFields(logrus.Fields{"image": path, "blobs": count.String()}).Debug("Pips counted")
	if !count.Determinate() {
		fmt.Fprintf(out, "🎲 %s: %s\n", path, count)
		return nil
	}
	fmt.Fprintf(out, "🎲 %s: %d pips\n", path, int(count))
	return nil
}
