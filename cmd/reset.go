package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/pipscan/internal/store"
	"github.com/spf13/cobra"
)

var (
	resetSet string
	resetYes bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget a dice set's clusters so it can be recalibrated",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runReset(cmd.Context(), DB, resetSet, resetYes, os.Stdin, os.Stdout)
	},
}

func init() {
	resetCmd.Flags().StringVarP(&resetSet, "set", "s", "", "Dice set id to clear")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	resetCmd.MarkFlagRequired("set")
	rootCmd.AddCommand(resetCmd)
}

func runReset(ctx context.Context, st store.ExemplarStore, diceSetID string, yes bool, in io.Reader, out io.Writer) error {
	if !yes {
		reader := bufio.NewReader(in)
		if !confirm(reader, out, fmt.Sprintf("⚠️  Are you sure you want to delete every cluster of dice set %s?", diceSetID)) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintf(out, "🗑️  Clearing dice set %s...\n", diceSetID)
	if err := st.Delete(ctx, diceSetID); err != nil {
		return fmt.Errorf("delete dice set %s: %w", diceSetID, err)
	}
	fmt.Fprintln(out, "✨ Reset complete. Capture a new background and roll again to recalibrate.")
	return nil
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
