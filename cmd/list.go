package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/pipscan/internal/cluster"
	"github.com/andresmejia3/pipscan/internal/config"
	"github.com/andresmejia3/pipscan/internal/store"
	"github.com/spf13/cobra"
)

var listSet string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored dice sets, or the face clusters of one set",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if listSet != "" {
			return runListClusters(cmd.Context(), DB, Cfg, listSet, os.Stdout)
		}
		return runListSets(cmd.Context(), DB, os.Stdout)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listSet, "set", "s", "", "Show the clusters of this dice set")
	rootCmd.AddCommand(listCmd)
}

func runListSets(ctx context.Context, st store.ExemplarStore, out io.Writer) error {
	sets, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("list dice sets: %w", err)
	}
	if len(sets) == 0 {
		fmt.Fprintln(out, "No dice sets found in store.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SET\tCLUSTERS\tLABELED\tEXEMPLARS\tUPDATED")
	fmt.Fprintln(w, "---\t--------\t-------\t---------\t-------")
	for _, s := range sets {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", s.DiceSetID, s.Clusters, s.Labeled, s.Exemplars, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runListClusters(ctx context.Context, st store.ExemplarStore, cfg config.Config, diceSetID string, out io.Writer) error {
	set, err := st.Load(ctx, diceSetID)
	if err != nil {
		return fmt.Errorf("load cluster set %s: %w", diceSetID, err)
	}
	if set == nil || len(set.Clusters) == 0 {
		fmt.Fprintf(out, "No clusters found for dice set %s.\n", diceSetID)
		return nil
	}

	sim := cfg.Matcher().Dissimilarity
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPIP\tEXEMPLARS\tCOHESION\tUPDATED")
	fmt.Fprintln(w, "--\t---\t---------\t--------\t-------")
	for _, c := range set.Clusters {
		mean, std := cluster.Cohesion(c, sim)
		fmt.Fprintf(w, "%s\t%s\t%d\t%.3f ± %.3f\t%s\n",
			shortID(c.ID), valueString(c.PipValue), len(c.Exemplars), mean, std, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
