package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/andresmejia3/pipscan/internal/cluster"
	"github.com/andresmejia3/pipscan/internal/config"
	"github.com/andresmejia3/pipscan/internal/pipeline"
	"github.com/andresmejia3/pipscan/internal/store"
	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/spf13/cobra"
)

var labelSet string

var labelCmd = &cobra.Command{
	Use:   "label <cluster_id> <pip>",
	Short: "Assign a pip value (1-6) to a discovered face cluster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		pip, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid pip value %q: %w", args[1], err)
		}
		return runLabel(cmd.Context(), DB, Cfg, labelSet, args[0], pip, os.Stdout)
	},
}

func init() {
	labelCmd.Flags().StringVarP(&labelSet, "set", "s", "", "Dice set id")
	labelCmd.MarkFlagRequired("set")
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, st store.ExemplarStore, cfg config.Config, diceSetID, idArg string, pip int, out io.Writer) error {
	set, err := st.Load(ctx, diceSetID)
	if err != nil {
		return fmt.Errorf("load cluster set %s: %w", diceSetID, err)
	}
	if set == nil {
		return fmt.Errorf("no cluster set saved for dice set %q (run roll first)", diceSetID)
	}

	id, err := resolveClusterID(set.Clusters, idArg)
	if err != nil {
		return err
	}

	p := pipeline.New(diceSetID, cfg.PipelineOptions(), cfg.Matcher().Dissimilarity, Log)
	p.Restore(*set)
	if err := p.LabelCluster(id, pip); err != nil {
		return err
	}
	if err := st.Save(ctx, diceSetID, p.Snapshot()); err != nil {
		return fmt.Errorf("save cluster set %s: %w", diceSetID, err)
	}

	fmt.Fprintf(out, "✅ Cluster %s labeled as %d\n", shortID(id), pip)
	return nil
}

// resolveClusterID accepts a full cluster id or any unambiguous prefix of one.
func resolveClusterID(clusters []types.Cluster, arg string) (string, error) {
	if _, ok := cluster.Find(clusters, arg); ok {
		return arg, nil
	}
	var matches []string
	for _, c := range clusters {
		if arg != "" && strings.HasPrefix(c.ID, arg) {
			matches = append(matches, c.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", cluster.ErrUnknownCluster, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("cluster prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}
