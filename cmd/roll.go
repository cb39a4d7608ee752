package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/pipscan/internal/cluster"
	"github.com/andresmejia3/pipscan/internal/config"
	"github.com/andresmejia3/pipscan/internal/pipeline"
	"github.com/andresmejia3/pipscan/internal/store"
	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/andresmejia3/pipscan/internal/utils"
	"github.com/andresmejia3/pipscan/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const megabyte = 1024 * 1024

const (
	// minStableExemplars is how many tiles each of six clusters needs before labeling is suggested.
	minStableExemplars = 3
	d6Faces            = 6
)

// RollOptions configures one recognition session.
type RollOptions struct {
	DiceSetID   string
	Background  string
	Stdin       bool
	SaveEvery   int
	Workers     int
	Recalibrate bool
}

// rollEnv carries the collaborators runRoll needs, so tests can swap them.
type rollEnv struct {
	Store    store.ExemplarStore
	Config   config.Config
	Log      logrus.FieldLogger
	Out      io.Writer
	Progress io.Writer
	Stdin    io.Reader
}

type rollSummary struct {
	Frames   int
	Skipped  int
	Dice     int
	Clusters int
}

var rollOpts RollOptions

var rollCmd = &cobra.Command{
	Use:   "roll [FRAMES...]",
	Short: "Recognize dice in captured frames against the empty-surface background",
	Long: "Captures the background, then detects every die in each frame, assigns it to a face cluster\n" +
		"and prints its value. Frames are image files or directories, or a JPEG stream on stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		env := rollEnv{
			Store:    DB,
			Config:   Cfg,
			Log:      Log,
			Out:      os.Stdout,
			Progress: os.Stderr,
			Stdin:    os.Stdin,
		}
		_, err := runRoll(cmd.Context(), rollOpts, args, env)
		return err
	},
}

func init() {
	rollCmd.Flags().StringVarP(&rollOpts.DiceSetID, "set", "s", "", "Dice set id the clusters belong to")
	rollCmd.Flags().StringVarP(&rollOpts.Background, "background", "b", "", "Image of the empty surface")
	rollCmd.Flags().BoolVar(&rollOpts.Stdin, "stdin", false, "Read a concatenated JPEG stream from stdin instead of files")
	rollCmd.Flags().IntVar(&rollOpts.SaveEvery, "save-every", 0, "Persist the cluster set every N frames (0 = only at the end)")
	rollCmd.Flags().IntVarP(&rollOpts.Workers, "workers", "w", 2, "Number of frame decoding workers")
	rollCmd.Flags().BoolVar(&rollOpts.Recalibrate, "recalibrate", false, "Discard the stored clusters and rebuild them from this session")

	rollCmd.MarkFlagRequired("set")
	rollCmd.MarkFlagRequired("background")
	rootCmd.AddCommand(rollCmd)
}

func validateRollFlags(opts RollOptions, args []string) error {
	if opts.DiceSetID == "" {
		return fmt.Errorf("--set is required")
	}
	if opts.Background == "" {
		return fmt.Errorf("--background is required")
	}
	if info, err := os.Stat(opts.Background); err != nil {
		return fmt.Errorf("background image: %w", err)
	} else if info.IsDir() {
		return fmt.Errorf("background %s is a directory", opts.Background)
	}
	if opts.Stdin && len(args) > 0 {
		return fmt.Errorf("frames cannot be given together with --stdin")
	}
	if !opts.Stdin && len(args) == 0 {
		return fmt.Errorf("no frames given (pass files, directories or --stdin)")
	}
	if opts.SaveEvery < 0 {
		return fmt.Errorf("--save-every must not be negative")
	}
	if opts.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	return nil
}

// runRoll orchestrates a session: restore clusters, capture the background, decode frames
// on a worker pool, process them in strict input order and persist the cluster set.
func runRoll(ctx context.Context, opts RollOptions, args []string, env rollEnv) (rollSummary, error) {
	var sum rollSummary
	if err := validateRollFlags(opts, args); err != nil {
		return sum, fmt.Errorf("invalid roll options: %w", err)
	}

	set, err := env.Store.Load(ctx, opts.DiceSetID)
	if err != nil {
		return sum, fmt.Errorf("load cluster set %s: %w", opts.DiceSetID, err)
	}
	p := pipeline.New(opts.DiceSetID, env.Config.PipelineOptions(), env.Config.Matcher().Dissimilarity, env.Log)
	if set != nil {
		p.Restore(*set)
		fmt.Fprintf(env.Progress, "📂 Restored %d clusters for dice set %s\n", len(set.Clusters), opts.DiceSetID)
	}
	if opts.Recalibrate {
		p.Reset()
		fmt.Fprintf(env.Progress, "♻️  Recalibrating dice set %s from scratch\n", opts.DiceSetID)
	}

	bg, err := utils.LoadFrame(opts.Background)
	if err != nil {
		return sum, fmt.Errorf("load background: %w", err)
	}
	if err := p.CaptureBackground(bg); err != nil {
		return sum, fmt.Errorf("capture background: %w", err)
	}

	var paths []string
	total := -1
	if !opts.Stdin {
		paths, err = utils.ExpandFrames(args)
		if err != nil {
			return sum, err
		}
		if len(paths) == 0 {
			return sum, fmt.Errorf("no supported images found in %v", args)
		}
		total = len(paths)
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🎲 Rolling"),
		progressbar.OptionSetWriter(env.Progress),
		progressbar.OptionShowCount(),
	)

	tasks := make(chan types.FrameTask, opts.Workers)
	produceErr := make(chan error, 1)
	go func() {
		defer close(tasks)
		if opts.Stdin {
			produceErr <- streamFrames(ctx, env.Stdin, tasks)
			return
		}
		produceErr <- listFrames(ctx, paths, tasks)
	}()

	pool := worker.Pool{Workers: opts.Workers}
	var saveErr error
	worker.Ordered(pool.Run(ctx, tasks), 0, func(res worker.Result) {
		bar.Add(1)
		sum.Frames++
		if res.Err != nil {
			sum.Skipped++
			env.Log.WithError(res.Err).WithField("frame", res.Index).Warn("Skipping unreadable frame")
			return
		}

		results := p.ProcessFrame(res.Frame)
		sum.Dice += len(results)
		printFrame(env.Out, res, results)

		if opts.SaveEvery > 0 && sum.Frames%opts.SaveEvery == 0 && saveErr == nil {
			saveErr = env.Store.Save(ctx, opts.DiceSetID, p.Snapshot())
		}
	})
	bar.Finish()
	fmt.Fprintln(env.Progress)

	if err := <-produceErr; err != nil {
		env.Log.WithError(err).Warn("Frame source ended early")
	}
	if saveErr != nil {
		return sum, fmt.Errorf("periodic save: %w", saveErr)
	}

	// The command context may be cancelled already; the final save must still land.
	if err := env.Store.Save(context.Background(), opts.DiceSetID, p.Snapshot()); err != nil {
		return sum, fmt.Errorf("save cluster set %s: %w", opts.DiceSetID, err)
	}

	clusters := p.Clusters()
	sum.Clusters = len(clusters)
	fmt.Fprintf(env.Progress, "🏁 Roll complete. %d frames (%d skipped), %d dice, %d clusters.\n",
		sum.Frames, sum.Skipped, sum.Dice, sum.Clusters)
	if hint := calibrationHint(clusters, opts.DiceSetID); hint != "" {
		fmt.Fprintln(env.Progress, hint)
	}
	return sum, nil
}

// calibrationHint reads the cluster set for a d6. Too many clusters means faces split;
// too few once every face should have shown up means distinct faces are merging.
func calibrationHint(clusters []types.Cluster, diceSetID string) string {
	tiles := 0
	for _, c := range clusters {
		tiles += len(c.Exemplars)
	}
	switch {
	case cluster.Stable(clusters, d6Faces, minStableExemplars) && unlabeled(clusters) > 0:
		return fmt.Sprintf("💡 Six faces found. Label them with: pipscan label --set %s <cluster-id> <pip>", diceSetID)
	case len(clusters) > d6Faces:
		return fmt.Sprintf("⚠️  %d clusters for a d6. The merge threshold may be too strict for this lighting.", len(clusters))
	case len(clusters) < d6Faces && tiles >= d6Faces*minStableExemplars:
		return fmt.Sprintf("⚠️  Only %d clusters after %d dice. Distinct faces may be merging; lower PIPSCAN_MERGE_THRESHOLD and roll again with --recalibrate.", len(clusters), tiles)
	default:
		return ""
	}
}

// listFrames queues file paths in argument order.
func listFrames(ctx context.Context, paths []string, tasks chan<- types.FrameTask) error {
	for i, path := range paths {
		select {
		case tasks <- types.FrameTask{Index: i, Path: path}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// streamFrames splits a concatenated JPEG stream into tasks.
func streamFrames(ctx context.Context, r io.Reader, tasks chan<- types.FrameTask) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	i := 0
	for scanner.Scan() {
		// The scanner reuses its buffer; each task needs its own copy.
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())
		select {
		case tasks <- types.FrameTask{Index: i, Path: fmt.Sprintf("stdin#%d", i), Data: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
		i++
	}
	return scanner.Err()
}

func printFrame(w io.Writer, res worker.Result, results []types.RoiResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "frame %d %s: no dice\n", res.Index, res.Path)
		return
	}
	fmt.Fprintf(w, "frame %d %s: %d dice\n", res.Index, res.Path, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "  🎲 (%d,%d %dx%d) cluster %s value %s blobs %s%s\n",
			r.Roi.X, r.Roi.Y, r.Roi.Width, r.Roi.Height,
			shortID(r.ClusterID), valueString(r.Value()), r.BlobCount, agreement(r))
	}
}

func valueString(v int) string {
	if v == 0 {
		return "?"
	}
	return fmt.Sprintf("%d", v)
}

func agreement(r types.RoiResult) string {
	switch {
	case r.Agrees():
		return " ✅"
	case r.PipValue != 0 && r.BlobCount.Determinate():
		return " ⚠️  blob count disagrees"
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func unlabeled(clusters []types.Cluster) int {
	n := 0
	for _, c := range clusters {
		if !c.Labeled() {
			n++
		}
	}
	return n
}
