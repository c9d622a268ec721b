package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-sync/internal/constants"
	"github.com/kozaktomas/face-sync/internal/enrollment"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll face templates",
	Long: `Enroll one landmark sample for an owner, or a batch of samples from a YAML file.

Enrolling an owner again replaces the previous template.

Examples:
  # Single sample
  face-sync enroll --owner s-1001 --landmarks 0.1,0.2,0.3,...

  # Batch file with 8 parallel workers
  face-sync enroll --file students.yaml --concurrency 8

  # JSON output for scripting
  face-sync enroll --file students.yaml --json`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("owner", "", "Owner (student) ID of a single sample")
	enrollCmd.Flags().Float64Slice("landmarks", nil, "Raw landmark vector of a single sample")
	enrollCmd.Flags().String("file", "", "YAML batch file")
	enrollCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel enrollments for a batch")
	enrollCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// EnrollResult represents the result of an enroll command
type EnrollResult struct {
	enrollment.Result
	DurationMs int64 `json:"duration_ms"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	owner := mustGetString(cmd, "owner")
	landmarks := mustGetFloat64Slice(cmd, "landmarks")
	file := mustGetString(cmd, "file")
	jsonOutput := mustGetBool(cmd, "json")

	batch := &enrollment.Batch{}
	switch {
	case file != "" && owner != "":
		return errors.New("use either --file or --owner, not both")
	case file != "":
		b, err := enrollment.LoadFile(file)
		if err != nil {
			return err
		}
		batch = b
	case owner != "":
		batch.Templates = []enrollment.Entry{{OwnerID: owner, Landmarks: landmarks}}
	default:
		return errors.New("either --file or --owner with --landmarks is required")
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	startTime := time.Now()

	eng, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	var bar *progressbar.ProgressBar
	var progress func()
	if !jsonOutput && len(batch.Templates) > 1 {
		bar = progressbar.NewOptions(len(batch.Templates),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("templates"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		progress = func() { bar.Add(1) }
	}

	res, err := enrollment.Run(ctx, eng.service, batch, mustGetInt(cmd, "concurrency"), progress)
	if err != nil {
		return err
	}
	if bar != nil {
		fmt.Println()
	}
	if err := eng.service.SaveIndex(ctx); err != nil {
		logger.WithError(err).Warn("failed to save HNSW index")
	}

	duration := time.Since(startTime)
	if jsonOutput {
		return outputJSON(EnrollResult{Result: res, DurationMs: duration.Milliseconds()})
	}

	fmt.Printf("Enrolled: %d\n", res.Enrolled)
	if len(res.Failed) > 0 {
		fmt.Printf("Failed:   %d\n", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Printf("  %s: %s\n", f.OwnerID, f.Error)
		}
	}
	fmt.Printf("Duration: %s\n", formatDuration(duration))

	if res.Enrolled == 0 && len(res.Failed) > 0 {
		return errors.New("no template enrolled")
	}
	return nil
}
