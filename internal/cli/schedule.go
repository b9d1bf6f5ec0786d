package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"diabetesrisk/internal/training"
)

// NewScheduleCmd creates the 'schedule' command that retrains periodically.
func NewScheduleCmd() *cobra.Command {
	var spec string
	var immediate bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Retrain on a cron schedule",
		Long: `Run the training pipeline on a cron schedule until interrupted. A run that
is still going when the next one is due is skipped. Failed runs are logged and
leave the previous artifacts in place; the server picks up new artifacts on
its next restart.`,
		Example: `  train schedule --cron "@weekly"
  train schedule --cron "0 3 * * *" --now`,
		Args: cobra.NoArgs,
	}
	flags := newTrainingFlags(cmd)
	cmd.Flags().StringVar(&spec, "cron", "@daily", "cron expression (five fields or a descriptor)")
	cmd.Flags().BoolVar(&immediate, "now", false, "also run once at startup")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSchedule(ctx, spec, immediate, flags.options(cmd))
	}
	return cmd
}

// trainingJob adapts one pipeline run to cron.Job.
type trainingJob struct {
	ctx  context.Context
	opts training.Options
	run  func(context.Context, training.Options) (*training.Report, error)
}

func (j *trainingJob) Run() {
	report, err := j.run(j.ctx, j.opts)
	if err != nil {
		slog.ErrorContext(j.ctx, "scheduled training failed", "err", err)
		return
	}
	slog.InfoContext(j.ctx, "scheduled training finished", "run_id", report.RunID, "accuracy", report.Accuracy, "duration", report.Duration)
}

func newScheduler(spec string, job cron.Job) (*cron.Cron, error) {
	log := cronLogger{}
	c := cron.New(cron.WithLogger(log), cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)))
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	return c, nil
}

func runSchedule(ctx context.Context, spec string, immediate bool, opts training.Options) error {
	job := &trainingJob{ctx: ctx, opts: opts, run: training.Run}
	c, err := newScheduler(spec, job)
	if err != nil {
		return err
	}

	slog.Info("training scheduler started", "cron", spec, "dataset", opts.DatasetPath, "out", opts.ArtifactDir)
	if immediate {
		job.Run()
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("training scheduler stopped")
	return nil
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
