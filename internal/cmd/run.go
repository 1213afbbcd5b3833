package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jdziat/jobsuite/pkg/definition"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/metrics"
	"github.com/jdziat/jobsuite/pkg/notify"
	"github.com/jdziat/jobsuite/pkg/schedule"
	"github.com/jdziat/jobsuite/pkg/suite"
	"github.com/jdziat/jobsuite/pkg/tracing"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		file  string
		jobID string
		spec  string
	)
	cmd := &cobra.Command{
		Use:   "run -f suite.yaml [--job id] [--schedule spec]",
		Short: "Run or resume a suite",
		Long: `Run executes the suite described by --file.

Completed jobs from an earlier session are skipped and interrupted jobs
resume. With --job only that subtree runs.

With --schedule the suite runs repeatedly until interrupted; after every
completed run the session is backed up so the next run starts from scratch.
Schedules are "every 15m", "daily 02:30", "weekly sun 04:00" (UTC) or a
cron expression such as "0 2 * * 1-5" or "@hourly".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, file, jobID, spec)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Suite definition file")
	cmd.Flags().StringVar(&jobID, "job", "", "Run only the subtree rooted at this job id")
	cmd.Flags().StringVar(&spec, "schedule", "", "Run repeatedly on a schedule, e.g. \"every 1h\" or \"0 2 * * *\"")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) run(ctx context.Context, file, jobID, spec string) error {
	var sched schedule.Schedule
	if spec != "" {
		var err error
		if sched, err = schedule.Parse(spec); err != nil {
			return err
		}
	}

	def, err := definition.Load(file)
	if err != nil {
		return err
	}
	root, err := def.Build(definition.NewRegistry())
	if err != nil {
		return err
	}
	target := root
	if jobID != "" {
		if target = job.Find(root, jobID); target == nil {
			return fmt.Errorf("job %q is not part of suite %s", jobID, def.Namespace)
		}
	}

	store, err := a.cfg.OpenStore(ctx, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []suite.Option{
		suite.WithLogger(a.logger),
		suite.WithIndexPath(a.cfg.IndexPath(def.Namespace)),
		suite.WithPollInterval(a.cfg.PollInterval),
		suite.WithIndexInterval(a.cfg.IndexInterval),
		suite.WithRetry(a.cfg.RetryPolicy()),
		suite.WithConfig(a.v),
	}
	if sink := a.cfg.LogSink(); sink != nil {
		defer sink.Close()
		opts = append(opts, suite.WithLogSink(sink))
	}
	if a.cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(a.cfg.Tracing.ServiceName, a.errOut)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("flush traces", "error", err)
			}
		}()
	}

	s, err := suite.New(def.Namespace, root, store, opts...)
	if err != nil {
		return err
	}
	s.OnError(func(id string, err error) {
		a.logger.Error("job failed", "namespace", def.Namespace, "job_id", id, "error", err)
	})

	collector := metrics.NewCollector(def.Namespace)
	collector.Attach(s.Bus())
	if len(a.cfg.Notify.Recipients) > 0 {
		notify.Attach(s.Bus(), notify.LogNotifier{Logger: a.logger}, notify.Config{
			Recipients: a.cfg.Notify.Recipients,
			OnSuccess:  a.cfg.Notify.OnSuccess,
			Logger:     a.logger,
		})
	}

	once := func(ctx context.Context) error {
		var ok bool
		var err error
		if target == root {
			ok, err = s.Execute(ctx)
		} else {
			ok, err = s.RunJob(ctx, target)
		}
		if path := a.cfg.Metrics.Textfile; path != "" {
			if werr := collector.WriteTextfile(path); werr != nil {
				a.logger.Warn("write metrics textfile", "path", path, "error", werr)
			}
		}
		if err != nil {
			return err
		}
		if !ok {
			return errNotCompleted
		}
		if sched != nil {
			location, err := s.Backup(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("session backed up", "namespace", def.Namespace, "location", location)
		}
		return nil
	}

	if sched == nil {
		return once(ctx)
	}
	a.logger.Info("scheduled", "namespace", def.Namespace, "schedule", spec)
	return schedule.Loop(ctx, sched, once, a.logger)
}
