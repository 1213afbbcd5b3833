package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/jobsuite/pkg/index"
	"github.com/jdziat/jobsuite/pkg/shutdown"
)

func newStopCmd(a *app) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stop (-n namespace | -f suite.yaml)",
		Short: "Ask a running suite to stop",
		Long: `Stop asks a suite running in another process to stop its jobs. The
suite records them as STOPPED so the next run resumes them. With --wait the
command returns once the suite has left the RUNNING and STOPPING states.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, err := a.namespace(cmd)
			if err != nil {
				return err
			}
			path := a.cfg.IndexPath(ns)
			if err := shutdown.Signal(path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "stop requested for %s\n", ns)
			if !wait {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			snap, err := waitIdle(ctx, path, a.cfg.PollInterval)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "suite %s is %s\n", ns, snap.State)
			return nil
		},
	}
	addNamespaceFlags(cmd)
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the suite has stopped")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait with --wait")
	return cmd
}

// waitIdle polls the index at path until its suite is no longer active.
func waitIdle(ctx context.Context, path string, interval time.Duration) (*index.Snapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := index.Read(path)
		if err == nil && !snap.State.Active() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}
