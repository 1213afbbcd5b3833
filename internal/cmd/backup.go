package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBackupCmd(a *app) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "backup (-n namespace | -f suite.yaml)",
		Short: "Archive the session of an idle suite",
		Long: `Backup moves every status record of the suite to a timestamped
archive, so the next run starts from scratch. It refuses while the suite
is running. With --list it prints the existing backups, newest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, err := a.namespace(cmd)
			if err != nil {
				return err
			}
			store, err := a.cfg.OpenStore(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if list {
				backups, err := store.Backups(cmd.Context(), ns)
				if err != nil {
					return err
				}
				for _, b := range backups {
					fmt.Fprintln(a.out, b)
				}
				return nil
			}
			if err := a.ensureIdle(ns); err != nil {
				return err
			}
			location, err := store.Backup(cmd.Context(), ns, time.Now())
			if err != nil {
				return err
			}
			if sink := a.cfg.LogSink(); sink != nil {
				defer sink.Close()
				if err := sink.Rotate(ns); err != nil {
					a.logger.Warn("rotate job logs", "namespace", ns, "error", err)
				}
			}
			if location == "" {
				fmt.Fprintf(a.out, "nothing to back up for %s\n", ns)
				return nil
			}
			fmt.Fprintln(a.out, location)
			return nil
		},
	}
	addNamespaceFlags(cmd)
	cmd.Flags().BoolVar(&list, "list", false, "List existing backups instead of creating one")
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune (-n namespace | -f suite.yaml) --keep N",
		Short: "Delete all but the newest backups of a suite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative, got %d", keep)
			}
			ns, err := a.namespace(cmd)
			if err != nil {
				return err
			}
			store, err := a.cfg.OpenStore(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), ns, keep)
			if err != nil {
				return err
			}
			for _, r := range removed {
				fmt.Fprintf(a.out, "removed %s\n", r)
			}
			return nil
		},
	}
	addNamespaceFlags(cmd)
	cmd.Flags().IntVar(&keep, "keep", 5, "Number of backups to keep")
	return cmd
}
