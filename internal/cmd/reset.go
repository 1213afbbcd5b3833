package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jdziat/jobsuite/pkg/definition"
	"github.com/jdziat/jobsuite/pkg/suite"
)

func newResetCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "reset -f suite.yaml [pattern...]",
		Short: "Discard the status of jobs so they run again",
		Long: `Reset removes the status records of the jobs whose ids match the glob
patterns, including records of jobs no longer in the definition. Without
patterns every job of the suite is reset. Reset refuses while the suite is
running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.Load(file)
			if err != nil {
				return err
			}
			if err := a.ensureIdle(def.Namespace); err != nil {
				return err
			}
			root, err := def.Build(definition.NewRegistry())
			if err != nil {
				return err
			}
			store, err := a.cfg.OpenStore(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := suite.New(def.Namespace, root, store,
				suite.WithLogger(a.logger),
				suite.WithIndexPath(a.cfg.IndexPath(def.Namespace)),
				suite.WithRetry(a.cfg.RetryPolicy()),
			)
			if err != nil {
				return err
			}
			removed, err := s.Reset(cmd.Context(), args...)
			for _, id := range removed {
				fmt.Fprintf(a.out, "reset %s\n", id)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Suite definition file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
