package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/jobsuite/pkg/index"
	"github.com/jdziat/jobsuite/pkg/suite"
)

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status (-n namespace | -f suite.yaml) [pattern...]",
		Short: "Show the status index of a suite",
		Long: `Status prints the last published status index of a suite. Patterns
are glob expressions over job ids ("etl/**", "*/load"); when given, only
matching jobs are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := a.namespace(cmd)
			if err != nil {
				return err
			}
			snap, err := index.Read(a.cfg.IndexPath(ns))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printStatus(a.out, snap, args)
		},
	}
	addNamespaceFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw index document")
	return cmd
}

func printStatus(w io.Writer, snap *index.Snapshot, patterns []string) error {
	fmt.Fprintf(w, "suite %s  run %s  %s  (pid %d on %s, updated %s)\n\n",
		snap.Namespace, snap.RunID, snap.State, snap.PID, snap.Host,
		snap.Updated.Local().Format(time.DateTime))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tKIND\tSTATE\tPROGRESS\tATTEMPT\tNOTE")
	snap.Walk(func(n *index.Node, depth int) {
		if len(patterns) > 0 && !suite.MatchJobID(patterns, n.ID) {
			return
		}
		id := n.ID
		if len(patterns) == 0 {
			id = strings.Repeat("  ", depth) + id
		}
		note := n.Note
		if n.Error != "" {
			note = n.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%5.1f%%\t%d\t%s\n",
			id, n.Kind, n.State, n.Progress*100, n.Attempt, note)
	})
	return tw.Flush()
}
