// Package cmd implements the jobsuite command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdziat/jobsuite/internal/config"
	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/definition"
	"github.com/jdziat/jobsuite/pkg/index"
)

// errNotCompleted is returned when a run ended without completing its root
// job, so the process exits non-zero.
var errNotCompleted = errors.New("suite did not complete")

type versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var version = versionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo records build metadata shown by --version.
func SetVersionInfo(v, commit, date string) {
	version = versionInfo{Version: v, Commit: commit, BuildDate: date}
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "jobsuite",
		Short: "Run resumable suites of jobs",
		Long: `jobsuite runs a tree of jobs described in a YAML definition.

Every job's status is persisted, so a suite that failed or was stopped
resumes where it left off: completed jobs are skipped and interrupted ones
start a new attempt. A running suite publishes a status index that the
status and stop commands read.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Logger(a.errOut)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default ./jobsuite.yaml)")
	flags.String("state-dir", "", "Directory holding status records and indexes")
	flags.String("store", "", "Session store: file, sqlite or postgres")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	_ = a.v.BindPFlag("state_dir", flags.Lookup("state-dir"))
	_ = a.v.BindPFlag("store", flags.Lookup("store"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		newRunCmd(a),
		newStatusCmd(a),
		newStopCmd(a),
		newBackupCmd(a),
		newPruneCmd(a),
		newResetCmd(a),
	)
	return root
}

// Execute runs the command line.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// namespace resolves the suite namespace from --namespace or the namespace
// of the --file definition.
func (a *app) namespace(cmd *cobra.Command) (string, error) {
	ns, _ := cmd.Flags().GetString("namespace")
	if ns != "" {
		return ns, nil
	}
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return "", errors.New("either --namespace or --file is required")
	}
	def, err := definition.Load(file)
	if err != nil {
		return "", err
	}
	return def.Namespace, nil
}

// ensureIdle refuses to continue while the suite publishing namespace's
// index is running on a live process.
func (a *app) ensureIdle(namespace string) error {
	snap, err := index.Read(a.cfg.IndexPath(namespace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		a.logger.Warn("ignoring unreadable status index", "namespace", namespace, "error", err)
		return nil
	}
	if !snap.State.Active() {
		return nil
	}
	if !snap.OwnerAlive() {
		return nil
	}
	return fmt.Errorf("%w: %s (pid %d on %s)", core.ErrSuiteRunning, namespace, snap.PID, snap.Host)
}

func addNamespaceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("namespace", "n", "", "Suite namespace")
	cmd.Flags().StringP("file", "f", "", "Suite definition file")
}
