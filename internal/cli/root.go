// Package cli implements scanixctl, which inspects and maintains a Scanix
// data directory while the server is stopped.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scanixapp/scanix-server/internal/config"
	"github.com/scanixapp/scanix-server/internal/di/providers"
	"github.com/scanixapp/scanix-server/internal/logger"
	"github.com/scanixapp/scanix-server/internal/media/images"
	"github.com/scanixapp/scanix-server/internal/names"
	"github.com/scanixapp/scanix-server/internal/service"
	"github.com/scanixapp/scanix-server/internal/store"
)

type rootOptions struct {
	dataPath string
	backend  string
	envFile  string
	verbose  bool
}

// NewRootCmd builds the scanixctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "scanixctl",
		Short: "Inspect and maintain a Scanix data directory",
		Long: `scanixctl works directly on the store of a Scanix server.

Stop the server first: the badger backend holds an exclusive lock on its
directory, and edits made here are not seen by a running server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dataPath, "data-path", "", "Scanix data directory (default: DATA_PATH or ~/Scanix/data)")
	cmd.PersistentFlags().StringVar(&opts.backend, "store", "", "Persistence backend (sqlite, badger)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to .env file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log store activity to stderr")

	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newExportCmd(opts))

	return cmd
}

// config resolves the server configuration, letting flags override the environment.
func (o *rootOptions) config() (*config.Config, error) {
	var args []string
	if o.dataPath != "" {
		args = append(args, "-data-path", o.dataPath)
	}
	if o.backend != "" {
		args = append(args, "-store", o.backend)
	}
	if o.envFile != "" {
		args = append(args, "-env-file", o.envFile)
	}
	return config.Load(flag.NewFlagSet("scanixctl", flag.ContinueOnError), args)
}

func (o *rootOptions) logger(w io.Writer) *logger.Logger {
	if !o.verbose {
		return logger.Discard()
	}
	return logger.New(logger.Config{Writer: w, Format: "pretty", Level: logger.ParseLevel("debug")})
}

// session is an opened store, optionally with a loaded scan service.
type session struct {
	cfg   *config.Config
	log   *logger.Logger
	repo  store.Repository
	scans *service.ScanService
}

// openStore opens the repository without touching its contents.
func (o *rootOptions) openStore(cmd *cobra.Command) (*session, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	log := o.logger(cmd.ErrOrStderr())

	repo, _, err := providers.OpenRepository(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	return &session{cfg: cfg, log: log, repo: repo}, nil
}

// open opens the repository and loads it into a scan service. Loading
// repairs page order and drops empty scans, as the server does at startup.
func (o *rootOptions) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	s, err := o.openStore(cmd)
	if err != nil {
		return nil, err
	}

	processor := images.NewProcessor(s.cfg.Capture.JPEGQuality, s.log.Component("images"))
	s.scans = service.NewScanService(s.repo, processor, names.New(), s.log.Component("scans"))
	if _, err := s.scans.Load(ctx); err != nil {
		_ = s.repo.Close()
		return nil, err
	}

	return s, nil
}

func (s *session) Close() error {
	return s.repo.Close()
}
