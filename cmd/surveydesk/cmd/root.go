package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/logging"
	"surveydesk-go/internal/monitoring/tracing"
	"surveydesk-go/internal/runtime"
)

type rootOptions struct {
	configPath string
	debug      bool
	cfg        *config.Config

	traceShutdown tracing.ShutdownFunc
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "surveydesk",
		Short: "SurveyDesk API client",
		Long: `Talks to the SurveyDesk dashboard API with the same credential handling
as the web client: a persisted user and visitor token, per-endpoint token
selection and a single visitor handshake shared by concurrent callers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithFile(opts.configPath)
			if err != nil {
				return err
			}
			if opts.debug {
				cfg.Security.Debug = true
			}
			if err := logging.SetupWithOutput(cfg, cmd.ErrOrStderr()); err != nil {
				return err
			}
			opts.cfg = cfg

			shutdown, err := tracing.Init(cmd.Context(), tracing.OptionsFromConfig(cfg, tracing.ServiceClient))
			if err != nil {
				log.WithError(err).Warn("failed to initialize tracing")
				return nil
			}
			opts.traceShutdown = shutdown
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.shutdownTracing(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "path to configuration file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newBootstrapCmd(opts),
		newCallCmd(opts),
		newSignInCmd(opts),
		newSignOutCmd(opts),
		newWhoAmICmd(opts),
		newWatchCmd(opts),
	)
	return root, opts
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, opts := newRootCmd()
	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when the command fails
	if serr := opts.shutdownTracing(context.Background()); serr != nil {
		log.WithError(serr).Warn("failed to flush traces")
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}

// shutdownTracing flushes spans once; later calls are no-ops.
func (o *rootOptions) shutdownTracing(ctx context.Context) error {
	if o.traceShutdown == nil {
		return nil
	}
	shutdown := o.traceShutdown
	o.traceShutdown = nil
	return shutdown(context.WithoutCancel(ctx))
}

// withApp assembles the runtime for one command and releases it afterwards.
func (o *rootOptions) withApp(ctx context.Context, fn func(*runtime.App) error) error {
	app, err := runtime.NewApp(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func defaultConfigPath() string {
	if p := os.Getenv(config.EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return "~/.surveydesk/config.yaml"
}
