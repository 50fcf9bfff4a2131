package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/pneumodetect/internal/classifier/backend"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/httpcontroller"
	"github.com/tphakala/pneumodetect/internal/intake"
	"github.com/tphakala/pneumodetect/internal/logger"
	"github.com/tphakala/pneumodetect/internal/observability"
	"github.com/tphakala/pneumodetect/internal/security"
)

// Command creates the command that runs the web application.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		Long:  "Load the model, open the database and serve the upload, history and dashboard pages until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings)
		},
	}

	setupFlags(cmd)

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) {
	cmd.Flags().String("port", "", "Port to listen on")
	cmd.Flags().String("model", "", "Path to the .tflite or .onnx model")
	cmd.Flags().String("uploads", "", "Directory for uploaded images")

	conf.MarkFlag(cmd.Flags(), "port", "webserver.port")
	conf.MarkFlag(cmd.Flags(), "model", "model.path")
	conf.MarkFlag(cmd.Flags(), "uploads", "intake.uploaddir")
}

// Run starts the server and blocks until ctx is cancelled or SIGINT or
// SIGTERM arrives, then shuts down gracefully. The model is loaded before
// the listener opens so a bad model never serves traffic.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("serve")

	if err := conf.ValidateModelSettings(settings); err != nil {
		return err
	}

	backendName, err := backend.Resolve(settings.Model)
	if err != nil {
		return err
	}
	cls, err := backend.Open(settings.Model)
	if err != nil {
		return err
	}
	defer func() {
		if err := cls.Close(); err != nil {
			log.Warn("failed to release model", logger.Error(err))
		}
	}()

	ds, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Warn("failed to close database", logger.Error(err))
		}
	}()

	uploads, err := intake.New(settings.Intake)
	if err != nil {
		return err
	}
	sessions, err := security.NewSessions(settings.Security)
	if err != nil {
		return err
	}
	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	server, err := httpcontroller.New(httpcontroller.Deps{
		Settings:   settings,
		DS:         ds,
		Classifier: cls,
		Uploads:    uploads,
		Accounts:   security.NewAccounts(ds, settings.Security),
		Sessions:   sessions,
		Metrics:    metrics,
		Backend:    backendName,
	})
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a failing listener cancels gctx, which runs the shutdown branch
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", logger.Duration("timeout", httpcontroller.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpcontroller.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown incomplete", logger.Error(err))
		}
		return nil
	})
	return g.Wait()
}
