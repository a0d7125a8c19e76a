package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/oneconcern/paramon/pkg/auth"
	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/dlogger"
	"github.com/oneconcern/paramon/pkg/governor"
	"github.com/oneconcern/paramon/pkg/graph"
	"github.com/oneconcern/paramon/pkg/httpd"
	"github.com/oneconcern/paramon/pkg/session"
	"github.com/oneconcern/paramon/pkg/storage/localfs"
	"github.com/oneconcern/paramon/pkg/store/bdgr"
	"github.com/oneconcern/paramon/pkg/sweep"
	"github.com/oneconcern/paramon/pkg/token"
	"github.com/oneconcern/paramon/pkg/web"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the commit creation protocol server",
	Long: `Serve runs the HTTP API, the metadata store, the content-addressed
blob store and the background sweeper in one process.

The two token signing secrets are required and read from configuration or
the PARAMON_TOKEN_SESSION_SECRET / PARAMON_TOKEN_PROOF_SECRET environment.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	httpd.RegisterFlags(serveCmd.Flags())
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("server.read_timeout", serveCmd.Flags().Lookup("read-timeout"))
	_ = viper.BindPFlag("server.write_timeout", serveCmd.Flags().Lookup("write-timeout"))
	serveCmd.Flags().String("store-dir", "", "directory of the metadata store")
	_ = viper.BindPFlag("store.dir", serveCmd.Flags().Lookup("store-dir"))
	serveCmd.Flags().String("blob-dir", "", "directory of the blob store")
	_ = viper.BindPFlag("blob.dir", serveCmd.Flags().Lookup("blob-dir"))
	serveCmd.Flags().String("log-level", "", "log level (info, debug, none)")
	_ = viper.BindPFlag("log.level", serveCmd.Flags().Lookup("log-level"))
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	logger, err := dlogger.New(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	sessionSecret := viper.GetString("token.session_secret")
	proofSecret := viper.GetString("token.proof_secret")
	if sessionSecret == "" || proofSecret == "" {
		logger.Error("both token signing secrets must be configured",
			zap.Bool("sessionSecretSet", sessionSecret != ""),
			zap.Bool("proofSecretSet", proofSecret != ""))
		return errors.New("missing token signing secrets")
	}

	stores := bdgr.New(viper.GetString("store.dir"))
	if err := stores.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("closing metadata store", zap.Error(err))
		}
	}()

	blobDir, err := filepath.Abs(viper.GetString("blob.dir"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(blobDir, 0700); err != nil {
		return err
	}
	blobs := blob.New(
		localfs.New(afero.NewBasePathFs(afero.NewOsFs(), blobDir)),
		blob.Logger(logger),
	)

	codec := token.New(sessionSecret, proofSecret, viper.GetDuration("token.ttl"))
	gov := governor.New(stores.Blocks(), stores.Sessions(),
		governor.BlockDuration(viper.GetDuration("governor.block")),
		governor.Logger(logger))
	resolver := graph.New(graph.Logger(logger))
	mgr := session.New(stores, blobs, codec, gov, resolver, session.Logger(logger))

	srv := web.NewServer(mgr, stores, blobs, auth.NewHeader(viper.GetString("auth.header")), web.Logger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := sweep.New(stores, blobs,
		sweep.Interval(viper.GetDuration("sweep.interval")),
		sweep.Retention(viper.GetDuration("sweep.retention")),
		sweep.Logger(logger))
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", zap.Error(err))
		}
	}()

	server := httpd.New(
		httpd.ListensOn(viper.GetString("listen")),
		httpd.HandlesRequestsWith(web.InitRouter(srv)),
		httpd.WithTimeouts(viper.GetDuration("server.read_timeout"), viper.GetDuration("server.write_timeout")),
		httpd.LogsWith(logger),
		httpd.OnShutdown(cancel),
	)
	return server.Serve(ctx)
}
