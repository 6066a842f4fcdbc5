package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/widgets/internal/server"
	"github.com/faucetdb/widgets/internal/service"
)

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the widgets API server",
		Long:  "Open the database, apply migrations and serve the widgets API until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	if dev {
		viper.Set("logging.level", "debug")
	}
	ctx := context.Background()

	cfg, logger, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store opened", "driver", st.Driver())

	authSvc := service.NewAuthService(st, cfg.Auth.JWTSecret, logger)

	srvCfg := server.Config{
		Host:                    cfg.Server.Host,
		Port:                    cfg.Server.Port,
		ShutdownTimeout:         cfg.ShutdownTimeout(),
		CORSOrigins:             cfg.Server.CORS.Origins,
		APIKeyHeader:            cfg.Auth.APIKeyHeader,
		Version:                 versionString(),
		RequestsPerMinute:       cfg.Server.RateLimit.RequestsPerMinute,
		PerKeyRequestsPerMinute: cfg.Auth.PerKeyRequestsPerMinute,
	}
	srv := server.New(srvCfg, st, authSvc, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "path", pidFilePath(), "error", err)
	}
	defer removePID()

	host := localHost(cfg.Server.Host)
	fmt.Printf("→ widgets %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, cfg.Server.Port)
	fmt.Printf("→ Widgets:    http://%s:%d/widgets (%s header)\n", host, cfg.Server.Port, cfg.Auth.APIKeyHeader)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, cfg.Server.Port)
	if authSvc.HasJWTSecret() {
		fmt.Printf("→ Provisioning: http://%s:%d/api/v1/system\n", host, cfg.Server.Port)
	}
	fmt.Println()

	return srv.ListenAndServe()
}
