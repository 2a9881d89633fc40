package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclaw/clawjobs/internal/limiter"
	"github.com/openclaw/clawjobs/internal/server"
	"github.com/openclaw/clawjobs/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the clawjobs API server",
		Long:  "Start the HTTP server that exposes the agent API, the account API and the payment webhook.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	cfg := a.cfg

	logger.Info("store ready", "driver", a.store.Driver())

	var lim limiter.Limiter
	if cfg.Redis.URL != "" {
		rl, err := limiter.NewRedisFromURL(cfg.Redis.URL, cfg.LockoutPolicy())
		if err != nil {
			return err
		}
		defer rl.Close()
		lim = rl
		logger.Info("auth lockout backed by redis")
	} else {
		lim = limiter.NewMemory(cfg.LockoutPolicy())
	}

	sessions := service.NewSessionService(cfg.Auth.SessionSecret)
	if !sessions.Enabled() {
		logger.Warn("auth.session_secret is not set - the account API will reject every request")
	}
	if cfg.Payments.WebhookSecret == "" {
		logger.Warn("payments.webhook_secret is not set - payment webhooks will be rejected")
	}

	srvCfg := cfg.HTTPServer()
	srv := server.New(srvCfg, server.Deps{
		Store:    a.store,
		Keys:     a.keys,
		Sessions: sessions,
		Market:   a.market,
		CallLogs: a.calls,
		Limiter:  lim,
		Metrics:  a.metrics,
	}, logger)

	fmt.Printf("→ clawjobs %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Agent API:  http://%s:%d/api/v1\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", srvCfg.Host, srvCfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
