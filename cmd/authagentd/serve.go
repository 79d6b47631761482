package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	gosundheithttp "github.com/AppsFlyer/go-sundheit/http"
	"github.com/ghodss/yaml"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/auth-agent/Auth-Agent/cryptoutil"
	"github.com/auth-agent/Auth-Agent/server"
	"github.com/auth-agent/Auth-Agent/storage"
	"github.com/auth-agent/Auth-Agent/storage/memory"
)

type serveOptions struct {
	config string

	webHTTPAddr   string
	adminHTTPAddr string
	telemetryAddr string
}

func commandServe() *cobra.Command {
	options := serveOptions{}

	cmd := &cobra.Command{
		Use:     "serve [flags] [config file]",
		Short:   "Launch the authorization server",
		Example: "authagentd serve config.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			options.config = args[0]
			return runServe(options)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&options.webHTTPAddr, "web-http-addr", "", "public HTTP address")
	flags.StringVar(&options.adminHTTPAddr, "admin-http-addr", "", "admin HTTP address")
	flags.StringVar(&options.telemetryAddr, "telemetry-addr", "", "telemetry address")

	return cmd
}

func applyConfigOverrides(options serveOptions, c *Config) {
	if options.webHTTPAddr != "" {
		c.Web.HTTP = options.webHTTPAddr
	}
	if options.adminHTTPAddr != "" {
		c.Web.AdminHTTP = options.adminHTTPAddr
	}
	if options.telemetryAddr != "" {
		c.Telemetry.HTTP = options.telemetryAddr
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", level)
	}
}

type serverRunner struct {
	name   string
	srv    *http.Server
	logger *slog.Logger
}

func newServerRunner(name string, srv *http.Server, logger *slog.Logger) *serverRunner {
	return &serverRunner{name: name, srv: srv, logger: logger}
}

func (s *serverRunner) RunAndShutdownGracefully(gr *run.Group) error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening (%s) on %s: %w", s.name, s.srv.Addr, err)
	}

	gr.Add(func() error {
		s.logger.Info("listening", "server", s.name, "addr", s.srv.Addr)
		return s.srv.Serve(listener)
	}, func(err error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		s.logger.Debug("starting graceful shutdown", "server", s.name)
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Error("graceful shutdown failed", "server", s.name, "err", err)
		}
	})
	return nil
}

func runServe(options serveOptions) error {
	configData, err := os.ReadFile(options.config)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", options.config, err)
	}

	var c Config
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", options.config, err)
	}

	applyConfigOverrides(options, &c)

	level, err := parseLogLevel(c.Logger.Level)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(level, c.Logger.Format)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Logger.Level != "" {
		logger.Info("config using log level", "level", c.Logger.Level)
	}

	if err := c.Validate(); err != nil {
		return err
	}
	logger.Info("config issuer", "issuer", c.Issuer)

	jwtSecret, err := resolveSecret("", c.JWTSecretEnv)
	if err != nil {
		return fmt.Errorf("invalid config: jwtSecretEnv: %w", err)
	}

	st := memory.New(logger)
	defer st.Close()

	if err := seedStaticAgents(st, c.StaticAgents); err != nil {
		return fmt.Errorf("failed to seed static agents: %w", err)
	}
	if err := seedStaticClients(st, c.StaticClients); err != nil {
		return fmt.Errorf("failed to seed static clients: %w", err)
	}

	now := func() time.Time { return time.Now().UTC() }

	serverConfig := server.Config{
		Issuer:         c.Issuer,
		Storage:        st,
		JWTSecret:      []byte(jwtSecret),
		DefaultScope:   c.DefaultScope,
		AllowedOrigins: c.Web.AllowedOrigins,
		Now:            now,
		Logger:         logger,
	}
	if c.Expiry.AccessToken != "" {
		d, err := time.ParseDuration(c.Expiry.AccessToken)
		if err != nil {
			return fmt.Errorf("invalid config value %q for access token expiry: %w", c.Expiry.AccessToken, err)
		}
		serverConfig.AccessTokenTTL = d
	}
	if c.Expiry.RefreshToken != "" {
		d, err := time.ParseDuration(c.Expiry.RefreshToken)
		if err != nil {
			return fmt.Errorf("invalid config value %q for refresh token expiry: %w", c.Expiry.RefreshToken, err)
		}
		serverConfig.RefreshTokenTTL = d
	}
	if c.Expiry.AuthRequest != "" {
		d, err := time.ParseDuration(c.Expiry.AuthRequest)
		if err != nil {
			return fmt.Errorf("invalid config value %q for auth request expiry: %w", c.Expiry.AuthRequest, err)
		}
		serverConfig.AuthRequestTTL = d
	}

	srv, router, err := server.NewServer(serverConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	_ = srv

	healthChecker := gosundheit.New()
	healthChecker.RegisterCheck(&gosundheit.Config{
		Check: &checks.CustomCheck{
			CheckName: "storage",
			CheckFunc: storage.NewCustomHealthCheckFunc(st, now),
		},
		ExecutionPeriod:  15 * time.Second,
		InitiallyPassing: true,
	})

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go memory.Sweep(sweepCtx, st, server.DefaultGCInterval, logger, now)

	var gr run.Group

	if c.Telemetry.HTTP != "" {
		telemetryRouter := http.NewServeMux()
		telemetryRouter.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
		telemetryRouter.Handle("/healthz", gosundheithttp.HandleHealthJSON(healthChecker))

		telemetrySrv := &http.Server{Addr: c.Telemetry.HTTP, Handler: telemetryRouter}
		defer telemetrySrv.Close()
		if err := newServerRunner("telemetry", telemetrySrv, logger).RunAndShutdownGracefully(&gr); err != nil {
			return err
		}
	}

	httpSrv := &http.Server{Addr: c.Web.HTTP, Handler: router}
	defer httpSrv.Close()
	if err := newServerRunner("http", httpSrv, logger).RunAndShutdownGracefully(&gr); err != nil {
		return err
	}

	if c.Web.AdminHTTP != "" {
		adminSrv := &http.Server{Addr: c.Web.AdminHTTP, Handler: server.NewAdminServer(st, logger)}
		defer adminSrv.Close()
		if err := newServerRunner("admin", adminSrv, logger).RunAndShutdownGracefully(&gr); err != nil {
			return err
		}
	}

	return gr.Run()
}

func seedStaticAgents(st storage.Storage, agents []StaticAgent) error {
	for _, a := range agents {
		secret, err := resolveSecret(a.Secret, a.SecretEnv)
		if err != nil {
			return fmt.Errorf("agent %s: %w", a.AgentID, err)
		}
		hash, err := cryptoutil.HashSecret(secret)
		if err != nil {
			return err
		}
		if err := st.CreateAgent(context.Background(), storage.Agent{
			AgentID:    a.AgentID,
			SecretHash: hash,
			UserEmail:  a.UserEmail,
			UserName:   a.UserName,
			CreatedAt:  time.Now().UTC(),
		}); err != nil && err != storage.ErrAlreadyExists {
			return err
		}
	}
	return nil
}

func seedStaticClients(st storage.Storage, clients []StaticClient) error {
	for _, c := range clients {
		secret, err := resolveSecret(c.Secret, c.SecretEnv)
		if err != nil {
			return fmt.Errorf("client %s: %w", c.ClientID, err)
		}
		hash, err := cryptoutil.HashSecret(secret)
		if err != nil {
			return err
		}
		grantTypes := c.AllowedGrantTypes
		if len(grantTypes) == 0 {
			grantTypes = []string{"authorization_code", "refresh_token"}
		}
		if err := st.CreateClient(context.Background(), storage.Client{
			ClientID:            c.ClientID,
			SecretHash:          hash,
			Name:                c.Name,
			AllowedRedirectURIs: c.AllowedRedirectURIs,
			AllowedGrantTypes:   grantTypes,
			CreatedAt:           time.Now().UTC(),
		}); err != nil && err != storage.ErrAlreadyExists {
			return err
		}
	}
	return nil
}
