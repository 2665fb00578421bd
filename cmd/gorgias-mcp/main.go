// gorgias-mcp serves the Gorgias helpdesk tools over the Model Context
// Protocol, either as an HTTP service (POST /mcp, GET /health) or as a
// newline-delimited JSON-RPC process on stdin/stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/tindevelopers/gorgias-mcp-gcr/config"
	"github.com/tindevelopers/gorgias-mcp-gcr/gateway"
	"github.com/tindevelopers/gorgias-mcp-gcr/gorgias"
	"github.com/tindevelopers/gorgias-mcp-gcr/logx"
	"github.com/tindevelopers/gorgias-mcp-gcr/registry"
	"github.com/tindevelopers/gorgias-mcp-gcr/tools"
)

const (
	transportHTTP  = "http"
	transportStdio = "stdio"
)

// AppConfig is the process configuration read from unprefixed environment
// variables. Backend credentials are loaded separately under GORGIAS_.
type AppConfig struct {
	Transport          string        `envconfig:"MCP_TRANSPORT" default:"http"`
	Host               string        `envconfig:"HOST" default:"0.0.0.0"`
	Port               int           `envconfig:"PORT" default:"8080"`
	ServerName         string        `envconfig:"SERVER_NAME" default:"gorgias-mcp-server"`
	ServerVersion      string        `envconfig:"SERVER_VERSION" default:"1.0.0"`
	StreamChunkSize    int           `envconfig:"STREAM_CHUNK_SIZE" default:"500"`
	StreamFrameDelay   time.Duration `envconfig:"STREAM_FRAME_DELAY" default:"10ms"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// Debug mirrors LOG_DEBUG.
	Debug bool `envconfig:"DEBUG" default:"false"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("gorgias-mcp", pflag.ContinueOnError)
	transport := flagSet.String("transport", "", "transport to serve: http or stdio (overrides MCP_TRANSPORT)")
	addr := flagSet.String("addr", "", "listen address host:port for http (overrides HOST and PORT)")
	envFile := flagSet.String("env", "", "path to a .env file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	appConf, err := config.New[AppConfig]("", *envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logConf, err := config.New[logx.Config]("LOG", *envFile)
	if err != nil {
		return fmt.Errorf("load log config: %w", err)
	}
	logConf.Debug = logConf.Debug || appConf.Debug
	logger := logx.Init(*logConf)

	if *transport != "" {
		appConf.Transport = *transport
	}
	appConf.Transport = strings.ToLower(strings.TrimSpace(appConf.Transport))
	if appConf.Transport != transportHTTP && appConf.Transport != transportStdio {
		return fmt.Errorf("unknown transport %q (want %s or %s)", appConf.Transport, transportHTTP, transportStdio)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	reg, err := buildRegistry(*envFile, logger)
	if err != nil {
		return err
	}

	gw := gateway.New(reg, gateway.Options{
		ServerInfo: mcp.Implementation{Name: appConf.ServerName, Version: appConf.ServerVersion},
		Logger:     logger,
		ChunkSize:  appConf.StreamChunkSize,
		FrameDelay: appConf.StreamFrameDelay,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if appConf.Transport == transportStdio {
		logger.Info().Bool("ready", gw.Ready()).Msg("serving MCP over stdio")
		err := gateway.ServeStdio(ctx, gw, os.Stdin, os.Stdout, gateway.StdioOptions{Logger: logger})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	listenAddr := net.JoinHostPort(appConf.Host, strconv.Itoa(appConf.Port))
	if *addr != "" {
		listenAddr = *addr
	}
	return serveHTTP(ctx, gw, listenAddr, appConf, logger)
}

// buildRegistry wires the backend client into the tool groups. A missing or
// invalid backend configuration is not fatal: the server still starts, and
// health and tools/call report it as not initialized.
func buildRegistry(envFile string, logger zerolog.Logger) (*registry.Registry, error) {
	client, err := newBackend(envFile, logger)
	if err != nil {
		logger.Error().Err(err).Msg("gorgias backend unavailable, serving without tools")
		return nil, nil
	}

	reg, err := registry.New(registry.Config{Logger: logger}, tools.Groups(client, logger)...)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	stats := reg.Stats()
	logger.Info().
		Int("tools", stats.TotalTools).
		Int("groups", stats.TotalGroups).
		Str("fingerprint", stats.Fingerprint).
		Msg("tool registry ready")
	return reg, nil
}

func newBackend(envFile string, logger zerolog.Logger) (*gorgias.Client, error) {
	conf, err := config.New[gorgias.Config]("GORGIAS", envFile)
	if err != nil {
		return nil, fmt.Errorf("load gorgias config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return gorgias.NewClient(*conf, gorgias.WithLogger(logger))
}

func serveHTTP(ctx context.Context, gw *gateway.Gateway, addr string, conf *AppConfig, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr: addr,
		Handler: gateway.NewHTTPHandler(gw, gateway.HTTPOptions{
			Logger:         logger,
			AllowedOrigins: conf.CORSAllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info().Str("addr", addr).Bool("ready", gw.Ready()).Msg("serving MCP over http")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
