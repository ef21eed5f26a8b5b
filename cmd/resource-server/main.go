package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-mcp-auth/credentials"
	"github.com/jrsteele09/go-mcp-auth/internal/config"
	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/introspection"
	"github.com/jrsteele09/go-mcp-auth/server"
	"github.com/jrsteele09/go-mcp-auth/upstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Resource server stopped")
	}
}

func newRootCommand() *cobra.Command {
	settings := config.Load()

	cmd := &cobra.Command{
		Use:           "resource-server",
		Short:         "Run the MCP resource server with authorization server token introspection",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyFlags(cmd, settings); err != nil {
				return err
			}
			return run(cmd.Context(), settings)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", settings.Port, "Port to listen on")
	flags.String("gravitee-am", settings.BaseURL, "Authorization server (Gravitee AM) base URL")
	flags.String("transport", string(settings.GetTransport()), "Transport protocol to use ('sse' or 'streamable-http')")
	flags.Bool("oauth-strict", settings.OAuthStrict, "Enable RFC 8707 resource validation")
	flags.String("credentials-file", settings.CredentialsPath, "Where the registered client credentials are stored")
	return cmd
}

// applyFlags lets explicitly set flags override the environment.
func applyFlags(cmd *cobra.Command, settings *config.Settings) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("port") {
		if settings.Port, err = flags.GetInt("port"); err != nil {
			return err
		}
	}
	if flags.Changed("gravitee-am") {
		if settings.BaseURL, err = flags.GetString("gravitee-am"); err != nil {
			return err
		}
	}
	if flags.Changed("transport") {
		raw, err := flags.GetString("transport")
		if err != nil {
			return err
		}
		if settings.Transport, err = config.ParseTransport(raw); err != nil {
			return err
		}
	}
	if flags.Changed("oauth-strict") {
		if settings.OAuthStrict, err = flags.GetBool("oauth-strict"); err != nil {
			return err
		}
	}
	if flags.Changed("credentials-file") {
		if settings.CredentialsPath, err = flags.GetString("credentials-file"); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, settings *config.Settings) error {
	setupLogging(settings)

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	displayAppname(settings.GetAppName())

	store := credentials.NewStore(credentials.NewFileRepo(settings.GetCredentialsPath()))
	found, err := store.Load()
	switch {
	case apperrors.Is(err, apperrors.ErrCorruptCredentials):
		log.Warn().Err(err).Str("path", settings.GetCredentialsPath()).Msg("Stored client credentials are corrupt; the next registration replaces them")
	case err != nil:
		return fmt.Errorf("refusing to start: %w", err)
	case !found:
		log.Warn().Str("path", settings.GetCredentialsPath()).Msg("No client registered yet; protected routes reject tokens until a client registers")
	}

	metrics, err := server.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	verifier := introspection.New(introspection.Config{
		IntrospectionEndpoint: settings.GetIntrospectionEndpoint(),
		UserInfoEndpoint:      settings.GetUserInfoEndpoint(),
		ServerURL:             settings.GetServerURL(),
		StrictResource:        settings.GetOAuthStrict(),
	}, store, introspection.WithObserver(metrics))

	proxy := upstream.New(upstream.Config{
		TokenEndpoint:         settings.GetTokenEndpoint(),
		RegistrationEndpoint:  settings.GetRegistrationEndpoint(),
		AuthorizationEndpoint: settings.GetAuthorizationEndpoint(),
	}, store, upstream.WithObserver(metrics))

	handler, err := server.New(settings, verifier, proxy, metrics)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              settings.GetAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("url", settings.GetServerURL()).
		Str("mcp", settings.GetServerURL()+settings.GetTransport().Path()).
		Str("authorization_server", settings.GetAuthServerURL()).
		Bool("oauth_strict", settings.GetOAuthStrict()).
		Msg("MCP resource server starting")

	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(httpServer)
	})
	g.Go(func() error {
		waitForStopSignal(ctx)
		return shutdown(httpServer)
	})
	return g.Wait()
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

// waitForStopSignal returns on SIGINT/SIGTERM or when ctx ends.
func waitForStopSignal(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func setupLogging(settings *config.Settings) {
	level, err := zerolog.ParseLevel(settings.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if settings.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
