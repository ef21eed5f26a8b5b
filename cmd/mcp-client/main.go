package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jrsteele09/go-mcp-auth/authflow"
	"github.com/jrsteele09/go-mcp-auth/callback"
	"github.com/jrsteele09/go-mcp-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("MCP client failed")
	}
}

func newRootCommand() *cobra.Command {
	settings := config.LoadClient()

	cmd := &cobra.Command{
		Use:           "mcp-client",
		Short:         "Authorize against an MCP resource server and call its tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var err error
			if settings.Port, err = flags.GetInt("port"); err != nil {
				return err
			}
			raw, err := flags.GetString("transport")
			if err != nil {
				return err
			}
			if settings.Transport, err = config.ParseTransport(raw); err != nil {
				return err
			}
			if settings.CallbackPort, err = flags.GetInt("callback-port"); err != nil {
				return err
			}
			return run(cmd.Context(), settings)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", settings.Port, "Resource server port")
	flags.String("transport", string(settings.Transport), "Transport protocol ('sse' or 'streamable_http')")
	flags.Int("callback-port", settings.CallbackPort, "Loopback port for the authorization redirect")
	return cmd
}

func run(ctx context.Context, settings config.ClientSettings) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if ctx == nil {
		ctx = context.Background()
	}

	serverURL := settings.GetServerURL()
	fmt.Printf("Connecting to %s using %s\n", serverURL, settings.Transport)

	coordinator := authflow.NewCoordinator(serverURL, settings.Scopes,
		authflow.WithListener(callback.New(settings.CallbackPort)),
		authflow.WithCallbackTimeout(settings.CallbackTimeout),
	)

	reg, err := coordinator.Register(ctx, nil)
	if err != nil {
		return fmt.Errorf("client registration: %w", err)
	}
	clientID := reg.ClientID()
	fmt.Printf("Registered client %s\n", clientID)

	token, err := coordinator.Authorize(ctx, clientID)
	if err != nil {
		return fmt.Errorf("authorization: %w", err)
	}
	fmt.Println("Authorization complete")
	printClaims(token.AccessToken)

	// Refreshes go back through the resource server's /token relay. No client timeout:
	// the event stream stays open for the whole session.
	httpClient := coordinator.OAuth2Config(clientID).Client(ctx, token)

	transport, err := config.ParseTransport(string(settings.Transport))
	if err != nil {
		return err
	}
	s := newSession(serverURL, transport, httpClient)
	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	defer s.close()
	fmt.Println("Session initialized")
	if id := s.id(); id != "" {
		fmt.Printf("Session ID: %s\n", id)
	}

	return interactiveLoop(ctx, s, os.Stdin, os.Stdout)
}

// printClaims shows what the access token says about the user when it is a JWT.
func printClaims(accessToken string) {
	claims, ok := authflow.PeekClaims(accessToken)
	if !ok {
		return
	}
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("Access token claims:")
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, claims[k])
	}
}
