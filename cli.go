package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	configViper := newConfigViper()
	var configPath string

	rootCommand := &cobra.Command{
		Use:   "relay",
		Short: "One-time token message relay gateway",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if readError := readConfigFile(configViper, configPath); readError != nil {
				return readError
			}
			logFormat := configViper.GetString(configKeyLogFormat)
			// serve validates the level itself; other commands fall back to info.
			if loggingError := configureLogging(configViper.GetString(configKeyLogLevel), logFormat, cmd.ErrOrStderr()); loggingError != nil {
				return configureLogging(defaultLogLevel, logFormat, cmd.ErrOrStderr())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(cmd, configViper)
		},
	}
	rootCommand.SilenceUsage = true
	rootCommand.SilenceErrors = true
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (environment variables take precedence)")
	rootCommand.AddCommand(newServeCommand(configViper))
	rootCommand.AddCommand(newGenerateJwtKeyCommand())
	rootCommand.AddCommand(newMintCommand(configViper))
	return rootCommand
}

func newServeCommand(configViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(cmd, configViper)
		},
	}
}

func runServeCommand(cmd *cobra.Command, configViper *viper.Viper) error {
	gatewayConfig, loadConfigError := loadConfig(configViper)
	if loadConfigError != nil {
		return fmt.Errorf("config error: %w", loadConfigError)
	}
	if loggingError := configureLogging(gatewayConfig.LogLevel, gatewayConfig.LogFormat, cmd.ErrOrStderr()); loggingError != nil {
		return fmt.Errorf("config error: %w", loggingError)
	}

	service, serviceError := newRelayService(gatewayConfig)
	if serviceError != nil {
		return fmt.Errorf("startup error: %w", serviceError)
	}

	signalContext, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	return runServers(signalContext, service)
}

// runServers blocks until ctx is done or a listener fails, then shuts every listener down.
func runServers(ctx context.Context, service *relayService) error {
	httpServers := []*http.Server{newHTTPServer(service.config.ListenAddress, service.routes())}
	if service.config.MetricsAddress != "" {
		httpServers = append(httpServers, newHTTPServer(service.config.MetricsAddress, service.opsRoutes()))
	}

	serveErrors := make(chan error, len(httpServers))
	for _, httpServer := range httpServers {
		go func(httpServer *http.Server) {
			log.Info().Str("addr", httpServer.Addr).Msg("relay listening")
			if serveError := httpServer.ListenAndServe(); serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
				serveErrors <- fmt.Errorf("server error on %s: %w", httpServer.Addr, serveError)
			}
		}(httpServer)
	}

	var runError error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runError = <-serveErrors:
	}

	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), service.config.ShutdownTimeout)
	defer cancelShutdown()
	for _, httpServer := range httpServers {
		if shutdownError := httpServer.Shutdown(shutdownContext); shutdownError != nil && runError == nil {
			runError = fmt.Errorf("shutdown %s: %w", httpServer.Addr, shutdownError)
		}
	}
	return runError
}

const secretByteLength = 32

func newGenerateJwtKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-jwt-key",
		Short: "Generate a HS256 signing key for relay token issuance",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenSecret, tokenSecretError := generateRandomHex(secretByteLength)
			if tokenSecretError != nil {
				return fmt.Errorf("generate %s: %w", envKeyJwtSecret, tokenSecretError)
			}
			if _, writeError := fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", envKeyJwtSecret, tokenSecret); writeError != nil {
				return fmt.Errorf("write %s: %w", envKeyJwtSecret, writeError)
			}
			return nil
		},
	}
}

func newMintCommand(configViper *viper.Viper) *cobra.Command {
	var recipient, sender string
	mintCommand := &cobra.Command{
		Use:     "mint",
		Short:   "Mint a response token locally with the configured signing secret",
		Example: `  RELAY_JWT_SECRET=... relay mint --to "Juan Perez" --from "Rita Asturia"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(recipient) == "" || strings.TrimSpace(sender) == "" {
				return errors.New("--to and --from must not be blank")
			}
			issuer, issuerError := newTokenIssuer(issuerConfig{SigningSecret: strings.TrimSpace(configViper.GetString(configKeyJwtSecret))})
			if issuerError != nil {
				return fmt.Errorf("%s: %w", envKeyJwtSecret, issuerError)
			}
			signedToken, mintError := issuer.mint(recipient, sender)
			if mintError != nil {
				return mintError
			}
			claims, inspectError := issuer.inspect(signedToken)
			if inspectError != nil {
				return inspectError
			}
			return renderMintedToken(cmd, signedToken, claims)
		},
	}
	mintCommand.Flags().StringVar(&recipient, "to", "", "recipient identity")
	mintCommand.Flags().StringVar(&sender, "from", "", "sender identity")
	_ = mintCommand.MarkFlagRequired("to")
	_ = mintCommand.MarkFlagRequired("from")
	return mintCommand
}

func renderMintedToken(cmd *cobra.Command, signedToken string, claims relayClaims) error {
	if _, writeError := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", headerOneTimeToken, signedToken); writeError != nil {
		return fmt.Errorf("write token: %w", writeError)
	}
	claimsTable := table.NewWriter()
	claimsTable.SetOutputMirror(cmd.OutOrStdout())
	claimsTable.AppendHeader(table.Row{"Claim", "Value"})
	claimsTable.AppendRows([]table.Row{
		{"to", claims.To},
		{"from", claims.From},
		{"jti", claims.ID},
		{"iat", claims.IssuedAt.Time.UTC().Format(time.RFC3339)},
		{"exp", claims.ExpiresAt.Time.UTC().Format(time.RFC3339)},
	})
	claimsTable.SetStyle(table.StyleLight)
	claimsTable.Render()
	return nil
}

var randomRead = rand.Read

func generateRandomHex(byteLength int) (string, error) {
	randomBytes := make([]byte, byteLength)
	if _, readError := randomRead(randomBytes); readError != nil {
		return "", fmt.Errorf("read random bytes: %w", readError)
	}
	return hex.EncodeToString(randomBytes), nil
}
