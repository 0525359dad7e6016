// Package main provides the command-line entry point for the wallet's
// third-party login coordinator. It drives a browser-based OAuth login against
// a configured provider, persists the exchanged token, and reports the single
// terminal outcome of the attempt.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/notwallet/walletauth/internal/config"
	"github.com/notwallet/walletauth/internal/events"
	"github.com/notwallet/walletauth/internal/flow"
	"github.com/notwallet/walletauth/internal/logging"
	"github.com/notwallet/walletauth/internal/provider"
	"github.com/notwallet/walletauth/internal/state"
	"github.com/notwallet/walletauth/internal/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

// main parses command-line flags, loads configuration, and runs the requested
// action: login, logout, or status.
func main() {
	var login bool
	var logout bool
	var status bool
	var providerName string
	var noBrowser bool
	var timeoutSeconds int
	var configPath string

	flag.BoolVar(&login, "login", false, "Start a third-party login")
	flag.BoolVar(&logout, "logout", false, "Log out and remove the stored token")
	flag.BoolVar(&status, "status", false, "Show whether a token is stored for the provider")
	flag.StringVar(&providerName, "provider", "google", "Login provider (google, apple)")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open the browser automatically")
	flag.IntVar(&timeoutSeconds, "timeout", 0, "Override the redirect deadline in seconds")
	flag.StringVar(&configPath, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	fmt.Printf("walletauth Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	// Optional .env overlay for provider credentials.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debugf("no .env overlay loaded: %v", err)
	}

	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyEnvOverrides(cfg)
	logging.SetLevelFromString(cfg.LogLevel)
	if cfg.LoggingToFile {
		if err = logging.ConfigureFileOutput(cfg.LogDir); err != nil {
			log.Warnf("file logging disabled: %v", err)
		}
	}
	if timeoutSeconds > 0 {
		cfg.CallbackTimeoutSeconds = timeoutSeconds
	}

	tokens := store.NewFileTokenStore(cfg.AuthDir)

	switch {
	case login:
		os.Exit(runLogin(cfg, tokens, providerName, noBrowser))
	case logout:
		os.Exit(runLogout(tokens, providerName))
	case status:
		os.Exit(runStatus(tokens, providerName))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runLogin drives one login attempt end-to-end and prints its outcome.
func runLogin(cfg *config.Config, tokens *store.FileTokenStore, providerName string, noBrowser bool) int {
	registry := provider.NewRegistry(
		provider.NewGoogle(cfg.Google.ClientID, cfg.Google.ClientSecret),
		provider.NewApple(cfg.Apple.ClientID, cfg.Apple.ClientSecret),
	)

	bus := events.New()
	auth := state.New()
	sub := auth.Subscribe(func(snapshot state.Snapshot) {
		if snapshot.LoggedIn && snapshot.User != nil {
			log.WithField("provider", snapshot.User.Provider).Debug("auth state observed: logged in")
		}
	})
	defer sub.Unsubscribe()

	coordinator := flow.New(bus, registry, auth, flow.Options{
		Timeout:   time.Duration(cfg.CallbackTimeoutSeconds) * time.Second,
		NoBrowser: noBrowser,
		Prompt:    stdinPrompt,
		Store:     tokens,
	})

	// Ctrl-C cancels the pending attempt instead of killing the process
	// mid-teardown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Waiting for the login to complete in your browser...")
	result, err := coordinator.StartLogin(ctx, providerName)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupportedProvider) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
		log.Error(flow.GetUserFriendlyMessage(err))
		log.Debugf("login attempt failed: %v", err)
		if flow.ErrorType(err) == flow.ErrBindFailed.Type {
			return 3
		}
		return 1
	}

	who := result.Email
	if result.Name != "" {
		who = result.Name
	}
	fmt.Printf("Login successful: %s via %s\n", who, result.Provider)
	return 0
}

func runLogout(tokens *store.FileTokenStore, providerName string) int {
	if err := tokens.Delete(providerName); err != nil {
		fmt.Fprintf(os.Stderr, "logout failed: %v\n", err)
		return 1
	}
	fmt.Println("Logged out.")
	return 0
}

func runStatus(tokens *store.FileTokenStore, providerName string) int {
	result, err := tokens.Load(providerName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("Logged out.")
			return 0
		}
		fmt.Fprintf(os.Stderr, "status check failed: %v\n", err)
		return 1
	}
	who := result.Email
	if result.Name != "" {
		who = result.Name
	}
	fmt.Printf("Logged in as %s via %s\n", who, result.Provider)
	return 0
}

// stdinPrompt reads one line from stdin for the manual callback fallback.
func stdinPrompt(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// applyEnvOverrides lets provider credentials come from the environment so
// they can be kept out of the config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("WALLETAUTH_GOOGLE_CLIENT_ID"); v != "" {
		cfg.Google.ClientID = v
	}
	if v := os.Getenv("WALLETAUTH_GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Google.ClientSecret = v
	}
	if v := os.Getenv("WALLETAUTH_APPLE_CLIENT_ID"); v != "" {
		cfg.Apple.ClientID = v
	}
	if v := os.Getenv("WALLETAUTH_APPLE_CLIENT_SECRET"); v != "" {
		cfg.Apple.ClientSecret = v
	}
}
