// ABOUTME: Operator console for the chatdesk backend
// ABOUTME: Login, realtime chat loop, and admin surfaces gated by capabilities

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"

	"github.com/opsdesk/chatdesk/internal/api"
	"github.com/opsdesk/chatdesk/internal/config"
	"github.com/opsdesk/chatdesk/internal/console"
	"github.com/opsdesk/chatdesk/internal/perm"
	"github.com/opsdesk/chatdesk/internal/profile"
	"github.com/opsdesk/chatdesk/internal/realtime"
)

const banner = `
        _           _      _           _
   ___ | |__   __ _| |_ __| | ___  ___| | __
  / __|| '_ \ / _' | __/ _' |/ _ \/ __| |/ /
 | (__ | | | | (_| | || (_| |  __/\__ \   <
  \___||_| |_|\__,_|\__\__,_|\___||___/_|\_\
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	app, err := newApp()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "login":
		err = app.cmdLogin(ctx)
	case "logout":
		err = app.cmdLogout(ctx)
	case "whoami":
		err = app.cmdWhoami(ctx)
	case "chat":
		err = app.cmdChat(ctx)
	case "stats":
		err = app.cmdStats(ctx)
	case "users":
		err = app.cmdUsers(ctx, args)
	case "admins":
		err = app.cmdAdmins(ctx, args)
	case "roles":
		err = app.cmdRoles(ctx, args)
	case "banner":
		err = app.cmdBanner(ctx, args)
	case "logs":
		err = app.cmdLogs(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var verr *api.ValidationError
		if errors.As(err, &verr) {
			console.New(os.Stderr).FieldErrors(verr.Fields)
		}
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: chatdesk <command> [args]")
	fmt.Println()
	yellow.Println("Session:")
	fmt.Println("  login              Authenticate and cache the session")
	fmt.Println("  logout             Invalidate the session and clear the cache")
	fmt.Println("  whoami             Show the cached identity and grants")
	fmt.Println()
	yellow.Println("Chat:")
	fmt.Println("  chat               Interactive realtime chat console")
	fmt.Println()
	yellow.Println("Admin:")
	fmt.Println("  stats              Show dashboard stat counters")
	fmt.Println("  users              List managed users")
	fmt.Println("  admins [add|rm]    List or manage admin accounts")
	fmt.Println("  roles <user> <r>   Assign a role to a user")
	fmt.Println("  banner [set ...]   Show or update the feature banner")
	fmt.Println("  logs [clear]       Browse or clear the activity log")
	fmt.Println()
	fmt.Println("Config: " + defaultConfigPath() + " (or CHATDESK_CONFIG)")
}

// app bundles the wired dependencies shared by all subcommands.
type app struct {
	cfg      *config.Config
	client   *api.Client
	profiles *profile.Store
	render   *console.Renderer
	logger   *slog.Logger
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	profilePath := cfg.Profile.Path
	if profilePath == "" {
		profilePath = filepath.Join(configDir(), "profile.db")
	}
	profiles, err := profile.Open(profilePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		profiles: profiles,
		render:   console.New(os.Stdout),
		logger:   logger,
	}
	a.client = api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout,
		api.WithToken(a.token),
		api.WithLogger(logger),
	)
	return a, nil
}

func (a *app) close() {
	if a.profiles != nil {
		a.profiles.Close()
	}
}

// token resolves the bearer token: CHATDESK_TOKEN wins, then the cached
// profile. An expired cached token is reported once and treated as absent.
func (a *app) token() string {
	if tok := os.Getenv("CHATDESK_TOKEN"); tok != "" {
		return tok
	}
	p, err := a.profiles.Load()
	if err != nil {
		return ""
	}
	if tokenExpired(p.Token) {
		a.logger.Warn("cached session token expired, run login again")
		return ""
	}
	return p.Token
}

// tokenExpired inspects the token's exp claim without verifying the
// signature; verification is the backend's job, this only avoids sending
// a token known to be dead.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Opaque tokens are passed through untouched.
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

func (a *app) cmdLogin(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading email: %w", err)
	}
	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	token, identity, err := a.client.Login(ctx, api.Credentials{
		Email:    strings.TrimSpace(email),
		Password: strings.TrimSpace(password),
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	// Persist first so the capability fetch below authenticates.
	p := profile.Profile{Token: token}
	if identity != nil {
		p.Identity = *identity
	}
	if err := a.profiles.Save(p); err != nil {
		return err
	}

	if identity == nil {
		me, err := a.client.Me(ctx)
		if err != nil {
			return err
		}
		p.Identity = *me
	}
	caps, err := a.client.Capabilities(ctx)
	if err != nil {
		return err
	}
	p.Capabilities = caps
	if err := a.profiles.Save(p); err != nil {
		return err
	}

	color.Green("Logged in as %s\n", p.Identity.Email)
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil && !errors.Is(err, api.ErrUnauthorized) {
		a.logger.Warn("server-side logout failed", "error", err)
	}
	if err := a.profiles.Clear(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func (a *app) cmdWhoami(ctx context.Context) error {
	p, err := a.profiles.Load()
	if errors.Is(err, profile.ErrNoProfile) {
		return errors.New("not logged in")
	}
	if err != nil {
		return err
	}

	// Refresh from the backend when reachable; the cache answers offline.
	if me, err := a.client.Me(ctx); err == nil {
		p.Identity = *me
		if caps, err := a.client.Capabilities(ctx); err == nil {
			p.Capabilities = caps
		}
		if err := a.profiles.Save(*p); err != nil {
			a.logger.Warn("refreshing cached profile failed", "error", err)
		}
	} else if errors.Is(err, api.ErrUnauthorized) {
		return errors.New("session expired, run login again")
	}

	a.render.Identity(p.Identity, p.Capabilities)
	return nil
}

// gate builds the permission gate from live capabilities, falling back to
// the cached set when the backend is unreachable.
func (a *app) gate(ctx context.Context) (*perm.Gate, error) {
	caps, err := a.client.Capabilities(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, errors.New("session expired, run login again")
		}
		p, perr := a.profiles.Load()
		if perr != nil {
			return nil, fmt.Errorf("fetching capabilities: %w", err)
		}
		a.logger.Warn("using cached capabilities", "error", err)
		caps = p.Capabilities
	}
	return perm.NewGate(caps), nil
}

// loadConfig reads the config file from CHATDESK_CONFIG or the default
// XDG location. When no file exists, environment variables fill in the
// required fields so the console works without one.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("CHATDESK_CONFIG")
	if path == "" {
		path = defaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}

	cfg := config.Default()
	cfg.Backend.BaseURL = os.Getenv("CHATDESK_BACKEND_URL")
	cfg.Realtime.Host = os.Getenv("CHATDESK_REALTIME_HOST")
	cfg.Realtime.AppKey = os.Getenv("CHATDESK_REALTIME_KEY")
	if port := os.Getenv("CHATDESK_REALTIME_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("parsing CHATDESK_REALTIME_PORT: %w", err)
		}
		cfg.Realtime.Port = p
	}
	if scheme := os.Getenv("CHATDESK_REALTIME_SCHEME"); scheme != "" {
		cfg.Realtime.Scheme = scheme
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("no config file at %s and environment incomplete: %w", path, err)
	}
	return cfg, nil
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "chatdesk")
}

func defaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// dialRealtime connects to the broadcast service, authorizing channel
// subscriptions through the backend's broadcasting auth endpoint.
func (a *app) dialRealtime(ctx context.Context) (*realtime.Conn, error) {
	return realtime.Dial(ctx, realtime.Config{
		Host:   a.cfg.Realtime.Host,
		Port:   a.cfg.Realtime.Port,
		Scheme: a.cfg.Realtime.Scheme,
		AppKey: a.cfg.Realtime.AppKey,
	}, realtime.AuthorizerFunc(a.client.BroadcastAuth), a.logger)
}
