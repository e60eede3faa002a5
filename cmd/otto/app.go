package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/playbymail/ottoclient/internal/config"
	"github.com/playbymail/ottoclient/pkg/api"
	"github.com/playbymail/ottoclient/pkg/apierror"
	"github.com/playbymail/ottoclient/pkg/gateway"
	"github.com/playbymail/ottoclient/pkg/session"
)

// app wires the client stack for one CLI invocation. The cookie jar is
// preloaded from the session file so a login in an earlier invocation
// carries over.
type app struct {
	cfg     config.Config
	base    *url.URL
	jar     *cookiejar.Jar
	gw      *gateway.Client
	manager *session.Manager
	client  *api.Client
	logger  *slog.Logger
}

// newApp builds the client stack from config, flags, and the saved
// session.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.Server = server
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := newLogger(cmd, cfg)

	base, err := url.Parse(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	a := &app{cfg: cfg, base: base, jar: jar, logger: logger}
	a.loadSavedSession()

	gw, err := gateway.New(cfg.Server,
		gateway.WithHTTPClient(&http.Client{Jar: jar, Timeout: gateway.DefaultConfig().Timeout}),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.gw = gw
	a.manager = session.NewManager(gw, gw.Tokens(), logger)
	a.client = api.New(gw)
	return a, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := slog.LevelWarn
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// requireSession restores the saved session and fails with a usable
// message when there is none.
func (a *app) requireSession(ctx context.Context) error {
	err := a.manager.Restore(ctx)
	if err == nil {
		return nil
	}
	if apierror.IsSessionExpired(err) || apierror.IsAuthentication(err) {
		return fmt.Errorf("not logged in; run \"otto login\" first")
	}
	return err
}

// savedSession is the on-disk session record. Only the cookie value is
// stored; the server binds everything else to it.
type savedSession struct {
	Server string `json:"server"`
	SID    string `json:"sid"`
}

// loadSavedSession preloads the cookie jar from the session file.
// Sessions saved against a different server are ignored.
func (a *app) loadSavedSession() {
	raw, err := os.ReadFile(a.cfg.SessionFile)
	if err != nil {
		return
	}
	var saved savedSession
	if err := json.Unmarshal(raw, &saved); err != nil || saved.SID == "" {
		return
	}
	if saved.Server != a.cfg.Server {
		a.logger.Debug("ignoring saved session for different server", "server", saved.Server)
		return
	}
	a.jar.SetCookies(a.base, []*http.Cookie{{Name: "sid", Value: saved.SID, Path: "/"}})
}

// saveSession persists the current session cookie, or removes the file
// when the jar holds none.
func (a *app) saveSession() error {
	var sid string
	for _, cookie := range a.jar.Cookies(a.base) {
		if cookie.Name == "sid" {
			sid = cookie.Value
		}
	}
	if sid == "" {
		return a.clearSavedSession()
	}

	if err := os.MkdirAll(filepath.Dir(a.cfg.SessionFile), 0o700); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	raw, err := json.Marshal(savedSession{Server: a.cfg.Server, SID: sid})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.WriteFile(a.cfg.SessionFile, raw, 0o600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (a *app) clearSavedSession() error {
	if err := os.Remove(a.cfg.SessionFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
