// File: cmd/solve.go
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/chromedp/chromedp"
	"github.com/jarylc/go-recaptchabuster"
	"github.com/jarylc/go-recaptchabuster/internal/config"
	"github.com/jarylc/go-recaptchabuster/internal/observability"
	"github.com/jarylc/go-recaptchabuster/liveview"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"io"
	"net"
	"time"
)

// ErrNotSolved is returned when every attempt ended without a solved reCAPTCHA
var ErrNotSolved = errors.New("recaptcha not solved")

// result is what solve prints
type result struct {
	URL      string                  `json:"url"`
	Solved   bool                    `json:"solved"`
	Outcome  recaptchabuster.Outcome `json:"outcome"`
	Attempts int                     `json:"attempts"`
	LiveView string                  `json:"live_view,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// flag name to config key
var solveFlagKeys = map[string]string{
	"browser":              "browser.name",
	"extension":            "browser.extension",
	"headless":             "browser.headless",
	"stealth":              "browser.stealth",
	"exec-path":            "browser.exec_path",
	"user-data-dir":        "browser.user_data_dir",
	"no-sandbox":           "browser.no_sandbox",
	"timeout":              "solver.timeout",
	"challenge-timeout":    "solver.challenge_timeout",
	"solved-check-timeout": "solver.solved_check_timeout",
	"settle-delay":         "solver.settle_delay",
	"retry-delay":          "solver.retry_delay",
	"max-attempts":         "solver.max_attempts",
	"page-delay":           "solver.page_delay",
	"debug":                "solver.debug",
	"live-view":            "live_view.addr",
	"debugging-addr":       "live_view.debugging_addr",
	"hold":                 "live_view.hold",
	"log-level":            "logger.level",
	"log-format":           "logger.format",
	"log-file":             "logger.log_file",
}

func newSolveCmd(v *viper.Viper) *cobra.Command {
	var jsonOutput bool
	defaults := config.NewDefaultConfig()

	cmd := &cobra.Command{
		Use:   "solve <url>",
		Short: "Open a page and solve the reCAPTCHA on it",
		Example: `  recaptchabuster solve https://www.google.com/recaptcha/api2/demo --extension extensions/buster.crx
  recaptchabuster solve https://example.com/login --browser edge --headless --json
  recaptchabuster solve https://example.com/login --live-view :9221 --hold 2m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg.Logger, zapcore.AddSync(cmd.ErrOrStderr()))
			defer func() { _ = logger.Sync() }()

			res, err := runSolve(cmd.Context(), cfg, args[0], logger)
			if err != nil {
				res.Error = err.Error()
			}
			if printErr := printResult(cmd.OutOrStdout(), res, jsonOutput); printErr != nil {
				return printErr
			}
			if err != nil {
				return err
			}
			if !res.Solved {
				return ErrNotSolved
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("browser", defaults.Browser.Name, "browser to launch (chrome or edge)")
	flags.StringP("extension", "e", defaults.Browser.Extension, "Buster extension directory or .crx package")
	flags.Bool("headless", defaults.Browser.Headless, "run the browser headless")
	flags.Bool("stealth", defaults.Browser.Stealth, "launch through chromedp-undetected")
	flags.String("exec-path", defaults.Browser.ExecPath, "browser executable (found automatically when empty)")
	flags.String("user-data-dir", defaults.Browser.UserDataDir, "browser profile directory")
	flags.Bool("no-sandbox", defaults.Browser.NoSandbox, "disable the browser sandbox, e.g. when running as root in a container")
	flags.Duration("timeout", defaults.Solver.Timeout, "how long to wait for each widget element")
	flags.Duration("challenge-timeout", defaults.Solver.ChallengeTimeout, "how long to wait for Buster to solve the challenge")
	flags.Duration("solved-check-timeout", defaults.Solver.SolvedCheckTimeout, "how long to wait for the checkbox to solve on its own")
	flags.Duration("settle-delay", defaults.Solver.SettleDelay, "pause before clicking the Buster button")
	flags.Duration("retry-delay", defaults.Solver.RetryDelay, "pause between attempts")
	flags.IntP("max-attempts", "n", defaults.Solver.MaxAttempts, "maximum number of attempts")
	flags.Duration("page-delay", defaults.Solver.PageDelay, "pause after navigation before solving")
	flags.Bool("debug", defaults.Solver.Debug, "log every solver step at info level")
	flags.String("live-view", defaults.LiveView.Addr, "serve a live view of the tab on this address, e.g. :9221")
	flags.String("debugging-addr", defaults.LiveView.DebuggingAddr, "browser remote debugging address used by the live view")
	flags.Duration("hold", defaults.LiveView.Hold, "keep the browser open this long after solving")
	flags.String("log-level", defaults.Logger.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Logger.Format, "log format (console or json)")
	flags.String("log-file", defaults.Logger.LogFile, "also write JSON logs to this rotated file")
	flags.BoolVar(&jsonOutput, "json", false, "print the result as JSON")

	for name, key := range solveFlagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

// runSolve launches the browser, loads pageURL and runs the solver. The returned result is filled in
// as far as the run got, even when an error is returned.
func runSolve(ctx context.Context, cfg *config.Config, pageURL string, logger *zap.Logger) (result, error) {
	res := result{URL: pageURL}

	sessionCfg := sessionConfig(cfg, logger)
	session, err := recaptchabuster.NewSession(ctx, sessionCfg)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("could not clean up session", zap.Error(err))
		}
	}()

	if cfg.LiveView.Addr != "" {
		base, err := baseURL(cfg.LiveView.Addr)
		if err != nil {
			return res, err
		}
		liveCtx, stop := context.WithCancel(ctx)
		listenDone := make(chan struct{})
		server := liveview.New(net.JoinHostPort("127.0.0.1", session.DebugPort()), liveview.WithLogger(logger))
		go func() {
			defer close(listenDone)
			if err := server.Listen(liveCtx, cfg.LiveView.Addr); err != nil {
				logger.Warn("live view stopped", zap.Error(err))
			}
		}()
		defer func() {
			stop()
			<-listenDone
		}()
		res.LiveView = liveview.URL(base, session.TargetID())
		logger.Info("live view available", zap.String("url", res.LiveView))
	}

	logger.Info("navigating", zap.String("url", pageURL))
	if err := session.Navigate(pageURL); err != nil {
		return res, fmt.Errorf("navigate to %s: %w", pageURL, err)
	}
	if err := wait(ctx, cfg.Solver.PageDelay); err != nil {
		return res, err
	}

	solver := recaptchabuster.New(recaptchabuster.NewChromedpDriver(), solverOptions(cfg.Solver, logger)...)
	res.Outcome, res.Attempts, err = solver.AttemptAll(session.Context(), cfg.Solver.MaxAttempts)
	res.Solved = err == nil && res.Outcome.Success()
	if err != nil {
		return res, err
	}
	logger.Info("solve finished",
		zap.Stringer("outcome", res.Outcome),
		zap.Int("attempts", res.Attempts),
	)

	if cfg.LiveView.Hold > 0 {
		logger.Info("holding browser open", zap.Duration("hold", cfg.LiveView.Hold))
		if err := wait(ctx, cfg.LiveView.Hold); err != nil && !errors.Is(err, context.Canceled) {
			return res, err
		}
	}
	return res, nil
}

func sessionConfig(cfg *config.Config, logger *zap.Logger) recaptchabuster.SessionConfig {
	sessionCfg := recaptchabuster.SessionConfig{
		Browser:       recaptchabuster.Browser(cfg.Browser.Name),
		ExtensionPath: cfg.Browser.Extension,
		Headless:      cfg.Browser.Headless,
		ExecPath:      cfg.Browser.ExecPath,
		UserDataDir:   cfg.Browser.UserDataDir,
		Stealth:       cfg.Browser.Stealth,
		Logger:        logger,
	}
	if cfg.Browser.NoSandbox {
		sessionCfg.ExtraFlags = append(sessionCfg.ExtraFlags, chromedp.NoSandbox)
	}
	// the live view needs a known DevTools port
	if cfg.LiveView.Addr != "" {
		sessionCfg.RemoteDebuggingAddr = cfg.LiveView.DebuggingAddr
	}
	return sessionCfg
}

func solverOptions(cfg config.SolverConfig, logger *zap.Logger) []recaptchabuster.Option {
	return []recaptchabuster.Option{
		recaptchabuster.WithTimeout(cfg.Timeout),
		recaptchabuster.WithChallengeTimeout(cfg.ChallengeTimeout),
		recaptchabuster.WithSolvedCheckTimeout(cfg.SolvedCheckTimeout),
		recaptchabuster.WithSettleDelay(cfg.SettleDelay),
		recaptchabuster.WithRetryDelay(cfg.RetryDelay),
		recaptchabuster.WithPollInterval(cfg.PollInterval),
		recaptchabuster.WithDebug(cfg.Debug),
		recaptchabuster.WithLogger(logger),
	}
}

func printResult(w io.Writer, res result, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	status := "not solved"
	if res.Solved {
		status = "solved"
	}
	if _, err := fmt.Fprintf(w, "%s: %s (%s after %d attempt(s))\n", res.URL, status, res.Outcome, res.Attempts); err != nil {
		return err
	}
	if res.LiveView != "" {
		if _, err := fmt.Fprintf(w, "live view: %s\n", res.LiveView); err != nil {
			return err
		}
	}
	return nil
}

// baseURL turns a listen address into the http URL a local browser can open
func baseURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid live view address %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
