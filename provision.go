package recaptchabuster

import (
	"context"
	"errors"
	"fmt"
	chromedpundetected "github.com/Davincible/chromedp-undetected"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Browser selects the Chromium-family browser to launch
type Browser string

const (
	BrowserChrome Browser = "chrome"
	BrowserEdge   Browser = "edge"
)

// SessionConfig describes how to launch a browser with the Buster extension loaded
type SessionConfig struct {
	Browser Browser
	// ExtensionPath is an unpacked extension directory or a .crx/.zip package
	ExtensionPath string
	Headless      bool
	// ExecPath overrides browser discovery
	ExecPath    string
	UserDataDir string
	// Stealth launches through chromedp-undetected instead of the plain exec allocator
	Stealth bool
	// RemoteDebuggingAddr exposes the DevTools endpoint on host:port, host defaults to 127.0.0.1
	RemoteDebuggingAddr string
	ExtraFlags          []chromedp.ExecAllocatorOption
	Logger              *zap.Logger
}

// SessionOption is a function that configures a SessionConfig
type SessionOption func(*SessionConfig)

// WithExecPath sets the browser executable
func WithExecPath(path string) SessionOption {
	return func(c *SessionConfig) {
		c.ExecPath = path
	}
}

// WithUserDataDir sets the browser profile directory
func WithUserDataDir(dir string) SessionOption {
	return func(c *SessionConfig) {
		c.UserDataDir = dir
	}
}

// WithStealth launches the browser through chromedp-undetected.
// In headless mode this requires Xvfb on Linux.
func WithStealth() SessionOption {
	return func(c *SessionConfig) {
		c.Stealth = true
	}
}

// WithRemoteDebugging exposes the DevTools endpoint, which the live view attaches to
func WithRemoteDebugging(addr string) SessionOption {
	return func(c *SessionConfig) {
		c.RemoteDebuggingAddr = addr
	}
}

// WithExtraFlags appends allocator options after the built-in ones
func WithExtraFlags(opts ...chromedp.ExecAllocatorOption) SessionOption {
	return func(c *SessionConfig) {
		c.ExtraFlags = append(c.ExtraFlags, opts...)
	}
}

// WithSessionLogger routes chromedp's own logging to logger
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(c *SessionConfig) {
		c.Logger = logger
	}
}

// Session is a running browser with one tab. Its context is what ChromedpDriver and chromedp.Run expect.
// The caller owns it and must call Close.
type Session struct {
	ctx          context.Context
	cancel       context.CancelFunc
	targetID     target.ID
	debugPort    string
	extensionDir string
	tempDir      string
	logger       *zap.Logger
}

// NewChromeSession launches Google Chrome (or Chromium) with the extension at extensionPath
func NewChromeSession(ctx context.Context, extensionPath string, headless bool, opts ...SessionOption) (*Session, error) {
	return NewSession(ctx, newSessionConfig(BrowserChrome, extensionPath, headless, opts))
}

// NewEdgeSession launches Microsoft Edge with the extension at extensionPath
func NewEdgeSession(ctx context.Context, extensionPath string, headless bool, opts ...SessionOption) (*Session, error) {
	return NewSession(ctx, newSessionConfig(BrowserEdge, extensionPath, headless, opts))
}

func newSessionConfig(browser Browser, extensionPath string, headless bool, opts []SessionOption) SessionConfig {
	cfg := SessionConfig{
		Browser:       browser,
		ExtensionPath: extensionPath,
		Headless:      headless,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewSession validates cfg, prepares the extension and launches the browser.
// Invalid settings are reported as *ConfigurationError before anything is launched.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	extensionDir, tempDir, err := resolveExtension(cfg.ExtensionPath)
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		if tempDir != "" {
			_ = os.RemoveAll(tempDir)
		}
	}

	execPath, err := resolveExecPath(cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	host, port, err := splitDebuggingAddr(cfg.RemoteDebuggingAddr)
	if err != nil {
		cleanup()
		return nil, err
	}

	opts := launchFlags(cfg, extensionDir)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if port != "" {
		opts = append(opts,
			chromedp.Flag("remote-debugging-address", host),
			chromedp.Flag("remote-debugging-port", port),
		)
	}
	opts = append(opts, cfg.ExtraFlags...)

	logger.Info("launching browser",
		zap.String("browser", string(cfg.Browser)),
		zap.String("extension", extensionDir),
		zap.Bool("headless", cfg.Headless),
		zap.Bool("stealth", cfg.Stealth),
	)

	var browserCtx context.Context
	var cancel context.CancelFunc
	if cfg.Stealth {
		browserCtx, cancel, err = launchUndetected(ctx, cfg.Headless, opts)
	} else {
		browserCtx, cancel, err = launch(ctx, opts, logger)
	}
	if err != nil {
		cleanup()
		return nil, err
	}

	session := &Session{
		ctx:          browserCtx,
		cancel:       cancel,
		debugPort:    port,
		extensionDir: extensionDir,
		tempDir:      tempDir,
		logger:       logger,
	}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		session.targetID = c.Target.TargetID
	}
	return session, nil
}

func launch(ctx context.Context, opts []chromedp.ExecAllocatorOption, logger *zap.Logger) (context.Context, context.CancelFunc, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	sugar := logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// an empty Run starts the browser and opens the first tab
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	return browserCtx, cancel, nil
}

func launchUndetected(ctx context.Context, headless bool, opts []chromedp.ExecAllocatorOption) (context.Context, context.CancelFunc, error) {
	configOpts := []chromedpundetected.Option{chromedpundetected.WithChromeFlags(opts...)}
	if headless {
		configOpts = append(configOpts, chromedpundetected.WithHeadless())
	}
	browserCtx, browserCancel, err := chromedpundetected.New(chromedpundetected.NewConfig(configOpts...))
	if err != nil {
		return nil, nil, fmt.Errorf("launch undetected browser: %w", err)
	}

	// tie the browser to the caller's context like NewExecAllocator does
	stop := context.AfterFunc(ctx, browserCancel)
	cancel := func() {
		stop()
		browserCancel()
	}
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("launch undetected browser: %w", err)
	}
	return browserCtx, cancel, nil
}

// launchFlags builds the allocator options for loading an unpacked extension
// without the automation banner
func launchFlags(cfg SessionConfig, extensionDir string) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	if !cfg.Stealth {
		// chromedp-undetected brings its own defaults and handles headless through Xvfb
		opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
		if cfg.Headless {
			// legacy headless mode cannot run extensions
			opts = append(opts, chromedp.Flag("headless", "new"))
		} else {
			opts = append(opts,
				chromedp.Flag("headless", false),
				chromedp.Flag("hide-scrollbars", false),
				chromedp.Flag("mute-audio", false),
				chromedp.Flag("start-maximized", true),
			)
		}
	}

	return append(opts,
		chromedp.Flag("disable-extensions", false),
		chromedp.Flag("disable-extensions-except", extensionDir),
		chromedp.Flag("load-extension", extensionDir),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		// keep the reCAPTCHA frames in-process so they can be queried through their iframe node,
		// and keep --load-extension working on branded builds
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process,Translate,BlinkGenPropertyTrees,DisableLoadExtensionCommandLineSwitch"),
	)
}

// resolveExtension returns the unpacked extension directory for path,
// extracting packages into a temporary directory the caller must remove
func resolveExtension(path string) (dir string, tempDir string, err error) {
	if path == "" {
		return "", "", NewConfigurationError("extension path is empty", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", NewConfigurationError("invalid extension path "+path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", NewConfigurationError("extension not found at "+abs, err)
		}
		return "", "", NewConfigurationError("cannot read extension at "+abs, err)
	}

	if info.IsDir() {
		if err := checkManifest(abs); err != nil {
			return "", "", err
		}
		return abs, "", nil
	}

	tempDir, err = os.MkdirTemp("", "recaptchabuster-extension-")
	if err != nil {
		return "", "", fmt.Errorf("create extension directory: %w", err)
	}
	if err := unpackExtension(abs, tempDir); err != nil {
		_ = os.RemoveAll(tempDir)
		return "", "", NewConfigurationError("cannot unpack extension "+abs, err)
	}
	if err := checkManifest(tempDir); err != nil {
		_ = os.RemoveAll(tempDir)
		return "", "", err
	}
	return tempDir, tempDir, nil
}

func checkManifest(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		return NewConfigurationError("no manifest.json in extension "+dir, err)
	}
	return nil
}

// edgeCandidates lists where Microsoft Edge is installed by default
func edgeCandidates() []string {
	switch runtime.GOOS {
	case "windows":
		var paths []string
		for _, env := range []string{"ProgramFiles(x86)", "ProgramFiles", "LocalAppData"} {
			if base := os.Getenv(env); base != "" {
				paths = append(paths, filepath.Join(base, "Microsoft", "Edge", "Application", "msedge.exe"))
			}
		}
		return paths
	case "darwin":
		return []string{"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"}
	default:
		return []string{"microsoft-edge", "microsoft-edge-stable", "/opt/microsoft/msedge/msedge"}
	}
}

// resolveExecPath returns "" to let chromedp find Chrome itself
func resolveExecPath(cfg SessionConfig) (string, error) {
	if cfg.ExecPath != "" {
		path, err := exec.LookPath(cfg.ExecPath)
		if err != nil {
			return "", NewConfigurationError("browser executable not found", err)
		}
		return path, nil
	}

	switch cfg.Browser {
	case BrowserChrome, "":
		return "", nil
	case BrowserEdge:
		for _, candidate := range edgeCandidates() {
			if path, err := exec.LookPath(candidate); err == nil {
				return path, nil
			}
		}
		return "", NewConfigurationError("Microsoft Edge not found, set the executable path explicitly", nil)
	default:
		return "", NewConfigurationError(fmt.Sprintf("unsupported browser %q", cfg.Browser), nil)
	}
}

// splitDebuggingAddr splits host:port, defaulting the host to 127.0.0.1
func splitDebuggingAddr(addr string) (host string, port string, err error) {
	if addr == "" {
		return "", "", nil
	}
	host, port, err = net.SplitHostPort(addr)
	if err != nil || port == "" {
		return "", "", NewConfigurationError("remote debugging address must be host:port, got "+addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host, port, nil
}

// Context returns the chromedp context of the session's tab
func (s *Session) Context() context.Context {
	return s.ctx
}

// TargetID returns the DevTools target of the session's tab
func (s *Session) TargetID() target.ID {
	return s.targetID
}

// DebugPort returns the remote debugging port, empty unless WithRemoteDebugging was used
func (s *Session) DebugPort() string {
	return s.debugPort
}

// ExtensionDir returns the unpacked extension directory loaded into the browser
func (s *Session) ExtensionDir() string {
	return s.extensionDir
}

// Navigate loads url in the session's tab
func (s *Session) Navigate(url string) error {
	return chromedp.Run(s.ctx, chromedp.Navigate(url))
}

// Close shuts the browser down and removes any extracted extension files
func (s *Session) Close() error {
	if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("browser did not close cleanly", zap.Error(err))
	}
	s.cancel()
	if s.tempDir != "" {
		return os.RemoveAll(s.tempDir)
	}
	return nil
}
