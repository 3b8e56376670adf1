package recaptchabuster

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"time"
)

const (
	DefaultTimeout            = 20 * time.Second
	DefaultChallengeTimeout   = 30 * time.Second
	DefaultSolvedCheckTimeout = 2 * time.Second
	DefaultSettleDelay        = 5 * time.Second
	DefaultRetryDelay         = 2 * time.Second
	DefaultPollInterval       = 250 * time.Millisecond
	DefaultMaxAttempts        = 3
)

// Selectors are the CSS selectors used to find the reCAPTCHA widget and Buster's button.
// Lists are tried in order and the first match wins.
type Selectors struct {
	CheckboxFrame   string
	Checkbox        string
	CheckboxChecked string
	ChallengeFrames []string
	BusterButtons   []string
}

// DefaultSelectors matches reCAPTCHA v2 and Buster 2.x/3.x
func DefaultSelectors() Selectors {
	return Selectors{
		CheckboxFrame:   "iframe[title='reCAPTCHA']",
		Checkbox:        "#recaptcha-anchor",
		CheckboxChecked: "#recaptcha-anchor[aria-checked='true']",
		ChallengeFrames: []string{
			"iframe[title='recaptcha challenge expires in two minutes']",
			"iframe[title='recaptcha challenge']",
			"iframe[src*='bframe']",
		},
		BusterButtons: []string{
			"div.help-button-holder",
			".help-button-holder",
			"[class*='help-button']",
		},
	}
}

// Option is a function that configures a Solver.
type Option func(*Solver)

// WithTimeout sets how long to wait for each page element to appear.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Solver) {
		s.timeout = timeout
	}
}

// WithChallengeTimeout sets how long SolveAll waits for Buster to solve a challenge on each attempt.
func WithChallengeTimeout(timeout time.Duration) Option {
	return func(s *Solver) {
		s.challengeTimeout = timeout
	}
}

// WithSolvedCheckTimeout sets how long to watch the checkbox after clicking it
// before concluding a challenge is required.
func WithSolvedCheckTimeout(timeout time.Duration) Option {
	return func(s *Solver) {
		s.solvedCheckTimeout = timeout
	}
}

// WithSettleDelay sets the pause between finding Buster's button and clicking it.
// Clicking too early is ignored by the extension.
func WithSettleDelay(delay time.Duration) Option {
	return func(s *Solver) {
		s.settleDelay = delay
	}
}

// WithRetryDelay sets the pause between SolveAll attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(s *Solver) {
		s.retryDelay = delay
	}
}

// WithPollInterval sets how often waits re-check the page.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Solver) {
		s.pollInterval = interval
	}
}

// WithDebug logs every step of the sequence at info level instead of debug.
func WithDebug(debug bool) Option {
	return func(s *Solver) {
		s.debug = debug
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for waits, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Solver) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithSelectors overrides the selectors, e.g. for localized challenge titles.
func WithSelectors(selectors Selectors) Option {
	return func(s *Solver) {
		s.selectors = selectors
	}
}
