package recaptchabuster

import (
	"context"
	"errors"
	"fmt"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"time"
)

// Solver clicks through a reCAPTCHA v2 widget on the page loaded in a Driver and lets
// the Buster extension answer the challenge. The Driver is borrowed: the Solver never
// closes it, and it must not be used by anything else while a solve is running.
type Solver struct {
	driver    Driver
	logger    *zap.Logger
	clock     clock.Clock
	selectors Selectors

	timeout            time.Duration
	challengeTimeout   time.Duration
	solvedCheckTimeout time.Duration
	settleDelay        time.Duration
	retryDelay         time.Duration
	pollInterval       time.Duration
	debug              bool
}

// New creates a Solver for the given driver and options
func New(driver Driver, opts ...Option) *Solver {
	s := &Solver{
		driver:             driver,
		logger:             zap.NewNop(),
		clock:              clock.New(),
		selectors:          DefaultSelectors(),
		timeout:            DefaultTimeout,
		challengeTimeout:   DefaultChallengeTimeout,
		solvedCheckTimeout: DefaultSolvedCheckTimeout,
		settleDelay:        DefaultSettleDelay,
		retryDelay:         DefaultRetryDelay,
		pollInterval:       DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve runs one solve attempt and reports whether the page ended up without an unsolved reCAPTCHA.
// Missing elements and expired waits yield false; only driver failures and context cancellation are
// returned as errors. The driver is always switched back to the top-level document.
func (s *Solver) Solve(ctx context.Context, maxWait time.Duration) (bool, error) {
	outcome, err := s.Attempt(ctx, maxWait)
	return outcome.Success(), err
}

// SolveAll calls Solve up to maxAttempts times, pausing the retry delay in between,
// and stops at the first success.
func (s *Solver) SolveAll(ctx context.Context, maxAttempts int) (bool, error) {
	outcome, _, err := s.AttemptAll(ctx, maxAttempts)
	return outcome.Success(), err
}

// AttemptAll is SolveAll returning the last outcome and the number of attempts made
func (s *Solver) AttemptAll(ctx context.Context, maxAttempts int) (Outcome, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var outcome Outcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.logger.Info("reCAPTCHA solving attempt", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))

		var err error
		outcome, err = s.Attempt(ctx, s.challengeTimeout)
		if err != nil {
			return outcome, attempt, err
		}
		if outcome.Success() {
			return outcome, attempt, nil
		}

		if attempt < maxAttempts {
			s.step("retrying", zap.Stringer("outcome", outcome), zap.Duration("delay", s.retryDelay))
			if err := sleep(ctx, s.clock, s.retryDelay); err != nil {
				return outcome, attempt, err
			}
		}
	}

	s.logger.Warn("failed to solve reCAPTCHA", zap.Int("attempts", maxAttempts), zap.Stringer("outcome", outcome))
	return outcome, maxAttempts, nil
}

// Attempt runs the solve sequence once and returns the branch it ended in
func (s *Solver) Attempt(ctx context.Context, maxWait time.Duration) (outcome Outcome, err error) {
	defer func() {
		// restore even when ctx is already cancelled
		if restoreErr := s.driver.SwitchToDefaultContent(context.WithoutCancel(ctx)); restoreErr != nil && err == nil {
			outcome, err = OutcomeError, fmt.Errorf("restore top-level frame: %w", restoreErr)
		}
	}()

	s.focusMainTab(ctx)

	s.step("looking for reCAPTCHA checkbox iframe")
	checkboxFrame, err := s.waitForElement(ctx, s.timeout, s.selectors.CheckboxFrame)
	if err != nil {
		if notFound(err) {
			s.logger.Info("no reCAPTCHA present on page")
			return OutcomeNoCaptcha, nil
		}
		return OutcomeError, err
	}

	if err := s.driver.SwitchToFrame(ctx, checkboxFrame); err != nil {
		return OutcomeError, fmt.Errorf("switch to checkbox iframe: %w", err)
	}
	checkbox, err := s.waitForElement(ctx, s.timeout, s.selectors.Checkbox)
	if err != nil {
		if notFound(err) {
			s.logger.Warn("reCAPTCHA checkbox not found inside its iframe")
			return OutcomeCheckboxNotFound, nil
		}
		return OutcomeError, err
	}
	s.step("clicking reCAPTCHA checkbox")
	if err := s.driver.Click(ctx, checkbox); err != nil {
		return OutcomeError, fmt.Errorf("click checkbox: %w", err)
	}

	solved, err := s.waitForSolved(ctx, s.solvedCheckTimeout)
	if err != nil {
		return OutcomeError, err
	}
	if solved {
		s.logger.Info("reCAPTCHA solved by checkbox click")
		return OutcomeAlreadySolved, nil
	}

	s.step("challenge appeared, looking for challenge iframe")
	if err := s.driver.SwitchToDefaultContent(ctx); err != nil {
		return OutcomeError, fmt.Errorf("switch to top-level frame: %w", err)
	}
	challengeFrame, err := s.waitForElement(ctx, s.timeout, s.selectors.ChallengeFrames...)
	if err != nil {
		if notFound(err) {
			s.logger.Warn("reCAPTCHA challenge iframe not found")
			return OutcomeChallengeNotFound, nil
		}
		return OutcomeError, err
	}

	if err := s.driver.SwitchToFrame(ctx, challengeFrame); err != nil {
		return OutcomeError, fmt.Errorf("switch to challenge iframe: %w", err)
	}
	button, err := s.waitForElement(ctx, s.timeout, s.selectors.BusterButtons...)
	if err != nil {
		if notFound(err) {
			s.logger.Warn("Buster button not found, is the extension installed?")
			return OutcomeButtonNotFound, nil
		}
		return OutcomeError, err
	}
	s.step("waiting before clicking Buster button", zap.Duration("delay", s.settleDelay))
	if err := sleep(ctx, s.clock, s.settleDelay); err != nil {
		return OutcomeError, err
	}
	s.step("clicking Buster button")
	if err := s.driver.Click(ctx, button); err != nil {
		return OutcomeError, fmt.Errorf("click Buster button: %w", err)
	}

	// the checked state lives in the checkbox iframe
	if err := s.driver.SwitchToDefaultContent(ctx); err != nil {
		return OutcomeError, fmt.Errorf("switch to top-level frame: %w", err)
	}
	if err := s.driver.SwitchToFrame(ctx, checkboxFrame); err != nil {
		return OutcomeError, fmt.Errorf("switch to checkbox iframe: %w", err)
	}
	s.step("waiting for Buster to solve the challenge", zap.Duration("max_wait", maxWait))
	solved, err = s.waitForSolved(ctx, maxWait)
	if err != nil {
		return OutcomeError, err
	}
	if !solved {
		s.logger.Warn("timed out waiting for reCAPTCHA solution", zap.Duration("max_wait", maxWait))
		return OutcomeTimeout, nil
	}
	s.logger.Info("reCAPTCHA solved by Buster")
	return OutcomeSolved, nil
}

// waitForElement polls the current frame until one of the selectors matches,
// returning an *ElementNotFoundError once timeout has passed
func (s *Solver) waitForElement(ctx context.Context, timeout time.Duration, selectors ...string) (Element, error) {
	var found Element
	err := waitFor(ctx, s.clock, timeout, s.pollInterval, "waiting for element", func(ctx context.Context) (bool, error) {
		for _, selector := range selectors {
			elements, err := s.driver.FindElements(ctx, selector)
			if err != nil {
				return false, err
			}
			if len(elements) > 0 {
				s.step("found element", zap.String("selector", selector))
				found = elements[0]
				return true, nil
			}
		}
		return false, nil
	})

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return nil, NewElementNotFoundError(selectors...)
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

// waitForSolved polls the checkbox iframe, which must be the current frame, for the checked state
func (s *Solver) waitForSolved(ctx context.Context, timeout time.Duration) (bool, error) {
	err := waitFor(ctx, s.clock, timeout, s.pollInterval, "waiting for checked reCAPTCHA", func(ctx context.Context) (bool, error) {
		elements, err := s.driver.FindElements(ctx, s.selectors.CheckboxChecked)
		if err != nil {
			return false, err
		}
		return len(elements) > 0, nil
	})

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		s.step("reCAPTCHA not solved yet", zap.Duration("waited", timeoutErr.Timeout))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Solver) focusMainTab(ctx context.Context) {
	focuser, ok := s.driver.(TabFocuser)
	if !ok {
		return
	}
	switched, err := focuser.FocusMainTab(ctx)
	if err != nil {
		s.logger.Warn("could not check for extension tabs", zap.Error(err))
		return
	}
	if switched {
		s.logger.Info("extension opened additional tabs, switched back to main tab")
	}
}

func (s *Solver) step(msg string, fields ...zap.Field) {
	if s.debug {
		s.logger.Info(msg, fields...)
		return
	}
	s.logger.Debug(msg, fields...)
}

func notFound(err error) bool {
	var notFoundErr *ElementNotFoundError
	return errors.As(err, &notFoundErr)
}
