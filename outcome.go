package recaptchabuster

// Outcome records which branch of the solve sequence an attempt ended in.
type Outcome int

const (
	// OutcomeError means the driver failed and the attempt was aborted.
	OutcomeError Outcome = iota
	// OutcomeNoCaptcha means no reCAPTCHA widget was found, so there was nothing to solve.
	OutcomeNoCaptcha
	// OutcomeAlreadySolved means clicking the checkbox was enough.
	OutcomeAlreadySolved
	// OutcomeSolved means Buster solved the challenge.
	OutcomeSolved
	OutcomeCheckboxNotFound
	OutcomeChallengeNotFound
	OutcomeButtonNotFound
	// OutcomeTimeout means Buster was triggered but the checkbox never became checked.
	OutcomeTimeout
)

var outcomeNames = map[Outcome]string{
	OutcomeError:             "error",
	OutcomeNoCaptcha:         "no_captcha",
	OutcomeAlreadySolved:     "already_solved",
	OutcomeSolved:            "solved",
	OutcomeCheckboxNotFound:  "checkbox_not_found",
	OutcomeChallengeNotFound: "challenge_not_found",
	OutcomeButtonNotFound:    "button_not_found",
	OutcomeTimeout:           "timeout",
}

// Success reports whether the page is free of an unsolved reCAPTCHA
func (o Outcome) Success() bool {
	switch o {
	case OutcomeNoCaptcha, OutcomeAlreadySolved, OutcomeSolved:
		return true
	}
	return false
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
