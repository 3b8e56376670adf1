// Package recaptchabuster clicks through reCAPTCHA v2 widgets with chromedp and lets the
// Buster browser extension answer the audio challenge.
//
// Basic usage:
//
//	session, err := recaptchabuster.NewChromeSession(ctx, "extensions/buster.crx", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	if err := session.Navigate("https://www.google.com/recaptcha/api2/demo"); err != nil {
//	    log.Fatal(err)
//	}
//
//	solver := recaptchabuster.New(recaptchabuster.NewChromedpDriver(),
//	    recaptchabuster.WithTimeout(20*time.Second),
//	    recaptchabuster.WithLogger(logger),
//	)
//	solved, err := solver.SolveAll(session.Context(), 3)
//
// Any Driver implementation can be used in place of ChromedpDriver.
package recaptchabuster

// Version is the current version of the module.
const Version = "0.1.0"
