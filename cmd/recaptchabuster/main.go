// Command recaptchabuster opens a page in Chrome or Edge and solves its reCAPTCHA with the Buster extension.
//
// Usage:
//
//	recaptchabuster solve <url> --extension extensions/buster.crx
//	recaptchabuster solve <url> --headless --json
//	recaptchabuster version
package main

import (
	"context"
	"errors"
	"github.com/jarylc/go-recaptchabuster/cmd"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
