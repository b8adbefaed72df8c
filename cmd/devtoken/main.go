package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"adstudio/internal/middleware"
	"adstudio/internal/webhook"
)

// devtoken mints bearer tokens and callback signatures for local testing.
func main() {
	_ = godotenv.Load()

	var (
		subFlag      string
		ttlFlag      time.Duration
		callbackFlag string
	)
	flag.StringVar(&subFlag, "sub", "", "user id to put in the token subject")
	flag.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	flag.StringVar(&callbackFlag, "sign-callback", "", "sign a callback body file with ENGINE_CALLBACK_SECRET instead (- for stdin)")
	flag.Parse()

	if callbackFlag != "" {
		if err := signCallback(callbackFlag); err != nil {
			exitWithError(err)
		}
		return
	}

	sub := strings.TrimSpace(subFlag)
	if sub == "" {
		exitWithError(errors.New("-sub is required"))
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		exitWithError(errors.New("JWT_SECRET is required"))
	}
	if ttlFlag <= 0 {
		exitWithError(errors.New("-ttl must be positive"))
	}
	token, err := middleware.SignToken(secret, os.Getenv("JWT_ISSUER"), sub, ttlFlag)
	if err != nil {
		exitWithError(fmt.Errorf("sign token: %w", err))
	}
	fmt.Println(token)
}

func signCallback(path string) error {
	secret := os.Getenv("ENGINE_CALLBACK_SECRET")
	if secret == "" {
		return errors.New("ENGINE_CALLBACK_SECRET is required")
	}
	var (
		body []byte
		err  error
	)
	if path == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read callback body: %w", err)
	}
	fmt.Println(webhook.SignatureHeader(secret, body))
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
