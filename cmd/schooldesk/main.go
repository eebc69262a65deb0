package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/gnuflag"

	"github.com/schooldesk/schooldesk/cmd/schooldesk/cli"
	"github.com/schooldesk/schooldesk/internal/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	fs := gnuflag.NewFlagSet("schooldesk", gnuflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	baseURL := envOr("SCHOOLDESK_API_URL", "http://localhost:8080")
	var tokenFile string
	var jsonOutput bool
	fs.StringVar(&baseURL, "api", baseURL, "API base URL")
	fs.StringVar(&tokenFile, "token-file", os.Getenv("SCHOOLDESK_TOKEN_FILE"), "token file (default in the user config dir)")
	fs.BoolVar(&jsonOutput, "json", false, "print JSON")
	if err := fs.Parse(false, args); err != nil {
		return cli.ExitUsage
	}
	if tokenFile == "" {
		path, err := client.DefaultTokenPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "schooldesk: %v\n", err)
			return cli.ExitError
		}
		tokenFile = path
	}
	return cli.Run(ctx, fs.Args(), cli.Options{
		BaseURL:    baseURL,
		Store:      client.NewFileTokenStore(tokenFile),
		JSONOutput: jsonOutput,
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
