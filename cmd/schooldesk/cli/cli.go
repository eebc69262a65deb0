// Package cli implements the schooldesk command line client.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/juju/gnuflag"

	"github.com/schooldesk/schooldesk/internal/client"
	"github.com/schooldesk/schooldesk/internal/rbac"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitDenied = 1
	ExitUsage  = 2
	ExitError  = 3
)

// Options configures a CLI run.
type Options struct {
	BaseURL    string
	Store      client.TokenStore
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	JSONOutput bool
}

// Run executes one command and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(args) == 0 {
		usage(opts.Stderr)
		return ExitUsage
	}
	sess := client.New(client.Options{
		BaseURL:    opts.BaseURL,
		HTTPClient: opts.HTTPClient,
		Store:      opts.Store,
	})
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return runLogin(ctx, sess, rest, opts)
	case "logout":
		return runLogout(ctx, sess, opts)
	case "whoami":
		return runWhoami(ctx, sess, opts)
	case "can":
		return runCan(ctx, sess, rest, opts)
	case "route":
		return runRoute(ctx, sess, rest, opts)
	case "help", "-h", "--help":
		usage(opts.Stdout)
		return ExitOK
	default:
		fmt.Fprintf(opts.Stderr, "schooldesk: unknown command %q\n", cmd)
		usage(opts.Stderr)
		return ExitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: schooldesk [--api URL] [--token-file PATH] [--json] <command> [args]

commands:
  login --email EMAIL [--password PASSWORD]   sign in and store the token
  logout                                      revoke the session and forget the token
  whoami                                      show the signed-in user
  can RESOURCE PERMISSION                     check a permission for the signed-in role
  route PATH                                  check whether a dashboard route is open`)
}

func runLogin(ctx context.Context, sess *client.Session, args []string, opts Options) int {
	fs := gnuflag.NewFlagSet("login", gnuflag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	var email, password string
	fs.StringVar(&email, "email", "", "account email")
	fs.StringVar(&password, "password", "", "account password (defaults to $SCHOOLDESK_PASSWORD)")
	if err := fs.Parse(true, args); err != nil {
		return ExitUsage
	}
	if password == "" {
		password = os.Getenv("SCHOOLDESK_PASSWORD")
	}
	if strings.TrimSpace(email) == "" || password == "" {
		fmt.Fprintln(opts.Stderr, "login: --email and a password are required")
		return ExitUsage
	}
	user, err := sess.Login(ctx, email, password)
	if err != nil {
		return fail(opts, "login", err)
	}
	return printUser(opts, user)
}

func runLogout(ctx context.Context, sess *client.Session, opts Options) int {
	if err := sess.Init(ctx); err != nil && !client.IsUnauthorized(err) {
		fmt.Fprintf(opts.Stderr, "logout: %s\n", client.UserMessage(err))
	}
	if err := sess.Logout(ctx); err != nil {
		return fail(opts, "logout", err)
	}
	fmt.Fprintln(opts.Stdout, "Signed out")
	return ExitOK
}

func runWhoami(ctx context.Context, sess *client.Session, opts Options) int {
	if code, ok := requireSession(ctx, sess, opts, "whoami"); !ok {
		return code
	}
	return printUser(opts, sess.User())
}

type canResult struct {
	Role       rbac.Role       `json:"role"`
	Resource   rbac.Resource   `json:"resource"`
	Permission rbac.Permission `json:"permission"`
	Allowed    bool            `json:"allowed"`
}

func runCan(ctx context.Context, sess *client.Session, args []string, opts Options) int {
	if len(args) != 2 {
		fmt.Fprintln(opts.Stderr, "can: expected RESOURCE PERMISSION")
		return ExitUsage
	}
	res, err := rbac.ParseResource(args[0])
	if err != nil {
		fmt.Fprintf(opts.Stderr, "can: %v\n", err)
		return ExitUsage
	}
	perm, err := rbac.ParsePermission(args[1])
	if err != nil {
		fmt.Fprintf(opts.Stderr, "can: %v\n", err)
		return ExitUsage
	}
	if code, ok := requireSession(ctx, sess, opts, "can"); !ok {
		return code
	}
	result := canResult{
		Role:       sess.User().Role,
		Resource:   res,
		Permission: perm,
		Allowed:    sess.HasPermission(res, perm),
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			return ExitError
		}
	} else {
		verdict := "denied"
		if result.Allowed {
			verdict = "allowed"
		}
		fmt.Fprintf(opts.Stdout, "%s: %s %s %s\n", verdict, result.Role, result.Permission, result.Resource)
	}
	if !result.Allowed {
		return ExitDenied
	}
	return ExitOK
}

type routeResult struct {
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
	Guarded bool   `json:"guarded"`
}

// runRoute asks the API rather than the local table so the server's
// unguarded-route policy applies.
func runRoute(ctx context.Context, sess *client.Session, args []string, opts Options) int {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(opts.Stderr, "route: expected PATH")
		return ExitUsage
	}
	if code, ok := requireSession(ctx, sess, opts, "route"); !ok {
		return code
	}
	var result routeResult
	path := "/api/access/routes/check?path=" + url.QueryEscape(args[0])
	if err := sess.Do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return fail(opts, "route", err)
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(result); err != nil {
			return ExitError
		}
	} else {
		verdict := "denied"
		if result.Allowed {
			verdict = "allowed"
		}
		note := ""
		if !result.Guarded {
			note = " (no guard entry)"
		}
		fmt.Fprintf(opts.Stdout, "%s: %s%s\n", verdict, result.Path, note)
	}
	if !result.Allowed {
		return ExitDenied
	}
	return ExitOK
}

func requireSession(ctx context.Context, sess *client.Session, opts Options, cmd string) (int, bool) {
	if err := sess.Init(ctx); err != nil {
		if client.IsUnauthorized(err) {
			fmt.Fprintf(opts.Stderr, "%s: session expired, run schooldesk login\n", cmd)
			return ExitDenied, false
		}
		return fail(opts, cmd, err), false
	}
	if !sess.IsAuthenticated() {
		fmt.Fprintf(opts.Stderr, "%s: not signed in, run schooldesk login\n", cmd)
		return ExitDenied, false
	}
	return ExitOK, true
}

func printUser(opts Options, user *client.User) int {
	if user == nil {
		fmt.Fprintln(opts.Stderr, "no user")
		return ExitError
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(struct {
			*client.User
			Profile rbac.Profile `json:"profile"`
		}{user, rbac.ProfileFor(user.Role)}); err != nil {
			return ExitError
		}
		return ExitOK
	}
	profile := rbac.ProfileFor(user.Role)
	fmt.Fprintf(opts.Stdout, "%s <%s>\nrole: %s\n", user.Name, user.Email, profile.Label)
	return ExitOK
}

func fail(opts Options, cmd string, err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(opts.Stderr, "%s: %s\n", cmd, apiErr.Message)
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return ExitDenied
		}
		return ExitError
	}
	fmt.Fprintf(opts.Stderr, "%s: %v\n", cmd, err)
	return ExitError
}
