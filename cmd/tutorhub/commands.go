package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/jrsteele09/tutorhub-session/auth"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentGets = 8

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":    {"login -email <email> [-password <password>]", loginCmd},
	"register": {"register -type parent|coach -email <email> -password <pw> -first <name> -last <name>", registerCmd},
	"logout":   {"logout", logoutCmd},
	"whoami":   {"whoami", whoamiCmd},
	"get":      {"get <path>... (fetched concurrently)", getCmd},
	"gate":     {"gate [PARENT|COACH|ADMIN]", gateCmd},
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "usage: tutorhub <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].summary)
	}
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("TUTORHUB_PASSWORD"), "account password (default $TUTORHUB_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", snap.User.Email, snap.User.Role)
	return nil
}

func registerCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	userType := fs.String("type", string(auth.UserTypeParent), "parent or coach")
	var req auth.RegisterRequest
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.Password, "password", "", "account password")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	fs.StringVar(&req.Phone, "phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := a.auth.Register(ctx, *userType, req)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s as %s\n", snap.User.Email, snap.User.Role)
	return nil
}

func logoutCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning: server logout failed, local session cleared")
	}
	fmt.Println("logged out")
	return nil
}

func whoamiCmd(_ context.Context, a *app, _ []string) error {
	snap := a.sessions.Snapshot()
	if !snap.IsAuthenticated {
		fmt.Println("not logged in")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.User)
}

func getCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("get needs at least one path")
	}

	results := make([]string, len(args))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentGets)
	for i, path := range args {
		g.Go(func() error {
			out, err := fetch(ctx, a, path)
			if err != nil {
				return errors.Wrap(err, path)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, path := range args {
		fmt.Printf("== %s\n%s\n", path, results[i])
	}
	return nil
}

func fetch(ctx context.Context, a *app, path string) (string, error) {
	req, err := a.client.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n%s", resp.Status, strings.TrimSpace(string(body))), nil
}

func gateCmd(ctx context.Context, a *app, args []string) error {
	var required users.Role
	if len(args) > 0 {
		r, err := users.ParseRole(args[0])
		if err != nil {
			return err
		}
		required = r
	}

	d, err := a.gate.Await(ctx, required)
	if err != nil {
		return err
	}
	if d.Render() {
		fmt.Println("render")
		return nil
	}
	fmt.Printf("%s: redirect to %s\n", d.State, d.Redirect)
	return nil
}
