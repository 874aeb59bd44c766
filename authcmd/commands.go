// Package authcmd builds the auth command suite for shells and debugging
// harnesses: sign-in, sign-out, status, and a realtime event tail.
//
// The deep-link dispatcher is normally fed by the OS; the login command also
// reads callback URLs line-by-line from its input so operators can paste a
// redirect by hand when the OS handoff is unavailable.
package authcmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mfeller/deskauth"
	"github.com/mfeller/deskauth/bridge"
	"github.com/mfeller/deskauth/deeplink"
	"github.com/mfeller/deskauth/realtime"
	"github.com/mfeller/deskauth/tokenstore"
)

// Suite carries the wired auth components the commands operate on. Bridge
// and Realtime are optional; commands that need an absent component degrade
// or are omitted.
type Suite struct {
	Config     *deskauth.Config
	Flow       *deskauth.Flow
	Dispatcher *deeplink.Dispatcher
	Bridge     *bridge.Client
	Store      *tokenstore.Store
	Realtime   *realtime.Manager

	// In supplies pasted callback URLs during login. Defaults to stdin.
	In io.Reader
}

func (s *Suite) input() io.Reader {
	if s.In != nil {
		return s.In
	}
	return os.Stdin
}

// Commands builds the "auth" parent command.
func Commands(s *Suite) *cli.Command {
	subcommands := []*cli.Command{
		loginCommand(s),
		logoutCommand(s),
		statusCommand(s),
	}
	if s.Realtime != nil {
		subcommands = append(subcommands, eventsCommand(s))
	}
	return &cli.Command{
		Name:     "auth",
		Usage:    "manage the hosted sign-in session",
		Commands: subcommands,
	}
}

// loginCommand builds the "auth login" subcommand.
func loginCommand(s *Suite) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in via the hosted identity provider",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "redirect-uri",
				Usage: "deep-link redirect URI (defaults to the configured one)",
			},
			&cli.StringFlag{
				Name:  "account",
				Usage: "account identifier to store the session under",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			unsub := s.Dispatcher.Listen(func(u string) {
				_ = s.Flow.OnCallback(ctx, u)
			})
			defer unsub()

			if err := s.Flow.BeginSignIn(ctx, cmd.String("redirect-uri")); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.Writer, "Waiting for the browser to return; paste the callback URL here if it does not.")

			// Pasted callback URLs are fed through the same dispatcher
			// the OS uses.
			go func() {
				scanner := bufio.NewScanner(s.input())
				for scanner.Scan() {
					if line := scanner.Text(); line != "" {
						s.Dispatcher.Dispatch(line)
					}
				}
			}()

			var res deskauth.Result
			select {
			case res = <-s.Flow.Results():
			case <-ctx.Done():
				return ctx.Err()
			}
			if res.Err != nil {
				return res.Err
			}

			token := res.BridgedToken
			if token == "" && res.Tokens != nil {
				token = res.Tokens.AccessToken
			}
			if token == "" && res.Tokens != nil {
				token = res.Tokens.IDToken
			}
			if err := s.Store.Save(ctx, token, cmd.String("account")); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.Writer, "Signed in.")
			return nil
		},
	}
}

// logoutCommand builds the "auth logout" subcommand.
func logoutCommand(s *Suite) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "terminate the session and remove stored credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "account identifier"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			account := cmd.String("account")
			tok, ok, err := s.Store.Load(ctx, account)
			if err != nil {
				return err
			}
			if ok && s.Bridge != nil {
				if err := s.Bridge.SignOut(ctx, tok); err != nil {
					// Local credentials are still cleared; the
					// downstream session will age out.
					_, _ = fmt.Fprintf(cmd.Writer, "Warning: downstream sign-out failed: %v\n", err)
				}
			}
			if err := s.Store.Clear(ctx, account); err != nil {
				return err
			}
			s.Store.ClearCache()
			_, _ = fmt.Fprintln(cmd.Writer, "Logged out.")
			return nil
		},
	}
}

// statusCommand builds the "auth status" subcommand.
func statusCommand(s *Suite) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show session status",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "account identifier"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tok, ok, err := s.Store.Load(ctx, cmd.String("account"))
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.Writer, "Not signed in.")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.Writer, "Signed in. Session token: %s\n", tokenstore.Redact(tok))
			return nil
		},
	}
}

// eventsCommand builds the "auth events" subcommand, tailing realtime
// change events until interrupted.
func eventsCommand(s *Suite) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "tail realtime change events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "table",
				Value: "events_stream",
				Usage: "table to watch",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "equality predicate, e.g. account_id=eq.42",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			enc := json.NewEncoder(cmd.Writer)
			sub := s.Realtime.Subscribe(ctx, cmd.String("table"), cmd.String("filter"), func(ev realtime.ChangeEvent) {
				_ = enc.Encode(map[string]any{
					"event": ev.Type,
					"new":   ev.New,
					"old":   ev.Old,
				})
			})
			defer sub.Unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
}
