package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/backend"
	"scribe/internal/oauth"
)

type credentialFlags struct {
	email         string
	password      string
	passwordStdin bool
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "Account email address")
	cmd.Flags().StringVar(&f.password, "password", "", "Account password")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "Read the password from stdin")
}

func (f *credentialFlags) credentials(in io.Reader) (backend.Credentials, error) {
	password := f.password
	if f.passwordStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return backend.Credentials{}, fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	return backend.Credentials{Email: strings.TrimSpace(f.email), Password: password}, nil
}

func newAuthCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newRegisterCommand(ctx),
		newLoginCommand(ctx),
		newLogoutCommand(ctx),
	}
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := flags.credentials(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				token, err := svc.client.Register(runCtx, creds)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if token == nil {
					fmt.Fprintf(out, "Registered %s. Run \"scribe login\" to sign in.\n", creds.Email)
					return nil
				}
				if err := svc.session.Save(token.AccessToken); err != nil {
					return err
				}
				fmt.Fprintf(out, "Registered and signed in as %s\n", creds.Email)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var flags credentialFlags
	var github bool
	var code, state string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email/password or GitHub",
		RunE: func(cmd *cobra.Command, args []string) error {
			manual := strings.TrimSpace(code) != "" || strings.TrimSpace(state) != ""
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				out := cmd.OutOrStdout()
				var (
					token backend.Token
					err   error
				)
				switch {
				case manual:
					res := oauth.Result{Code: strings.TrimSpace(code), State: strings.TrimSpace(state)}
					if err := oauth.CheckResult(res, ""); err != nil {
						return fmt.Errorf("github login: %w", err)
					}
					token, err = svc.client.CompleteGitHubLogin(runCtx, res.Code, res.State)
				case github:
					token, err = githubLogin(runCtx, cmd, svc)
				default:
					creds, credErr := flags.credentials(cmd.InOrStdin())
					if credErr != nil {
						return credErr
					}
					token, err = svc.client.Login(runCtx, creds)
				}
				if err != nil {
					return err
				}
				if err := svc.session.Save(token.AccessToken); err != nil {
					return err
				}
				fmt.Fprintln(out, "Signed in")
				return nil
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&github, "github", false, "Sign in through GitHub in the browser")
	cmd.Flags().StringVar(&code, "code", "", "GitHub authorization code (completes a login without the local listener)")
	cmd.Flags().StringVar(&state, "state", "", "GitHub OAuth state matching --code")
	return cmd
}

// githubLogin prints the authorization URL and waits for the browser to be
// redirected to the loopback listener.
func githubLogin(ctx context.Context, cmd *cobra.Command, svc *services) (backend.Token, error) {
	start, err := svc.client.StartGitHubLogin(ctx)
	if err != nil {
		return backend.Token{}, err
	}
	listener, err := oauth.Listen(svc.cfg.OAuth.CallbackBind, svc.cfg.OAuth.CallbackPath, start.State, svc.logger)
	if err != nil {
		return backend.Token{}, err
	}
	defer listener.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Open this URL in your browser to continue:")
	fmt.Fprintf(out, "  %s\n", start.AuthorizationURL)
	fmt.Fprintf(out, "Waiting for GitHub to redirect to %s\n", listener.RedirectURL())

	res, err := listener.Wait(ctx, svc.cfg.OAuthTimeout())
	if err != nil {
		return backend.Token{}, err
	}
	return svc.client.CompleteGitHubLogin(ctx, res.Code, res.State)
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(_ context.Context, svc *services) error {
				if err := svc.session.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}
