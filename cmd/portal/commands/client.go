package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	portal "github.com/goliatone/go-auth-portal"
	"github.com/goliatone/go-auth-portal/tokenstore"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in")

// clientSession is a session store backed by the token file, used by the
// headless commands.
type clientSession struct {
	store  *portal.SessionStore
	tokens *tokenstore.File
	close  func()
}

func (c *cli) openSession(ctx context.Context) (*clientSession, error) {
	dir := c.opts.home
	if dir == "" {
		var err error
		if dir, err = tokenstore.DefaultDir(); err != nil {
			return nil, err
		}
	}

	api, closeIdentity, err := c.newIdentity(ctx, c.cfg.Identity.Backend)
	if err != nil {
		return nil, err
	}

	tokens := tokenstore.NewFile(dir)
	store := portal.NewSessionStore(api, tokens,
		portal.WithSessionLogger(c.log("session")),
		portal.WithRequestTimeout(c.cfg.Session.RequestTimeout),
	)
	return &clientSession{store: store, tokens: tokens, close: closeIdentity}, nil
}

func (c *cli) loginCmd() *cobra.Command {
	var identifier, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session token on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var err error
			if identifier == "" {
				if identifier, err = prompt(in, out, "Username or email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(in, out, "Password: "); err != nil {
					return err
				}
			}

			sess, err := c.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			if err := sess.store.Login(cmd.Context(), identifier, password); err != nil {
				c.log("login").Debug("login failed", "kind", portal.KindOf(err), "error", err)
				return errors.New(portal.LoginFailureMessage(err))
			}

			fmt.Fprintf(out, "Welcome, %s!\n", sess.store.User().Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&identifier, "identifier", "u", "", "username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password, read from stdin when empty")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			sess.store.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the user of the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			sess.store.Restore(cmd.Context())
			user := sess.store.User()
			if user == nil {
				return errNotLoggedIn
			}

			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintln(out, print.MaybePrettyJSON(user))
				return nil
			}
			fmt.Fprintf(out, "%s <%s>\n", user.Name, user.Email)
			if user.Username != "" {
				fmt.Fprintf(out, "username: %s\n", user.Username)
			}
			if user.AccountType != "" {
				fmt.Fprintf(out, "account:  %s\n", user.AccountType)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the user as JSON")
	return cmd
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
