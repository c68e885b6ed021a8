package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")

			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				if username, err = prompt(cmd, in, "username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(cmd, in); err != nil {
					return err
				}
			}

			user, err := a.svcs.Auth.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			cred, _ := a.svcs.Guard.Credential()
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (session expires %s)\n",
				user.Username, humanize.Time(cred.ExpiresAt))
			return nil
		},
	}
	cmd.Flags().StringP("username", "u", "", "account username")
	cmd.Flags().String("password", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svcs.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.svcs.Auth.Restore(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (id %d)\n", user.Username, user.ID)
			if cred, ok := a.svcs.Guard.Credential(); ok {
				fmt.Fprintf(out, "session expires %s (%s)\n",
					humanize.Time(cred.ExpiresAt), cred.ExpiresAt.Local().Format(time.DateTime))
			}
			if scope, ok := a.svcs.Auth.LastScope(cmd.Context(), user.Username); ok {
				fmt.Fprintf(out, "last chat: %s\n", scope)
			}
			return nil
		},
	}
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword, terminaldeyse echo'suz okur; pipe'tan gelirse düz satır okur.
func promptPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}
	return prompt(cmd, in, "password: ")
}
