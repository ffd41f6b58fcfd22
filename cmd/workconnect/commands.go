package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/go-workconnect/internal/models"
	"github.com/pribylovaa/go-workconnect/internal/session"
)

const envPassword = "WORKCONNECT_PASSWORD"

var errNotLoggedIn = errors.New("not logged in")

func (c *cli) loginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Log in and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}

			u, err := c.app.Session.Login(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", describe(u))
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: $"+envPassword+" or stdin)")

	return cmd
}

func (c *cli) signupCmd() *cobra.Command {
	var (
		password string
		name     string
		role     string
		phone    string
	)

	cmd := &cobra.Command{
		Use:   "signup EMAIL",
		Short: "Create an account and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}

			u, err := c.app.Session.Signup(cmd.Context(), session.SignupRequest{
				Email:       args[0],
				Password:    pw,
				Name:        name,
				Role:        models.Role(role),
				PhoneNumber: phone,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s\n", describe(u))
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: $"+envPassword+" or stdin)")
	cmd.Flags().StringVar(&name, "name", "", "full name; the first word becomes the first name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleClient), "account role (client or worker)")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")

	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session on the server and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.Initialize(cmd.Context()); err != nil {
				return err
			}

			u := c.app.Session.User()
			if u == nil {
				return errNotLoggedIn
			}

			fmt.Fprintln(cmd.OutOrStdout(), describe(u))
			return nil
		},
	}
}

func (c *cli) callCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "call METHOD PATH",
		Short: "Send an authenticated request and print the JSON response",
		Example: `  workconnect call GET /auth/profile/
  workconnect call PATCH /auth/profile/ --data '{"phone_number":"+100"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Session.Initialize(cmd.Context()); err != nil {
				return err
			}

			var in any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data is not valid JSON")
				}
				in = json.RawMessage(data)
			}

			var out json.RawMessage
			if err := c.app.API.Call(cmd.Context(), strings.ToUpper(args[0]), args[1], in, &out); err != nil {
				return err
			}

			if len(out) == 0 {
				return nil
			}

			var buf bytes.Buffer
			if err := json.Indent(&buf, out, "", "  "); err != nil {
				buf.Reset()
				buf.Write(out)
			}
			buf.WriteByte('\n')

			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")

	return cmd
}

// readPassword: флаг -> $WORKCONNECT_PASSWORD -> первая строка stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if pw := os.Getenv(envPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func describe(u *models.User) string {
	if u == nil {
		return "<unknown>"
	}

	name := u.FullName
	if name == "" {
		name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}

	return fmt.Sprintf("%s <%s> (%s)", name, u.Email, u.Role)
}
