package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Args:  cobra.NoArgs,
		RunE:  withRuntime(runLogin),
	}
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string, rt *Runtime) error {
	phone, _ := cmd.Flags().GetString("phone")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	if strings.TrimSpace(phone) == "" {
		return Exitf(ExitCodeUsage, "--phone is required")
	}

	var (
		password string
		err      error
	)
	if fromStdin {
		password, err = readPasswordLine(cmd.InOrStdin())
	} else {
		password, err = promptPassword(cmd.ErrOrStderr())
	}
	if err != nil {
		return Exitf(ExitCodeUsage, "read password: %v", err)
	}

	session, err := rt.Auth.Login(cmd.Context(), rt.Client, phone, password)
	if err != nil {
		return exitFor(err, "login")
	}

	if rt.JSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(session.User)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(session.User.ID, session.User.Name))
	return nil
}

func promptPassword(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; use --password-stdin")
	}
	fmt.Fprint(prompt, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func readPasswordLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *Runtime) error {
			if err := rt.Auth.Logout(cmd.Context()); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		}),
	}
}
