package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wecanfarm/wecanfarm/internal/api"
	"github.com/wecanfarm/wecanfarm/internal/app"
	"github.com/wecanfarm/wecanfarm/internal/config"
	"github.com/wecanfarm/wecanfarm/internal/session"
)

var (
	usernameFlag string
	passwordFlag string
)

// addCredentialFlags registers --username and --password on c.
func addCredentialFlags(c *cobra.Command) {
	c.Flags().StringVarP(&usernameFlag, "username", "u", "", "account username (defaults to the profile username)")
	c.Flags().StringVar(&passwordFlag, "password", "", "account password (or set "+config.EnvPrefix+"PASSWORD)")
}

// credentials resolves the username and password for this invocation.
func credentials() (string, string, error) {
	username := usernameFlag
	if username == "" && activeProfile != nil {
		username = activeProfile.Username
	}
	password := passwordFlag
	if password == "" {
		password = os.Getenv(config.EnvPrefix + "PASSWORD")
	}

	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return "", "", userError{api.NewValidationError("login", missing)}
	}
	return username, password, nil
}

// signIn logs in to a with the resolved credentials.
func signIn(ctx context.Context, a *app.App) (session.UserInfo, error) {
	username, password, err := credentials()
	if err != nil {
		return session.UserInfo{}, err
	}
	user, err := a.Login(ctx, username, password)
	if err != nil {
		return session.UserInfo{}, userError{err}
	}
	return user, nil
}

// userError prints as the one-line message shown to users while keeping
// the underlying error for errors.Is.
type userError struct{ err error }

func (e userError) Error() string { return api.UserMessage(e.err) }
func (e userError) Unwrap() error { return e.err }

func roleName(r session.Role) string {
	if r == session.RoleFarmer {
		return "farmer"
	}
	return "customer"
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check your credentials against the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(newLogger(cmd))
		if err != nil {
			return err
		}
		user, err := signIn(cmd.Context(), a)
		if err != nil {
			return err
		}
		cmd.Printf("Logged in as %s (%s), user #%d\n", user.Username, roleName(user.Role), user.ID)
		return nil
	},
}

var (
	signupEmail    string
	signupFullName string
	signupRole     string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(newLogger(cmd))
		if err != nil {
			return err
		}
		role := session.Role(strings.ToUpper(strings.TrimSpace(signupRole)))
		if !role.Valid() {
			return fmt.Errorf("unknown role %q: want farmer or user", signupRole)
		}
		password := passwordFlag
		if password == "" {
			password = os.Getenv(config.EnvPrefix + "PASSWORD")
		}
		// The password is entered once on the command line.
		req := api.RegisterRequest{
			Username:        usernameFlag,
			Email:           signupEmail,
			Password:        password,
			ConfirmPassword: password,
			FullName:        signupFullName,
			Role:            role,
		}
		res, err := a.Signup(cmd.Context(), req)
		if err != nil {
			return userError{err}
		}
		if res.Message != "" {
			cmd.Println(res.Message)
		}
		cmd.Printf("Account created (user #%d). Log in with: wecanfarm login -u %s\n", res.UserID, req.Username)
		return nil
	},
}

func init() {
	addCredentialFlags(loginCmd)
	addCredentialFlags(signupCmd)
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "email address")
	signupCmd.Flags().StringVar(&signupFullName, "full-name", "", "your full name")
	signupCmd.Flags().StringVar(&signupRole, "role", "farmer", "account type: farmer or user")
	rootCmd.AddCommand(loginCmd, signupCmd)
}
