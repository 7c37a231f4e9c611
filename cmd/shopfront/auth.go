package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/shopapi"
)

var (
	roleFlag     string
	passwordFlag string
	displayName  string
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in as admin or customer",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client, args []string) error {
		role, err := parseRoleFlag()
		if err != nil {
			return err
		}
		password, err := readPassword()
		if err != nil {
			return err
		}
		id, err := c.session.Login(cmd.Context(), shopapi.Credentials{Username: args[0], Password: password}, role)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s (%s, id %s), home %s\n", id.Name, id.Role, id.ID, c.session.EntryRoute())
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the local session",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client, args []string) error {
		if err := c.session.Logout(); err != nil {
			return err
		}
		fmt.Println("signed out, next:", c.session.EntryRoute())
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client, args []string) error {
		id := c.session.Current()
		if id == nil {
			fmt.Println("anonymous, next:", c.session.EntryRoute())
			return nil
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", id.ID, id.Name, id.Role, id.ActorKind)
		return nil
	}),
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an admin or customer account",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client, args []string) error {
		role, err := parseRoleFlag()
		if err != nil {
			return err
		}
		password, err := readPassword()
		if err != nil {
			return err
		}
		acc, err := c.auth.Register(cmd.Context(), role, shopapi.Registration{
			Username:    args[0],
			Password:    password,
			DisplayName: displayName,
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (%s, id %d), sign in at %s\n", acc.Username, acc.Role, acc.ID, role.LoginRoute())
		return nil
	}),
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVarP(&roleFlag, "role", "r", "", "admin or customer (default app.default_role)")
		cmd.Flags().StringVarP(&passwordFlag, "password", "p", "", "password, read from stdin when empty")
	}
	registerCmd.Flags().StringVar(&displayName, "name", "", "display name")
}

func parseRoleFlag() (identity.Role, error) {
	raw := roleFlag
	if raw == "" {
		raw = cfg.App.DefaultRole
	}
	role, ok := identity.ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

func readPassword() (string, error) {
	if passwordFlag != "" {
		return passwordFlag, nil
	}
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("password is required")
	}
	return line, nil
}
