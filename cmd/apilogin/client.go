package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/apilogin/pkg/client"
)

// Client flags
var (
	siteURL     string
	apiKey      string
	verifyPeer  bool
	userIDField string
	fields      []string
	assignments []string
	userAgent   string
	redirectTo  string
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Call the service endpoint of a site",
	Long: `Sign and send service requests to a running bridge, the same way an
external application does.

The site URL and api key default to APILOGIN_SITE_URL and APILOGIN_API_KEY.`,
}

var loginURLCmd = &cobra.Command{
	Use:   "login-url <userid>",
	Short: "Issue a login token and print the URL that redeems it",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		target, err := c.LoginURL(cmd.Context(), args[0], userAgent, client.LogUserOptions{
			UserIDField: userIDField,
			Redirect:    redirectTo,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), target)
		return nil
	}),
}

var getUserCmd = &cobra.Command{
	Use:   "get-user <userid>",
	Short: "Print a user record",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		record, err := c.GetUser(cmd.Context(), args[0], fields, userIDField)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), record)
	}),
}

var getAllUsersCmd = &cobra.Command{
	Use:   "get-all-users",
	Short: "Print every user that is not deleted",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		records, err := c.GetAllUsers(cmd.Context(), fields)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	}),
}

var createUserCmd = &cobra.Command{
	Use:     "create-user",
	Short:   "Create a user",
	Example: `  apilogin client create-user --set username=jdoe --set firstname=Jane --set lastname=Doe --set email=jdoe@example.com`,
	Args:    cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		userdata, err := parseAssignments(assignments)
		if err != nil {
			return err
		}
		id, err := c.CreateUser(cmd.Context(), userdata)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}),
}

var updateUserCmd = &cobra.Command{
	Use:   "update-user <userid>",
	Short: "Change fields of a user",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		userdata, err := parseAssignments(assignments)
		if err != nil {
			return err
		}
		if len(userdata) == 0 {
			return fmt.Errorf("at least one --set is required")
		}
		return c.UpdateUser(cmd.Context(), args[0], userdata, userIDField)
	}),
}

var deleteUserCmd = &cobra.Command{
	Use:   "delete-user <userid>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		return c.DeleteUser(cmd.Context(), args[0], userIDField)
	}),
}

var suspendUserCmd = &cobra.Command{
	Use:   "suspend-user <userid>",
	Short: "Suspend a user",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		return c.SuspendUser(cmd.Context(), args[0], userIDField)
	}),
}

var unsuspendUserCmd = &cobra.Command{
	Use:   "unsuspend-user <userid>",
	Short: "Lift the suspension of a user",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
		return c.UnsuspendUser(cmd.Context(), args[0], userIDField)
	}),
}

func init() {
	flags := clientCmd.PersistentFlags()
	flags.StringVar(&siteURL, "site", os.Getenv("APILOGIN_SITE_URL"), "Site root URL")
	flags.StringVar(&apiKey, "key", os.Getenv("APILOGIN_API_KEY"), "Shared api key")
	flags.BoolVar(&verifyPeer, "verify-peer", false, "Verify the site's TLS certificate")
	flags.StringVar(&userIDField, "field", "", "Lookup field for <userid> (default idnumber)")

	loginURLCmd.Flags().StringVar(&userAgent, "user-agent", "", "User agent of the browser that will follow the URL")
	loginURLCmd.Flags().StringVar(&redirectTo, "redirect", "", "Where the user lands after sign-in")
	_ = loginURLCmd.MarkFlagRequired("user-agent")

	for _, cmd := range []*cobra.Command{getUserCmd, getAllUsersCmd} {
		cmd.Flags().StringSliceVar(&fields, "fields", nil, "Fields to return (default all)")
	}
	for _, cmd := range []*cobra.Command{createUserCmd, updateUserCmd} {
		cmd.Flags().StringArrayVar(&assignments, "set", nil, "Field assignment name=value (repeatable)")
	}

	clientCmd.AddCommand(loginURLCmd, getUserCmd, getAllUsersCmd, createUserCmd,
		updateUserCmd, deleteUserCmd, suspendUserCmd, unsuspendUserCmd)
}

// withClient builds a client from the flags before running fn
func withClient(fn func(cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := mustNotBeEmpty("site", siteURL); err != nil {
			return err
		}
		if err := mustNotBeEmpty("key", apiKey); err != nil {
			return err
		}

		c, err := client.New(client.Config{
			SiteURL:    siteURL,
			APIKey:     apiKey,
			VerifyPeer: verifyPeer,
			Logger:     clientLogger(cmd.ErrOrStderr()),
		})
		if err != nil {
			return err
		}
		return fn(cmd, c, args)
	}
}

func clientLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.WarnLevel)
	if logLevel != "" {
		if level, err := logrus.ParseLevel(logLevel); err == nil {
			logger.SetLevel(level)
		}
	}
	return logger
}

// parseAssignments turns name=value pairs into a field map
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q (want name=value)", pair)
		}
		out[name] = value
	}
	return out, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
