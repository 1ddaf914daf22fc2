package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trigate/trigate/pkg/cli"
)

var (
	accountServer string
	accountFile   string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account management against a running server",
	Long: `Manage accounts on a running trigate server.

The server address defaults to the context's listen address on localhost.

Examples:
  trigate account create alice s3cret fenny
  trigate account login alice s3cret
  trigate account attempts <token>`,
}

var accountCreateCmd = &cobra.Command{
	Use:   "create [username] [secret] [profile]",
	Short: "Create an account",
	Long: `Create an account from arguments or from a YAML/JSON request file.

The request file carries {username, secret, profile_id}.`,
	Args: cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if accountFile != "" {
			var req struct {
				Username  string `json:"username" yaml:"username"`
				Secret    string `json:"secret" yaml:"secret"`
				ProfileID string `json:"profile_id" yaml:"profile_id"`
			}
			if err := cli.LoadRequest(accountFile, &req); err != nil {
				return err
			}
			body["username"] = req.Username
			body["secret"] = req.Secret
			if req.ProfileID != "" {
				body["profile_id"] = req.ProfileID
			}
		}
		if len(args) > 0 {
			body["username"] = args[0]
		}
		if len(args) > 1 {
			body["secret"] = args[1]
		}
		if len(args) > 2 {
			body["profile_id"] = args[2]
		}
		if body["username"] == "" || body["secret"] == "" {
			return fmt.Errorf("username and secret are required")
		}
		var resp map[string]any
		if err := postServer(cmd.Context(), "/api/accounts", body, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("Account %q created.\n", body["username"])
		return nil
	},
}

var accountLoginCmd = &cobra.Command{
	Use:   "login <username> <secret>",
	Short: "Log in and print a session token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"username": args[0], "secret": args[1]}
		var resp struct {
			Token     string `json:"token"`
			ExpiresAt int64  `json:"expires_at"`
		}
		if err := postServer(cmd.Context(), "/api/login", body, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Println(resp.Token)
		return nil
	},
}

var accountAttemptsCmd = &cobra.Command{
	Use:   "attempts <token>",
	Short: "List authentication attempts for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Attempts []map[string]any `json:"attempts"`
		}
		if err := getServer(cmd.Context(), "/api/attempts", args[0], &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp.Attempts)
		}
		if len(resp.Attempts) == 0 {
			fmt.Println("No attempts recorded.")
			return nil
		}
		return printJSON(resp.Attempts)
	},
}

func init() {
	accountCmd.PersistentFlags().StringVar(&accountServer, "server", "", "server base URL (default from context listen address)")
	accountCreateCmd.Flags().StringVarP(&accountFile, "file", "f", "", "request file (YAML or JSON)")

	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountLoginCmd)
	accountCmd.AddCommand(accountAttemptsCmd)

	rootCmd.AddCommand(accountCmd)
}

// serverURL resolves the base URL of the running server.
func serverURL() (string, error) {
	if accountServer != "" {
		return strings.TrimSuffix(accountServer, "/"), nil
	}
	ctx, err := resolveContext()
	if err != nil {
		return "", err
	}
	listen := ctx.Listen
	if listen == "" {
		listen = ":8080"
	}
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen, nil
}

func postServer(ctx context.Context, path string, body, out any) error {
	base, err := serverURL()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doServer(req, out)
}

func getServer(ctx context.Context, path, token string, out any) error {
	base, err := serverURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doServer(req, out)
}

func doServer(req *http.Request, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil && detail.Detail != "" {
			return fmt.Errorf("%s: %s", resp.Status, detail.Detail)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
