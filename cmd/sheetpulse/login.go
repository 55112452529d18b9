package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store Jira credentials in the config file",
		Long: `Login prompts for the Jira base URL, username and API token and
writes them into the config file (created if missing). The token is
read without echo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath()
			if path == "" {
				path = "sheetpulse.yaml"
			}

			doc := map[string]any{}
			if data, err := os.ReadFile(path); err == nil {
				if err := yaml.Unmarshal(data, &doc); err != nil {
					return fmt.Errorf("failed to parse %s: %w", path, err)
				}
			}

			in := bufio.NewReader(cmd.InOrStdin())
			baseURL, err := prompt(cmd, in, "Jira base URL")
			if err != nil {
				return err
			}
			username, err := prompt(cmd, in, "Jira username")
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), "Jira API token: ")
			token, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}

			jira, _ := doc["jira"].(map[string]any)
			if jira == nil {
				jira = map[string]any{}
			}
			if baseURL != "" {
				jira["base_url"] = baseURL
			}
			if username != "" {
				jira["username"] = username
			}
			jira["api_token"] = string(token)
			doc["jira"] = jira

			data, err := yaml.Marshal(doc)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials saved to %s\n", path)
			return nil
		},
	}
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}
