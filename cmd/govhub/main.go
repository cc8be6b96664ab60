// Package main is the entry point for the govhub binary.
// It provides a CLI for operating the governance hub through its admin API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	defaultServer = "http://localhost:19091"
	defaultOutput = "yaml"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "govhub",
		Short: "Operate the cross-domain governance hub",
		Long: `Command line client for the governance hub admin API.

Registers domains, requests and reviews integrations, and inspects the
ecosystem topology and compliance posture.

Example:
  govhub register-domain orders --capabilities api,events
  govhub request-integration orders billing --type api
  govhub approve INT-000001 --reviewer alice`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("server", "s", defaultServer, "Admin API base URL")
	rootCmd.PersistentFlags().StringP("output", "o", defaultOutput, "Output format (yaml, json)")

	rootCmd.AddCommand(
		newRegisterDomainCmd(),
		newRequestIntegrationCmd(),
		newApproveCmd(),
		newRejectCmd(),
		newIntegrationsCmd(),
		newTopologyCmd(),
		newComplianceCmd(),
		newReviewsCmd(),
	)
	return rootCmd
}

func newRegisterDomainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-domain <code>",
		Short: "Register a domain in the ecosystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capabilities, _ := cmd.Flags().GetStringSlice("capabilities")
			requirements, _ := cmd.Flags().GetStringSlice("requirements")
			return clientFrom(cmd).post("/v1/domains", map[string]any{
				"code":                    args[0],
				"capabilities":            capabilities,
				"compliance_requirements": requirements,
			})
		},
	}
	cmd.Flags().StringSlice("capabilities", nil, "Capabilities the domain exposes")
	cmd.Flags().StringSlice("requirements", nil, "Compliance requirement ids to seed")
	return cmd
}

func newRequestIntegrationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request-integration <source> <target>",
		Short: "Request an integration between two domains",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, _ := cmd.Flags().GetString("type")
			priority, _ := cmd.Flags().GetString("priority")
			description, _ := cmd.Flags().GetString("description")
			return clientFrom(cmd).post("/v1/integrations", map[string]any{
				"source":      args[0],
				"target":      args[1],
				"type":        typ,
				"priority":    priority,
				"description": description,
			})
		},
	}
	cmd.Flags().StringP("type", "t", "api", "Integration type (api, event, data)")
	cmd.Flags().StringP("priority", "p", "normal", "Priority (low, normal, high, critical)")
	cmd.Flags().StringP("description", "d", "", "Free-form description")
	return cmd
}

func newApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <integration-id>",
		Short: "Approve an integration and activate its edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			notes, _ := cmd.Flags().GetString("notes")
			return clientFrom(cmd).post("/v1/integrations/"+args[0]+"/approve", map[string]any{
				"reviewer": reviewer,
				"notes":    notes,
			})
		},
	}
	cmd.Flags().StringP("reviewer", "r", "", "Reviewer identity")
	cmd.Flags().String("notes", "", "Approval notes")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func newRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <integration-id>",
		Short: "Reject an integration request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			reason, _ := cmd.Flags().GetString("reason")
			return clientFrom(cmd).post("/v1/integrations/"+args[0]+"/reject", map[string]any{
				"reviewer": reviewer,
				"reason":   reason,
			})
		},
	}
	cmd.Flags().StringP("reviewer", "r", "", "Reviewer identity")
	cmd.Flags().String("reason", "", "Rejection reason")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func newIntegrationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integrations [integration-id]",
		Short: "List integrations, or show one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/integrations"
			if len(args) == 1 {
				path += "/" + args[0]
			}
			return clientFrom(cmd).get(path)
		},
	}
}

func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Show the domain graph with its approved edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return clientFrom(cmd).get("/v1/topology")
		},
	}
}

func newComplianceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compliance [domain]",
		Short: "Show ecosystem or per-domain compliance posture",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/compliance"
			if len(args) == 1 {
				path += "/" + args[0]
			}
			return clientFrom(cmd).get(path)
		},
	}
}

func newReviewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reviews",
		Short: "Show review pipeline metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return clientFrom(cmd).get("/v1/reviews/metrics")
		},
	}
}

// apiClient is a thin JSON client over the admin API.
type apiClient struct {
	baseURL string
	output  string
	httpc   *http.Client
	out     io.Writer
}

func clientFrom(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	output, _ := cmd.Flags().GetString("output")
	return &apiClient{
		baseURL: strings.TrimSuffix(server, "/"),
		output:  output,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		out:     cmd.OutOrStdout(),
	}
}

func (c *apiClient) get(path string) error {
	resp, err := c.httpc.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return c.render(resp)
}

func (c *apiClient) post(path string, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return c.render(resp)
}

func (c *apiClient) render(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if m, ok := payload.(map[string]any); ok {
			if msg, ok := m["error"].(string); ok {
				return fmt.Errorf("%s (%s)", msg, resp.Status)
			}
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if payload == nil {
		return nil
	}
	return writeOutput(c.out, c.output, payload)
}

func writeOutput(w io.Writer, format string, payload any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case "yaml", "":
		return yaml.NewEncoder(w).Encode(payload)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
