package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// commandAdmin wraps the admin HTTP API (agents and clients registration,
// §4.7) in a small CLI client, so operators don't need to reach for curl
// against --admin-addr by hand.
func commandAdmin() *cobra.Command {
	var adminAddr string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage agents and clients against a running server's admin API",
	}
	cmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", "http://127.0.0.1:5557", "admin API base URL")

	cmd.AddCommand(commandAdminCreateAgent(&adminAddr))
	cmd.AddCommand(commandAdminCreateClient(&adminAddr))
	cmd.AddCommand(commandAdminListAgents(&adminAddr))
	cmd.AddCommand(commandAdminListClients(&adminAddr))
	cmd.AddCommand(commandAdminDeleteAgent(&adminAddr))
	cmd.AddCommand(commandAdminDeleteClient(&adminAddr))

	return cmd
}

func adminRequest(method, addr, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, addr+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("admin API returned %s: %s", resp.Status, out)
	}
	return out, nil
}

// commandAdminCreateAgent registers a new agent. agent_id is optional (the
// server assigns one when omitted); agent_secret is always generated by the
// server and printed exactly once in the response — there is no flag to
// supply one.
func commandAdminCreateAgent(adminAddr *string) *cobra.Command {
	var agentID, userEmail, userName string

	cmd := &cobra.Command{
		Use:   "create-agent",
		Short: "Register a new agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := adminRequest(http.MethodPost, *adminAddr, "/agents", map[string]string{
				"agent_id":   agentID,
				"user_email": userEmail,
				"user_name":  userName,
			})
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent-id", "", "agent identifier (generated if omitted)")
	cmd.Flags().StringVar(&userEmail, "user-email", "", "controlling user's email")
	cmd.Flags().StringVar(&userName, "user-name", "", "controlling user's display name")
	cmd.MarkFlagRequired("user-email")
	return cmd
}

// commandAdminCreateClient registers a new client. client_id is optional
// (the server assigns one when omitted); client_secret is always generated
// by the server and printed exactly once in the response.
func commandAdminCreateClient(adminAddr *string) *cobra.Command {
	var clientID, name string
	var redirectURIs []string

	cmd := &cobra.Command{
		Use:   "create-client",
		Short: "Register a new client",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := adminRequest(http.MethodPost, *adminAddr, "/clients", map[string]interface{}{
				"client_id":             clientID,
				"name":                  name,
				"allowed_redirect_uris": redirectURIs,
			})
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "client identifier (generated if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "client display name")
	cmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "allowed redirect URI (repeatable)")
	return cmd
}

func commandAdminListAgents(adminAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-agents",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := adminRequest(http.MethodGet, *adminAddr, "/agents", nil)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func commandAdminListClients(adminAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-clients",
		Short: "List registered clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := adminRequest(http.MethodGet, *adminAddr, "/clients", nil)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func commandAdminDeleteAgent(adminAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-agent [agent-id]",
		Short: "Delete a registered agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := adminRequest(http.MethodDelete, *adminAddr, "/agents/"+args[0], nil)
			return err
		},
	}
}

func commandAdminDeleteClient(adminAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-client [client-id]",
		Short: "Delete a registered client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := adminRequest(http.MethodDelete, *adminAddr, "/clients/"+args[0], nil)
			return err
		},
	}
}
