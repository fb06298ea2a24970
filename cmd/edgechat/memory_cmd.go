package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newMemoryCmd() *cobra.Command {
	var server, sessionID string
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or clear the memory of a session",
	}
	cmd.PersistentFlags().StringVar(&server, "server", defaultServerURL, "server base URL")
	cmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id")
	_ = cmd.MarkPersistentFlagRequired("session")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the stored state of a session",
			RunE: func(cmd *cobra.Command, _ []string) error {
				raw, err := newAPIClient(server).memory(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, raw, "", "  "); err != nil {
					return fmt.Errorf("format memory: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
				return err
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the turns and summary of a session",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := newAPIClient(server).clear(cmd.Context(), sessionID); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", sessionID)
				return err
			},
		},
	)
	return cmd
}
