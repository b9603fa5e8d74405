package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"carevoice-backend/internal/config"
	"carevoice-backend/internal/session"
	"carevoice-backend/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session management commands",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

// storeFromConfig loads config and opens the session store.
func storeFromConfig(configPath string) (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.New(cfg.Store.BaseDir)
}

func newSessionsListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Long:  "Lists sessions in the store with an optional status filter. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, configPath, status)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "carevoice.yaml", "path to Carevoice config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func runSessionsList(cmd *cobra.Command, configPath, status string) error {
	st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}

	var sessions map[string]session.Session
	if status != "" {
		sessions, err = st.GetByStatus(status)
	} else {
		sessions, err = st.All()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPATIENT\tUPDATED")
	for _, id := range ids {
		sess := sessions[id]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			id, sess.Status, patientName(sess), sess.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
	return nil
}

// patientName pulls the patient name out of the extracted data, if present.
func patientName(sess session.Session) string {
	if name, ok := sess.Data["patient_name"].(string); ok && name != "" {
		return name
	}
	return "-"
}

func newSessionsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show session details",
		Long:  "Displays the full stored session record as indented JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "carevoice.yaml", "path to Carevoice config file")
	return cmd
}

func runSessionsShow(cmd *cobra.Command, configPath, id string) error {
	st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}

	sess, err := st.Get(id)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newSessionsDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Long:  "Removes a session from the store. Deleting an unknown id is not an error.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "carevoice.yaml", "path to Carevoice config file")
	return cmd
}

func runSessionsDelete(cmd *cobra.Command, configPath, id string) error {
	st, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := st.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
	return nil
}
