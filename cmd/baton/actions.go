package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/baton/internal/models"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Manage escalated action items",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List action items, most urgent first",
	RunE:  runActionsList,
}

var actionsCompleteCmd = &cobra.Command{
	Use:   "complete [action-id]",
	Short: "Complete an action item",
	Long:  `Marks an action item completed. Completing an approval item approves and continues its workflow unless --no-trigger is set.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runActionsComplete,
}

var (
	actionProject string
	actionStatus  string
	actionType    string
	actionNotes   string
	noTrigger     bool
)

func init() {
	actionsCmd.AddCommand(actionsListCmd, actionsCompleteCmd)

	actionsListCmd.Flags().StringVar(&actionProject, "project", "", "Filter by project id")
	actionsListCmd.Flags().StringVar(&actionStatus, "status", "", "Filter by status (pending, in_progress, completed, cancelled)")
	actionsListCmd.Flags().StringVar(&actionType, "type", "", "Filter by type (approval, task, decision, review)")

	actionsCompleteCmd.Flags().StringVar(&actionNotes, "notes", "", "Notes to attach")
	actionsCompleteCmd.Flags().BoolVar(&noTrigger, "no-trigger", false, "Do not continue the linked workflow")
}

func runActionsList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if actionProject != "" {
		q.Set("project_id", actionProject)
	}
	if actionStatus != "" {
		q.Set("status", actionStatus)
	}
	if actionType != "" {
		q.Set("type", actionType)
	}
	path := "/actions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var body struct {
		Items []models.UserAction `json:"items"`
	}
	if err := json.Unmarshal(resp, &body); err != nil {
		return err
	}

	if len(body.Items) == 0 {
		fmt.Println("No action items found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tTYPE\tSTATUS\tTITLE\tWORKFLOW")
	for _, a := range body.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			renderPriority(a.Priority),
			a.Type,
			a.Status,
			truncate(a.Title, 50),
			truncateID(a.WorkflowID))
	}
	w.Flush()
	return nil
}

func runActionsComplete(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"notes":            actionNotes,
		"trigger_workflow": !noTrigger,
	}

	resp, err := workflowPost("/actions/"+args[0]+"/complete", body)
	if err != nil {
		return err
	}

	var out struct {
		Item     models.UserAction `json:"item"`
		Workflow json.RawMessage   `json:"workflow"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return err
	}

	fmt.Printf("Completed %s: %s\n", out.Item.ID, out.Item.Title)
	if len(out.Workflow) > 0 && string(out.Workflow) != "null" {
		fmt.Println()
		return printResult(out.Workflow)
	}
	return nil
}
