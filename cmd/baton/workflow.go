package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/baton/internal/models"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Manage workflows",
}

var workflowStartCmd = &cobra.Command{
	Use:   "start [prompt]",
	Short: "Start a workflow",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWorkflowStart,
}

var workflowStatusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show workflow status",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowStatus,
}

var workflowHistoryCmd = &cobra.Command{
	Use:   "history [workflow-id]",
	Short: "Show workflow steps and approvals",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowHistory,
}

var workflowApproveCmd = &cobra.Command{
	Use:   "approve [workflow-id]",
	Short: "Approve the pending request and continue",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowApprove,
}

var workflowRejectCmd = &cobra.Command{
	Use:   "reject [workflow-id]",
	Short: "Reject the pending request and block the workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowReject,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE:  runWorkflowList,
}

var (
	startAgent   string
	startProject string
	listActive   bool
	showOutput   bool
)

func init() {
	workflowCmd.AddCommand(workflowStartCmd, workflowStatusCmd, workflowHistoryCmd,
		workflowApproveCmd, workflowRejectCmd, workflowListCmd)

	workflowStartCmd.Flags().StringVar(&startAgent, "agent", "", "Starting agent (default from daemon config)")
	workflowStartCmd.Flags().StringVar(&startProject, "project", "", "Project id for escalated action items")

	workflowListCmd.Flags().BoolVar(&listActive, "active", false, "Only in-progress and waiting workflows")

	workflowHistoryCmd.Flags().BoolVar(&showOutput, "output", false, "Print each agent's full response")
}

func runWorkflowStart(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"prompt":         strings.Join(args, " "),
		"starting_agent": startAgent,
		"project_id":     startProject,
	}

	resp, err := workflowPost("/workflows", body)
	if err != nil {
		return err
	}
	return printResult(resp)
}

func runWorkflowStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/workflows/" + args[0])
	if err != nil {
		return err
	}
	return printResult(resp)
}

func runWorkflowApprove(cmd *cobra.Command, args []string) error {
	resp, err := workflowPost("/workflows/"+args[0]+"/approve", map[string]bool{"approved": true})
	if err != nil {
		return err
	}
	return printResult(resp)
}

func runWorkflowReject(cmd *cobra.Command, args []string) error {
	resp, err := workflowPost("/workflows/"+args[0]+"/reject", struct{}{})
	if err != nil {
		return err
	}
	return printResult(resp)
}

func runWorkflowHistory(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/workflows/" + args[0] + "/history")
	if err != nil {
		return err
	}

	var wf models.Workflow
	if err := json.Unmarshal(resp, &wf); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", labelStyle.Render("Workflow:"), wf.ID)
	fmt.Printf("%s   %s\n", labelStyle.Render("Status:"), renderStatus(wf.Status))
	if wf.CurrentAgent != "" {
		fmt.Printf("%s    %s\n", labelStyle.Render("Agent:"), wf.CurrentAgent)
	}
	fmt.Printf("%s  %s\n", labelStyle.Render("Created:"), wf.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Println()
	for i, step := range wf.History {
		fmt.Printf("%s %s %s\n",
			labelStyle.Render(fmt.Sprintf("#%d", i+1)),
			step.Agent,
			dimStyle.Render(step.Timestamp.Format("15:04:05")))
		fmt.Printf("   %s %s\n", dimStyle.Render("in: "), truncate(oneLine(step.Input), 100))
		if showOutput {
			fmt.Println(step.Output.Raw)
		} else {
			fmt.Printf("   %s %s\n", dimStyle.Render("out:"), truncate(oneLine(step.Output.Raw), 100))
		}
	}

	if len(wf.Approvals) > 0 {
		fmt.Println()
		fmt.Println(labelStyle.Render("Approvals:"))
		for _, a := range wf.Approvals {
			state := "pending"
			if a.Resolution != nil {
				state = "rejected"
				if a.Resolution.Approved {
					state = "approved"
				}
				if a.Resolution.AutoApproved {
					state += " (auto)"
				}
			}
			fmt.Printf("  %s %s: %s\n", truncateID(a.ID), a.RequestedBy, state)
		}
	}
	return nil
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	path := "/workflows"
	if listActive {
		path += "?active=true"
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var body struct {
		Workflows []models.Workflow `json:"workflows"`
	}
	if err := json.Unmarshal(resp, &body); err != nil {
		return err
	}

	if len(body.Workflows) == 0 {
		fmt.Println("No workflows found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAGENT\tSTEPS\tUPDATED")
	for _, wf := range body.Workflows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			wf.ID,
			renderStatus(wf.Status),
			wf.CurrentAgent,
			len(wf.History),
			wf.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

// printResult renders a coordinator outcome.
func printResult(resp []byte) error {
	var res models.Result
	if err := json.Unmarshal(resp, &res); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", labelStyle.Render("Workflow:"), res.WorkflowID)
	fmt.Printf("%s   %s\n", labelStyle.Render("Status:"), renderStatus(res.Status))
	if res.CurrentAgent != "" {
		fmt.Printf("%s    %s\n", labelStyle.Render("Agent:"), res.CurrentAgent)
	}
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	if res.Error != "" {
		fmt.Println(errorStyle.Render(res.Error))
	}
	if res.RequiresApproval && res.Approval != nil {
		fmt.Println()
		fmt.Println(labelStyle.Render("Approval required:"))
		fmt.Println(res.Approval.Description)
		fmt.Printf("\nRun %s or %s\n",
			dimStyle.Render("baton workflow approve "+res.WorkflowID),
			dimStyle.Render("baton workflow reject "+res.WorkflowID))
	}
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
