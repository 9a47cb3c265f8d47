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

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent directory",
	RunE:  runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/agents")
	if err != nil {
		return err
	}

	var body struct {
		Agents []models.Agent `json:"agents"`
	}
	if err := json.Unmarshal(resp, &body); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY\tROLE\tCAPABILITIES")
	for _, a := range body.Agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, a.DisplayName, a.Role, strings.Join(a.Capabilities, ", "))
	}
	w.Flush()
	return nil
}
