package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/baton/internal/models"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusStyles = map[models.WorkflowStatus]lipgloss.Style{
		models.WorkflowStatusPending:         lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		models.WorkflowStatusInProgress:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		models.WorkflowStatusWaitingApproval: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		models.WorkflowStatusBlocked:         lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.WorkflowStatusCompleted:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.WorkflowStatusFailed:          lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}

	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.PriorityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		models.PriorityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PriorityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

func renderStatus(s models.WorkflowStatus) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

func renderPriority(p models.Priority) string {
	if style, ok := priorityStyles[p]; ok {
		return style.Render(string(p))
	}
	return string(p)
}
