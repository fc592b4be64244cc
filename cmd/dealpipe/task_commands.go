package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dealpipe/internal/api"
)

func renderTaskTable(tasks []api.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		due := t.DueDate
		if len(due) >= 10 {
			due = due[:10]
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			stageLabel(t.Stage),
			t.Priority,
			t.Status,
			t.Assignee,
			due,
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Stage", "Priority", "Status", "Assignee", "Due"},
		rows,
		0,
	)
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Work with deal tasks",
	}

	var dealArg string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks for a deal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dealID, err := parseDealID(dealArg)
			if err != nil {
				return err
			}
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			tasks, err := svc.Tasks(cmd.Context(), dealID)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, map[string][]api.Task{"tasks": tasks})
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTaskTable(tasks))
			return nil
		},
	}
	listCmd.Flags().StringVar(&dealArg, "deal", "", "Deal id")
	_ = listCmd.MarkFlagRequired("deal")

	tasksCmd.AddCommand(listCmd)
	return tasksCmd
}
