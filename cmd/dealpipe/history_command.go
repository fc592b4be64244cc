package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dealpipe/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "history DEAL_ID",
		Short: "Show the activity feed for a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dealID, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			activities, err := svc.Activities(cmd.Context(), dealID, limit, offset)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, map[string][]api.Activity{"activities": activities})
			}
			if len(activities) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded")
				return nil
			}
			rows := make([][]string, 0, len(activities))
			for _, a := range activities {
				actor := a.Actor
				if a.IsAIAction {
					actor += " (auto)"
				}
				rows = append(rows, []string{
					strconv.FormatInt(a.ID, 10),
					a.CreatedAt,
					actor,
					a.Action,
					a.Description,
				})
			}
			table := renderTable(
				[]string{"ID", "When", "Actor", "Action", "Description"},
				rows,
				0,
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum activities to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Activities to skip")
	return cmd
}
