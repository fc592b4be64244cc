package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dealpipe/internal/api"
	"dealpipe/internal/deal"
)

func parseDealID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid deal id %q", arg)
	}
	return id, nil
}

func defaultActor() string {
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return user
	}
	return "cli"
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a deal to the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			created, err := svc.Create(cmd.Context(), api.CreateDealRequest{Title: args[0], Owner: owner})
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deal %d created at %s\n", created.ID, stageLabel(created.Stage))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", defaultActor(), "Deal owner")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var stageFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			var stages []deal.Stage
			for _, value := range stageFilters {
				stage, ok := deal.ParseStage(value)
				if !ok {
					return fmt.Errorf("unknown stage %q", value)
				}
				stages = append(stages, stage)
			}
			deals, err := svc.List(cmd.Context(), stages...)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, api.DealListResponse{Deals: deals})
			}
			if len(deals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No deals found")
				return nil
			}
			rows := make([][]string, 0, len(deals))
			for _, d := range deals {
				rows = append(rows, []string{
					strconv.FormatInt(d.ID, 10),
					d.Title,
					d.Owner,
					stageLabel(d.Stage),
					d.UpdatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Owner", "Stage", "Updated"},
				rows,
				0,
			))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&stageFilters, "stage", nil, "Filter by stage (repeatable)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "show DEAL_ID",
		Short: "Show a deal with history and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			detail, err := svc.Describe(cmd.Context(), id, limit, offset)
			if err != nil {
				return err
			}
			if detail == nil {
				return fmt.Errorf("deal %d not found", id)
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, detail)
			}
			renderDealDetail(cmd, detail)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Max history records to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "History records to skip")
	return cmd
}

func renderDealDetail(cmd *cobra.Command, detail *api.DealDetailResponse) {
	out := cmd.OutOrStdout()
	d := detail.Deal
	fmt.Fprintf(out, "Deal %d: %s\n", d.ID, d.Title)
	fmt.Fprintf(out, "  Owner: %s\n", d.Owner)
	fmt.Fprintf(out, "  Stage: %s\n", stageLabel(d.Stage))
	next := make([]string, 0, len(detail.NextStages))
	for _, stage := range detail.NextStages {
		next = append(next, stageLabel(stage))
	}
	if len(next) == 0 {
		fmt.Fprintln(out, "  Next:  (terminal stage)")
	} else {
		fmt.Fprintf(out, "  Next:  %s\n", strings.Join(next, ", "))
	}

	if len(detail.Transitions) > 0 {
		fmt.Fprintf(out, "\nHistory (%d of %d):\n", len(detail.Transitions), detail.TotalTransitions)
		rows := make([][]string, 0, len(detail.Transitions))
		for _, tr := range detail.Transitions {
			rows = append(rows, []string{
				tr.CreatedAt,
				stageLabel(tr.FromStage),
				stageLabel(tr.ToStage),
				tr.Actor,
				tr.Reason,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"When", "From", "To", "Actor", "Reason"},
			rows,
		))
	}

	if len(detail.Tasks) > 0 {
		fmt.Fprintln(out, "\nTasks:")
		fmt.Fprintln(out, renderTaskTable(detail.Tasks))
	}
}

func newTransitionCommand(ctx *commandContext) *cobra.Command {
	var actor, reason string

	cmd := &cobra.Command{
		Use:   "transition DEAL_ID TARGET",
		Short: "Move a deal to a new stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			resp, err := svc.Transition(cmd.Context(), id, api.TransitionRequest{
				Target: args[1],
				Actor:  actor,
				Reason: reason,
			})
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deal %d moved from %s to %s\n",
				resp.Deal.ID,
				stageLabel(resp.Transition.FromStage),
				stageLabel(resp.Transition.ToStage),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "Who is making the change")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the change")
	return cmd
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "approve DEAL_ID STAGE",
		Short: "Record an approval decision for a gated stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			if err := svc.Approve(cmd.Context(), id, api.ApprovalRequest{Stage: args[1], Status: status}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s decision for deal %d gate %s\n",
				status, id, stageLabel(args[1]))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(deal.ApprovalApproved), "Decision status (pending, approved, rejected)")
	return cmd
}
