package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/backend"
	"scribe/internal/tasks"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Inspect and manage transcription tasks",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksStatusCommand(ctx))
	tasksCmd.AddCommand(newTasksDeleteCommand(ctx))
	tasksCmd.AddCommand(newTasksForgetNamesCommand(ctx))
	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List transcription tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				list, err := svc.tracker.List(runCtx)
				if err != nil {
					return err
				}
				if lastErr := svc.tracker.LastError(); lastErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Could not refresh tasks from %s: %s\n", svc.client.BaseURL(), formatError(lastErr))
				}
				return writeTasks(cmd, output, list)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json, or yaml")
	return cmd
}

func newTasksStatusCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status ID",
		Short: "Show one task, including its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				task, err := svc.tracker.Refresh(runCtx, args[0])
				if err != nil {
					return err
				}
				switch strings.ToLower(strings.TrimSpace(output)) {
				case "", outputTable:
				case outputJSON:
					return writeJSON(cmd, toTaskViews([]tasks.Task{task})[0])
				case outputYAML:
					return writeYAML(cmd, toTaskViews([]tasks.Task{task})[0])
				default:
					return fmt.Errorf("unsupported output format %q (use table, json, or yaml)", output)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Name:   %s\n", task.Name)
				fmt.Fprintf(out, "ID:     %s\n", task.ID)
				fmt.Fprintf(out, "Status: %s\n", statusLabel(task.Status, shouldColorize(out)))
				if task.Result != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, task.Result)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json, or yaml")
	return cmd
}

func newTasksDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID...",
		Aliases: []string{"rm"},
		Short:   "Delete tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, id := range args {
					if err := svc.tracker.Delete(runCtx, id); err != nil {
						if backend.IsUnauthorized(err) {
							return err
						}
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "Failed to delete %s: %s\n", id, formatError(err))
						continue
					}
					fmt.Fprintf(out, "Deleted %s\n", id)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d deletions failed", failed, len(args))
				}
				return nil
			})
		},
	}
}

func newTasksForgetNamesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget-names",
		Short: "Clear the remembered file names for all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				svc.names.Clear(runCtx)
				fmt.Fprintln(cmd.OutOrStdout(), "Forgot remembered task names")
				return nil
			})
		},
	}
}
