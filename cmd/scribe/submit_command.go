package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/backend"
	"scribe/internal/config"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var language string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit FILE...",
		Short: "Upload audio files for transcription",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lang := strings.TrimSpace(language); lang != "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				cfg.API.Language = lang
			}
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				out := cmd.OutOrStdout()
				stderr := cmd.ErrOrStderr()
				failed := 0
				for _, arg := range args {
					if err := submitFile(runCtx, svc, arg, out); err != nil {
						if backend.IsUnauthorized(err) {
							return err
						}
						failed++
						fmt.Fprintf(stderr, "Failed to submit %s: %s\n", arg, formatError(err))
					}
				}
				if failed == len(args) {
					return errors.New("no files submitted")
				}
				if watch {
					if err := runWatch(runCtx, cmd, svc, watchOptions{interval: svc.cfg.PollInterval(), exitWhenDone: true}); err != nil {
						return err
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files failed to submit", failed, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Spoken language hint (default from config, \"auto\" to detect)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch the submitted tasks until they finish")
	return cmd
}

func submitFile(ctx context.Context, svc *services, arg string, out io.Writer) error {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("inspect %q: %w", path, err)
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer file.Close()

	task, err := svc.tracker.Submit(ctx, file, filepath.Base(path))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Submitted %s as %s\n", task.Name, task.ID)
	return nil
}
