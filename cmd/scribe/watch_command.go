package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"scribe/internal/backend"
	"scribe/internal/logging"
	"scribe/internal/poller"
)

type watchOptions struct {
	interval     time.Duration
	exitWhenDone bool
	refresh      bool
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var exitWhenDone bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the task history and keep it current",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval < 0 {
				return errors.New("--interval must be positive")
			}
			return ctx.withServices(cmd, func(runCtx context.Context, svc *services) error {
				opts := watchOptions{interval: interval, exitWhenDone: exitWhenDone, refresh: true}
				if opts.interval == 0 {
					opts.interval = svc.cfg.PollInterval()
				}
				return runWatch(runCtx, cmd, svc, opts)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval (default from config, 5s)")
	cmd.Flags().BoolVar(&exitWhenDone, "exit-when-done", false, "Exit once no task is pending or processing")
	return cmd
}

// runWatch renders the task table and polls active tasks until the context
// ends or the session is rejected. With exitWhenDone it also stops once no
// task is active.
func runWatch(ctx context.Context, cmd *cobra.Command, svc *services, opts watchOptions) error {
	lock := flock.New(svc.cfg.WatchLockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire watch lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another scribe watch is already running (lock %s)", svc.cfg.WatchLockPath())
	}
	defer func() {
		_ = lock.Unlock()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := svc.tracker
	if opts.refresh {
		if _, err := tracker.List(ctx); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	var last string
	render := func() {
		list := tracker.Snapshot()
		body := "No transcriptions yet."
		if len(list) > 0 {
			body = renderTaskTable(list, colorize)
		}
		if body == last {
			return
		}
		last = body
		fmt.Fprintf(out, "%s  %d active\n%s\n", time.Now().Format("15:04:05"), tracker.ActiveCount(), body)
	}
	render()
	if opts.exitWhenDone && tracker.ActiveCount() == 0 {
		return nil
	}

	sched := poller.New(opts.interval, func(tickCtx context.Context) error {
		if _, err := tracker.PollActive(tickCtx); err != nil {
			if backend.IsUnauthorized(err) {
				return err
			}
			svc.logger.Warn("poll failed", logging.Error(err))
		}
		render()
		if opts.exitWhenDone && tracker.ActiveCount() == 0 {
			return poller.ErrStop
		}
		return nil
	}, poller.WithSize(tracker.Len), poller.WithLogger(svc.logger))
	tracker.OnChange(sched.Rearm)
	svc.logger.Debug("watching tasks",
		logging.Duration("interval", sched.Interval()),
		logging.Int("active", tracker.ActiveCount()),
	)

	handle := sched.Start(ctx)
	<-handle.Done()
	return handle.Err()
}
