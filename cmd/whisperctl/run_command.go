package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"whisper-desktop/internal/bootstrap"
	"whisper-desktop/internal/domain"
	"whisper-desktop/internal/transcribe"
)

const progressStep = 10

func newRunCommand(ctx *commandContext) *cobra.Command {
	var saveTo string

	cmd := &cobra.Command{
		Use:   "run <media-file>",
		Short: "Transcribe one media file to SRT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			states := make(chan domain.JobState, 64)
			finished := make(chan struct{})
			listener := func(name string, payload any) {
				state, ok := payload.(domain.JobState)
				if name != "job:state" || !ok {
					return
				}
				select {
				case states <- state:
				case <-finished:
				}
			}

			return ctx.withApp(func(app *bootstrap.App) error {
				// Unblocks the listener before shutdown waits on the coordinator.
				defer close(finished)
				return runJob(cmd, app, args[0], saveTo, states)
			}, bootstrap.WithEventListener(listener))
		},
	}

	cmd.Flags().StringVarP(&saveTo, "save-to", "o", "", "Copy the finished subtitle into this directory")
	return cmd
}

// runJob submits path and follows the job until it ends. The first
// interrupt stops recognition; a second one, or one during conversion,
// aborts.
func runJob(cmd *cobra.Command, app *bootstrap.App, path, saveTo string, states <-chan domain.JobState) error {
	if _, err := app.SelectFilePath(path); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := app.StartTranscription(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	interrupts := sigCtx.Done()
	interrupted := false
	printed := 0
	lastStep := -1

	for {
		select {
		case <-interrupts:
			interrupts = nil
			interrupted = true
			if err := app.StopTranscription(); err != nil {
				return context.Canceled
			}
		case state := <-states:
			if len(state.OutputLines) < printed {
				printed = 0
			}
			for _, line := range state.OutputLines[printed:] {
				fmt.Fprintln(out, line)
			}
			printed = len(state.OutputLines)

			if step := int(state.ProgressPercent) / progressStep; state.Phase == domain.JobPhaseRecognizing && step > lastStep {
				lastStep = step
				fmt.Fprintf(errOut, "progress %3d%%  elapsed %s\n", step*progressStep, formatElapsed(state.ElapsedMs))
			}

			if state.Phase.Terminal() {
				return reportOutcome(cmd, app, state, saveTo, interrupted)
			}
		}
	}
}

func reportOutcome(cmd *cobra.Command, app *bootstrap.App, state domain.JobState, saveTo string, interrupted bool) error {
	errOut := cmd.ErrOrStderr()

	switch state.Phase {
	case domain.JobPhaseFailed:
		return errors.New(state.ResultMessage)
	case domain.JobPhaseStopped:
		fmt.Fprintf(errOut, "%s after %s\n", state.ResultMessage, formatElapsed(state.ElapsedMs))
		if interrupted {
			return context.Canceled
		}
		return nil
	}

	fmt.Fprintf(errOut, "%s in %s\n", state.ResultMessage, formatElapsed(state.ElapsedMs))
	fmt.Fprintf(errOut, "subtitle: %s\n", transcribe.SubtitlePath(state.AudioPath))
	if saveTo == "" {
		return nil
	}
	saved, err := app.SaveSubtitleTo(saveTo)
	if err != nil {
		return err
	}
	fmt.Fprintf(errOut, "saved: %s\n", saved)
	return nil
}

func formatElapsed(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}
