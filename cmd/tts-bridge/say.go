package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/config"
	"github.com/book-expert/tts-bridge/internal/core"
	"github.com/book-expert/tts-bridge/internal/policy"
	"github.com/book-expert/tts-bridge/internal/tts"
	"github.com/spf13/cobra"
)

// ErrNoAudio indicates that the say command produced a notice instead of audio.
var ErrNoAudio = errors.New("no audio was produced")

type sayFlags struct {
	scopeID  string
	senderID string
}

func newSayCommand(flags *rootFlags) *cobra.Command {
	local := &sayFlags{scopeID: "cli", senderID: "operator"}

	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Synthesize text once and print the audio file path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer closeLogger(log)

			return runSay(cmd.Context(), cfg, log, local, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&local.scopeID, "scope", local.scopeID, "Conversation scope used in the file name")
	cmd.Flags().StringVar(&local.senderID, "sender", local.senderID, "Sender id used in the file name")

	return cmd
}

// runSay goes through the same command path as a host admin issuing the
// speech command.
func runSay(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	flags *sayFlags,
	argument string,
	out io.Writer,
) error {
	store, err := tts.NewDirStore(cfg.Paths.ScratchDir, log)
	if err != nil {
		return fmt.Errorf("failed to prepare scratch directory: %w", err)
	}

	synth := tts.NewSynthesizer(cfg, tts.NewHTTPClient(cfg.RequestTimeout(), log), store, log)
	handler := policy.NewHandler(cfg, synth, log)

	chain := handler.OnSay(ctx, &core.CommandEvent{
		Header:   events.EventHeader{},
		ScopeID:  flags.scopeID,
		SenderID: flags.senderID,
		Argument: strings.TrimSpace(argument),
		Admin:    true,
	})

	for _, segment := range chain {
		if segment.Kind == core.SegmentAudio {
			_, err = fmt.Fprintln(out, segment.Path)
			if err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			return nil
		}

		if segment.Kind == core.SegmentPlain {
			return fmt.Errorf("%w: %s", ErrNoAudio, segment.Text)
		}
	}

	return ErrNoAudio
}
