package main

import (
	"context"
	"fmt"

	"github.com/dkeye/AvatarCall/internal/app"
	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var callPlayback bool

var callCmd = &cobra.Command{
	Use:       "call voice|video",
	Short:     "Hold a call from the terminal until interrupted",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"voice", "video"},
	RunE:      runCall,
}

func init() {
	callCmd.Flags().BoolVar(&callPlayback, "playback", false, "also play the avatar stream over WHEP")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseCallKind(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st := newStack(cfg)

	events, cancel := st.feed.Subscribe(0)
	defer cancel()

	if callPlayback {
		if err := st.player.Start(ctx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("playback failed, continuing without")
		} else {
			defer func() { _ = st.player.Stop(context.Background()) }()
		}
	}

	if err := st.calls.Start(ctx, kind); err != nil {
		return fmt.Errorf("start %s call: %w", kind, err)
	}
	defer st.dispatcher.Wait()

	for {
		select {
		case <-ctx.Done():
			st.calls.Close(context.Background())
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(ev)
			if ev.Kind == app.EventMode && ev.Mode == domain.ModeIdle.String() {
				return nil
			}
		}
	}
}

func printEvent(ev app.Event) {
	l := log.Info().Str("module", "feed").Uint64("seq", ev.Seq)
	switch ev.Kind {
	case app.EventUser:
		l.Str("you", ev.Text).Msg("message")
	case app.EventSystem:
		l.Msg(ev.Text)
	case app.EventStatus:
		l.Str("status", string(ev.Status)).Msg("playback")
	case app.EventMode:
		l.Str("mode", ev.Mode).Msg("input mode")
	}
}
