package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/player"
	"github.com/yuanying/audiobook/internal/position"
)

func (s *session) player() *player.Client {
	return player.NewClient(s.cfg.Player.MopidyURL, player.Options{
		HTTPClient: s.client,
		Logger:     s.logger,
	})
}

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var track int
	var at time.Duration

	cmd := &cobra.Command{
		Use:   "play <id>",
		Short: "Play an entry on the configured Mopidy server",
		Long: `play downloads the entry's tracks into the cache directory, replaces the Mopidy
tracklist with them as file:// URIs and starts playback at --track and --at. Mopidy must
be able to read the cache directory. Protected entries must have passed DRM verification
(see "audiobook check").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, _, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				pos, err := position.New(b.Spine(), track-1, at)
				if err != nil {
					return err
				}
				if err := s.player().Load(c, b, pos); err != nil {
					if errors.Is(err, player.ErrNotReady) {
						return fmt.Errorf("%w (DRM %s; run `audiobook check %s`)", err, b.DRMStatus(), b.ID())
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Playing %s from %s\n", b.Manifest().Metadata.Title, formatPosition(pos))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&track, "track", 1, "Track number to start at (1-based)")
	cmd.Flags().DurationVar(&at, "at", 0, "Offset within the track")

	cmd.AddCommand(newPlayStatusCommand(ctx))
	cmd.AddCommand(newPlayControlCommand(ctx, "pause", "Pause playback", (*player.Client).Pause))
	cmd.AddCommand(newPlayControlCommand(ctx, "resume", "Resume paused playback", (*player.Client).Resume))
	cmd.AddCommand(newPlayControlCommand(ctx, "stop", "Stop playback", (*player.Client).Stop))
	return cmd
}

func newPlayStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show where Mopidy is in an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, _, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				client := s.player()
				state, err := client.State(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "State:     %s\n", state)

				pos, err := client.Position(c, b)
				if errors.Is(err, player.ErrNotPlaying) {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Position:  %s\n", formatPosition(pos))
				fmt.Fprintf(out, "Remaining: %s\n", formatDuration(pos.Remaining()))
				chapters := b.Chapters()
				if i := pos.ChapterIndex(chapters); i >= 0 {
					fmt.Fprintf(out, "Chapter:   %d. %s\n", i+1, chapters[i].Title)
				}
				return nil
			})
		},
	}
}

func newPlayControlCommand(ctx *commandContext, use, short string, action func(*player.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				return action(s.player(), c)
			})
		},
	}
}
