package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/position"
)

func newSeekCommand(ctx *commandContext) *cobra.Command {
	var track int
	var at time.Duration
	var by time.Duration

	cmd := &cobra.Command{
		Use:   "seek <id>",
		Short: "Resolve a playback position",
		Long: `seek starts at --track and --at, moves by --by (negative to rewind) and prints the
resulting position and chapter. Moves past either end of the book stop at the boundary.`,
		Example: `  audiobook seek urn:isbn:9780000000001 --track 2 --at 1m30s --by -5m`,
		Args:    cobra.ExactArgs(1),
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
				next, boundary := pos.Advance(by)

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Position:  %s\n", formatPosition(next))
				fmt.Fprintf(out, "Elapsed:   %s\n", formatDuration(next.Elapsed()))
				fmt.Fprintf(out, "Remaining: %s\n", formatDuration(next.Remaining()))
				if ch, ok := next.ChapterIn(b.Chapters()); ok {
					fmt.Fprintf(out, "Chapter:   %s\n", ch.Title)
				}
				if boundary {
					fmt.Fprintln(out, "Stopped at the edge of the book")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&track, "track", 1, "Starting track number (1-based)")
	cmd.Flags().DurationVar(&at, "at", 0, "Starting offset within the track")
	cmd.Flags().DurationVar(&by, "by", 0, "Distance to move")
	return cmd
}
