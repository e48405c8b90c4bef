package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/audiobook"
	"github.com/yuanying/audiobook/internal/position"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List library entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				entries, err := s.store.List(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Library is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.ID,
						e.Title,
						valueOrDash(e.Author),
						e.Kind.String(),
						e.DRMStatus.String(),
						strconv.Itoa(e.Tracks),
						formatDuration(e.Duration),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Author", "Kind", "DRM", "Tracks", "Duration"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an entry and its tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, entry, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				meta := b.Manifest().Metadata
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", b.ID())
				fmt.Fprintf(out, "Title:     %s\n", meta.Title)
				if meta.Subtitle != "" {
					fmt.Fprintf(out, "Subtitle:  %s\n", meta.Subtitle)
				}
				fmt.Fprintf(out, "Author:    %s\n", valueOrDash(meta.Author.Name))
				fmt.Fprintf(out, "Narrator:  %s\n", valueOrDash(meta.Narrator.Name))
				fmt.Fprintf(out, "Language:  %s\n", valueOrDash(meta.Language))
				fmt.Fprintf(out, "Kind:      %s\n", b.Kind())
				fmt.Fprintf(out, "DRM:       %s\n", b.DRMStatus())
				fmt.Fprintf(out, "Playable:  %s\n", yesNo(b.PlaybackReady()))
				fmt.Fprintf(out, "Duration:  %s\n", formatDuration(b.Spine().Duration()))
				fmt.Fprintf(out, "Added:     %s\n", entry.CreatedAt.Local().Format("2006-01-02 15:04"))
				fmt.Fprintln(out)

				rows := make([][]string, 0, b.Spine().Len())
				for _, t := range b.Spine().Tracks() {
					cached := "-"
					if r, ok := t.Resource.(interface{ Cached() bool }); ok {
						cached = yesNo(r.Cached())
					}
					rows = append(rows, []string{
						strconv.Itoa(t.Index + 1),
						valueOrDash(t.Title),
						formatDuration(t.Duration),
						cached,
						t.Href,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Title", "Duration", "Cached", "Href"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newChaptersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "chapters <id>",
		Short: "List the chapters of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, _, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderChapters(b.Chapters(), -1))
				return nil
			})
		},
	}
}

// renderChapters tabulates chapters, marking the one at index current.
func renderChapters(chapters []position.Chapter, current int) string {
	rows := make([][]string, 0, len(chapters))
	for i, ch := range chapters {
		mark := ""
		if i == current {
			mark = "*"
		}
		rows = append(rows, []string{
			mark + strconv.Itoa(i+1),
			ch.Title,
			strconv.Itoa(ch.Start.Index() + 1),
			formatDuration(ch.Start.Offset()),
			formatDuration(ch.Start.Elapsed()),
			formatDuration(ch.Duration),
		})
	}
	return renderTable(
		[]string{"#", "Title", "Track", "Offset", "Start", "Duration"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepEntry bool

	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Delete downloaded tracks and remove the entry",
		Long: `rm deletes every downloaded track of an entry and then removes it from the library.
When some tracks cannot be deleted the entry is kept so the command can be retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, _, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if err := b.DeleteLocalContent(c); err != nil {
					var delErr *audiobook.DeletionError
					if errors.As(err, &delErr) {
						hrefs := make([]string, 0, len(delErr.Failures))
						for _, f := range delErr.Failures {
							hrefs = append(hrefs, f.Href)
						}
						fmt.Fprintf(out, "Could not delete %d track(s): %s\n", len(hrefs), strings.Join(hrefs, ", "))
					}
					return err
				}
				if keepEntry {
					fmt.Fprintf(out, "Deleted downloads of %s\n", b.ID())
					return nil
				}
				if err := s.store.Delete(c, b.ID()); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %s\n", b.ID())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepEntry, "keep-entry", false, "Only delete downloaded tracks")
	return cmd
}
