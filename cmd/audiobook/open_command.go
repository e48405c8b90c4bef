package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/audiobook"
	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/library"
	"github.com/yuanying/audiobook/internal/logging"
)

func newOpenCommand(ctx *commandContext) *cobra.Command {
	var tocPath string
	var noWait bool

	cmd := &cobra.Command{
		Use:   "open <manifest.json>",
		Short: "Open a manifest and add it to the library",
		Long: `Open decodes a manifest, selects its DRM variant, builds the track spine and
chapters, and stores the result in the library. Use "-" to read the manifest from stdin.

Unless --no-wait is given the command waits for the initial DRM verification.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				raw, err := readInput(args[0])
				if err != nil {
					return err
				}
				var nav []byte
				if tocPath != "" {
					if nav, err = readInput(tocPath); err != nil {
						return err
					}
				}
				doc, err := s.decode(raw, nav)
				if err != nil {
					return err
				}

				results := make(chan drm.Result, 1)
				opts := s.bookOptions(doc, "")
				opts.OnDRMStatus = func(r drm.Result) {
					select {
					case results <- r:
					default:
					}
				}
				b, err := audiobook.Open(c, doc, opts)
				if err != nil {
					return err
				}

				entry := library.EntryFor(b)
				entry.Nav = nav
				entry.Token = s.token
				if err := s.store.Put(c, entry); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Opened %s (%s, %d tracks, %d chapters)\n",
					b.ID(), b.Kind(), b.Spine().Len(), len(b.Chapters()))

				if noWait {
					fmt.Fprintf(out, "DRM: %s\n", b.DRMStatus())
					return nil
				}
				select {
				case r := <-results:
					return recordResult(c, s, out, r)
				case <-c.Done():
					return c.Err()
				}
			})
		},
	}

	cmd.Flags().StringVar(&tocPath, "toc", "", "HTML navigation document supplying the table of contents")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Do not wait for DRM verification")
	return cmd
}

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var tocPath string

	cmd := &cobra.Command{
		Use:   "update <id> <manifest.json>",
		Short: "Replace the manifest of a library entry",
		Long: `Update rebuilds the spine and chapters of an existing entry from a new manifest.
The entry keeps its identifier, construction variant and DRM status; a manifest that
selects a different variant is rejected.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, entry, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				raw, err := readInput(args[1])
				if err != nil {
					return err
				}
				nav := entry.Nav
				if tocPath != "" {
					if nav, err = readInput(tocPath); err != nil {
						return err
					}
				}
				doc, err := s.decode(raw, nav)
				if err != nil {
					return err
				}
				if err := b.Update(doc); err != nil {
					return err
				}

				updated := library.EntryFor(b)
				updated.Nav = nav
				updated.Token = entry.Token
				if s.token != "" {
					updated.Token = s.token
				}
				if err := s.store.Put(c, updated); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%d tracks, %d chapters)\n",
					b.ID(), b.Spine().Len(), len(b.Chapters()))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tocPath, "toc", "", "HTML navigation document supplying the table of contents")
	return cmd
}

// recordResult persists a verification result and reports it.
func recordResult(ctx context.Context, s *session, out io.Writer, r drm.Result) error {
	if err := s.store.SetDRMStatus(ctx, r.BookID, r.Status); err != nil {
		return err
	}
	if r.Err != nil {
		s.logger.Debug("verification error",
			slog.String(logging.FieldBookID, r.BookID),
			slog.String(logging.FieldAttemptID, r.AttemptID),
			logging.Error(r.Err))
		fmt.Fprintf(out, "DRM: %s (%v)\n", r.Status, r.Err)
		return nil
	}
	fmt.Fprintf(out, "DRM: %s\n", r.Status)
	return nil
}
