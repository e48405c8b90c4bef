package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/audiobook"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Store an entry's tracks in the local cache",
		Long: `download fetches every track of an entry into the cache directory, decrypting
protected tracks, and prints the local paths in reading order. Tracks already cached are
not fetched again. Protected entries must have passed DRM verification.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, _, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				paths, err := b.Download(c)
				if errors.Is(err, audiobook.ErrNotReady) {
					return fmt.Errorf("%w (run `audiobook check %s`)", err, b.ID())
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if quiet {
					fmt.Fprintf(out, "Downloaded %d tracks of %s\n", len(paths), b.ID())
					return nil
				}
				for _, p := range paths {
					fmt.Fprintln(out, p)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print a summary instead of the track paths")
	return cmd
}
