package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/drm"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Run DRM verification for an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				b, _, err := s.reopen(c, args[0])
				if err != nil {
					return err
				}
				r := <-b.CheckDRM(c)
				if err := recordResult(c, s, cmd.OutOrStdout(), r); err != nil {
					return err
				}
				if r.Status != drm.Succeeded {
					return fmt.Errorf("verification of %s failed", b.ID())
				}
				return nil
			})
		},
	}
}
