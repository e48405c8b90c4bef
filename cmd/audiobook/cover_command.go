package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/cover"
)

func newCoverCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var base string

	cmd := &cobra.Command{
		Use:   "cover <id>",
		Short: "Write a thumbnail of the cover image",
		Long: `cover finds the cover link of an entry, downloads it and writes a thumbnail no wider
than [cover] max_width. The output format follows the file extension of --output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath == "" {
				return errors.New("--output is required")
			}
			return ctx.withSession(cmd, func(c context.Context, s *session) error {
				entry, err := s.store.Get(c, args[0])
				if err != nil {
					return err
				}
				doc, err := s.decode(entry.Manifest, nil)
				if err != nil {
					return err
				}
				info := doc.DetectCover()
				if info == nil {
					return fmt.Errorf("%s has no cover image", entry.ID)
				}

				root := baseURL(doc)
				if base != "" {
					if root, err = parseBase(base); err != nil {
						return err
					}
				}
				data, err := cover.Fetch(c, s.client, root, info.Href)
				if err != nil {
					return err
				}

				quality := s.cfg.Cover.JPEGQuality
				thumb, err := cover.Make(data, cover.Options{MaxWidth: s.cfg.Cover.MaxWidth, JPEGQuality: quality})
				if err != nil {
					return err
				}
				if format := cover.FormatForPath(outputPath); format != "" && format != thumb.Format {
					if thumb, err = thumb.Convert(format, quality); err != nil {
						return err
					}
				}
				if err := os.WriteFile(outputPath, thumb.Data, 0o644); err != nil {
					return fmt.Errorf("write cover: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %dx%d %s cover to %s (detected by %s)\n",
					thumb.Width, thumb.Height, thumb.Format, outputPath, info.DetectionMethod)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output image path (.jpg or .png)")
	cmd.Flags().StringVar(&base, "base", "", "URL or directory that relative cover hrefs resolve against")
	return cmd
}

// parseBase accepts an http(s) URL or a local directory.
func parseBase(value string) (*url.URL, error) {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		u, err := url.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("parse --base: %w", err)
		}
		return u, nil
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return nil, fmt.Errorf("resolve --base: %w", err)
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs) + "/"}, nil
}
