package main

import (
	"fmt"
	"time"

	"github.com/yuanying/audiobook/internal/position"
)

// formatDuration renders d as h:mm:ss, or m:ss under an hour.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatPosition(p position.Position) string {
	return fmt.Sprintf("track %d at %s", p.Index()+1, formatDuration(p.Offset()))
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
