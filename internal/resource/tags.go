package resource

import (
	"fmt"

	id3 "github.com/mikkyang/id3-go"
)

// writeTags stamps title, album and artist into the ID3 tag of an MP3 file.
func writeTags(filePath, title string, tags Tags) error {
	mp3File, err := id3.Open(filePath)
	if err != nil {
		return fmt.Errorf("open id3: %w", err)
	}
	if title != "" {
		mp3File.SetTitle(title)
	}
	if tags.Album != "" {
		mp3File.SetAlbum(tags.Album)
	}
	if tags.Artist != "" {
		mp3File.SetArtist(tags.Artist)
	}
	if err := mp3File.Close(); err != nil {
		return fmt.Errorf("write id3: %w", err)
	}
	return nil
}
