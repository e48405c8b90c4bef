// Command audiobook manages a local catalog of audiobook manifests: it opens and updates
// manifests, shows their tracks and chapters, runs DRM verification, extracts covers, downloads
// tracks and hands them to a Mopidy server for playback.
package main
