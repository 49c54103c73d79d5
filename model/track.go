package model

import "strings"

// Track represents an audio track in the music library.
// Tracks are immutable once built; an edit replaces the whole value.
type Track struct {
	Title    string `json:"title"`
	Album    string `json:"album,omitempty"`
	Artist   string `json:"artist"`
	Path     string `json:"path"`               // file path or URI, the track's identity
	Duration int    `json:"duration,omitempty"` // seconds, 0 when unknown
	Artwork  []byte `json:"artwork,omitempty"`
}

// SameAs reports whether both values refer to the same track.
func (t Track) SameAs(other Track) bool {
	return t.Path == other.Path
}

// Matches is a case-insensitive substring match over title, artist, album
// and path. An empty query matches everything.
func (t Track) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{t.Title, t.Artist, t.Album, t.Path} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// IndexOf returns the position of the track with the given path, or -1.
func IndexOf(tracks []Track, path string) int {
	for i, t := range tracks {
		if t.Path == path {
			return i
		}
	}
	return -1
}

// Paths extracts the identity of every track, in order.
func Paths(tracks []Track) []string {
	paths := make([]string, len(tracks))
	for i, t := range tracks {
		paths[i] = t.Path
	}
	return paths
}
