// Package library builds the local song catalog from a music directory and
// keeps it in step with the files on disk.
package library

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/DrUlysses/Kristine-sub000/model"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
}

// leading track numbers such as "01 - ", "3. " or "12_"
var trackNumberPrefix = regexp.MustCompile(`^\d{1,3}\s*[-._)]\s*`)

// IsAudio reports whether path has a known audio extension.
func IsAudio(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// Scan walks root and returns a track for every audio file. Unreadable
// subdirectories are skipped.
func Scan(root string) ([]model.Track, error) {
	var tracks []model.Track
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if IsAudio(path) {
			tracks = append(tracks, TrackFromPath(root, path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// TrackFromPath derives track metadata from the file's location below root:
// root/Artist/Album/NN - Title.ext. Missing levels leave fields empty.
func TrackFromPath(root, path string) model.Track {
	t := model.Track{Path: path, Title: titleFromFile(path)}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return t
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) >= 3:
		t.Artist = parts[len(parts)-3]
		t.Album = parts[len(parts)-2]
	case len(parts) == 2:
		t.Artist = parts[0]
	}
	return t
}

func titleFromFile(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := strings.TrimSpace(trackNumberPrefix.ReplaceAllString(name, ""))
	if title == "" {
		return name
	}
	return title
}
