package media

import (
	"path/filepath"
	"strings"
)

// Kind classifies an uploaded recording.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
)

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".ogg": true, ".flac": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true,
}

// KindOf classifies a recording by content type, falling back to the
// filename extension when the content type is generic.
func KindOf(filename, contentType string) Kind {
	switch {
	case strings.HasPrefix(contentType, "audio/"):
		return KindAudio
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case audioExts[ext]:
		return KindAudio
	case videoExts[ext]:
		return KindVideo
	}
	return KindUnknown
}

// ChatFileAllowed reports whether a chat attachment type is accepted.
// Recordings go through the minutes pipeline, not chat.
func ChatFileAllowed(filename string) bool {
	allowed := map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".pdf": true, ".txt": true, ".md": true, ".csv": true,
		".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	}
	return allowed[strings.ToLower(filepath.Ext(filename))]
}
