package message

import (
	"path/filepath"
	"strings"
)

// AudioExt picks a file extension for an uploaded audio payload, preferring
// the client filename and falling back to the content type. Unknown input
// maps to ".mp3", the format browsers record to most often.
func AudioExt(contentType, filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".ogg", ".flac", ".webm", ".m4a", ".mp4", ".mpeg", ".mpga", ".opus":
		return ext
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "m4a"), strings.Contains(ct, "mp4"):
		return ".m4a"
	default:
		return ".mp3"
	}
}

// AudioContentType maps an audio file extension to its MIME type.
func AudioContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	case ".m4a", ".mp4":
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

// ImageType returns the extension and MIME type for an uploaded image.
// Anything unrecognized is treated as JPEG.
func ImageType(contentType, filename string) (ext, mime string) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png") || strings.EqualFold(filepath.Ext(filename), ".png"):
		return ".png", "image/png"
	case strings.Contains(ct, "webp") || strings.EqualFold(filepath.Ext(filename), ".webp"):
		return ".webp", "image/webp"
	case strings.Contains(ct, "gif") || strings.EqualFold(filepath.Ext(filename), ".gif"):
		return ".gif", "image/gif"
	default:
		return ".jpg", "image/jpeg"
	}
}
