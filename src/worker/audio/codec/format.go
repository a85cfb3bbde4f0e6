package codec

import (
	"path/filepath"
	"strings"

	"github.com/veedubyou/stemsplit/src/shared/failure"
)

// Format is a supported container/codec pair. The set is closed: anything
// not listed here is rejected with UnsupportedFormat.
type Format string

const (
	WAV  Format = "wav"
	MP3  Format = "mp3"
	FLAC Format = "flac"
	OGG  Format = "ogg"
	M4A  Format = "m4a"
)

var allFormats = []Format{WAV, MP3, FLAC, OGG, M4A}

var encodeArgs = map[Format][]string{
	WAV:  {"-c:a", "pcm_s16le"},
	MP3:  {"-c:a", "libmp3lame", "-b:a", "320k"},
	FLAC: {"-c:a", "flac"},
	OGG:  {"-c:a", "libvorbis", "-q:a", "6"},
	M4A:  {"-c:a", "aac", "-b:a", "256k"},
}

var contentTypes = map[Format]string{
	WAV:  "audio/wav",
	MP3:  "audio/mpeg",
	FLAC: "audio/flac",
	OGG:  "audio/ogg",
	M4A:  "audio/mp4",
}

func AllFormats() []Format {
	formats := make([]Format, len(allFormats))
	copy(formats, allFormats)
	return formats
}

func ParseFormat(value string) (Format, error) {
	normalized := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")))
	for _, format := range allFormats {
		if format == normalized {
			return format, nil
		}
	}

	return "", failure.New(failure.UnsupportedFormat, "unsupported audio format: "+value)
}

// FormatFromPath infers the format from a file name or URL extension.
func FormatFromPath(path string) (Format, error) {
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}

	ext := filepath.Ext(path)
	if ext == "" {
		return "", failure.New(failure.UnsupportedFormat, "no file extension on "+path)
	}

	return ParseFormat(ext)
}

func (f Format) Extension() string {
	return "." + string(f)
}

func (f Format) ContentType() string {
	contentType, ok := contentTypes[f]
	if !ok {
		return "application/octet-stream"
	}

	return contentType
}
