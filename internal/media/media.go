// Package media holds the extension and content-type tables shared by the
// extractors, the structured search and the download manager.
package media

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// VideoExtensions are the video container extensions recognized in URLs.
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv", ".m4v", ".3gp"}

// AudioExtensions are the audio extensions recognized in URLs.
var AudioExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac", ".opus"}

// StreamExtensions are playlist formats that still point at media.
var StreamExtensions = []string{".m3u8"}

// Extensions returns every recognized media extension.
func Extensions() []string {
	out := make([]string, 0, len(VideoExtensions)+len(AudioExtensions)+len(StreamExtensions))
	out = append(out, VideoExtensions...)
	out = append(out, AudioExtensions...)
	return append(out, StreamExtensions...)
}

// contentTypeExt maps the content types seen on media endpoints to the
// extension written to disk. mime.ExtensionsByType is only a fallback since
// its answers depend on the host's mime tables.
var contentTypeExt = map[string]string{
	"audio/mpeg":       ".mp3",
	"audio/mp3":        ".mp3",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/wave":       ".wav",
	"audio/ogg":        ".ogg",
	"audio/m4a":        ".m4a",
	"audio/x-m4a":      ".m4a",
	"audio/mp4":        ".m4a",
	"audio/aac":        ".aac",
	"audio/flac":       ".flac",
	"audio/opus":       ".opus",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/x-ms-wmv":   ".wmv",
	"video/x-flv":      ".flv",
	"video/x-matroska": ".mkv",
	"video/x-m4v":      ".m4v",
	"video/3gpp":       ".3gp",

	"application/vnd.apple.mpegurl": ".m3u8",
	"application/x-mpegurl":         ".m3u8",
}

// BaseType strips parameters from a Content-Type header value.
func BaseType(contentType string) string {
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// ExtensionForContentType returns the file extension for a content type,
// or "" when none is known.
func ExtensionForContentType(contentType string) string {
	ct := BaseType(contentType)
	if ext, ok := contentTypeExt[ct]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// ContentTypeForExtension is the reverse lookup used for content-type hints.
func ContentTypeForExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ct, ok := canonicalType[ext]; ok {
		return ct
	}
	for ct, e := range contentTypeExt {
		if e == ext {
			return ct
		}
	}
	return mime.TypeByExtension(ext)
}

// canonicalType picks one type for extensions shared by several entries.
var canonicalType = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".m3u8": "application/vnd.apple.mpegurl",
}

// IsMediaType reports whether a content type is audio or video.
func IsMediaType(contentType string) bool {
	ct := BaseType(contentType)
	return strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/")
}

// IsOctetStream reports a declared opaque binary body.
func IsOctetStream(contentType string) bool {
	return BaseType(contentType) == "application/octet-stream"
}

// IsJSON reports a structured JSON body.
func IsJSON(contentType string) bool {
	return strings.Contains(BaseType(contentType), "json")
}

// IsFeed reports RSS or Atom content.
func IsFeed(contentType string) bool {
	ct := BaseType(contentType)
	return strings.Contains(ct, "rss") || strings.Contains(ct, "atom")
}

// URLExtension returns the lower-cased extension of a URL's path, ignoring
// query and fragment.
func URLExtension(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// HasMediaExtension reports whether the URL path ends in a media extension.
func HasMediaExtension(raw string) bool {
	return IsMediaExtension(URLExtension(raw))
}

// IsMediaExtension reports whether ext (with dot) is a recognized media extension.
func IsMediaExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}
