package search

import (
	"strings"

	"github.com/elsanchez/resfetch/internal/media"
)

// Matcher is a content predicate applied to string values that did not
// match a field hint. key is the enclosing object key, possibly empty.
type Matcher interface {
	Match(key, value string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(key, value string) bool

func (f MatcherFunc) Match(key, value string) bool { return f(key, value) }

// ExtensionMatcher accepts URL-shaped values whose path ends in one of exts.
func ExtensionMatcher(exts ...string) Matcher {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	return MatcherFunc(func(_, value string) bool {
		if !LooksLikeURL(value) {
			return false
		}
		_, ok := set[media.URLExtension(value)]
		return ok
	})
}

// KeywordMatcher accepts URL-shaped values containing any keyword.
func KeywordMatcher(keywords ...string) Matcher {
	lowered := lowerAll(keywords)
	return MatcherFunc(func(_, value string) bool {
		return LooksLikeURL(value) && containsAny(strings.ToLower(value), lowered)
	})
}

// GuardedFieldMatcher accepts values under a generic field (url,
// download_url, ...) only when they also carry one of the keywords.
func GuardedFieldMatcher(fields []string, keywords []string) Matcher {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		fieldSet[strings.ToLower(f)] = struct{}{}
	}
	lowered := lowerAll(keywords)
	return MatcherFunc(func(key, value string) bool {
		if _, ok := fieldSet[strings.ToLower(key)]; !ok {
			return false
		}
		return LooksLikeURL(value) && containsAny(strings.ToLower(value), lowered)
	})
}

// DefaultMatchers is the media-extension matcher followed by the
// audio/video/stream keyword matcher.
func DefaultMatchers() []Matcher {
	return []Matcher{
		ExtensionMatcher(media.Extensions()...),
		KeywordMatcher("audio", "video", "stream"),
	}
}

// AudioFieldHints are the field names audio export endpoints put their
// download link under.
var AudioFieldHints = []string{
	"audio_url", "audiourl", "audio", "mp3_url", "mp3url",
	"sound_url", "soundurl", "voice_url", "voiceurl", "tts_url", "ttsurl",
}

// VideoFieldHints are the video counterparts.
var VideoFieldHints = []string{
	"video_url", "videourl", "video", "play_url", "playurl", "stream_url", "streamurl",
}

// GenericURLFields are generic link fields that only count when guarded by
// an audio keyword.
var GenericURLFields = []string{"url", "download_url", "downloadurl", "export_url", "exporturl", "file_url", "fileurl"}

// AudioKeywords guard GenericURLFields.
var AudioKeywords = []string{"audio", "mp3", "wav", "sound", "voice", "tts"}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
