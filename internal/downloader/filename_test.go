package downloader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elsanchez/resfetch/internal/domain"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"valid_name123", "valid_name123"},
		{"name with spaces", "name with spaces"},
		{`a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"tab\there", "tab_here"},
		{"name.with.dots", "name.with.dots"},
		{"...hidden...", "hidden"},
		{"第一章 音频", "第一章 音频"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}

	t.Logf("✅ Sanitize filename working correctly")
}

func TestSanitizeFilename_Length(t *testing.T) {
	long := strings.Repeat("音", 100)
	result := sanitizeFilename(long)

	if len(result) > maxBaseName {
		t.Errorf("Expected at most %d bytes, got %d", maxBaseName, len(result))
	}
	if !strings.HasPrefix(long, result) {
		t.Errorf("Truncation split a rune: %q", result)
	}

	t.Logf("✅ Long names truncated on rune boundary (%d bytes)", len(result))
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		name     string
		cand     domain.Candidate
		expected string
	}{
		{"name hint wins", domain.Candidate{URL: "https://h/a/track.mp3", NameHint: "Chapter: One"}, "Chapter_ One"},
		{"last path segment", domain.Candidate{URL: "https://h/a/track.mp3?sig=1"}, "track"},
		{"escaped segment", domain.Candidate{URL: "https://h/a/my%20song.mp3"}, "my song"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BaseName(tt.cand)
			if result != tt.expected {
				t.Errorf("BaseName() = %q, want %q", result, tt.expected)
			}
		})
	}

	t.Logf("✅ Base names derived from hints and URLs")
}

func TestBaseName_DeterministicFallback(t *testing.T) {
	c := domain.Candidate{URL: "https://h/"}
	first := BaseName(c)
	second := BaseName(c)

	if first != second {
		t.Errorf("Expected deterministic name, got %q and %q", first, second)
	}
	if other := BaseName(domain.Candidate{URL: "https://other/"}); other == first {
		t.Errorf("Expected different names for different URLs")
	}

	t.Logf("✅ Fallback name: %s", first)
}

func TestInferExtension(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		hint        string
		contentType string
		expected    string
	}{
		{"url extension", "https://h/a.mp3", "", "video/mp4", ".mp3"},
		{"content type", "https://h/api/file/1", "", "audio/mpeg", ".mp3"},
		{"content type with params", "https://h/api/file/1", "", "video/mp4; codecs=avc1", ".mp4"},
		{"hint when octet-stream", "https://h/api/file/1", "audio/x-wav", "application/octet-stream", ".wav"},
		{"unknown", "https://h/api/file/1", "", "application/octet-stream", ".bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := domain.Candidate{URL: tt.url, ContentTypeHint: tt.hint}
			result := inferExtension(c, tt.contentType, nil)
			if result != tt.expected {
				t.Errorf("inferExtension() = %q, want %q", result, tt.expected)
			}
		})
	}

	t.Logf("✅ Extension inference working correctly")
}

func TestExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "track.m4a"), []byte("data"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, ok := existingFile(dir, "track", ".mp3"); ok {
		t.Errorf("Expected no match for a different known extension")
	}

	path, ok := existingFile(dir, "track", "")
	if !ok {
		t.Fatalf("Expected a match when the url has no extension")
	}
	if filepath.Base(path) != "track.m4a" {
		t.Errorf("Expected track.m4a, got %s", path)
	}

	t.Logf("✅ Existing file detected: %s", path)
}

func TestExistingFile_SniffedExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"export.zip", "export.tar.gz", ".export.123.part"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}

	path, ok := existingFile(dir, "export", "")
	if !ok {
		t.Fatalf("Expected a match for a non-media extension")
	}
	if filepath.Base(path) != "export.zip" {
		t.Errorf("Expected export.zip, got %s", path)
	}

	if _, ok := existingFile(dir, "export.tar", ".mp3"); ok {
		t.Errorf("Expected no match when the url extension differs")
	}
	if _, ok := existingFile(dir, "other", ""); ok {
		t.Errorf("Expected no match for another base name")
	}

	t.Logf("✅ Sniffed extension detected: %s", path)
}
