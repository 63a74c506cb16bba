package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		fileID  string
		chapter string
	}{
		{"query id", "https://example.com/course?_id=8472947298472&chapterId=55", "8472947298472", "55"},
		{"path segment", "https://example.com/file/8472947298472abc", "8472947298472abc", ""},
		{"short segment ignored", "https://example.com/file/abc", "", ""},
		{"file name ignored", "https://example.com/media/a-long-file-name.mp4", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ParseTarget(tt.url)
			require.NoError(t, err)

			fileID, _ := target.Param(ParamFileID)
			chapter, _ := target.Param(ParamChapterID)
			assert.Equal(t, tt.fileID, fileID)
			assert.Equal(t, tt.chapter, chapter)
			assert.Equal(t, "https://example.com", target.BaseURL())
			assert.Equal(t, tt.url, target.ID())
		})
	}
}

func TestParseTarget_RejectsRelative(t *testing.T) {
	_, err := ParseTarget("/just/a/path")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestProbeTarget_Immutable(t *testing.T) {
	params := map[string]string{"file_id": "abc"}
	target, err := NewProbeTarget(TargetSpec{BaseURL: "https://h", Params: params})
	require.NoError(t, err)

	params["file_id"] = "changed"
	got := target.Params()
	got["file_id"] = "changed again"

	v, _ := target.Param("FILE_ID")
	assert.Equal(t, "abc", v)
}

func TestProbeTarget_Instantiate(t *testing.T) {
	target, err := NewProbeTarget(TargetSpec{
		BaseURL: "https://api.example.com/",
		Params:  map[string]string{"file_id": "f 1", "chapter_id": "c2"},
	})
	require.NoError(t, err)

	got, err := target.Instantiate("/api/file/{file_id}/audio/export")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/api/file/f%201/audio/export", got)

	got, err = target.Instantiate("https://cdn.example.com/chapter/{chapter_id}")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/chapter/c2", got)

	_, err = target.Instantiate("/api/{missing}")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestNewProbeTarget_NeedsIdentity(t *testing.T) {
	_, err := NewProbeTarget(TargetSpec{})
	require.Error(t, err)

	target, err := NewProbeTarget(TargetSpec{Params: map[string]string{"b": "2", "a": "1"}})
	require.NoError(t, err)
	assert.Equal(t, "a=1&b=2", target.ID())
}
