package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/resfetch/internal/domain"
)

func TestTargetFlags_Build(t *testing.T) {
	tf := targetFlags{
		title:  "Chapter",
		params: multiFlag{"file_id=42", " chapter_id = 7 "},
	}

	specs, err := tf.build([]string{"https://example.com/a", "https://example.com/b"})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "https://example.com/b", specs[1].PageURL)
	assert.Equal(t, map[string]string{"file_id": "42", "chapter_id": "7"}, specs[0].Params)
	assert.Equal(t, "Chapter", specs[0].Title)
}

func TestTargetFlags_BaseURLOnly(t *testing.T) {
	tf := targetFlags{baseURL: "https://example.com", id: "x1", params: multiFlag{"file_id=42"}}

	specs, err := tf.build(nil)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "x1", specs[0].ID)
	assert.Empty(t, specs[0].PageURL)
}

func TestTargetFlags_Errors(t *testing.T) {
	_, err := (&targetFlags{}).build(nil)
	assert.True(t, domain.IsConfigError(err))

	_, err = (&targetFlags{params: multiFlag{"novalue"}}).build([]string{"https://example.com"})
	assert.True(t, domain.IsConfigError(err))
}

func TestReadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	content := `- https://example.com/play?_id=abc
- id: ch7
  base_url: https://example.com
  title: Seven
  params:
    chapter_id: "7"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	specs, err := readTargets(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "https://example.com/play?_id=abc", specs[0].PageURL)
	assert.Equal(t, domain.TargetSpec{
		ID:      "ch7",
		BaseURL: "https://example.com",
		Title:   "Seven",
		Params:  map[string]string{"chapter_id": "7"},
	}, specs[1])

	_, err = readTargets(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, domain.IsConfigError(err))
}
