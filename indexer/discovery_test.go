package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arakoodev/gutty/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
}

func TestParseDataset(t *testing.T) {
	tests := []struct {
		in      string
		want    Dataset
		wantErr bool
	}{
		{in: "food101=/data/food-101/images", want: Dataset{Source: "food101", Dir: "/data/food-101/images"}},
		{in: "/data/uec", want: Dataset{Source: "uec", Dir: "/data/uec"}},
		{in: "=/data", wantErr: true},
		{in: "src=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDataset(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDataset)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscoverImages(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "pho", "2.jpg"))
	touch(t, filepath.Join(root, "pho", "1.JPEG"))
	touch(t, filepath.Join(root, "banh_mi", "a.png"))
	touch(t, filepath.Join(root, "banh_mi", "notes.txt"))
	touch(t, filepath.Join(root, "banh_mi", "nested", "1.jpg"))

	items, err := DiscoverImages([]Dataset{{Source: "vn", Dir: root}}, nil)
	require.NoError(t, err)

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	// lexical walk order; nested/1.jpg comes first so pho/1.JPEG keeps a distinct id
	assert.Equal(t, []string{"vn-a.png", "vn-1.jpg", "vn-1.JPEG", "vn-2.jpg"}, ids)

	assert.Equal(t, "banh_mi", items[0].Label)
	assert.Equal(t, "nested", items[1].Label)
	assert.Equal(t, "pho", items[3].Label)
	assert.Equal(t, "vn", items[3].Source)
	assert.Equal(t, core.ImageRef(filepath.Join(root, "pho", "2.jpg")), items[3].Payloads[0])
	assert.False(t, items[3].Averaged, "a discovered image is embedded on its own")
}

func TestDiscoverImages_DuplicateIDsKeepFirst(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "x.jpg"))
	touch(t, filepath.Join(root, "b", "x.jpg"))

	items, err := DiscoverImages([]Dataset{{Source: "s", Dir: root}}, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Label)
}

func TestDiscoverImages_MissingDir(t *testing.T) {
	_, err := DiscoverImages([]Dataset{{Source: "s", Dir: filepath.Join(t.TempDir(), "missing")}}, nil)
	assert.Error(t, err)
}

func TestReadRows(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"r1","label":"pho","source":"recipes","image_paths":["a.jpg","https://cdn.example.com/b.jpg"],"text":"beef pho"}`,
		``,
		`{"label":"soup","source":"recipes","text":"clear broth"}`,
		`{"id":"r1","label":"dup","image_paths":["c.jpg"]}`,
	}, "\n")

	items, err := ReadRows(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "r1", items[0].ID)
	assert.Equal(t, []core.Payload{core.ImageRef("a.jpg"), core.ImageURL("https://cdn.example.com/b.jpg")}, items[0].Payloads)
	assert.Equal(t, "beef pho", items[0].Text)
	assert.True(t, items[0].Averaged)

	assert.Len(t, items[1].ID, 16, "content id is 16 hex digits")
	assert.Equal(t, []core.Payload{core.TextRef("clear broth")}, items[1].Payloads)
	assert.False(t, items[1].Averaged)

	again, err := ReadRows(strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, items[1].ID, again[1].ID, "content ids are stable across runs")
}

func TestReadRows_SingleImageIsAveraged(t *testing.T) {
	items, err := ReadRows(strings.NewReader(`{"id":"r1","image_paths":["a.jpg"," "]}`), nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []core.Payload{core.ImageRef("a.jpg")}, items[0].Payloads)
	assert.True(t, items[0].Averaged)
}

func TestReadRows_Malformed(t *testing.T) {
	_, err := ReadRows(strings.NewReader("{\"id\":\"ok\"}\nnot json\n"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadRows_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"x","image_paths":["x.jpg"]}`+"\n"), 0o644))

	items, err := LoadRows(path, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = LoadRows(filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
