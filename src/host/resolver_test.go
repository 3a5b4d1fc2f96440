package host

import (
	"testing"

	"github.com/mosaicnetworks/graphshare/src/common"
	"github.com/mosaicnetworks/graphshare/src/content"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	cases := map[string][]string{
		"notes.md":            {"notes.md"},
		"./images/x.png":      {"images", "x.png"},
		"../../images//x.png": {"images", "x.png"},
		"/images/./x.png":     {"images", "x.png"},
		"images/../secret":    {"images", "..", "secret"},
		"":                    nil,
	}

	for in, want := range cases {
		assert.Equal(t, want, SplitPath(in), in)
	}
}

func newTestResolver(t *testing.T, files map[string]string) *ImageResolver {
	fs := afero.NewMemMapFs()
	for p, data := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(data), 0644))
	}
	return NewImageResolver(content.NewFSRoot(fs), common.NewTestEntry(t, common.TestLogLevel))
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		path  string
		data  string
		mime  string
	}{
		{
			name:  "root file",
			files: map[string]string{"notes.md": "root"},
			path:  "notes.md",
			data:  "root",
			mime:  "text/markdown; charset=utf-8",
		},
		{
			name:  "exact image",
			files: map[string]string{"images/x.png": "png", "images/x.webp": "webp"},
			path:  "images/x.png",
			data:  "png",
			mime:  "image/png",
		},
		{
			name:  "extension swap",
			files: map[string]string{"images/x.webp": "webp"},
			path:  "images/x.png",
			data:  "webp",
			mime:  "image/webp",
		},
		{
			name:  "fuzzy scan",
			files: map[string]string{"images/x-alt.webp": "alt", "images/y.webp": "y"},
			path:  "images/x.png",
			data:  "alt",
			mime:  "image/webp",
		},
		{
			name:  "fuzzy scan from unswappable extension",
			files: map[string]string{"images/x.jpg": "jpg"},
			path:  "images/x.gif",
			data:  "jpg",
			mime:  "image/jpeg",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newTestResolver(t, c.files)

			asset, err := r.Resolve(SplitPath(c.path))
			require.NoError(t, err)
			assert.Equal(t, c.data, string(asset.Data))
			if c.name != "root file" {
				assert.Equal(t, c.mime, asset.MIME)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	r := newTestResolver(t, map[string]string{
		"notes.md":          "root",
		"images/y.webp":     "y",
		"images/x.gif":      "gif",
		"images/deep/x.png": "deep",
		"docs/x.png":        "doc",
	})

	paths := []string{
		"",
		"images/x.png",
		"images/deep/x.png",
		"docs/x.png",
		"images",
		"images/..",
		"images/../notes.md",
		"missing.md",
	}

	for _, p := range paths {
		_, err := r.Resolve(SplitPath(p))
		assert.ErrorIs(t, err, ErrNotFound, p)
	}
}

func TestResolveWithoutImagesFolder(t *testing.T) {
	r := newTestResolver(t, map[string]string{"notes.md": "root"})

	_, err := r.Resolve([]string{"images", "x.png"})
	assert.ErrorIs(t, err, ErrNotFound)
}
