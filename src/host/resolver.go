package host

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mosaicnetworks/graphshare/src/content"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by a Resolver when no asset matches a path.
var ErrNotFound = errors.New("asset not found")

// Asset is a resolved file of the content root.
type Asset struct {
	Path string
	MIME string
	Data []byte
}

// Resolver maps the segments of a requested path to an asset.
type Resolver interface {
	// Resolve returns ErrNotFound if no asset matches.
	Resolve(segments []string) (*Asset, error)
}

// SplitPath splits a slash-separated request path into segments. Leading ".",
// ".." and empty segments are dropped, as are empty and "." segments
// anywhere.
func SplitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(segments) == 0 {
				continue
			}
		}
		segments = append(segments, s)
	}
	return segments
}

const imagesDir = "images"

var (
	// swapExtensions are the extensions of images that may have been
	// re-encoded to webp.
	swapExtensions = []string{".jpg", ".jpeg", ".png"}

	// fuzzyExtensions are the extensions accepted when looking for an image
	// by basename.
	fuzzyExtensions = []string{".webp", ".png", ".jpg"}
)

// ImageResolver resolves two shapes of paths: a file at the root of the
// content root, or an image in its images folder. Images tolerate
// re-encoding: a missing jpg or png is looked up as webp, and then as any
// image whose name starts with the requested basename.
type ImageResolver struct {
	root   content.Root
	logger *logrus.Entry
}

// NewImageResolver creates an ImageResolver over root.
func NewImageResolver(root content.Root, logger *logrus.Entry) *ImageResolver {
	return &ImageResolver{
		root:   root,
		logger: logger,
	}
}

// Resolve implements the Resolver interface.
func (r *ImageResolver) Resolve(segments []string) (*Asset, error) {
	for _, s := range segments {
		if s == ".." {
			return nil, ErrNotFound
		}
	}

	switch {
	case len(segments) == 1:
		return r.serve(segments[0])
	case len(segments) == 2 && segments[0] == imagesDir:
		return r.resolveImage(segments[1])
	default:
		return nil, ErrNotFound
	}
}

func (r *ImageResolver) resolveImage(name string) (*Asset, error) {
	asset, err := r.serve(path.Join(imagesDir, name))
	if !errors.Is(err, ErrNotFound) {
		return asset, err
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	if hasExtension(name, swapExtensions) {
		asset, err := r.serve(path.Join(imagesDir, base+".webp"))
		if !errors.Is(err, ErrNotFound) {
			return asset, err
		}
	}

	names, err := r.root.ReadDir(imagesDir)
	if errors.Is(err, content.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	for _, n := range names {
		if strings.HasPrefix(n, base) && hasExtension(n, fuzzyExtensions) {
			r.logger.WithFields(logrus.Fields{
				"requested": name,
				"match":     n,
			}).Debug("Fuzzy image match")
			return r.serve(path.Join(imagesDir, n))
		}
	}

	return nil, ErrNotFound
}

func (r *ImageResolver) serve(p string) (*Asset, error) {
	data, err := r.root.ReadFile(p)
	if errors.Is(err, content.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	mimeType := mime.TypeByExtension(path.Ext(p))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	r.logger.WithFields(logrus.Fields{
		"path": p,
		"size": humanize.Bytes(uint64(len(data))),
		"mime": mimeType,
	}).Debug("Serving file")

	return &Asset{
		Path: p,
		MIME: mimeType,
		Data: data,
	}, nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
