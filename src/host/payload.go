package host

import (
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/mosaicnetworks/graphshare/src/graph"
	"github.com/mosaicnetworks/graphshare/src/protocol"
)

// AssetFields are the entity fields that may reference an asset of the
// content root.
var AssetFields = []string{"image", "imagePath"}

// PrepareGraphPayload builds the snapshot sent to guests from a copy of the
// graph. Entities are sanitized, the asset index lists the relative asset
// paths referenced by entities, and SharedMode is always set: guests are
// read-only viewers whatever the host's own mode.
func PrepareGraphPayload(state graph.State) protocol.GraphSnapshot {
	snapshot := protocol.GraphSnapshot{
		Version:           protocol.SnapshotVersion,
		Entities:          make(map[string]graph.Entity, len(state.Entities)),
		DefaultVisibility: state.DefaultVisibility,
		SharedMode:        true,
	}

	ids := make([]string, 0, len(state.Entities))
	for id := range state.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := state.Entities[id]
		snapshot.Entities[id] = e.Sanitize()

		for _, field := range AssetFields {
			p, ok := assetPath(e[field])
			if !ok {
				continue
			}
			if _, dup := snapshot.Assets[p]; dup {
				continue
			}
			if snapshot.Assets == nil {
				snapshot.Assets = make(map[string]protocol.AssetRef)
			}
			snapshot.Assets[p] = protocol.AssetRef{
				Path:   p,
				Entity: id,
				MIME:   mime.TypeByExtension(path.Ext(p)),
			}
		}
	}

	return snapshot
}

// assetPath returns the normalized form of v if it is a relative path inside
// the content root.
func assetPath(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}

	if strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "data:") ||
		strings.Contains(s, "://") {
		return "", false
	}

	segments := SplitPath(s)
	if len(segments) == 0 {
		return "", false
	}
	for _, seg := range segments {
		if seg == ".." {
			return "", false
		}
	}

	return strings.Join(segments, "/"), true
}
