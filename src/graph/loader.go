package graph

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// File is the JSON document from which a host can load its graph.
//
//  {
//    "sharedMode": false,
//    "defaultVisibility": "public",
//    "entities": {
//      "a": {"title": "A", "image": "images/a.png"}
//    }
//  }
//
// The "id" field of an entity defaults to its key.
type File struct {
	Entities          map[string]Entity `codec:"entities"`
	DefaultVisibility *Visibility       `codec:"defaultVisibility,omitempty"`
	SharedMode        bool              `codec:"sharedMode"`
}

// ReadFile parses a graph file.
func ReadFile(path string) (*File, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(raw)
}

// ParseFile parses the contents of a graph file.
func ParseFile(raw []byte) (*File, error) {
	jh := new(codec.JsonHandle)
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	dec := codec.NewDecoderBytes(raw, jh)

	f := &File{}
	if err := dec.Decode(f); err != nil {
		return nil, err
	}

	for id, e := range f.Entities {
		if e == nil {
			e = Entity{}
			f.Entities[id] = e
		}
		e[FieldID] = id
	}

	return f, nil
}

// Load applies the contents of a graph file to the store, as the set of
// mutations that turns the current graph into the one described by the file.
func Load(store *Store, f *File) {
	store.SetSharedMode(f.SharedMode)
	store.SetDefaultVisibility(f.DefaultVisibility)
	Sync(store, f.Entities)
}

// Sync mutates the store until its entities are equal to next. Entities that
// lost fields are replaced with Update, entities that only gained or changed
// fields are patched with a single BatchUpdate, and missing entities are
// deleted.
func Sync(store *Store, next map[string]Entity) {
	updates, patches, deletes := Diff(store.State().Entities, next)

	for _, e := range updates {
		store.Update(e)
	}

	store.BatchUpdate(patches)

	for _, id := range deletes {
		store.Delete(id)
	}
}

// Diff compares two sets of entities. It returns the entities that must be
// replaced as a whole, the partial entities that can be merged, and the ids of
// the entities that disappeared. Updates and deletes are sorted by id.
func Diff(current, next map[string]Entity) ([]Entity, map[string]Entity, []string) {
	var updates []Entity
	patches := make(map[string]Entity)
	var deletes []string

	for _, id := range sortedIDs(next) {
		n := next[id]
		c, ok := current[id]
		if !ok {
			patches[id] = n.Clone()
			continue
		}
		if reflect.DeepEqual(c, n) {
			continue
		}
		if lostFields(c, n) {
			updates = append(updates, n.Clone())
			continue
		}
		patch := Entity{}
		for k, v := range n {
			if old, ok := c[k]; !ok || !reflect.DeepEqual(old, v) {
				patch[k] = v
			}
		}
		patches[id] = patch
	}

	for _, id := range sortedIDs(current) {
		if _, ok := next[id]; !ok {
			deletes = append(deletes, id)
		}
	}

	return updates, patches, deletes
}

func lostFields(current, next Entity) bool {
	for k := range current {
		if _, ok := next[k]; !ok {
			return true
		}
	}
	return false
}

func sortedIDs(m map[string]Entity) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Watcher reloads a graph file into a store whenever the file changes on disk.
type Watcher struct {
	path     string
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logrus.Entry
}

// NewWatcher watches the directory containing path. The directory, rather
// than the file, is watched because editors often replace files instead of
// writing them in place.
func NewWatcher(path string, store *Store, logger *logrus.Entry) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		path:     abs,
		store:    store,
		watcher:  w,
		debounce: 100 * time.Millisecond,
		logger:   logger,
	}, nil
}

// Run processes file system events until the context is cancelled. Bursts of
// events are coalesced into a single reload.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Watching graph file")
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	f, err := ReadFile(w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Warn("Cannot reload graph file")
		return
	}

	Load(w.store, f)

	w.logger.WithFields(logrus.Fields{
		"path":     w.path,
		"entities": len(f.Entities),
	}).Debug("Reloaded graph file")
}
