package content

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

// filePrefix namespaces file keys in the database.
const filePrefix = "file/"

// BadgerRoot is a Root backed by a Badger database. Files are stored under
// their slash path; directories are implied by the paths of their files.
type BadgerRoot struct {
	db   *badger.DB
	path string
}

// NewBadgerRoot opens an existing database or creates a new one in path.
func NewBadgerRoot(path string, logger *logrus.Entry) (*BadgerRoot, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerRoot{
		db:   db,
		path: path,
	}, nil
}

func fileKey(p string) []byte {
	return []byte(filePrefix + p)
}

// Put stores data under the path p, replacing any previous content.
func (r *BadgerRoot) Put(p string, data []byte) error {
	p = cleanPath(p)
	if p == "" {
		return ErrNotExist
	}

	tx := r.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(fileKey(p), data); err != nil {
		return err
	}

	return tx.Commit()
}

// Import copies every regular file under dir into the database, keyed by its
// path relative to dir. It returns the number of files imported.
func (r *BadgerRoot) Import(dir string) (int, error) {
	count := 0
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := ioutil.ReadFile(p)
		if err != nil {
			return err
		}
		if err := r.Put(filepath.ToSlash(rel), data); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// ReadFile implements the Root interface.
func (r *BadgerRoot) ReadFile(p string) ([]byte, error) {
	p = cleanPath(p)
	if p == "" {
		return nil, ErrNotExist
	}

	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(p))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadDir implements the Root interface. It lists the files and implied
// subdirectories directly under p.
func (r *BadgerRoot) ReadDir(p string) ([]string, error) {
	p = cleanPath(p)

	prefix := []byte(filePrefix)
	if p != "" {
		prefix = fileKey(p + "/")
	}

	seen := make(map[string]bool)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			if i := strings.Index(rest, "/"); i >= 0 {
				rest = rest[:i]
			}
			seen[rest] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(seen) == 0 {
		return nil, ErrNotExist
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the underlying database.
func (r *BadgerRoot) Close() error {
	return r.db.Close()
}

// StorePath returns the full path of the underlying Badger database directory.
func (r *BadgerRoot) StorePath() string {
	return r.path
}
