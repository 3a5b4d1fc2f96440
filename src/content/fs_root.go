package content

import (
	"os"

	"github.com/spf13/afero"
)

// FSRoot is a Root backed by an afero file system.
type FSRoot struct {
	fs afero.Fs
}

// NewFSRoot returns a Root that reads from fs.
func NewFSRoot(fs afero.Fs) *FSRoot {
	return &FSRoot{fs: fs}
}

// NewDirRoot returns a Root confined to a directory of the OS file system.
// Paths cannot escape the directory.
func NewDirRoot(dir string) *FSRoot {
	return NewFSRoot(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// ReadFile implements the Root interface.
func (r *FSRoot) ReadFile(p string) ([]byte, error) {
	p = cleanPath(p)
	if p == "" {
		return nil, ErrNotExist
	}

	info, err := r.fs.Stat(p)
	if err != nil {
		return nil, mapErr(err)
	}
	if info.IsDir() {
		return nil, ErrNotExist
	}

	data, err := afero.ReadFile(r.fs, p)
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

// ReadDir implements the Root interface.
func (r *FSRoot) ReadDir(p string) ([]string, error) {
	p = cleanPath(p)
	if p == "" {
		p = "."
	}

	infos, err := afero.ReadDir(r.fs, p)
	if err != nil {
		return nil, mapErr(err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func mapErr(err error) error {
	if os.IsNotExist(err) {
		return ErrNotExist
	}
	return err
}
