package meshio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soypat/sdfmesh"
)

type codec struct {
	read  func(io.Reader) (*Mesh, error)
	write func(io.Writer, *Mesh) error
}

var codecs = map[string]codec{
	".mesh": {read: ReadMedit, write: WriteMedit},
	".off":  {read: ReadOFF, write: WriteOFF},
	".stl":  {read: ReadSTL, write: WriteSTL},
}

func codecFor(path string) (codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c, ok := codecs[ext]
	if !ok {
		return codec{}, fmt.Errorf("%w: unsupported mesh file extension %q", sdfmesh.ErrLoad, ext)
	}
	return c, nil
}

// ReadFile reads a mesh file, choosing the codec by file extension.
func ReadFile(path string) (*Mesh, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sdfmesh.ErrLoad, err)
	}
	defer fp.Close()
	m, err := c.read(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteFile writes m to path, choosing the codec by file extension.
func WriteFile(path string, m *Mesh) (err error) {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, fp.Close())
	}()
	return c.write(fp, m)
}
