// Package fs defines the minimal filesystem surface the kernel core
// consumes: SYS_EXEC resolves a path to an inode and reads its bytes, and
// nothing else. A real on-disk block-device filesystem is an external
// collaborator and stays out of scope; this package supplies only the
// interface plus an in-memory implementation so exec and the demos run
// without a real block device.
package fs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Lookup when no inode exists at the given path.
var ErrNotFound = errors.New("fs: not found")

// Inode is a single file's content, read in full. Real filesystems stream;
// this core only ever needs the whole ELF image at once to build a memory
// set, matching read_as_vec's contract.
type Inode interface {
	ReadAll() ([]byte, error)
}

// FileSystem resolves a path to an inode.
type FileSystem interface {
	Lookup(name string) (Inode, error)
}

// memInode is a byte slice satisfying Inode.
type memInode []byte

func (m memInode) ReadAll() ([]byte, error) { return []byte(m), nil }

// MemFS is an in-memory FileSystem, standing in for an embedded
// user-image blob: a flat map from path to file content, populated once
// at boot from registered programs.
type MemFS struct {
	files map[string]memInode
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: map[string]memInode{}}
}

// Add registers name with the given content, as if it had been unpacked
// from the user-image blob between _user_img_start and _user_img_end.
func (m *MemFS) Add(name string, content []byte) {
	m.files[name] = memInode(content)
}

// Lookup implements FileSystem.
func (m *MemFS) Lookup(name string) (Inode, error) {
	inode, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return inode, nil
}
