package fs_test

import (
	"bytes"
	"errors"
	"testing"

	"sv39kernel/internal/fs"
)

func TestMemFSLookup(t *testing.T) {
	m := fs.NewMemFS()
	m.Add("rust/hello_world", []byte{1, 2, 3})

	inode, err := m.Lookup("rust/hello_world")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	data, err := inode.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("data = %v, want 1 2 3", data)
	}
}

func TestMemFSNotFound(t *testing.T) {
	m := fs.NewMemFS()

	if _, err := m.Lookup("no/such/file"); !errors.Is(err, fs.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
