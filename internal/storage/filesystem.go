package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const (
	archiveDirPerm  = 0o755
	archiveFilePerm = 0o644
)

// Filesystem stores archives beneath a root directory. Every path is
// resolved with openat2 inside the root, so keys cannot escape it.
type Filesystem struct {
	root string
	dfd  int
}

func newFilesystem(root string) (*Filesystem, error) {
	dfd, err := unix.Open(root, unix.O_DIRECTORY|unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Filesystem{
		root: root,
		dfd:  dfd,
	}, nil
}

func (f *Filesystem) Close() error {
	return unix.Close(f.dfd)
}

func (f *Filesystem) Create(_ context.Context, key string) (io.WriteCloser, error) {
	name := filepath.FromSlash(key)
	if err := f.mkdirAll(filepath.Dir(name), archiveDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	return f.openFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, archiveFilePerm)
}

func (f *Filesystem) Remove(_ context.Context, key string) error {
	// unlinkat has no RESOLVE_IN_ROOT, so open the parent inside the root first
	name := filepath.FromSlash(key)
	parent, err := f.openFile(filepath.Dir(name), unix.O_DIRECTORY|unix.O_PATH, 0)
	if err != nil {
		return err
	}
	defer parent.Close()

	return unix.Unlinkat(int(parent.Fd()), filepath.Base(name), 0)
}

func (f *Filesystem) mkdir(name string, perm fs.FileMode) error {
	parent, err := f.openFile(filepath.Dir(name), unix.O_DIRECTORY|unix.O_PATH, 0)
	if err != nil {
		return err
	}
	defer parent.Close()

	return unix.Mkdirat(int(parent.Fd()), filepath.Base(name), uint32(perm))
}

func (f *Filesystem) mkdirAll(path string, perm fs.FileMode) error {
	if path == "" || path == "." || path == "/" {
		return nil
	}

	err := f.mkdir(path, perm)
	if err == nil || errors.Is(err, unix.EEXIST) {
		return nil
	}

	err = f.mkdirAll(filepath.Dir(path), perm)
	if err != nil {
		return err
	}

	err = f.mkdir(path, perm)
	if err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}
	return nil
}

func (f *Filesystem) openFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	for {
		how := unix.OpenHow{
			Flags:   uint64(flag) | unix.O_CLOEXEC,
			Mode:    uint64(perm),
			Resolve: unix.RESOLVE_IN_ROOT,
		}
		fd, err := unix.Openat2(f.dfd, name, &how)
		if err != nil {
			// EINTR: Go issues 11180, 39237. EAGAIN: rename race during resolution.
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return nil, err
		}
		return os.NewFile(uintptr(fd), filepath.Join(f.root, name)), nil
	}
}
