// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kgfuse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/ontograph/ontofs/lib/clock"
)

// FSName is the filesystem name reported to the kernel. The mount
// table shows entries of type "fuse.ontofs".
const FSName = "ontofs"

// directorySize is the synthetic size reported for directories.
const directorySize = 4096

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Backend provides ontology, document, and job data.
	Backend Backend

	// HideJobs prefixes job placeholders with a dot so plain
	// listings skip them.
	HideJobs bool

	// CacheTTL bounds directory listing staleness. Zero uses
	// DefaultCacheTTL.
	CacheTTL time.Duration

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Clock provides time for cache aging. If nil, defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, a stderr handler
	// at error level is used.
	Logger *slog.Logger
}

// Mount mounts the knowledge-graph filesystem at the configured
// mountpoint. The caller must call Unmount on the returned Server when
// done. The mountpoint directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	view := NewView(options.Backend, options.HideJobs, options.CacheTTL,
		options.Clock, options.Logger)
	root := &dirNode{view: view, ino: RootInode}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     FSName,
			Name:       FSName,
			AllowOther: options.AllowOther,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("knowledge-graph filesystem mounted",
		"mountpoint", options.Mountpoint)
	return server, nil
}

// dirNode serves both the root and ontology directories; the view
// dispatches on the entry type behind the inode number.
type dirNode struct {
	gofuse.Inode
	view *View
	ino  uint64
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)
var _ gofuse.NodeCreater = (*dirNode)(nil)
var _ gofuse.NodeMkdirer = (*dirNode)(nil)
var _ gofuse.NodeUnlinker = (*dirNode)(nil)
var _ gofuse.NodeRmdirer = (*dirNode)(nil)
var _ gofuse.NodeRenamer = (*dirNode)(nil)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	entry, errno := d.view.Lookup(ctx, d.ino, name)
	if errno != 0 {
		return nil, errno
	}

	if entry.Type.IsDir() {
		child := d.NewInode(ctx, &dirNode{view: d.view, ino: entry.Ino},
			gofuse.StableAttr{Mode: syscall.S_IFDIR, Ino: entry.Ino})
		out.Mode = syscall.S_IFDIR | 0o555
		out.Size = directorySize
		return child, 0
	}

	child := d.NewInode(ctx, &fileNode{view: d.view, ino: entry.Ino},
		gofuse.StableAttr{Mode: syscall.S_IFREG, Ino: entry.Ino})
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = entry.Size
	return child, 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, errno := d.view.List(ctx, d.ino)
	if errno != 0 {
		return nil, errno
	}

	stream := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		mode := uint32(syscall.S_IFREG)
		if entry.Type.IsDir() {
			mode = syscall.S_IFDIR
		}
		stream = append(stream, fuse.DirEntry{
			Name: entry.Name,
			Mode: mode,
			Ino:  entry.Ino,
		})
	}
	return gofuse.NewListDirStream(stream), 0
}

func (d *dirNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if _, errno := d.view.Attr(d.ino); errno != 0 {
		return errno
	}
	out.Mode = syscall.S_IFDIR | 0o555
	out.Size = directorySize
	return 0
}

// The filesystem is read-only. The kernel already rejects most
// mutation through the "ro" mount option; these handlers keep the
// contract explicit for paths that reach the daemon anyway.

func (d *dirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

func (d *dirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (d *dirNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EROFS
}

func (d *dirNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return syscall.EROFS
}

func (d *dirNode) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EROFS
}

// fileNode serves document files and job placeholders.
type fileNode struct {
	gofuse.Inode
	view *View
	ino  uint64
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeSetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	entry, errno := f.view.Attr(f.ino)
	if errno != 0 {
		return errno
	}
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = entry.Size
	out.Blocks = (out.Size + 511) / 512
	return 0
}

func (f *fileNode) Setattr(ctx context.Context, handle gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

// Open fetches the file's full rendered content once per handle.
// Content is immutable for the lifetime of the handle: no mid-read
// invalidation, and the kernel page cache stays valid.
func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&uint32(syscall.O_ACCMODE) != uint32(syscall.O_RDONLY) {
		return nil, 0, syscall.EROFS
	}

	content, errno := f.view.OpenContent(ctx, f.ino)
	if errno != 0 {
		return nil, 0, errno
	}
	return &contentHandle{content: content}, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *fileNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	snapshot, ok := handle.(*contentHandle)
	if !ok {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(readSlice(snapshot.content, off, len(dest))), 0
}

// contentHandle is one open handle's immutable content snapshot.
type contentHandle struct {
	content []byte
}
