// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fuseServer is the subset of *fuse.Server a mount needs, so tests can
// substitute a no-op implementation on systems without /dev/fuse.
type fuseServer interface {
	Unmount() error
}

// mountWorld mounts w's virtual files at path, which is created if
// missing. The mount is read/write: POSIX writes from the agent's own
// process land back in w.Files, the same store Intercept reads from.
func mountWorld(path string, w *World, logger *slog.Logger) (fuseServer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating world mountpoint %s: %w", path, err)
	}

	root := &worldRootNode{world: w}
	entryTimeout := 100 * time.Millisecond
	attrTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(path, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName: "clove-world",
			Name:   "clove",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting world filesystem at %s: %w", path, err)
	}
	logger.Info("world filesystem mounted", "mountpoint", path, "world_id", w.ID)
	return server, nil
}

// worldRootNode is the mount root. Every virtual file in w.Files
// appears as a direct child; Lookup and Readdir both consult the
// world's map directly rather than a cached inode tree, since agents
// may create new shadowed files at any time via WRITE or by creating
// a file on the mount itself.
type worldRootNode struct {
	gofuse.Inode
	world *World
}

var _ gofuse.InodeEmbedder = (*worldRootNode)(nil)
var _ gofuse.NodeLookuper = (*worldRootNode)(nil)
var _ gofuse.NodeReaddirer = (*worldRootNode)(nil)
var _ gofuse.NodeCreater = (*worldRootNode)(nil)

func (r *worldRootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	data, ok := r.world.fileBytes(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	child := r.NewPersistentInode(ctx, &worldFileNode{world: r.world, name: name}, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o644
	out.Size = uint64(len(data))
	return child, 0
}

func (r *worldRootNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	names := r.world.fileNames()
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFREG})
	}
	return &nameDirStream{entries: entries}, 0
}

func (r *worldRootNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	r.world.setFileBytes(name, nil)
	child := r.NewPersistentInode(ctx, &worldFileNode{world: r.world, name: name}, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o644
	return child, nil, 0, 0
}

// worldFileNode represents one shadowed file, backed by World.Files.
type worldFileNode struct {
	gofuse.Inode
	world *World
	name  string
}

var _ gofuse.InodeEmbedder = (*worldFileNode)(nil)
var _ gofuse.NodeGetattrer = (*worldFileNode)(nil)
var _ gofuse.NodeReader = (*worldFileNode)(nil)
var _ gofuse.NodeWriter = (*worldFileNode)(nil)
var _ gofuse.NodeOpener = (*worldFileNode)(nil)

func (f *worldFileNode) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, _ := f.world.fileBytes(f.name)
	out.Mode = syscall.S_IFREG | 0o644
	out.Size = uint64(len(data))
	return 0
}

func (f *worldFileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, 0, 0
}

func (f *worldFileNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, _ := f.world.fileBytes(f.name)
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return fuse.ReadResultData(data[off:end]), 0
}

func (f *worldFileNode) Write(ctx context.Context, handle gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	existing, _ := f.world.fileBytes(f.name)
	end := off + int64(len(data))
	if end > int64(len(existing)) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[off:], data)
	f.world.setFileBytes(f.name, existing)
	return uint32(len(data)), 0
}

// nameDirStream implements gofuse.DirStream over a fixed entry slice.
type nameDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *nameDirStream) HasNext() bool { return s.index < len(s.entries) }

func (s *nameDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *nameDirStream) Close() {}
