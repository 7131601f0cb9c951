package tosfs

import (
	"sync"
	"time"

	"golang.org/x/net/context"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// attrTTL is how long the kernel may cache attributes and directory
// entries it receives from this file system: one second for both.
const attrTTL = time.Second

// FileSystem adapts Core to fuseutil.FileSystem. The kernel-protocol
// library dispatches each incoming op on its own goroutine
// (mounted_file_system.go's Serve loop), but the format's on-disk layout
// was designed around single-threaded access, so every method here takes
// mu before touching the volume. This trades away the concurrency the
// library offers for correctness of the memory-mapped structures, the
// same trade samples/memfs and samples/flushfs make with their own mu.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	mu   sync.Mutex
	core *Core
}

var _ fuseutil.FileSystem = (*FileSystem)(nil)

// New builds a FileSystem serving core.
func New(core *Core) *FileSystem {
	return &FileSystem{core: core}
}

func toInodeAttributes(a Attr) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  uint64(a.Nlink),
		Mode:   a.Mode,
		Uid:    a.Uid,
		Gid:    a.Gid,
		Atime:  a.Atime,
		Mtime:  a.Atime,
		Ctime:  a.Atime,
		Crtime: a.Atime,
	}
}

func (fs *FileSystem) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child, err := fs.core.lookup(uint32(op.Parent), op.Name)
	if err != nil {
		return err
	}

	attr, err := fs.core.getattr(child)
	if err != nil {
		return err
	}

	op.Entry.Child = fuseops.InodeID(child)
	op.Entry.Attributes = toInodeAttributes(attr)
	op.Entry.AttributesExpiration = time.Now().Add(attrTTL)
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration
	return nil
}

func (fs *FileSystem) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	attr, err := fs.core.getattr(uint32(op.Inode))
	if err != nil {
		return err
	}

	op.Attributes = toInodeAttributes(attr)
	op.AttributesExpiration = time.Now().Add(attrTTL)
	return nil
}

func (fs *FileSystem) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.core.getattr(uint32(op.Inode))
	return err
}

func (fs *FileSystem) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := fs.core.readdir(uint32(op.Inode))
	if err != nil {
		return err
	}

	if int(op.Offset) > len(entries) {
		return nil
	}
	entries = entries[op.Offset:]

	for i, e := range entries {
		dtype := fuseutil.DT_Directory
		if e.Type == DirEntryFile {
			dtype = fuseutil.DT_File
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(e.Inode),
			Name:   e.Name,
			Type:   dtype,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *FileSystem) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.core.getattr(uint32(op.Inode))
	return err
}

func (fs *FileSystem) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := fs.core.read(uint32(op.Inode), op.Size, op.Offset)
	if err != nil {
		return err
	}

	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (fs *FileSystem) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, err := fs.core.write(uint32(op.Inode), op.Data, op.Offset)
	return err
}

func (fs *FileSystem) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child, err := fs.core.create(uint32(op.Parent), op.Name, op.Mode)
	if err != nil {
		return err
	}

	attr, err := fs.core.getattr(child)
	if err != nil {
		return err
	}

	op.Entry.Child = fuseops.InodeID(child)
	op.Entry.Attributes = toInodeAttributes(attr)
	op.Entry.AttributesExpiration = time.Now().Add(attrTTL)
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration
	return nil
}
