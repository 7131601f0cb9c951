// Package tosfs implements the TOSFS filesystem semantics on top of a
// memory-mapped volume.Volume, and adapts those semantics to
// github.com/jacobsa/fuse's fuseutil.FileSystem interface.
//
// The Core in this file (the unexported methods on *Core) is
// deliberately free of any FUSE type: it takes and returns plain Go values
// so it can be exercised directly in tests without a kernel session, the
// same separation samples/flushfs draws between its attribute helpers and
// its fuseops-facing glue.
package tosfs

import (
	"os"
	"time"

	"github.com/dpicard/tosfs/internal/volume"
)

// fixedAccessTime is the sentinel atime the format reports for every
// inode, since the on-disk layout carries no timestamps: 2272147200,
// 2042-01-01 00:00:00 UTC.
var fixedAccessTime = time.Unix(2272147200, 0).UTC()

// Attr is the Core's FUSE-agnostic attribute record for getattr/lookup
// replies.
type Attr struct {
	Mode    os.FileMode
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Size    uint64
	Blksize uint32
	Blocks  uint64
	Atime   time.Time
}

// DirEntryType discriminates the synthetic type the original hands the
// kernel for d_type hinting; it carries no information beyond "regular
// file" vs "directory".
type DirEntryType int

const (
	DirEntryFile DirEntryType = iota
	DirEntryDir
)

// DirEntry is one entry as returned by Core.readdir, in directory-table
// order.
type DirEntry struct {
	Name  string
	Inode uint32
	Type  DirEntryType
}

// rawCreateMode derives the on-disk (type | permission) mode tosfs stores
// for a newly created regular file from the caller-supplied os.FileMode,
// forcing the regular-file type bits and keeping only the low 9 permission
// bits. futofs.c's fu_create stores the caller's mode verbatim and relies
// on the caller (open(2) with O_CREAT) always passing a regular-file mode;
// this reproduces the same on-disk value (0644 perm -> 33188) without
// trusting the caller to have set the type bits correctly.
func rawCreateMode(m os.FileMode) uint16 {
	return 0100000 | uint16(m.Perm())
}

// goMode converts an on-disk inode's raw (type | permission) mode into the
// os.FileMode the kernel-protocol library's InodeAttributes expects. The
// permission bits come from Mode, not Perm: fu_stat assigns
// st_mode = inode->mode directly and never reads back inode->perm, which
// fu_create only ever writes.
func goMode(in *volume.Inode) os.FileMode {
	perm := os.FileMode(in.Mode & 0777)
	if in.IsDir() {
		return perm | os.ModeDir
	}
	return perm
}

// Core implements the six TOSFS filesystem operations against a volume.
// It is safe for concurrent use only insofar as FileSystem serializes
// calls into it; see FileSystem's doc comment.
type Core struct {
	vol *volume.Volume
}

// NewCore wraps an already-open volume.
func NewCore(vol *volume.Volume) *Core {
	return &Core{vol: vol}
}

// lookup resolves name within parent, returning the child's inode number.
// Per spec, the only valid parent is the root; duplicate names are an
// error rather than a "first match wins" resolution.
func (c *Core) lookup(parent uint32, name string) (uint32, error) {
	if parent != volume.RootInode {
		return 0, ErrNotFound
	}

	sb := c.vol.Superblock()
	var (
		matches int
		found   uint32
	)
	for k := uint32(0); k <= sb.Inodes; k++ {
		if c.vol.Dentry(k).Name() == name {
			matches++
			found = c.vol.Dentry(k).InodeNum
		}
	}

	if matches != 1 {
		return 0, ErrNotFound
	}
	return found, nil
}

// getattr materializes the stat record for inode ino.
func (c *Core) getattr(ino uint32) (Attr, error) {
	sb := c.vol.Superblock()
	if ino < 1 || ino > sb.Inodes {
		return Attr{}, ErrNotFound
	}

	in := c.vol.Inode(ino)
	return Attr{
		Mode:    goMode(in),
		Nlink:   uint32(in.Nlink),
		Uid:     uint32(in.Uid),
		Gid:     uint32(in.Gid),
		Size:    uint64(in.Size),
		Blksize: volume.BlockSize,
		Blocks:  uint64(sb.Blocks),
		Atime:   fixedAccessTime,
	}, nil
}

// readdir enumerates the root directory. ino must be the root inode.
func (c *Core) readdir(ino uint32) ([]DirEntry, error) {
	if ino != volume.RootInode {
		return nil, ErrNotDir
	}

	sb := c.vol.Superblock()
	entries := make([]DirEntry, 0, sb.Inodes+1)
	for k := uint32(0); k <= sb.Inodes; k++ {
		d := c.vol.Dentry(k)
		// Slots that name no allocated inode (create leaves such gaps) are
		// skipped.
		if d.InodeNum < 1 || d.InodeNum > sb.Inodes {
			continue
		}
		typ := DirEntryDir
		if c.vol.Inode(d.InodeNum).IsRegular() {
			typ = DirEntryFile
		}
		entries = append(entries, DirEntry{
			Name:  d.Name(),
			Inode: d.InodeNum,
			Type:  typ,
		})
	}
	return entries, nil
}

// read returns up to size bytes of file ino's contents starting at off.
// The readable length is the position of the first NUL byte in the data
// block, not the inode's stored size field; see the design notes on why
// this ambiguity is preserved rather than "fixed".
func (c *Core) read(ino uint32, size int, off int64) ([]byte, error) {
	in := c.vol.Inode(ino)
	if !in.IsRegular() {
		return nil, ErrNotSupported
	}

	data := c.vol.Data(ino)
	length := int64(nulTerminatedLen(data))

	if off >= length {
		return nil, nil
	}

	end := off + int64(size)
	if end > length {
		end = length
	}
	return data[off:end], nil
}

// write copies buf into file ino's data block at off, updating the
// inode's recorded size.
func (c *Core) write(ino uint32, buf []byte, off int64) (int, error) {
	if off+int64(len(buf)) >= volume.BlockSize {
		return 0, ErrTooBig
	}

	data := c.vol.Data(ino)
	n := copy(data[off:], buf)
	c.vol.Inode(ino).Size = uint16(off + int64(n))
	return n, nil
}

// create appends one inode, one directory entry, and claims the next data
// block, returning the new inode's number. The bitmap updates reproduce
// futofs.c's shift-and-OR sequence verbatim: each call shifts both bitmaps
// left by one and ORs in a fixed low bit, rather than setting the
// newly-claimed bit directly.
func (c *Core) create(parent uint32, name string, mode os.FileMode) (uint32, error) {
	if parent != volume.RootInode {
		return 0, ErrNotFound
	}

	sb := c.vol.Superblock()
	if sb.Inodes == sb.Blocks {
		return 0, ErrNoSpace
	}
	if len(name) > volume.MaxNameLength {
		return 0, ErrNameTooLong
	}

	k := sb.Inodes
	sb.BlockBitmap = (sb.BlockBitmap << 1) | 1
	sb.InodeBitmap = (sb.InodeBitmap << 1) | 2
	sb.Inodes = k + 1

	newIno := k + 1
	in := c.vol.Inode(newIno)
	in.InodeNum = newIno
	in.BlockNo = newIno
	in.Uid = 0
	in.Gid = 0
	in.Mode = rawCreateMode(mode)
	in.Perm = 0666
	in.Size = 0
	in.Nlink = 1

	d := c.vol.Dentry(newIno)
	d.InodeNum = newIno
	d.SetName(name)

	return newIno, nil
}

// nulTerminatedLen returns the offset of the first zero byte in data, or
// len(data) if there is none.
func nulTerminatedLen(data []byte) int {
	for i, b := range data {
		if b == 0 {
			return i
		}
	}
	return len(data)
}
