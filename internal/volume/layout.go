// Package volume owns the memory-mapped TOSFS image and exposes typed,
// bounds-checked views onto its superblock, inode table, directory, and
// per-file data blocks. All offset arithmetic into the mapping lives here;
// callers see structured accessors only.
package volume

// Magic is the value a valid TOSFS superblock must carry, matching the
// original tosfs.h TOSFS_MAGIC.
const Magic uint32 = 0x1b19b10c

// BlockSize is the fixed size of every block in the image.
const BlockSize = 4096

// MaxBlocks is the largest image capacity the 32-bit bitmaps can address.
const MaxBlocks = 32

// RootInode is the fixed inode number of the (only) directory.
const RootInode uint32 = 1

const (
	superblockBlock = 0
	inodeTableBlock = 1
	rootDirBlock    = 2
	dataBlocksStart = 3
)

const (
	inodeSize  = 20
	dentrySize = 36
	nameSize   = 32
)

// modeTypeMask, modeTypeRegular and modeTypeDir select and match the type
// bits of the raw st_mode the format stores on disk: a regular file is
// 0100000 | perm (S_IFREG | perm) and a directory is 0040000 | perm
// (S_IFDIR | perm).
const (
	modeTypeMask    = 0170000
	modeTypeRegular = 0100000
	modeTypeDir     = 0040000
)

// Superblock is the on-disk layout of block 0. Field order, widths, and the
// absence of padding all mirror struct tosfs_superblock in tosfs.h: seven
// packed little-endian uint32 fields, no trailing padding.
type Superblock struct {
	MagicField     uint32
	BlockBitmap    uint32
	InodeBitmap    uint32
	BlockSizeField uint32
	Blocks         uint32
	Inodes         uint32
	RootInodeField uint32
}

// Inode is the on-disk layout of one inode table entry, mirroring struct
// tosfs_inode: 20 bytes, no padding, since the two 32-bit fields precede the
// six 16-bit fields.
type Inode struct {
	InodeNum uint32
	BlockNo  uint32
	Uid      uint16
	Gid      uint16
	Mode     uint16
	Perm     uint16
	Size     uint16
	Nlink    uint16
}

// IsRegular reports whether the inode's on-disk mode marks it a regular
// file. Only the type bits are compared, so any permission qualifies
// (0100644, i.e. 33188, as well as e.g. 0100600).
func (n *Inode) IsRegular() bool {
	return n.Mode&modeTypeMask == modeTypeRegular
}

// IsDir reports whether the inode's on-disk mode marks it a directory.
func (n *Inode) IsDir() bool {
	return n.Mode&modeTypeMask == modeTypeDir
}

// Dentry is the on-disk layout of one directory entry, mirroring struct
// tosfs_dentry: a 32-bit inode number followed by a 32-byte, NUL-padded
// name.
type Dentry struct {
	InodeNum uint32
	NameBuf  [nameSize]byte
}

// Name returns the entry's name, treating the 32-byte field as a byte
// string terminated by the first NUL (or running the full width if there is
// none).
func (d *Dentry) Name() string {
	n := len(d.NameBuf)
	for i, b := range d.NameBuf {
		if b == 0 {
			n = i
			break
		}
	}
	return string(d.NameBuf[:n])
}

// SetName writes name into the entry's fixed-width field, NUL-padding the
// remainder. The caller must have already checked len(name) <= nameSize.
func (d *Dentry) SetName(name string) {
	var buf [nameSize]byte
	copy(buf[:], name)
	d.NameBuf = buf
}

// MaxNameLength is the largest name create() will accept, matching
// TOSFS_MAX_NAME_LENGTH.
const MaxNameLength = nameSize
