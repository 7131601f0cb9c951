package volume

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Volume owns the memory-mapped backing file for a TOSFS image. It is the
// sole owner of the mapped region; everything returned by its accessors is
// a transient, non-owning view into that region that is only valid for the
// Volume's lifetime.
type Volume struct {
	file *os.File
	data []byte
}

// Open maps path read-write and shared, validates the superblock, and
// returns a Volume ready to serve accessors. Any validation failure is
// returned as a wrapped error and is meant to be treated as fatal by the
// caller (mount-time failure, per the format's contract).
func Open(path string) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("volume: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("volume: stat %s: %w", path, err)
	}

	size := fi.Size()
	if size < 3*BlockSize {
		f.Close()
		return nil, fmt.Errorf("volume: %s is too small to hold a superblock, inode table, and root directory", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("volume: mmap %s: %w", path, err)
	}

	v := &Volume{file: f, data: data}

	sb := v.Superblock()
	if sb.MagicField != Magic {
		v.Close()
		return nil, fmt.Errorf("volume: %s: bad magic %#x, want %#x", path, sb.MagicField, Magic)
	}
	if sb.BlockSizeField != BlockSize {
		v.Close()
		return nil, fmt.Errorf("volume: %s: block size %d, want %d", path, sb.BlockSizeField, BlockSize)
	}
	if sb.Blocks > MaxBlocks {
		v.Close()
		return nil, fmt.Errorf("volume: %s: %d blocks exceeds the %d-block format limit", path, sb.Blocks, MaxBlocks)
	}
	if int64(3+sb.Blocks)*BlockSize > size {
		v.Close()
		return nil, fmt.Errorf("volume: %s: declares %d blocks but is only %d bytes", path, sb.Blocks, size)
	}

	return v, nil
}

// Close unmaps the backing region and closes the underlying file. It is
// safe to call at most once; callers acquire a Volume via Open and should
// defer Close from the same scope, guaranteeing release on every exit path.
func (v *Volume) Close() error {
	var err error
	if v.data != nil {
		err = unix.Munmap(v.data)
		v.data = nil
	}
	if cerr := v.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func blockOffset(block uint32) int {
	return int(block) * BlockSize
}

// Superblock returns a mutable view of block 0.
func (v *Volume) Superblock() *Superblock {
	return (*Superblock)(unsafe.Pointer(&v.data[blockOffset(superblockBlock)]))
}

// Inode returns a mutable view of inode i, 1 <= i <= Superblock().Inodes.
// Accessing an inode outside that range is a programming error and panics,
// per the accessor contract: the Core never presents an out-of-range inode
// number here without having already rejected it as ENOENT.
func (v *Volume) Inode(i uint32) *Inode {
	sb := v.Superblock()
	if i < 1 || i > sb.Inodes {
		panic(fmt.Sprintf("volume: inode %d out of range [1, %d]", i, sb.Inodes))
	}
	off := blockOffset(inodeTableBlock) + int(i)*inodeSize
	return (*Inode)(unsafe.Pointer(&v.data[off]))
}

// Dentry returns a mutable view of the k-th directory entry,
// 0 <= k <= Superblock().Inodes.
func (v *Volume) Dentry(k uint32) *Dentry {
	sb := v.Superblock()
	if k > sb.Inodes {
		panic(fmt.Sprintf("volume: dentry %d out of range [0, %d]", k, sb.Inodes))
	}
	off := blockOffset(rootDirBlock) + int(k)*dentrySize
	return (*Dentry)(unsafe.Pointer(&v.data[off]))
}

// Data returns the full BlockSize-byte data block belonging to file inode
// i. Per the format, inode i's block_no equals i (see create()'s effect),
// and its data lives at image block block_no+1 = i+1, i.e. byte offset
// (i+1)*BlockSize.
func (v *Volume) Data(i uint32) []byte {
	sb := v.Superblock()
	if i < 1 || i > sb.Inodes {
		panic(fmt.Sprintf("volume: inode %d out of range [1, %d]", i, sb.Inodes))
	}
	off := blockOffset(i + 1)
	return v.data[off : off+BlockSize]
}
