package volume_test

import (
	"encoding/binary"
	"os"
	"testing"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"

	"github.com/dpicard/tosfs/internal/volume"
)

func TestVolume(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Fixture building
////////////////////////////////////////////////////////////////////////

// buildImage writes a valid n-block TOSFS image (superblock, inode table,
// root directory, and n-3 empty data blocks) and returns its path. Inode 1
// (the root directory) and inode 2 ("one_file", regular, contents "hi") are
// populated, matching the two-file image futofs.c's own main() sets up.
func buildImage(t *TestInfo, blocks uint32) string {
	const B = volume.BlockSize
	buf := make([]byte, int(blocks)*B)

	putU32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }
	putU16 := func(off int, v uint16) { binary.LittleEndian.PutUint16(buf[off:], v) }

	// Superblock, block 0: magic, block_bitmap, inode_bitmap, block_size,
	// blocks, inodes, root_inode.
	putU32(0*4, volume.Magic)
	putU32(1*4, 0x3) // two blocks claimed: root dir + one_file's data
	putU32(2*4, 0x6) // two inodes claimed, shifted per the create() quirk
	putU32(3*4, volume.BlockSize)
	putU32(4*4, blocks-3) // capacity is data blocks only, excluding the 3 metadata blocks
	putU32(5*4, 2)        // inodes in use: root (1) and one_file (2)
	putU32(6*4, volume.RootInode)

	// Inode table, block 1. Entry 0 is unused; entry 1 is root; entry 2 is
	// one_file.
	inodeOff := func(i uint32) int { return B + int(i)*20 }

	rootOff := inodeOff(1)
	putU32(rootOff+0, 1)      // inode
	putU32(rootOff+4, 1)      // block_no
	putU16(rootOff+8, 0)      // uid
	putU16(rootOff+10, 0)     // gid
	putU16(rootOff+12, 0040755) // mode: directory
	putU16(rootOff+14, 0755)  // perm
	putU16(rootOff+16, 0)     // size
	putU16(rootOff+18, 1)     // nlink

	fileOff := inodeOff(2)
	putU32(fileOff+0, 2)     // inode
	putU32(fileOff+4, 2)     // block_no
	putU16(fileOff+8, 0)     // uid
	putU16(fileOff+10, 0)    // gid
	putU16(fileOff+12, 0100644) // mode: regular
	putU16(fileOff+14, 0666) // perm
	putU16(fileOff+16, 2)    // size: "hi"
	putU16(fileOff+18, 1)    // nlink

	// Root directory, block 2. Entry 0 is the root's self-entry; entry 1 is
	// one_file.
	dentryOff := func(k uint32) int { return 2*B + int(k)*36 }

	d0 := dentryOff(0)
	putU32(d0, 1)
	copy(buf[d0+4:d0+36], ".")

	d1 := dentryOff(1)
	putU32(d1, 2)
	copy(buf[d1+4:d1+36], "one_file")

	// one_file's data lives at block inode+1 = 3.
	copy(buf[3*B:], "hi")

	f, err := os.CreateTemp("", "tosfs-image-*.img")
	AssertEq(nil, err)
	_, err = f.Write(buf)
	AssertEq(nil, err)
	AssertEq(nil, f.Close())

	return f.Name()
}

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type VolumeTest struct {
	path string
	vol  *volume.Volume
}

func init() { RegisterTestSuite(&VolumeTest{}) }

func (t *VolumeTest) SetUp(ti *TestInfo) {
	t.path = buildImage(ti, 8)

	var err error
	t.vol, err = volume.Open(t.path)
	AssertEq(nil, err)
}

func (t *VolumeTest) TearDown() {
	if t.vol != nil {
		ExpectEq(nil, t.vol.Close())
	}
	os.Remove(t.path)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *VolumeTest) OpenRejectsBadMagic() {
	buf := make([]byte, 3*volume.BlockSize)
	f, err := os.CreateTemp("", "tosfs-bad-*.img")
	AssertEq(nil, err)
	defer os.Remove(f.Name())
	_, err = f.Write(buf)
	AssertEq(nil, err)
	AssertEq(nil, f.Close())

	_, err = volume.Open(f.Name())
	ExpectThat(err, Error(HasSubstr("bad magic")))
}

func (t *VolumeTest) OpenRejectsTruncatedFile() {
	f, err := os.CreateTemp("", "tosfs-short-*.img")
	AssertEq(nil, err)
	defer os.Remove(f.Name())
	AssertEq(nil, f.Truncate(volume.BlockSize))
	AssertEq(nil, f.Close())

	_, err = volume.Open(f.Name())
	ExpectNe(nil, err)
}

func (t *VolumeTest) SuperblockFields() {
	sb := t.vol.Superblock()
	ExpectEq(volume.Magic, sb.MagicField)
	ExpectEq(5, sb.Blocks)
	ExpectEq(2, sb.Inodes)
	ExpectEq(volume.RootInode, sb.RootInodeField)
}

func (t *VolumeTest) RootInodeIsADirectory() {
	root := t.vol.Inode(volume.RootInode)
	ExpectTrue(root.IsDir())
	ExpectFalse(root.IsRegular())
}

func (t *VolumeTest) FileInodeIsRegular() {
	in := t.vol.Inode(2)
	ExpectTrue(in.IsRegular())
	ExpectEq(2, in.Size)
}

func (t *VolumeTest) DentryNamesRoundTrip() {
	ExpectEq(".", t.vol.Dentry(0).Name())
	ExpectEq("one_file", t.vol.Dentry(1).Name())
}

func (t *VolumeTest) DataReturnsTheRightBlock() {
	data := t.vol.Data(2)
	ExpectEq(volume.BlockSize, len(data))
	ExpectEq("hi", string(data[:2]))
}

func (t *VolumeTest) SetNamePadsWithNUL() {
	d := t.vol.Dentry(1)
	d.SetName("x")
	ExpectEq("x", d.Name())
	ExpectEq(byte(0), d.NameBuf[1])
}

func (t *VolumeTest) OutOfRangeInodeAccessPanics() {
	defer func() {
		ExpectNe(nil, recover())
	}()
	t.vol.Inode(99)
}
