// Command tosfs mounts a TOSFS disk image as a FUSE file system.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/dpicard/tosfs/internal/tosfs"
	"github.com/dpicard/tosfs/internal/volume"
)

var (
	fDebug    = flag.Bool("debug", false, "Log every FUSE op, and dump the image summary, to stderr.")
	fReadOnly = flag.Bool("read_only", false, "Mount in read-only mode.")
)

func usage() {
	os.Stderr.WriteString("usage: tosfs [-debug] <mountpoint> <image-path>\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	mountpoint := flag.Arg(0)
	imagePath := flag.Arg(1)

	vol, err := volume.Open(imagePath)
	if err != nil {
		log.Fatalf("tosfs: %v", err)
	}
	defer vol.Close()

	logger := log.New(os.Stderr, "tosfs: ", log.LstdFlags)

	cfg := &fuse.MountConfig{
		ReadOnly: *fReadOnly,
	}
	if *fDebug {
		cfg.DebugLogger = log.New(os.Stderr, "tosfs/fuse: ", 0)

		sb := vol.Superblock()
		logger.Printf("image %s: magic=%#x block_size=%d blocks=%d/%d inodes=%d",
			imagePath, sb.MagicField, sb.BlockSizeField, sb.Blocks, volume.MaxBlocks, sb.Inodes)
		for i := uint32(0); i <= sb.Inodes; i++ {
			d := vol.Dentry(i)
			in := vol.Inode(d.InodeNum)
			logger.Printf("dentry[%d]: name=%q inode=%d mode=%o size=%d", i, d.Name(), d.InodeNum, in.Mode, in.Size)
		}
	}

	server := fuseutil.NewFileSystemServer(tosfs.New(tosfs.NewCore(vol)))

	mfs, err := fuse.Mount(mountpoint, server, cfg)
	if err != nil {
		log.Fatalf("tosfs: mount: %v", err)
	}

	if err := mfs.Join(context.Background()); err != nil {
		log.Fatalf("tosfs: serving: %v", err)
	}
}
