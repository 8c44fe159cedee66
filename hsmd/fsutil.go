package hsmd

import (
	"fmt"
	"os"
)

// fsyncDir fsyncs a directory's inode, the second half of the
// write-fsync-rename(-or-create)-fsyncdir crash-atomicity recipe spec §4.2
// requires for the seed file: without it, a crash can leave the file's
// directory entry unpersisted even though the file's own contents are
// safely on disk.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("hsmd: open %s for fsync: %w", dir, err)
	}
	defer f.Close()

	return f.Sync()
}
