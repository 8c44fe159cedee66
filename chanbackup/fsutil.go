package chanbackup

import (
	"fmt"
	"os"
)

// fsyncDir fsyncs a directory's inode, completing the
// write-fsync-rename-fsyncdir crash-atomicity recipe spec §4.4 "Atomic
// write" requires.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("chanbackup: open %s for fsync: %w", dir, err)
	}
	defer f.Close()

	return f.Sync()
}
