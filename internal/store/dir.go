package store

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/jobrun/blobcache/internal/blobcacheerr"
)

const (
	blobPrefix = "blob_"
	tempPrefix = "tmp-"
)

// DirName returns the per-process storage directory name, blob-<user>-<pid>,
// falling back to "default" and "0" when the OS user or pid can't be
// determined.
func DirName() string {
	u := "default"
	if cur, err := user.Current(); err == nil && cur.Username != "" {
		u = cur.Username
	}
	pid := os.Getpid()
	if pid <= 0 {
		pid = 0
	}
	return fmt.Sprintf("blob-%s-%s", u, strconv.Itoa(pid))
}

// ensureDir creates base/DirName() if it does not already exist and returns
// its path.
func ensureDir(base string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	path := base + string(os.PathSeparator) + DirName()
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", blobcacheerr.New(blobcacheerr.KindIO, "store:ensureDir", err)
	}
	return path, nil
}
