package sys

import (
	"io/fs"
	"path/filepath"

	"github.com/grabtube/grabtube/server/config"
	"golang.org/x/sys/unix"
)

// FreeSpace reports the bytes available on the filesystem backing the
// download directory.
func FreeSpace() (uint64, error) {
	var stat unix.Statfs_t

	if err := unix.Statfs(config.Instance().Paths.DownloadPath, &stat); err != nil {
		return 0, err
	}

	return stat.Bavail * uint64(stat.Bsize), nil
}

// DirectoryTree returns a flattened listing of the download directory.
func DirectoryTree() (*[]string, error) {
	var tree []string

	root := config.Instance().Paths.DownloadPath

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			tree = append(tree, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &tree, nil
}
