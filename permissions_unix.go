//go:build !windows

package main

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// ensureReadable returns an error if the current user would be denied read
// access to the file. It runs before acquisition so unreadable inputs fail
// with a clear message instead of a bare EACCES out of the open step.
func ensureReadable(path string, info fs.FileInfo) error {
	if info == nil {
		var err error
		info, err = os.Stat(path)
		if err != nil {
			return err
		}
	}

	perms := info.Mode().Perm()

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	fileUID := int(stat.Uid)
	fileGID := int(stat.Gid)

	if fileUID == os.Geteuid() {
		if perms&0400 == 0 {
			return fmt.Errorf("permission denied reading %s: owner has no read bit", path)
		}
		return nil
	}

	if inGroup(fileGID) {
		if perms&0040 == 0 {
			return fmt.Errorf("permission denied reading %s: group has no read bit", path)
		}
		return nil
	}

	if perms&0004 == 0 {
		return fmt.Errorf("permission denied reading %s: others have no read bit", path)
	}

	return nil
}

func inGroup(gid int) bool {
	if gid == os.Getegid() {
		return true
	}
	groups, err := syscall.Getgroups()
	if err != nil {
		return false
	}
	for _, g := range groups {
		if int(g) == gid {
			return true
		}
	}
	return false
}
