// package sysconf rewrites the OS-level configuration files the setup
// wizard manages: the boot firmware config (device-tree overlays for
// audio hardware) and the wpa_supplicant network file.
package sysconf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// backupSuffix is appended to the one-time backup taken before the first
// rewrite of a system file.
const backupSuffix = ".spotipi.backup"

// writeFileAtomic writes content to path via a temporary sibling and
// rename, so a failure mid-write cannot leave a truncated system file.
func writeFileAtomic(path, content string, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// backupOnce copies path to path+backupSuffix unless a backup already
// exists. A missing source is not an error.
func backupOnce(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	backupPath := path + backupSuffix
	if _, err := os.Stat(backupPath); err == nil {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot backup %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("cannot backup %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("cannot backup %s: %w", path, err)
	}

	return nil
}
