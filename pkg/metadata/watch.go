package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange for every created, written, removed or renamed Go
// source below folders until ctx is done. Missing folders are skipped.
func Watch(ctx context.Context, folders []string, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, folder := range folders {
		n, err := addTree(watcher, folder)
		if err != nil {
			return err
		}
		watched += n
	}
	if watched == 0 {
		return fmt.Errorf("no existing folder to watch in %v", folders)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, err := addTree(watcher, event.Name); err != nil {
						return err
					}
					continue
				}
			}
			if !isSourceFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				onChange(event.Name)
			}
		}
	}
}

// addTree watches root and its sub directories
func addTree(watcher *fsnotify.Watcher, root string) (int, error) {
	added := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		added++
		return nil
	})
	return added, err
}
