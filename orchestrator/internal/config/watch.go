package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file content changes. Writes that leave the bytes unchanged are
// ignored. It runs until ctx is cancelled.
//
// A file that no longer validates is logged and skipped; onChange only ever
// sees a valid Config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	last := digest(path)

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves replace the file and surface as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Re-add in case the inode was replaced.
			_ = watcher.Add(path)

			sum := digest(path)
			if sum == nil || bytes.Equal(sum, last) {
				continue
			}
			last = sum

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: changed file does not load", "path", path, "err", err)
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

func digest(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}
