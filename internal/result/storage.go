// Package result lays out run directories and reads and writes the
// records stored in them.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// CreateRunDir creates baseDir/runs/<name> and points baseDir/latest at it.
// An empty name uses the current UTC time.
func CreateRunDir(baseDir, name string) (string, error) {
	if name == "" {
		name = time.Now().UTC().Format("2006-01-02T15-04-05")
	}
	runDir, err := filepath.Abs(filepath.Join(baseDir, "runs", name))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	// A concurrent run may have recreated the link first; either target is fine.
	if err := os.Symlink(runDir, latest); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// WriteRecord stores v as indented JSON in dir/name.
func WriteRecord(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, name), append(data, '\n'), 0o644)
}

// ReadRecord decodes dir/name into v.
func ReadRecord(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

func WriteMeta(runDir string, meta *RunMeta) error {
	return WriteRecord(runDir, MetaFile, meta)
}

func ReadMeta(path string) (*RunMeta, error) {
	var meta RunMeta
	if err := ReadRecord(filepath.Dir(path), filepath.Base(path), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// CollectMetas finds every run under dir, oldest first. Unreadable meta
// files are skipped.
func CollectMetas(dir string) ([]*RunMeta, error) {
	var metas []*RunMeta
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == "latest" {
			return filepath.SkipDir
		}
		if info.Name() == MetaFile {
			meta, err := ReadMeta(path)
			if err != nil {
				return nil
			}
			metas = append(metas, meta)
		}
		return nil
	})
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].StartedAt.Before(metas[j].StartedAt)
	})
	return metas, err
}
