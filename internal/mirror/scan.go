package mirror

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// The scan phase does every disk read of a pass up front and produces an
// immutable snapshot. If anything fails the snapshot is discarded and the
// tree stays exactly as the previous pass left it; the apply phase that
// follows is pure in-memory and cannot fail.

type fileScan struct {
	size    int64
	modTime time.Time
	// content/digest are unset when the read was skipped because size and
	// modTime matched the node's last observation.
	content []byte
	digest  string
}

type dirScan struct {
	fileNames []string
	dirNames  []string
	files     map[string]*fileScan
	dirs      map[string]*dirScan
}

// scanDir snapshots the directory at diskPath. node is the currently known
// node for that path, consulted read-only for read-skip hints; nil for a
// newly discovered directory. Returns (nil, nil) when the path is gone.
func (m *Mirror) scanDir(diskPath string, node *Node) (*dirScan, error) {
	entries, err := os.ReadDir(diskPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w: %w", diskPath, ErrIOFailure, err)
	}

	scan := &dirScan{
		files: make(map[string]*fileScan),
		dirs:  make(map[string]*dirScan),
	}

	for _, entry := range entries {
		name := entry.Name()
		if _, skip := m.ignore[name]; skip {
			continue
		}

		switch {
		case entry.IsDir():
			var known *Node
			if node != nil {
				node.mu.RLock()
				known, _ = node.dirs.get(name)
				node.mu.RUnlock()
			}
			child, err := m.scanDir(filepath.Join(diskPath, name), known)
			if err != nil {
				return nil, err
			}
			if child == nil {
				// vanished between listing and recursion; next pass sees it
				continue
			}
			scan.dirNames = append(scan.dirNames, name)
			scan.dirs[name] = child

		case entry.Type().IsRegular():
			var known *Node
			if node != nil {
				node.mu.RLock()
				known, _ = node.files.get(name)
				node.mu.RUnlock()
			}
			child, err := scanFile(filepath.Join(diskPath, name), known)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			scan.fileNames = append(scan.fileNames, name)
			scan.files[name] = child

		default:
			// symlinks and other irregular entries are not tracked
		}
	}

	return scan, nil
}

// scanFile snapshots a single file. When the known node has a digest and the
// file's size+modTime are unchanged since the last read, the content read is
// skipped and the snapshot marks the file as unchanged.
func scanFile(diskPath string, node *Node) (*fileScan, error) {
	info, err := os.Stat(diskPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w: %w", diskPath, ErrIOFailure, err)
	}

	if node != nil {
		node.mu.RLock()
		skip := node.digest != "" && node.size == info.Size() && node.modTime.Equal(info.ModTime())
		node.mu.RUnlock()
		if skip {
			return &fileScan{size: info.Size(), modTime: info.ModTime()}, nil
		}
	}

	content, err := os.ReadFile(diskPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w: %w", diskPath, ErrIOFailure, err)
	}

	sum := md5.Sum(content)
	return &fileScan{
		size:    int64(len(content)),
		modTime: info.ModTime(),
		content: content,
		digest:  hex.EncodeToString(sum[:]),
	}, nil
}
