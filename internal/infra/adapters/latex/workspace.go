package latex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var (
	_ adapter.Workspace     = (*Workspace)(nil)
	_ adapter.ArtifactStore = (*Workspace)(nil)
)

// Workspace is the scratch tree shared by compile jobs.
type Workspace struct {
	root string
}

func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

// OpenArtifact opens {root}/{job_id}/resume.{pdf|log}.
func (w *Workspace) OpenArtifact(jobID string, kind adapter.ArtifactKind) (*adapter.Artifact, error) {
	if jobID == "" || jobID == "." || jobID == ".." || filepath.Base(jobID) != jobID {
		return nil, fmt.Errorf("%w: bad job id %q", domain.ErrInvalidArgument, jobID)
	}
	switch kind {
	case adapter.ArtifactPDF, adapter.ArtifactLog:
	default:
		return nil, fmt.Errorf("%w: unknown artifact %q", domain.ErrInvalidArgument, kind)
	}

	name := jobName + "." + string(kind)
	f, err := os.Open(filepath.Join(w.root, jobID, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s of %s", domain.ErrNotFound, name, jobID)
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s of %s", domain.ErrNotFound, name, jobID)
	}
	return &adapter.Artifact{ReadSeekCloser: f, Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (w *Workspace) Sweep(ctx context.Context, cutoff time.Time) (adapter.SweepStats, error) {
	var st adapter.SweepStats
	var dirs []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != w.root {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				st.FilesDeleted++
				st.SpaceFreed += info.Size()
			}
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	// deepest first so parents empty out before they are checked
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		if os.Remove(d) == nil {
			st.DirectoriesDeleted++
		}
	}
	return st, nil
}

func (w *Workspace) DiskUsage() (adapter.DiskUsage, error) {
	path := w.root
	if _, err := os.Stat(path); err != nil {
		path = filepath.Dir(path)
	}
	var fsStat unix.Statfs_t
	if err := unix.Statfs(path, &fsStat); err != nil {
		return adapter.DiskUsage{}, err
	}
	total := fsStat.Blocks * uint64(fsStat.Bsize)
	free := fsStat.Bavail * uint64(fsStat.Bsize)
	du := adapter.DiskUsage{Path: path, TotalBytes: total, FreeBytes: free}
	if total > 0 {
		du.UsedPct = float64(total-free) / float64(total) * 100
	}
	return du, nil
}
