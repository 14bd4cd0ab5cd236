package adapter

import (
	"context"
	"io"
	"time"
)

type CompileRequest struct {
	JobID   string
	Source  string
	Timeout time.Duration
}

type CompileOutput struct {
	Success     bool
	PDFPath     string
	PDFSize     int64
	LogOutput   string
	Errors      []CompileError
	Error       string
	ElapsedTime time.Duration
}

// CompileError is one problem extracted from the compiler log.
type CompileError struct {
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// Compiler turns document source into a PDF artifact.
// A timeout returns an error wrapping domain.ErrTimeout.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (*CompileOutput, error)
}

type SweepStats struct {
	FilesDeleted       int   `json:"files_deleted"`
	DirectoriesDeleted int   `json:"directories_deleted"`
	SpaceFreed         int64 `json:"space_freed"`
}

type DiskUsage struct {
	Path       string  `json:"path"`
	TotalBytes uint64  `json:"total_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	UsedPct    float64 `json:"used_percent"`
}

// Workspace owns the compiler's scratch directories.
type Workspace interface {
	// Sweep removes files last modified before cutoff and directories left empty.
	// A missing root is not an error.
	Sweep(ctx context.Context, cutoff time.Time) (SweepStats, error)
	DiskUsage() (DiskUsage, error)
}

type ArtifactKind string

const (
	ArtifactPDF ArtifactKind = "pdf"
	ArtifactLog ArtifactKind = "log"
)

// Artifact is an open handle on a file a compile job left in its work dir.
type Artifact struct {
	io.ReadSeekCloser
	Name    string
	Size    int64
	ModTime time.Time
}

// ArtifactStore opens compile outputs by job id. Files removed by cleanup
// report domain.ErrNotFound.
type ArtifactStore interface {
	OpenArtifact(jobID string, kind ArtifactKind) (*Artifact, error)
}
