// Package spool stages user uploads on local disk before they are
// forwarded to the backend as multipart parts.
package spool

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"marketingflow/logging"
)

var (
	ErrTooLarge              = errors.New("upload exceeds size limit")
	ErrInsufficientResources = errors.New("insufficient free resources")
)

// Config bounds what the spool accepts.
type Config struct {
	// Dir is created if empty.
	Dir         string
	MaxSize     int64
	MinFreeMem  int64
	MinFreeDisk int64
}

type Spool struct {
	dir    string
	owned  bool
	cfg    Config
	logger *slog.Logger

	freeMem  func() (uint64, error)
	freeDisk func(path string) (uint64, error)
}

// File is a staged upload.
type File struct {
	Filename string
	Path     string
	Size     int64
}

// Remove deletes the staged copy.
func (f *File) Remove() error {
	if f == nil {
		return nil
	}
	return os.Remove(f.Path)
}

func New(cfg Config, logger *slog.Logger) (*Spool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Spool{
		dir:      cfg.Dir,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "spool"),
		freeMem:  systemFreeMem,
		freeDisk: systemFreeDisk,
	}
	if s.dir == "" {
		dir, err := os.MkdirTemp("", "marketingflow_")
		if err != nil {
			return nil, fmt.Errorf("could not create spool directory: %w", err)
		}
		s.dir = dir
		s.owned = true
	} else if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create spool directory: %w", err)
	}
	s.logger.Info("spool directory ready", "dir", s.dir)
	return s, nil
}

func (s *Spool) Dir() string { return s.dir }

// Close removes the spool directory if New created it.
func (s *Spool) Close() error {
	if !s.owned {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// Stage copies r into the spool, failing with ErrTooLarge past MaxSize.
// The uploaded file name is kept for the multipart part; only its base
// name is used.
func (s *Spool) Stage(name string, r io.Reader) (*File, error) {
	if err := s.CheckResources(); err != nil {
		return nil, err
	}

	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." {
		base = "upload"
	}

	tmp, err := os.CreateTemp(s.dir, "upload_*"+filepath.Ext(base))
	if err != nil {
		return nil, err
	}

	var src io.Reader = r
	if s.cfg.MaxSize > 0 {
		src = &io.LimitedReader{R: r, N: s.cfg.MaxSize + 1}
	}
	written, err := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.cfg.MaxSize > 0 && written > s.cfg.MaxSize {
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.cfg.MaxSize)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	s.logger.Debug("upload staged", "name", base, "bytes", written)
	return &File{Filename: base, Path: tmp.Name(), Size: written}, nil
}

// CheckResources verifies there is room to stage another upload.
func (s *Spool) CheckResources() error {
	if s.cfg.MinFreeMem > 0 {
		avail, err := s.freeMem()
		if err != nil {
			s.logger.Warn("could not get memory usage", "error", err)
		} else if avail < uint64(s.cfg.MinFreeMem) {
			return fmt.Errorf("%w: available memory %d, required %d", ErrInsufficientResources, avail, s.cfg.MinFreeMem)
		}
	}

	if s.cfg.MinFreeDisk > 0 {
		free, err := s.freeDisk(s.dir)
		if err != nil {
			s.logger.Warn("could not get disk usage", "dir", s.dir, "error", err)
		} else if free < uint64(s.cfg.MinFreeDisk) {
			return fmt.Errorf("%w: free disk %d, required %d", ErrInsufficientResources, free, s.cfg.MinFreeDisk)
		}
	}
	return nil
}

func systemFreeMem() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func systemFreeDisk(path string) (uint64, error) {
	d, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return d.Free, nil
}
