// Package archive compresses staged trees into distributable archives with
// bounded retry on transient file-lock failures.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"github.com/marketpack/marketpack/pkg/logger"
	"github.com/marketpack/marketpack/pkg/types"
)

const (
	// DefaultAttempts is the number of tries before a transient failure is fatal
	DefaultAttempts = 6

	// DefaultDelay is the fixed wait between attempts
	DefaultDelay = 5 * time.Second

	partialSuffix = ".partial"
)

// ErrLocked marks a destination held open by another process
var ErrLocked = errors.New("archive destination is locked")

// ArchiveError reports a failed Compress call and how many attempts were made
type ArchiveError struct {
	Path      string
	Attempts  int
	Transient bool
	Err       error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to write archive %s after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Is classifies exhausted transient failures as types.ErrTransientIO
func (e *ArchiveError) Is(target error) bool {
	return e.Transient && target == types.ErrTransientIO
}

// IsTransient reports whether err is a retryable lock or busy failure
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrLocked) || isBusy(err)
}

// Writer writes archives in one format
type Writer struct {
	format   types.ArchiveFormat
	attempts int
	delay    time.Duration
	log      logger.Logger

	create func(name string) (io.WriteCloser, error)
	rename func(oldpath, newpath string) error
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewWriter creates a writer from the archive configuration. Nil config uses zip defaults.
func NewWriter(cfg *types.ArchiveConfig, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	w := &Writer{
		format:   types.ArchiveFormatZip,
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		log:      log,
		create:   func(name string) (io.WriteCloser, error) { return os.Create(name) },
		rename:   os.Rename,
		sleep:    sleepContext,
	}
	if cfg != nil {
		if cfg.Format != "" {
			w.format = cfg.Format
		}
		if cfg.Attempts > 0 {
			w.attempts = cfg.Attempts
		}
		w.delay = cfg.RetryDelay()
	}
	return w
}

// Format returns the archive format
func (w *Writer) Format() types.ArchiveFormat {
	return w.format
}

// Extension returns the file extension for produced archives
func (w *Writer) Extension() string {
	return w.format.Extension()
}

// Compress writes stagedRoot into destFile. Entries are prefixed with the base
// name of stagedRoot. On success destFile is fully replaced; on failure any
// previous destFile is left untouched.
func (w *Writer) Compress(ctx context.Context, stagedRoot, destFile string) error {
	info, err := os.Stat(stagedRoot)
	if err != nil {
		return &ArchiveError{Path: destFile, Attempts: 1, Err: err}
	}
	if !info.IsDir() {
		return &ArchiveError{Path: destFile, Attempts: 1, Err: fmt.Errorf("%s is not a directory", stagedRoot)}
	}

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &ArchiveError{Path: destFile, Attempts: attempt - 1, Err: err}
		}

		lastErr = w.writeOnce(stagedRoot, destFile)
		if lastErr == nil {
			w.log.Debug("Archive written",
				logger.WithField("path", destFile),
				logger.WithField("attempts", attempt),
			)
			return nil
		}
		if !IsTransient(lastErr) {
			return &ArchiveError{Path: destFile, Attempts: attempt, Err: lastErr}
		}
		if attempt == w.attempts {
			break
		}

		w.log.Warn("Archive destination busy, retrying",
			logger.WithField("path", destFile),
			logger.WithField("attempt", attempt),
			logger.WithField("delay", w.delay),
		)
		if err := w.sleep(ctx, w.delay); err != nil {
			return &ArchiveError{Path: destFile, Attempts: attempt, Err: err}
		}
	}

	return &ArchiveError{Path: destFile, Attempts: w.attempts, Transient: true, Err: lastErr}
}

func (w *Writer) writeOnce(stagedRoot, destFile string) (err error) {
	partial := destFile + partialSuffix
	out, err := w.create(partial)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(partial)
		}
	}()

	switch w.format {
	case types.ArchiveFormatTarXZ:
		err = writeTarXZ(out, stagedRoot)
	default:
		err = writeZip(out, stagedRoot)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	return w.rename(partial, destFile)
}

type entry struct {
	path string
	name string
	info fs.FileInfo
}

// walkEntries lists directories and regular files below root in lexical order,
// named with the root's base name as prefix
func walkEntries(root string) ([]entry, error) {
	prefix := filepath.Base(root)
	var entries []entry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		name := prefix
		if rel != "." {
			name = path.Join(prefix, filepath.ToSlash(rel))
		}
		entries = append(entries, entry{path: p, name: name, info: info})
		return nil
	})
	return entries, err
}

func writeZip(out io.Writer, root string) error {
	entries, err := walkEntries(root)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(out)
	for _, e := range entries {
		header, err := zip.FileInfoHeader(e.info)
		if err != nil {
			return err
		}
		header.Name = e.name
		if e.info.IsDir() {
			header.Name += "/"
			header.Method = zip.Store
			if _, err := zw.CreateHeader(header); err != nil {
				return err
			}
			continue
		}

		header.Method = zip.Deflate
		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if err := copyFileTo(dst, e.path); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeTarXZ(out io.Writer, root string) error {
	entries, err := walkEntries(root)
	if err != nil {
		return err
	}

	xw, err := xz.NewWriter(out)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(xw)

	for _, e := range entries {
		header, err := tar.FileInfoHeader(e.info, "")
		if err != nil {
			return err
		}
		header.Name = e.name
		if e.info.IsDir() {
			header.Name += "/"
		}
		header.Uname, header.Gname = "", ""
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if e.info.IsDir() {
			continue
		}
		if err := copyFileTo(tw, e.path); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return xw.Close()
}

func copyFileTo(dst io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
