package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"donations/internal/core"
	applog "donations/internal/log"
)

const maxLineBytes = 1 << 20

// FileStore keeps the ledger as a UTF-8 text file, one encoded donation
// per line, in append order.
type FileStore struct {
	mu   sync.RWMutex
	path string
	opts options
}

// NewFileStore returns a store over path and materializes the file if it
// does not exist yet.
func NewFileStore(path string, opts ...Option) *FileStore {
	o := buildOptions(opts)
	o.logger = o.logger.With(applog.FieldPathOnDisk, path)
	s := &FileStore{path: path, opts: o}
	s.EnsureExists()
	return s
}

// Path returns the ledger file path
func (s *FileStore) Path() string {
	return s.path
}

// EnsureExists creates an empty ledger file when none exists. Failures are
// logged; a missing file reads as an empty ledger.
func (s *FileStore) EnsureExists() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.opts.logger.Error("Failed to create ledger directory", applog.FieldError, err)
			return
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.opts.logger.Error("Failed to create ledger file", applog.FieldError, err)
		return
	}
	f.Close()
}

// Append writes one complete line and syncs it to disk before returning.
func (s *FileStore) Append(ctx context.Context, d core.Donation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := d.Encode() + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrStoreWrite, s.path, err)
	}
	// A hand-edited ledger may lack the final newline; keep the new record
	// on a line of its own.
	if missing, err := missingTrailingNewline(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: inspect %s: %w", ErrStoreWrite, s.path, err)
	} else if missing {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStoreWrite, s.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrStoreWrite, s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrStoreWrite, s.path, err)
	}

	s.opts.logger.DebugContext(ctx, "Donation appended",
		applog.FieldDonor, d.Name(),
		applog.FieldAmount, d.Amount().String())
	return nil
}

func missingTrailingNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return last[0] != '\n', nil
}

// All scans the file in order. A missing file is an empty ledger; a file
// that cannot be opened yields ErrStoreRead.
func (s *FileStore) All(ctx context.Context) iter.Seq2[core.Donation, error] {
	return func(yield func(core.Donation, error) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		f, err := os.Open(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield(core.Donation{}, fmt.Errorf("%w: open %s: %w", ErrStoreRead, s.path, err))
			return
		}
		defer f.Close()

		r := bufio.NewReader(f)
		for lineNo := 1; ; lineNo++ {
			raw, tooLong, err := readLine(r)
			if err != nil && !errors.Is(err, io.EOF) {
				yield(core.Donation{}, fmt.Errorf("%w: read %s: %w", ErrStoreRead, s.path, err))
				return
			}
			last := err != nil
			if cerr := ctx.Err(); cerr != nil {
				yield(core.Donation{}, cerr)
				return
			}

			text := string(raw)
			if !tooLong && strings.TrimSpace(text) == "" {
				if last {
					return
				}
				continue
			}
			decode := func() (core.Donation, error) {
				return core.Decode(text)
			}
			if tooLong {
				text = text[:64] + "..."
				decode = func() (core.Donation, error) {
					return core.Donation{}, fmt.Errorf("%w: line longer than %d bytes", core.ErrMalformedRecord, maxLineBytes)
				}
			}
			d, skip, err := s.opts.decodeRecord(lineNo, text, decode)
			if err != nil {
				yield(core.Donation{}, err)
				return
			}
			if !skip && !yield(d, nil) {
				return
			}
			if last {
				return
			}
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxLineBytes is read to its end but only its first maxLineBytes bytes are
// kept, with tooLong set. err is io.EOF when the file ends on this line.
func readLine(r *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		switch {
		case len(line)+len(chunk) <= maxLineBytes:
			line = append(line, chunk...)
		case !tooLong:
			tooLong = true
			line = append(line, chunk[:maxLineBytes-len(line)]...)
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, rerr
	}
}

// Clear replaces the ledger with an empty file. The empty file is written
// beside the ledger and renamed over it, so a scan sees either the old
// contents or none.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStoreWrite, err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %w", ErrStoreWrite, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %w", ErrStoreWrite, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %w", ErrStoreWrite, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %w", ErrStoreWrite, s.path, err)
	}

	s.opts.logger.InfoContext(ctx, "Ledger cleared")
	return nil
}

// Sum adds up every amount in the file.
func (s *FileStore) Sum(ctx context.Context) (decimal.Decimal, error) {
	return SumOf(s.All(ctx))
}
