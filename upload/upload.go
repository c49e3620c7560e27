// Package upload stores files attached to posts and projects.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmcleod/quill/internal/util"
)

// DefaultMaxSize is the per-file limit when none is configured.
const DefaultMaxSize = 10 << 20

var (
	ErrTooLarge        = errors.New("file too large")
	ErrTypeNotAllowed  = errors.New("file type not allowed")
	ErrEmptyFile       = errors.New("file is empty")
	defaultAllowedMime = map[string]bool{
		"image/jpeg":      true,
		"image/png":       true,
		"image/gif":       true,
		"image/webp":      true,
		"application/pdf": true,
	}
)

// Result describes a stored file.
type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Storage saves uploaded content under a fresh unique name.
type Storage interface {
	Save(ctx context.Context, originalName string, r io.Reader) (Result, error)
}

// Local stores files in a directory served under URLPrefix.
type Local struct {
	dir       string
	urlPrefix string
	maxSize   int64
	now       func() time.Time
}

var _ Storage = (*Local)(nil)

type Option func(*Local)

func WithMaxSize(n int64) Option {
	return func(l *Local) { l.maxSize = n }
}

func WithClock(now func() time.Time) Option {
	return func(l *Local) { l.now = now }
}

// NewLocal creates dir if needed.
func NewLocal(dir, urlPrefix string, opts ...Option) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	l := &Local{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		maxSize:   DefaultMaxSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Dir is the directory files are written to.
func (l *Local) Dir() string { return l.dir }

// MaxSize is the per-file limit in bytes.
func (l *Local) MaxSize() int64 { return l.maxSize }

// Save sniffs the content type, enforces the size limit and writes the
// file as <unix millis>-<random>.<ext>. A partially written file is removed.
func (l *Local) Save(_ context.Context, originalName string, r io.Reader) (Result, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("reading upload: %w", err)
	}
	if n == 0 {
		return Result{}, ErrEmptyFile
	}
	head = head[:n]
	mime, _, _ := strings.Cut(http.DetectContentType(head), ";")
	if !defaultAllowedMime[mime] {
		return Result{}, fmt.Errorf("%w: %s", ErrTypeNotAllowed, mime)
	}

	name, err := l.uniqueName(originalName)
	if err != nil {
		return Result{}, err
	}
	dest := filepath.Join(l.dir, name)
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("creating upload file: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(src, l.maxSize+1))
	closeErr := f.Close()
	if err == nil && written > l.maxSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return Result{}, err
	}

	return Result{
		URL:      path.Join(l.urlPrefix, name),
		Filename: name,
		Size:     written,
	}, nil
}

func (l *Local) uniqueName(originalName string) (string, error) {
	suffix, err := util.RandomChars(6)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(l.now().UnixMilli(), 10) + "-" + strings.ToLower(suffix) + "." + extension(originalName), nil
}

// extension returns a safe lowercase extension for name, or "jpg".
func extension(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filepath.Base(name))), ".")
	if ext == "" || len(ext) > 8 {
		return "jpg"
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "jpg"
		}
	}
	return ext
}
