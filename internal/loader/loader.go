package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"askdocs/internal/domain"
)

// MaxFileSize is the largest accepted document in bytes.
const MaxFileSize = 10 << 20

// Supported lists the accepted file extensions.
var Supported = map[string]struct{}{
	".txt": {},
	".md":  {},
	".pdf": {},
}

// IsSupported reports whether name has an accepted extension.
func IsSupported(name string) bool {
	_, ok := Supported[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Validate checks the file name and its size in bytes before reading.
func Validate(name string, size int64) error {
	if !IsSupported(name) {
		return fmt.Errorf("%w: %q, please provide a .pdf, .txt or .md file", domain.ErrUnsupportedType, filepath.Ext(name))
	}
	if size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", domain.ErrTooLarge, size, MaxFileSize)
	}
	if size == 0 {
		return fmt.Errorf("%w: %s is empty", domain.ErrEmptyInput, name)
	}
	return nil
}

// Read returns the text of a document: valid UTF-8, NUL bytes removed,
// surrounding whitespace trimmed. PDFs are reduced to their text layer
// first. At most MaxFileSize bytes are accepted.
func Read(name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("%w: %s exceeds the %d byte limit", domain.ErrTooLarge, name, MaxFileSize)
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		if data, err = extractPDF(name, data); err != nil {
			return "", err
		}
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: unable to decode %s as UTF-8", domain.ErrUnsupportedType, name)
	}
	text := strings.TrimSpace(string(bytes.ReplaceAll(data, []byte{0}, nil)))
	if text == "" {
		return "", fmt.Errorf("%w: %s contains no readable text", domain.ErrEmptyInput, name)
	}
	return text, nil
}

// Load validates and reads the file at path.
func Load(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return "", err
	}
	if err := Validate(path, info.Size()); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Read(path, f)
}

// Expand resolves paths, directories and ** glob patterns to the sorted,
// deduplicated list of supported files they name.
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok || !IsSupported(p) {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, pattern := range patterns {
		if info, err := os.Stat(pattern); err == nil && info.IsDir() {
			pattern = filepath.Join(pattern, "**", "*")
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", domain.ErrInvalidArgument, pattern, err)
		}
		if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[{") {
			matches = []string{pattern}
		}
		for _, m := range matches {
			add(m)
		}
	}
	sort.Strings(out)
	return out, nil
}
