// Package discimage resolves the disc image passed to the emulator. Plain
// images are used in place; .zip and .7z archives are extracted once into a
// cache directory and the extracted path is returned.
package discimage

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/cespare/xxhash"
)

var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06}
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
)

// Extensions are the disc and executable formats the emulator accepts.
var Extensions = []string{".iso", ".gcm", ".wbfs", ".ciso", ".gcz", ".wia", ".rvz", ".wad", ".dol", ".elf"}

// ErrNoImage is returned when an archive holds no recognised image.
var ErrNoImage = errors.New("no disc image found in archive")

// ErrUnsupportedFormat is returned for files that are neither an image nor a
// supported archive.
var ErrUnsupportedFormat = errors.New("unsupported image format")

type format int

const (
	formatUnknown format = iota
	formatRaw
	formatZIP
	format7z
)

// Resolve returns a path the emulator can open for image. Archives are
// extracted beneath cacheDir, keyed by the archive's path, size and mtime, so
// a second call reuses the earlier extraction.
func Resolve(image, cacheDir string) (string, error) {
	if image == "" {
		return "", errors.New("no disc image configured")
	}
	info, err := os.Stat(image)
	if err != nil {
		return "", fmt.Errorf("disc image: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("disc image %s is a directory", image)
	}

	f, err := detect(image)
	if err != nil {
		return "", err
	}
	switch f {
	case formatRaw:
		return image, nil
	case formatZIP, format7z:
		if cacheDir == "" {
			return "", fmt.Errorf("extract %s: no cache directory", image)
		}
		dir := filepath.Join(cacheDir, cacheKey(image, info))
		if f == formatZIP {
			return extractZIP(image, dir)
		}
		return extract7z(image, dir)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, image)
	}
}

// IsImage reports whether name has one of Extensions.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func detect(path string) (format, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied image path
	if err != nil {
		return formatUnknown, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return formatUnknown, fmt.Errorf("read image header: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, magicZIP) || bytes.HasPrefix(header, magicZIPEnd):
		return formatZIP, nil
	case bytes.HasPrefix(header, magic7z):
		return format7z, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return formatZIP, nil
	case ".7z":
		return format7z, nil
	}
	if IsImage(path) {
		return formatRaw, nil
	}
	return formatUnknown, nil
}

func cacheKey(path string, info os.FileInfo) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := abs + "\x00" + strconv.FormatInt(info.Size(), 10) + "\x00" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	return strconv.FormatUint(xxhash.Sum64([]byte(key)), 16)
}

func extractZIP(path, dir string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !IsImage(f.Name) {
			continue
		}
		return extractEntry(dir, f.Name, int64(f.UncompressedSize64), f.Open) //nolint:gosec // size is only compared
	}
	return "", ErrNoImage
}

func extract7z(path, dir string) (string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !IsImage(f.Name) {
			continue
		}
		return extractEntry(dir, f.Name, f.FileInfo().Size(), f.Open)
	}
	return "", ErrNoImage
}

// extractEntry streams one archive entry to dir/<base>. An existing file of
// the expected size is reused; a partial write never lands at the final path.
func extractEntry(dir, name string, size int64, open func() (io.ReadCloser, error)) (string, error) {
	dest := filepath.Join(dir, filepath.Base(name))
	if info, err := os.Stat(dest); err == nil && info.Size() == size {
		return dest, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	rc, err := open()
	if err != nil {
		return "", fmt.Errorf("open %s in archive: %w", name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(dir, ".extract-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("install %s: %w", dest, err)
	}
	return dest, nil
}
