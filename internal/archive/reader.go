package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Open opens a log file for reading. Files ending in .gz or .zst are
// decompressed transparently.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("archive: gzip %s: %w", path, err)
		}
		return &decompressor{Reader: zr, close: func() { _ = zr.Close() }, file: f}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("archive: zstd %s: %w", path, err)
		}
		return &decompressor{Reader: zr, close: zr.Close, file: f}, nil
	default:
		return f, nil
	}
}

type decompressor struct {
	io.Reader
	close func()
	file  *os.File
}

func (d *decompressor) Close() error {
	d.close()
	return d.file.Close()
}

// ReadLines calls fn for every line of r with the line terminator removed.
// Lines of any length are supported. Iteration stops at the first error
// returned by fn.
func ReadLines(r io.Reader, fn func(line string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: read: %w", err)
		}
	}
}
