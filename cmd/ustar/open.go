package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/ustar"
	"github.com/meigma/ustar/cache"
	"github.com/meigma/ustar/cache/disk"
	"github.com/meigma/ustar/cache/memory"
	ustarhttp "github.com/meigma/ustar/http"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// openArchive opens name, which is a local path or an http(s) URL, as an
// Archive configured from the CLI settings. The returned closer releases
// every resource the archive holds.
func (c *cli) openArchive(ctx context.Context, name string) (*ustar.Archive, io.Closer, error) {
	src, closer, err := c.openSource(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	src, err = c.wrapCache(src)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	opts := []ustar.Option{
		ustar.WithLogger(c.log().With("archive", name)),
		ustar.WithMaxLinkHops(c.cfg.MaxLinkHops),
	}
	if c.indexPath != "" {
		data, err := os.ReadFile(c.indexPath)
		if err != nil {
			closer.Close()
			return nil, nil, fmt.Errorf("read index: %w", err)
		}
		opts = append(opts, ustar.WithIndex(data))
	}
	a, err := ustar.New(src, opts...)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return a, closer, nil
}

func (c *cli) openSource(ctx context.Context, name string) (ustar.ByteSource, io.Closer, error) {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		opts := []ustarhttp.Option{ustarhttp.WithClient(c.httpClient)}
		for k, v := range c.cfg.HTTPHeaders {
			opts = append(opts, ustarhttp.WithHeader(k, v))
		}
		src, err := ustarhttp.NewSource(ctx, name, opts...)
		if err != nil {
			return nil, nil, err
		}
		return src, closerFunc(func() error { return nil }), nil
	}

	f, err := os.Open(name) //nolint:gosec // user-provided archive path
	if err != nil {
		return nil, nil, err
	}
	f, cleanup, err := c.decompress(f)
	if err != nil {
		return nil, nil, err
	}
	src, err := ustar.NewFileSource(f)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return src, closerFunc(cleanup), nil
}

// decompress returns f unchanged for a plain archive. Gzip and zstd input
// is expanded into a temporary file, since queries need random access.
func (c *cli) decompress(f *os.File) (*os.File, func() error, error) {
	br := bufio.NewReader(f)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, nil, err
	}

	var r io.Reader
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return f, f.Close, nil
	}
	defer f.Close()

	tmp, err := os.CreateTemp(c.cfg.TempDir, "ustar-*.tar")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error {
		err := tmp.Close()
		return errors.Join(err, os.Remove(tmp.Name()))
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("decompress %s: %w", f.Name(), err)
	}
	c.log().Debug("decompressed archive", "source", f.Name(), "temp", tmp.Name(), "bytes", n)
	return tmp, cleanup, nil
}

// wrapCache puts a block cache in front of src when one is configured.
// A disk cache takes precedence over a memory cache.
func (c *cli) wrapCache(src ustar.ByteSource) (ustar.ByteSource, error) {
	var store cache.Store
	switch {
	case c.cfg.Cache.Dir != "":
		s, err := disk.New(c.cfg.Cache.Dir, disk.WithMaxBytes(c.cfg.Cache.MaxBytes))
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		store = s
	case c.cfg.Cache.Blocks > 0:
		s, err := memory.New(c.cfg.Cache.Blocks)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		store = s
	default:
		return src, nil
	}
	return cache.Wrap(src, store, cache.WithBlockSize(c.cfg.Cache.BlockSize))
}
