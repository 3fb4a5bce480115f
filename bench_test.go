package ustar

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/meigma/ustar/cache"
	"github.com/meigma/ustar/cache/memory"
	ustarhttp "github.com/meigma/ustar/http"
	"github.com/meigma/ustar/internal/testutil"
)

var (
	benchSinkBool  bool
	benchSinkInt   int
	benchSinkNames []string
	benchSinkBytes []byte
	benchSinkDirs  []fs.DirEntry
)

// makeBenchArchive returns an archive of dirCount directories holding
// fileCount files of fileSize bytes in total, and the file paths in order.
func makeBenchArchive(b *testing.B, fileCount, fileSize, dirCount int) ([]byte, []string) {
	b.Helper()
	content := bytes.Repeat([]byte("ustar"), fileSize/5+1)[:fileSize]
	entries := make([]testutil.TestEntry, 0, fileCount+dirCount)
	paths := make([]string, 0, fileCount)
	perDir := max(fileCount/dirCount, 1)
	for d := range dirCount {
		dir := fmt.Sprintf("dir%02d/", d)
		entries = append(entries, testutil.Dir(dir))
		for f := range perDir {
			p := fmt.Sprintf("%sfile%04d.dat", dir, f)
			entries = append(entries, testutil.TestEntry{Name: p, Typeflag: '0', Content: content})
			paths = append(paths, p)
		}
	}
	return testutil.Build(b, entries...), paths
}

func benchArchive(b *testing.B, src ByteSource, indexed bool) *Archive {
	b.Helper()
	a, err := New(src)
	if err != nil {
		b.Fatal(err)
	}
	if !indexed {
		return a
	}
	idx, err := a.BuildIndex()
	if err != nil {
		b.Fatal(err)
	}
	a, err = New(src, WithIndex(idx), WithIndexDigestCheck(false))
	if err != nil {
		b.Fatal(err)
	}
	return a
}

func BenchmarkExists(b *testing.B) {
	cases := []struct {
		name      string
		fileCount int
		fileSize  int
	}{
		{name: "files=256/size=4k", fileCount: 256, fileSize: 4 << 10},
		{name: "files=1024/size=4k", fileCount: 1024, fileSize: 4 << 10},
	}

	for _, bc := range cases {
		for _, indexed := range []bool{false, true} {
			b.Run(fmt.Sprintf("%s/indexed=%t", bc.name, indexed), func(b *testing.B) {
				data, paths := makeBenchArchive(b, bc.fileCount, bc.fileSize, 16)
				a := benchArchive(b, testutil.NewMockByteSource(data), indexed)

				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; b.Loop(); i++ {
					_, ok, err := a.Exists(paths[i%len(paths)])
					if err != nil {
						b.Fatal(err)
					}
					benchSinkBool = ok
				}
			})
		}
	}
}

func BenchmarkList(b *testing.B) {
	for _, indexed := range []bool{false, true} {
		b.Run(fmt.Sprintf("files=1024/indexed=%t", indexed), func(b *testing.B) {
			data, _ := makeBenchArchive(b, 1024, 512, 16)
			a := benchArchive(b, testutil.NewMockByteSource(data), indexed)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; b.Loop(); i++ {
				names, err := a.List(fmt.Sprintf("dir%02d/", i%16), 0)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkNames = names
			}
		})
	}
}

func BenchmarkReadAt(b *testing.B) {
	cases := []struct {
		name     string
		fileSize int
	}{
		{name: "size=4k", fileSize: 4 << 10},
		{name: "size=64k", fileSize: 64 << 10},
		{name: "size=1m", fileSize: 1 << 20},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			data, paths := makeBenchArchive(b, 64, bc.fileSize, 4)
			a := benchArchive(b, testutil.NewMockByteSource(data), true)
			buf := make([]byte, bc.fileSize)

			b.SetBytes(int64(bc.fileSize))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; b.Loop(); i++ {
				n, _, err := a.ReadAt(paths[i%len(paths)], buf, 0)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkInt = n
			}
		})
	}
}

func BenchmarkValidate(b *testing.B) {
	data, _ := makeBenchArchive(b, 1024, 4<<10, 16)
	a := benchArchive(b, testutil.NewMockByteSource(data), false)

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		n, err := a.Validate()
		if err != nil {
			b.Fatal(err)
		}
		benchSinkInt = n
	}
}

func BenchmarkFSReadDir(b *testing.B) {
	data, _ := makeBenchArchive(b, 1024, 512, 16)
	a := benchArchive(b, testutil.NewMockByteSource(data), true)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; b.Loop(); i++ {
		entries, err := fs.ReadDir(a, fmt.Sprintf("dir%02d", i%16))
		if err != nil {
			b.Fatal(err)
		}
		benchSinkDirs = entries
	}
}

// BenchmarkReadFileHTTP reads through an HTTP range source, with and
// without a block cache in front of it. Set USTAR_BENCH_HTTP_LATENCY to
// add per-request latency (e.g. "2ms").
func BenchmarkReadFileHTTP(b *testing.B) {
	data, paths := makeBenchArchive(b, 64, 16<<10, 4)
	latency, err := benchHTTPLatency()
	if err != nil {
		b.Fatal(err)
	}
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}
		nethttp.ServeContent(w, r, "archive.tar", time.Time{}, bytes.NewReader(data))
	}))
	b.Cleanup(server.Close)

	for _, cached := range []bool{false, true} {
		b.Run(fmt.Sprintf("cached=%t", cached), func(b *testing.B) {
			httpSrc, err := ustarhttp.NewSource(context.Background(), server.URL+"/archive.tar",
				ustarhttp.WithClient(server.Client()))
			if err != nil {
				b.Fatal(err)
			}
			var src ByteSource = httpSrc
			if cached {
				store, err := memory.New(0)
				if err != nil {
					b.Fatal(err)
				}
				src, err = cache.Wrap(httpSrc, store)
				if err != nil {
					b.Fatal(err)
				}
			}
			a := benchArchive(b, src, true)

			b.SetBytes(16 << 10)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; b.Loop(); i++ {
				content, err := fs.ReadFile(a, paths[i%len(paths)])
				if err != nil {
					b.Fatal(err)
				}
				benchSinkBytes = content
			}
		})
	}
}

func benchHTTPLatency() (time.Duration, error) {
	v := os.Getenv("USTAR_BENCH_HTTP_LATENCY")
	if v == "" {
		return 0, nil
	}
	return time.ParseDuration(v)
}
