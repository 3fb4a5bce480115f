package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/spf13/cobra"

	"github.com/meigma/ustar"
)

type profileOptions struct {
	mode        string
	iterations  int
	duration    time.Duration
	seed        uint64
	cpuProfile  string
	memProfile  string
	traceFile   string
	fgProfile   string
	serveHTTP   bool
	httpLatency time.Duration
	httpBPS     string
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBool  bool
	sinkCount int
)

func newProfileCommand(c *cli) *cobra.Command {
	var opts profileOptions
	cmd := &cobra.Command{
		Use:   "profile FILE PATH...",
		Short: "Run repeated queries against an archive and report throughput",
		Long: "Run one kind of query repeatedly against FILE, picking a random PATH " +
			"for each operation. Modes: exists, list, read, validate. With " +
			"--serve-http the archive is served from a local HTTP server so remote " +
			"reads can be measured with simulated latency.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runProfile(cmd.Context(), opts, args[0], args[1:])
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.mode, "mode", "read", "query: exists, list, read, validate")
	flags.IntVar(&opts.iterations, "iterations", 0, "number of operations (0 = run for --duration)")
	flags.DurationVar(&opts.duration, "duration", 10*time.Second, "how long to run when --iterations is 0")
	flags.Uint64Var(&opts.seed, "seed", 1, "random seed for path selection")
	flags.StringVar(&opts.cpuProfile, "cpuprofile", "", "write a CPU profile to this file")
	flags.StringVar(&opts.memProfile, "memprofile", "", "write a heap profile to this file")
	flags.StringVar(&opts.traceFile, "trace", "", "write an execution trace to this file")
	flags.StringVar(&opts.fgProfile, "fgprofile", "", "write a wall-clock fgprof profile to this file")
	flags.BoolVar(&opts.serveHTTP, "serve-http", false, "serve FILE over local HTTP and query it remotely")
	flags.DurationVar(&opts.httpLatency, "http-latency", 0, "added latency per HTTP request (with --serve-http)")
	flags.StringVar(&opts.httpBPS, "http-bps", "", "HTTP throughput cap, e.g. 10MBps (with --serve-http)")
	return cmd
}

//nolint:gocognit // profiler setup and teardown are inherently sequential
func (c *cli) runProfile(ctx context.Context, opts profileOptions, name string, paths []string) error {
	if opts.mode != "validate" && len(paths) == 0 {
		return fmt.Errorf("mode %q needs at least one PATH", opts.mode)
	}

	if opts.serveHTTP {
		url, stop, err := c.serveLocal(name, opts)
		if err != nil {
			return err
		}
		defer stop()
		name = url
	}

	a, closer, err := c.openArchive(ctx, name)
	if err != nil {
		return err
	}
	defer closer.Close()

	if opts.fgProfile != "" {
		f, err := os.Create(opts.fgProfile)
		if err != nil {
			return err
		}
		stop := fgprof.Start(f, fgprof.FormatPprof)
		defer func() {
			if err := stop(); err != nil {
				c.log().Warn("fgprof stop", "error", err)
			}
			_ = f.Close()
		}()
	}
	if opts.cpuProfile != "" {
		f, err := os.Create(opts.cpuProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return err
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		}()
	}
	if opts.traceFile != "" {
		f, err := os.Create(opts.traceFile)
		if err != nil {
			return err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			return err
		}
		defer func() {
			trace.Stop()
			_ = f.Close()
		}()
	}

	stats, err := profileQueries(ctx, a, opts, paths)
	if err != nil {
		return err
	}

	if opts.memProfile != "" {
		runtime.GC()
		f, err := os.Create(opts.memProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return err
		}
	}

	fmt.Fprintf(c.stdout, "mode=%s ops=%d bytes=%d elapsed=%s ops/s=%.1f throughput=%.2f MB/s\n",
		opts.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.ops)/stats.elapsed.Seconds(),
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
	return nil
}

func profileQueries(ctx context.Context, a *ustar.Archive, opts profileOptions, paths []string) (profileStats, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed)) //nolint:gosec // reproducible path selection
	buf := make([]byte, catBufferSize)
	start := time.Now()
	var stats profileStats

	shouldContinue := func() bool {
		if ctx.Err() != nil {
			return false
		}
		if opts.iterations > 0 {
			return stats.ops < opts.iterations
		}
		return time.Since(start) < opts.duration
	}

	for shouldContinue() {
		var path string
		if len(paths) > 0 {
			path = paths[rng.IntN(len(paths))]
		}
		switch opts.mode {
		case "exists":
			_, ok, err := a.Exists(path)
			if err != nil {
				return stats, err
			}
			sinkBool = ok
		case "list":
			names, err := a.List(path, 0)
			if err != nil {
				return stats, err
			}
			sinkCount = len(names)
		case "read":
			n, err := readAll(a, path, buf)
			if err != nil {
				return stats, err
			}
			stats.bytes += n
		case "validate":
			n, err := a.Validate()
			if err != nil {
				return stats, err
			}
			sinkCount = n
		default:
			return stats, fmt.Errorf("unknown mode %q", opts.mode)
		}
		stats.ops++
	}
	stats.elapsed = time.Since(start)
	return stats, ctx.Err()
}

func readAll(a *ustar.Archive, path string, buf []byte) (int64, error) {
	var off int64
	for {
		n, remaining, err := a.ReadAt(path, buf, off)
		if err != nil {
			return off, err
		}
		off += int64(n)
		if remaining == 0 || n == 0 {
			return off, nil
		}
	}
}

// serveLocal serves the archive file from an in-process HTTP server and
// points the CLI's HTTP client at it through a throttling transport.
func (c *cli) serveLocal(name string, opts profileOptions) (string, func(), error) {
	bps, err := parseBytesPerSecond(opts.httpBPS)
	if err != nil {
		return "", nil, err
	}
	f, err := os.Open(name) //nolint:gosec // user-provided archive path
	if err != nil {
		return "", nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return "", nil, err
	}
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, info.Name(), info.ModTime(), io.NewSectionReader(f, 0, info.Size()))
	}))
	c.httpClient = newThrottledClient(opts.httpLatency, bps)
	return server.URL, func() {
		server.Close()
		_ = f.Close()
	}, nil
}
