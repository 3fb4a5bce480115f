package main

import (
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"
)

// newThrottledClient returns an HTTP client that adds per-request latency
// and caps response throughput, to approximate a remote object store.
func newThrottledClient(latency time.Duration, bytesPerSecond int64) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	if latency > 0 || bytesPerSecond > 0 {
		transport = &throttleRoundTripper{
			base:           transport,
			latency:        latency,
			bytesPerSecond: bytesPerSecond,
		}
	}
	return &nethttp.Client{Transport: transport}
}

type throttleRoundTripper struct {
	base           nethttp.RoundTripper
	latency        time.Duration
	bytesPerSecond int64
}

func (rt *throttleRoundTripper) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if rt.latency > 0 {
		select {
		case <-time.After(rt.latency):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rt.bytesPerSecond > 0 && resp.Body != nil {
		resp.Body = &throttleReadCloser{
			rc:             resp.Body,
			bytesPerSecond: rt.bytesPerSecond,
			start:          time.Now(),
		}
	}
	return resp, nil
}

type throttleReadCloser struct {
	rc             io.ReadCloser
	bytesPerSecond int64
	start          time.Time
	readBytes      int64
}

func (tr *throttleReadCloser) Read(p []byte) (int, error) {
	n, err := tr.rc.Read(p)
	if n > 0 {
		tr.readBytes += int64(n)
		expected := time.Duration(float64(tr.readBytes) / float64(tr.bytesPerSecond) * float64(time.Second))
		if elapsed := time.Since(tr.start); expected > elapsed {
			time.Sleep(expected - elapsed)
		}
	}
	return n, err
}

func (tr *throttleReadCloser) Close() error {
	return tr.rc.Close()
}

// parseBytesPerSecond parses rates such as "512", "64k", "10MBps", "1g/s".
// Units are binary. The empty string means unlimited.
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.TrimSpace(value)
	if text == "" {
		return 0, nil
	}
	for _, suffix := range []string{"Bps", "bps", "/s"} {
		text = strings.TrimSuffix(text, suffix)
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.TrimSuffix(lower, "b")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(lower, "k"):
		multiplier = 1 << 10
	case strings.HasSuffix(lower, "m"):
		multiplier = 1 << 20
	case strings.HasSuffix(lower, "g"):
		multiplier = 1 << 30
	}
	if multiplier > 1 {
		lower = lower[:len(lower)-1]
	}

	raw, err := strconv.ParseInt(strings.TrimSpace(lower), 10, 64)
	if err != nil || raw <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return raw * multiplier, nil
}
