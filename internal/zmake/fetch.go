package zmake

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/schollz/progressbar/v3"
)

// FetchRecord is the per-source outcome of a fetch run.
type FetchRecord struct {
	Source      string
	Destination string
	Err         error
}

// Fetcher retrieves source artifacts in parallel and verifies their
// checksums. HTTP downloads go through a DNS-cached client with exponential
// backoff retries and a per-host circuit breaker.
type Fetcher struct {
	client   *http.Client
	breakers map[string]*circuit.Breaker
	mu       sync.Mutex
	Quiet    bool

	// Limit caps the number of concurrent downloads.
	Limit int
}

// NewFetcher creates a Fetcher with the default HTTP client.
func NewFetcher() *Fetcher {
	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute, // source tarballs can be large
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 30 * time.Second,
			},
		},
		breakers: make(map[string]*circuit.Breaker),
		Limit:    10,
	}
}

// isRemoteSource reports whether the source reference is a URL.
func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://")
}

// sourceBasename is the destination file name for a source reference.
func sourceBasename(source string) string {
	if idx := strings.LastIndex(source, "/"); idx != -1 {
		return source[idx+1:]
	}
	return source
}

// FetchAll retrieves every source into destDir and verifies each against its
// checksum. Per-item failures do not abort peers; they land in the records.
// checksums may be empty, which disables verification entirely.
func (f *Fetcher) FetchAll(ctx context.Context, sources, checksums []string, destDir string) []FetchRecord {
	records := make([]FetchRecord, len(sources))

	sem := make(chan struct{}, f.Limit)
	var wg sync.WaitGroup
	for i, source := range sources {
		records[i] = FetchRecord{
			Source:      source,
			Destination: filepath.Join(destDir, sourceBasename(source)),
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(rec *FetchRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			rec.Err = f.fetchOne(ctx, rec.Source, rec.Destination)
		}(&records[i])
	}
	wg.Wait()

	for i := range records {
		rec := &records[i]
		if rec.Err != nil || len(checksums) == 0 {
			continue
		}
		if err := verifyChecksum(rec.Destination, checksums[i]); err != nil {
			rec.Err = buildErr(ErrChecksumMismatch, sourceBasename(rec.Source), err)
		}
	}
	return records
}

// fetchOne retrieves a single source. Local references must already exist at
// the destination path.
func (f *Fetcher) fetchOne(ctx context.Context, source, dest string) error {
	if !isRemoteSource(source) {
		if _, err := os.Stat(dest); err != nil {
			return buildErr(ErrDownloadFailed, source, fmt.Errorf("local source not found: %w", err))
		}
		debugf("Local source present: %s\n", dest)
		return nil
	}

	breaker := f.breakerFor(source)
	if !breaker.Ready() {
		return buildErr(ErrDownloadFailed, source, fmt.Errorf("too many failures for this host, backing off"))
	}

	if !f.Quiet {
		colArrow.Print("-> ")
		colSuccess.Printf("Fetching source: %s\n", sourceBasename(source))
	}

	op := func() error {
		return breaker.Call(func() error {
			return f.download(ctx, source, dest)
		}, 0)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Minute

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		os.Remove(dest) // drop any partial download
		return buildErr(ErrDownloadFailed, source, err)
	}
	return nil
}

// breakerFor returns the circuit breaker for the source's host, creating it
// on first use. The breaker trips after 5 consecutive failures.
func (f *Fetcher) breakerFor(source string) *circuit.Breaker {
	host := source
	if parsed, err := url.Parse(source); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	breaker, ok := f.breakers[host]
	if !ok {
		breaker = circuit.NewBreakerWithOptions(&circuit.Options{
			ShouldTrip: circuit.ThresholdTripFunc(5),
		})
		f.breakers[host] = breaker
	}
	return breaker
}

func (f *Fetcher) download(ctx context.Context, source, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "zmake/"+Version)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to the copy below
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("not found: %s", source))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("download failed with status: %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("download failed with status: %s", resp.Status))
	}

	out, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer out.Close()

	var w io.Writer = out
	if !f.Quiet && isInteractive() {
		bar := progressbar.DefaultBytes(resp.ContentLength, sourceBasename(source))
		defer bar.Close()
		w = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
