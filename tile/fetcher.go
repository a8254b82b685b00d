package tile

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/gogpu/mapview/internal/logging"
)

// DefaultTileURL is the MapTiler vector tile endpoint.
const DefaultTileURL = "https://api.maptiler.com/tiles/v3/%d/%d/%d.pbf?key=%s"

// Fetch errors.
var (
	// ErrTileStatus is returned for any non-200 response.
	ErrTileStatus = errors.New("tile: unexpected response status")

	// ErrContentType is returned when the response is not a protobuf
	// tile.
	ErrContentType = errors.New("tile: unexpected content type")
)

// FetchFunc hands raw tile bytes (or a fetch error) to done. The Loader
// depends on this signature rather than on Fetcher so tests can inject
// canned responses.
type FetchFunc func(t maptile.Tile, done func([]byte, error))

// Fetcher downloads tiles over HTTP. All requests run sequentially on one
// goroutine that exclusively owns the HTTP client; Fetch only enqueues.
type Fetcher struct {
	urlFormat string
	key       string
	client    *http.Client

	requests chan fetchRequest

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type fetchRequest struct {
	tile maptile.Tile
	done func([]byte, error)
}

// NewFetcher creates a fetcher using the MapTiler endpoint with the given
// API key and starts its network goroutine.
func NewFetcher(key string) *Fetcher {
	f := &Fetcher{
		urlFormat: DefaultTileURL,
		key:       key,
		client:    &http.Client{Timeout: 30 * time.Second},
		requests:  make(chan fetchRequest, 64),
		done:      make(chan struct{}),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// Fetch enqueues a tile download. done is invoked on the network
// goroutine with the body bytes or an error. After Close, done is invoked
// immediately with an error.
func (f *Fetcher) Fetch(t maptile.Tile, done func([]byte, error)) {
	select {
	case <-f.done:
		done(nil, errors.New("tile: fetcher closed"))
		return
	default:
	}
	select {
	case f.requests <- fetchRequest{tile: t, done: done}:
	case <-f.done:
		done(nil, errors.New("tile: fetcher closed"))
	}
}

// Close stops the network goroutine. Queued requests are completed with
// an error.
func (f *Fetcher) Close() {
	f.closeOnce.Do(func() { close(f.done) })
	f.wg.Wait()
}

func (f *Fetcher) run() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			f.drain()
			return
		case req := <-f.requests:
			req.done(f.get(req.tile))
		}
	}
}

func (f *Fetcher) drain() {
	for {
		select {
		case req := <-f.requests:
			req.done(nil, errors.New("tile: fetcher closed"))
		default:
			return
		}
	}
}

func (f *Fetcher) get(t maptile.Tile) ([]byte, error) {
	url := fmt.Sprintf(f.urlFormat, t.Z, t.X, t.Y, f.key)

	start := time.Now()
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("tile: fetch z%d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrTileStatus, resp.Status)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/x-protobuf") {
		return nil, fmt.Errorf("%w: %q", ErrContentType, ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tile: read body z%d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	logging.Logger().Debug("tile fetched",
		"z", t.Z, "x", t.X, "y", t.Y,
		"bytes", len(body), "elapsed", time.Since(start))
	return body, nil
}
