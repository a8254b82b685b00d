// Command mapview renders a scripted camera flight over a vector tile
// map and prints per-frame statistics. It exercises the whole pipeline:
// tile fetch, decode, triangulation, GPU upload and frame composition.
//
// A MapTiler API key is required in the MAPTILER_KEY environment
// variable.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/mapview"
	"github.com/gogpu/mapview/backend/wgpu"
	"github.com/gogpu/mapview/internal/logging"
	"github.com/gogpu/mapview/style"
	"github.com/gogpu/mapview/tile"
)

// defaultStyle is a minimal basic-map style used when -style is not
// given.
const defaultStyle = `{
	"version": 8,
	"id": "mapview-basic",
	"name": "Basic",
	"layers": [
		{
			"id": "background",
			"type": "background",
			"paint": {"background-color": "#f8f4f0"}
		},
		{
			"id": "landcover",
			"type": "fill",
			"source": "maptiler",
			"source-layer": "landcover",
			"paint": {"fill-color": "#d8e8c8", "fill-opacity": 0.7}
		},
		{
			"id": "water",
			"type": "fill",
			"source": "maptiler",
			"source-layer": "water",
			"filter": ["!=", "brunnel", "tunnel"],
			"paint": {"fill-color": "#a0c8f0"}
		},
		{
			"id": "building",
			"type": "fill",
			"source": "maptiler",
			"source-layer": "building",
			"minzoom": 13,
			"paint": {
				"fill-color": "#e0d4c8",
				"fill-opacity": {"stops": [[13, 0], [16, 1]]}
			}
		}
	]
}`

func main() {
	var (
		width     = flag.Int("width", 1280, "viewport width in pixels")
		height    = flag.Int("height", 720, "viewport height in pixels")
		frames    = flag.Int("frames", 120, "number of frames to render")
		stylePath = flag.String("style", "", "style JSON file (default: built-in basic style)")
		lon       = flag.Float64("lon", 13.405, "target longitude")
		lat       = flag.Float64("lat", 52.52, "target latitude")
		zoom      = flag.Float64("zoom", 12, "target zoom level")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	key := os.Getenv("MAPTILER_KEY")
	if key == "" {
		log.Fatal("MAPTILER_KEY is not set")
	}

	sheet, err := loadSheet(*stylePath)
	if err != nil {
		log.Fatalf("style: %v", err)
	}

	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		log.Fatalf("cache dir: %v", err)
	}
	disk := tile.NewDiskCache(filepath.Join(cacheRoot, "mapview", "tiles"))

	mem, err := tile.NewMemCache(64 << 20)
	if err != nil {
		log.Fatalf("memory cache: %v", err)
	}
	defer mem.Close()

	fetcher := tile.NewFetcher(key)
	defer fetcher.Close()

	loader, err := tile.NewLoader(tile.Config{
		Fetch: fetcher.Fetch,
		Disk:  disk,
		Mem:   mem,
	})
	if err != nil {
		log.Fatalf("loader: %v", err)
	}
	defer loader.Close()

	dev := wgpu.NewBackend()
	if err := dev.Init(); err != nil {
		log.Fatalf("gpu: %v", err)
	}
	defer dev.Close()
	if info := dev.GPUInfo(); info != nil {
		fmt.Printf("rendering on %s\n", info)
	}

	// The wgpu clip space matches the composer's output directly.
	composer, err := mapview.NewComposer(dev, loader, mapview.Identity4())
	if err != nil {
		log.Fatalf("composer: %v", err)
	}
	defer composer.Close()

	targetX, targetY := mercator(*lon, *lat)
	if err := fly(composer, dev, sheet, *width, *height, *frames, targetX, targetY, *zoom); err != nil {
		log.Fatalf("render: %v", err)
	}
}

func loadSheet(path string) (*style.Sheet, error) {
	if path != "" {
		return style.LoadFile(path)
	}
	return style.Load([]byte(defaultStyle))
}

// fly zooms from a world overview into the target, rotating slightly on
// the way in.
func fly(composer *mapview.Composer, dev *wgpu.Backend, sheet *style.Sheet, width, height, frames int, x, y, zoom float64) error {
	start := mapview.Viewport{
		Width: width, Height: height,
		CenterX: 0.5, CenterY: 0.5,
		Zoom: 1,
	}
	steps := float64(frames - 1)
	if steps < 1 {
		steps = 1
	}
	for i := 0; i < frames; i++ {
		t := smoothstep(float64(i) / steps)
		vp := mapview.Viewport{
			Width:       width,
			Height:      height,
			CenterX:     lerp(start.CenterX, x, t),
			CenterY:     lerp(start.CenterY, y, t),
			Zoom:        lerp(start.Zoom, zoom, t),
			RotationDeg: 15 * math.Sin(t*math.Pi),
		}

		frame, err := composer.ComposeFrame(vp, sheet)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := dev.Submit(frame.Batch, frame.Commands); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		fmt.Printf("frame %3d  zoom %5.2f  draws %4d  uploads %d\n",
			i, vp.Zoom, frame.Draws, len(frame.Upload.Tiles))

		time.Sleep(16 * time.Millisecond)
	}
	return nil
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func smoothstep(t float64) float64 { return t * t * (3 - 2*t) }

// mercator converts longitude/latitude to normalized web mercator
// coordinates.
func mercator(lon, lat float64) (x, y float64) {
	x = (lon + 180) / 360
	rad := lat * math.Pi / 180
	y = (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2
	return x, y
}
