// Package mapview renders interactive vector-tile maps.
//
// Given a viewport (center in world-normalized coordinates, zoom, rotation,
// and pixel dimensions), a tile source, and a style sheet, mapview determines
// the visible tile set, loads and triangulates tile geometry in the
// background, and assembles an ordered list of GPU draw commands each frame.
//
// The major pieces:
//
//   - Composer (this package): per-frame visible-tile selection, transform
//     construction, and draw-command assembly.
//   - tile: the concurrent tile loader with its disk and memory caches.
//   - style: the style-sheet model and the filter/paint expression evaluator.
//   - gpu: the backend-neutral GPU resource and command-recording interface.
//   - backend/wgpu: a pure Go WebGPU implementation of gpu.Device.
//
// Coordinate conventions: the world is the unit square [0,1] x [0,1] with
// (0,0) at the top-left. At integer zoom z the world is a 2^z by 2^z grid of
// tiles addressed by maptile.Tile coordinates.
package mapview
