package mapview

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/mapview/gpu"
	"github.com/gogpu/mapview/internal/logging"
	"github.com/gogpu/mapview/internal/mvt"
	"github.com/gogpu/mapview/style"
	"github.com/gogpu/mapview/tile"
)

// The per-draw uniform record is a column-major mat4x4
// followed by a premultiplied RGBA color, padded to the dynamic-offset
// alignment.
const (
	uniformMatBytes   = 16 * 4
	uniformColorBytes = 4 * 4
	uniformStride     = gpu.UniformAlign
)

// initialUniformSlots sizes the dynamic uniform buffer at startup; it
// grows on demand when a frame needs more draws.
const initialUniformSlots = 256

const shaderSource = `
struct Uniforms {
	mat: mat4x4<f32>,
	color: vec4<f32>,
};

@group(0) @binding(0) var<uniform> u: Uniforms;

@vertex
fn vs_fill(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
	return u.mat * vec4<f32>(pos, 0.0, 1.0);
}

@vertex
fn vs_background(@builtin(vertex_index) vi: u32) -> @builtin(position) vec4<f32> {
	var corners = array<vec2<f32>, 4>(
		vec2<f32>(-1.0, -1.0),
		vec2<f32>(1.0, -1.0),
		vec2<f32>(-1.0, 1.0),
		vec2<f32>(1.0, 1.0),
	);
	return vec4<f32>(corners[vi], 0.0, 1.0);
}

@fragment
fn fs_color() -> @location(0) vec4<f32> {
	return u.color;
}
`

// Composer builds the ordered draw-command list for one frame: visible
// tile selection, per-feature style evaluation, and uniform packing.
//
// All methods must be called from the render thread.
type Composer struct {
	dev    gpu.Device
	loader *tile.Loader
	clip   Mat4

	shader     gpu.ShaderModuleID
	fill       gpu.PipelineID
	background gpu.PipelineID

	uniforms     gpu.BufferID
	bindings     gpu.BindGroupID
	uniformSlots int
}

// NewComposer creates the composer's pipelines and uniform buffer on
// dev. clip is the backend's clip-space correction matrix.
func NewComposer(dev gpu.Device, loader *tile.Loader, clip Mat4) (*Composer, error) {
	c := &Composer{dev: dev, loader: loader, clip: clip}

	var err error
	c.shader, err = dev.CreateShaderModule("map shaders", shaderSource)
	if err != nil {
		return nil, fmt.Errorf("mapview: shader module: %w", err)
	}
	c.fill, err = dev.CreatePipeline(&gpu.PipelineDesc{
		Label:          "map fill",
		Shader:         c.shader,
		VertexEntry:    "vs_fill",
		FragmentEntry:  "fs_color",
		Topology:       gpu.TopologyTriangles,
		HasVertexInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("mapview: fill pipeline: %w", err)
	}
	c.background, err = dev.CreatePipeline(&gpu.PipelineDesc{
		Label:         "map background",
		Shader:        c.shader,
		VertexEntry:   "vs_background",
		FragmentEntry: "fs_color",
		Topology:      gpu.TopologyTriangleStrip,
	})
	if err != nil {
		return nil, fmt.Errorf("mapview: background pipeline: %w", err)
	}
	if err := c.growUniforms(initialUniformSlots); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the composer's uniform buffer. Pipelines and shader
// modules live as long as the device.
func (c *Composer) Close() {
	if c.uniforms != gpu.InvalidID {
		c.dev.DestroyBuffer(c.uniforms)
		c.uniforms = gpu.InvalidID
	}
}

func (c *Composer) growUniforms(slots int) error {
	buf, err := c.dev.CreateBuffer(&gpu.BufferDesc{
		Label:   "per-draw uniforms",
		Size:    uint64(slots) * uniformStride,
		Kind:    gpu.BufferDynamic,
		Binding: gpu.BindUniform,
	})
	if err != nil {
		return fmt.Errorf("mapview: uniform buffer: %w", err)
	}
	bind, err := c.dev.CreateBindGroup(&gpu.BindGroupDesc{
		Label:       "per-draw uniforms",
		Uniforms:    buf,
		UniformSize: uniformStride,
	})
	if err != nil {
		c.dev.DestroyBuffer(buf)
		return fmt.Errorf("mapview: bind group: %w", err)
	}
	if c.uniforms != gpu.InvalidID {
		c.dev.DestroyBuffer(c.uniforms)
	}
	c.uniforms = buf
	c.bindings = bind
	c.uniformSlots = slots
	return nil
}

// Frame is one composed frame, ready for Device.Submit. Upload must be
// retained until Submit returns for Batch.
type Frame struct {
	Commands *gpu.CommandList
	Batch    gpu.Batch
	Upload   *tile.UploadResult

	// Draws counts the recorded draw commands, background included.
	Draws int
}

type drawCmd struct {
	background bool
	vertex     gpu.BufferID
	index      gpu.BufferID
	vtxOff     uint64
	idxOff     uint64
	idxCount   uint32
	uniform    int
}

// ComposeFrame uploads pending tiles, requests the visible set and
// assembles draw commands in style-sheet order: one background quad per
// background layer, then one indexed draw per surviving fill feature.
func (c *Composer) ComposeFrame(vp Viewport, sheet *style.Sheet) (*Frame, error) {
	mapZoom := vp.MapZoom()
	batch := c.dev.NewBatch()

	upload, err := c.loader.UploadPending(c.dev, batch)
	if err != nil {
		return nil, err
	}
	ready := c.loader.RequestTiles(VisibleTiles(vp))

	var (
		draws       []drawCmd
		uniformData []byte
	)
	addUniform := func(m Mat4, col style.RGBA) int {
		idx := len(uniformData) / uniformStride
		uniformData = appendUniform(uniformData, m, col)
		return idx
	}

	for _, layer := range sheet.Layers {
		if !layer.Active(mapZoom) {
			continue
		}
		switch layer.Type {
		case style.Background:
			col := layer.Background.ColorAt(mapZoom, vp.Zoom).Premultiply()
			draws = append(draws, drawCmd{
				background: true,
				uniform:    addUniform(Identity4(), col),
			})

		case style.Fill:
			for _, rt := range ready {
				tl := tileLayer(rt, layer.SourceLayer)
				if tl == nil {
					continue
				}
				base := TileMatrix(vp, rt.Coord, c.clip)
				for fi := range tl.Features {
					f := &tl.Features[fi]
					geom := f.Type.String()
					if layer.Filter != nil &&
						!style.EvalFilter(layer.Filter, geom, f.Meta, mapZoom, vp.Zoom) {
						continue
					}

					col := layer.Fill.ColorAt(geom, f.Meta, mapZoom, vp.Zoom)
					col.A *= layer.Fill.OpacityAt(geom, f.Meta, mapZoom, vp.Zoom)

					m := base
					if tr := layer.Fill.TranslateAt(geom, f.Meta, mapZoom, vp.Zoom); tr != ([2]float64{}) {
						ext := float64(mvt.DefaultExtent)
						m = m.Mul(Translate4(tr[0]/ext, tr[1]/ext, 0))
					}

					draws = append(draws, drawCmd{
						vertex:   rt.Vertex,
						index:    rt.Index,
						vtxOff:   f.VtxOffset,
						idxOff:   f.IdxOffset,
						idxCount: f.IdxCount,
						uniform:  addUniform(m, col.Premultiply()),
					})
				}
			}
		}
	}

	if need := len(uniformData) / uniformStride; need > c.uniformSlots {
		slots := c.uniformSlots
		for slots < need {
			slots *= 2
		}
		if err := c.growUniforms(slots); err != nil {
			return nil, err
		}
	}
	if len(uniformData) > 0 {
		batch.UpdateDynamic(c.uniforms, 0, uint64(len(uniformData)), uniformData)
	}

	cmds := &gpu.CommandList{}
	cmds.SetViewport(0, 0, float32(vp.Width), float32(vp.Height))
	cmds.SetScissor(0, 0, int32(vp.Width), int32(vp.Height))

	var bound gpu.PipelineID
	for _, d := range draws {
		pipe := c.fill
		if d.background {
			pipe = c.background
		}
		if pipe != bound {
			cmds.SetPipeline(pipe)
			bound = pipe
		}
		cmds.SetShaderResources(c.bindings, uint32(d.uniform*uniformStride))
		if d.background {
			cmds.Draw(4)
			continue
		}
		cmds.SetVertexInput(d.vertex, d.vtxOff, d.index, d.idxOff, gpu.IndexUint32)
		cmds.DrawIndexed(d.idxCount)
	}

	logging.Logger().Debug("frame composed",
		"zoom", mapZoom, "ready", len(ready), "draws", len(draws),
		"uploaded", len(upload.Tiles))
	return &Frame{
		Commands: cmds,
		Batch:    batch,
		Upload:   upload,
		Draws:    len(draws),
	}, nil
}

func tileLayer(rt *tile.RenderTile, name string) *tile.Layer {
	for i := range rt.Layers {
		if rt.Layers[i].Name == name {
			return &rt.Layers[i]
		}
	}
	return nil
}

func appendUniform(buf []byte, m Mat4, col style.RGBA) []byte {
	rec := make([]byte, uniformStride)
	for i, f := range m.Elements() {
		binary.LittleEndian.PutUint32(rec[i*4:], math.Float32bits(f))
	}
	for i, f := range [4]float64{col.R, col.G, col.B, col.A} {
		binary.LittleEndian.PutUint32(rec[uniformMatBytes+i*4:], math.Float32bits(float32(f)))
	}
	return append(buf, rec...)
}
