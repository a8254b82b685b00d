// Package gpu defines the backend-neutral GPU interface consumed by the
// frame composer and the tile loader.
//
// Resources are addressed by opaque uint64 handles. Each backend
// implementation maintains the mapping between handles and its actual GPU
// objects; handles are never dereferenced outside the backend. Draw
// commands are recorded into a CommandBuffer and replayed by the backend
// on submit.
package gpu

import "errors"

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// PipelineID is an opaque handle to a graphics pipeline.
type PipelineID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// BindGroupID is an opaque handle to a set of shader resource bindings.
type BindGroupID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// UniformAlign is the required alignment, in bytes, of dynamic uniform
// buffer offsets. Per-draw uniform records are padded to this stride.
const UniformAlign = 256

// BufferKind selects the update policy of a buffer.
type BufferKind uint32

// Buffer kinds.
const (
	// BufferImmutable is written once through a Batch upload and never
	// changed afterwards. Tile vertex and index data live here.
	BufferImmutable BufferKind = iota + 1

	// BufferDynamic is rewritten every frame through a Batch update.
	// Per-draw uniforms live here.
	BufferDynamic
)

// BufferBinding is a bitmask specifying how a buffer will be bound.
type BufferBinding uint32

// Buffer binding flags.
const (
	// BindVertex indicates the buffer can be used as a vertex buffer.
	BindVertex BufferBinding = 1 << 0

	// BindIndex indicates the buffer can be used as an index buffer.
	BindIndex BufferBinding = 1 << 1

	// BindUniform indicates the buffer can be used as a uniform buffer.
	BindUniform BufferBinding = 1 << 2
)

// Topology selects how vertices assemble into primitives.
type Topology uint32

// Topologies.
const (
	// TopologyTriangles assembles independent triangles from each
	// three indices.
	TopologyTriangles Topology = iota + 1

	// TopologyTriangleStrip assembles a strip; used by the full-screen
	// background quad.
	TopologyTriangleStrip
)

// IndexFormat specifies the element type of an index buffer.
type IndexFormat uint32

// Index formats.
const (
	// IndexUint32 is 32-bit unsigned indices.
	IndexUint32 IndexFormat = iota + 1
)

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Kind is the update policy.
	Kind BufferKind

	// Binding specifies the allowed bindings.
	Binding BufferBinding
}

// PipelineDesc describes a graphics pipeline.
//
// Every pipeline used here shares the same fixed state: premultiplied-alpha
// blending, no face culling, and scissor testing enabled. Pipelines with
// vertex input take one 2D float32 vertex attribute at stride 8. Only
// topology, shaders and the presence of vertex input vary.
type PipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Shader contains the vertex and fragment entry points.
	Shader ShaderModuleID

	// VertexEntry is the vertex shader entry point name.
	VertexEntry string

	// FragmentEntry is the fragment shader entry point name.
	FragmentEntry string

	// Topology is the primitive assembly mode.
	Topology Topology

	// HasVertexInput is false for pipelines that synthesize vertices
	// from the vertex index (the background quad).
	HasVertexInput bool
}

// BindGroupDesc describes shader resource bindings for a pipeline.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Uniforms is the uniform buffer bound at binding 0 with a dynamic
	// offset.
	Uniforms BufferID

	// UniformSize is the size of one uniform record in bytes.
	UniformSize uint64
}

// ErrDeviceLost is returned when the underlying device becomes unusable.
var ErrDeviceLost = errors.New("gpu: device lost")

// Device creates and destroys GPU resources.
//
// All Device methods must be called from the render thread only.
type Device interface {
	// CreateBuffer allocates a buffer. The contents are undefined until
	// uploaded through a Batch.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// CreateShaderModule compiles WGSL source into a shader module.
	CreateShaderModule(label, wgsl string) (ShaderModuleID, error)

	// CreatePipeline builds a graphics pipeline.
	CreatePipeline(desc *PipelineDesc) (PipelineID, error)

	// CreateBindGroup builds a resource binding set.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// NewBatch starts a resource-update batch.
	NewBatch() Batch

	// Submit executes a recorded command buffer, applying the batch's
	// pending uploads first. The caller must keep any staging memory
	// referenced by the batch alive until Submit returns.
	Submit(batch Batch, commands *CommandList) error
}

// Batch accumulates resource updates for submission with a frame.
type Batch interface {
	// UploadStatic schedules a one-time upload into an immutable buffer.
	// The data slice must stay valid until the batch is submitted.
	UploadStatic(buf BufferID, data []byte)

	// UpdateDynamic schedules a partial update of a dynamic buffer.
	UpdateDynamic(buf BufferID, offset, size uint64, data []byte)
}

// CommandBuffer records draw commands for one frame.
type CommandBuffer interface {
	// SetViewport sets the output viewport in pixels.
	SetViewport(x, y, w, h float32)

	// SetScissor sets the scissor rectangle in pixels.
	SetScissor(x, y, w, h int32)

	// SetPipeline binds a graphics pipeline.
	SetPipeline(p PipelineID)

	// SetShaderResources binds a bind group with a dynamic uniform
	// offset. The offset must be a multiple of UniformAlign.
	SetShaderResources(bindings BindGroupID, dynOffset uint32)

	// SetVertexInput binds the vertex and index buffers.
	SetVertexInput(vbuf BufferID, voff uint64, ibuf BufferID, ioff uint64, format IndexFormat)

	// Draw draws unindexed vertices (the background quad).
	Draw(vertexCount uint32)

	// DrawIndexed draws indexCount indices from the bound index buffer.
	DrawIndexed(indexCount uint32)
}
