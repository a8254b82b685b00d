package gpu

// OpKind identifies a recorded command.
type OpKind uint32

// Command kinds.
const (
	OpSetViewport OpKind = iota + 1
	OpSetScissor
	OpSetPipeline
	OpSetShaderResources
	OpSetVertexInput
	OpDraw
	OpDrawIndexed
)

// Op is one recorded command. Only the fields relevant to Kind are set.
type Op struct {
	Kind OpKind

	// Viewport, for OpSetViewport.
	VX, VY, VW, VH float32

	// Scissor, for OpSetScissor.
	SX, SY, SW, SH int32

	// Pipeline, for OpSetPipeline.
	Pipeline PipelineID

	// Bindings and the dynamic uniform offset, for OpSetShaderResources.
	Bindings  BindGroupID
	DynOffset uint32

	// Vertex input, for OpSetVertexInput.
	Vertex      BufferID
	VertexOff   uint64
	Index       BufferID
	IndexOff    uint64
	IndexFormat IndexFormat

	// Count is the vertex count for OpDraw and the index count for
	// OpDrawIndexed.
	Count uint32
}

// CommandList is an in-memory CommandBuffer implementation. The composer
// records a frame into a CommandList and hands it to Device.Submit, where
// the backend replays the ops against its native encoder.
//
// A CommandList may be reused across frames via Reset.
type CommandList struct {
	ops []Op
}

var _ CommandBuffer = (*CommandList)(nil)

// Reset clears the list for reuse, keeping the backing storage.
func (c *CommandList) Reset() {
	c.ops = c.ops[:0]
}

// Ops returns the recorded commands in submission order. The slice is
// owned by the list and is invalidated by Reset.
func (c *CommandList) Ops() []Op {
	return c.ops
}

// SetViewport records a viewport change.
func (c *CommandList) SetViewport(x, y, w, h float32) {
	c.ops = append(c.ops, Op{Kind: OpSetViewport, VX: x, VY: y, VW: w, VH: h})
}

// SetScissor records a scissor rectangle change.
func (c *CommandList) SetScissor(x, y, w, h int32) {
	c.ops = append(c.ops, Op{Kind: OpSetScissor, SX: x, SY: y, SW: w, SH: h})
}

// SetPipeline records a pipeline bind.
func (c *CommandList) SetPipeline(p PipelineID) {
	c.ops = append(c.ops, Op{Kind: OpSetPipeline, Pipeline: p})
}

// SetShaderResources records a bind group bind with a dynamic offset.
func (c *CommandList) SetShaderResources(bindings BindGroupID, dynOffset uint32) {
	c.ops = append(c.ops, Op{Kind: OpSetShaderResources, Bindings: bindings, DynOffset: dynOffset})
}

// SetVertexInput records vertex and index buffer binds.
func (c *CommandList) SetVertexInput(vbuf BufferID, voff uint64, ibuf BufferID, ioff uint64, format IndexFormat) {
	c.ops = append(c.ops, Op{
		Kind:        OpSetVertexInput,
		Vertex:      vbuf,
		VertexOff:   voff,
		Index:       ibuf,
		IndexOff:    ioff,
		IndexFormat: format,
	})
}

// Draw records an unindexed draw.
func (c *CommandList) Draw(vertexCount uint32) {
	c.ops = append(c.ops, Op{Kind: OpDraw, Count: vertexCount})
}

// DrawIndexed records an indexed draw.
func (c *CommandList) DrawIndexed(indexCount uint32) {
	c.ops = append(c.ops, Op{Kind: OpDrawIndexed, Count: indexCount})
}

// AlignUniform rounds size up to the next multiple of UniformAlign.
func AlignUniform(size uint64) uint64 {
	return (size + UniformAlign - 1) &^ uint64(UniformAlign-1)
}
