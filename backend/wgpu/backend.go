// Package wgpu implements the gpu.Device interface on the pure-Go
// WebGPU stack (gogpu/wgpu).
//
// The backend owns the instance, adapter, device and queue, created in
// Init. Alternatively a host application that already holds a device can
// share it through NewBackendWithProvider. Shader modules are compiled
// from WGSL to SPIR-V with naga at creation time.
//
// Buffer contents and draw commands are staged host-side and validated
// on Submit. Queue writes and render-pass encoding move onto the wgpu
// queue as core exposes the remaining entry points; the staged path
// keeps resource lifetimes and command streams fully checked until then.
package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/mapview/gpu"
	"github.com/gogpu/mapview/internal/logging"
)

// Errors returned by the backend.
var (
	// ErrNotInitialized is returned when the backend is used before a
	// successful Init.
	ErrNotInitialized = errors.New("wgpu: backend not initialized")

	// ErrNilProvider is returned when NewBackendWithProvider is given a
	// nil device provider.
	ErrNilProvider = errors.New("wgpu: nil device provider")

	// ErrNoGPU is returned when no suitable adapter is available.
	ErrNoGPU = errors.New("wgpu: no suitable GPU adapter")

	// ErrInvalidHandle is returned when a command or descriptor names a
	// resource this backend does not know.
	ErrInvalidHandle = errors.New("wgpu: invalid resource handle")

	// ErrForeignBatch is returned when Submit receives a batch that was
	// not created by this backend's NewBatch.
	ErrForeignBatch = errors.New("wgpu: batch not created by this backend")
)

type bufferRes struct {
	label   string
	size    uint64
	kind    gpu.BufferKind
	binding gpu.BufferBinding
	usage   gputypes.BufferUsage

	// data is the host-side shadow of the buffer contents, written by
	// batch uploads on Submit.
	data     []byte
	uploaded bool
}

type shaderRes struct {
	label  string
	source string
	spirv  []uint32
}

type pipelineRes struct {
	desc gpu.PipelineDesc
}

type bindGroupRes struct {
	desc gpu.BindGroupDesc
}

// Backend implements gpu.Device on gogpu/wgpu.
//
// All gpu.Device methods must be called from the render thread. Init and
// Close may be called from any goroutine.
type Backend struct {
	mu sync.Mutex

	provider gpucontext.DeviceProvider

	instance *core.Instance
	adapter  core.AdapterID
	device   core.DeviceID
	queue    core.QueueID

	info        *GPUInfo
	initialized bool

	nextID     atomic.Uint64
	buffers    map[gpu.BufferID]*bufferRes
	shaders    map[gpu.ShaderModuleID]*shaderRes
	pipelines  map[gpu.PipelineID]*pipelineRes
	bindGroups map[gpu.BindGroupID]*bindGroupRes
}

var _ gpu.Device = (*Backend)(nil)

// NewBackend creates a backend that owns its GPU resources. Init must be
// called before use.
func NewBackend() *Backend {
	return &Backend{
		buffers:    make(map[gpu.BufferID]*bufferRes),
		shaders:    make(map[gpu.ShaderModuleID]*shaderRes),
		pipelines:  make(map[gpu.PipelineID]*pipelineRes),
		bindGroups: make(map[gpu.BindGroupID]*bindGroupRes),
	}
}

// NewBackendWithProvider creates a backend that shares the host
// application's device instead of creating its own. The returned backend
// is ready for use; Init is a no-op and Close leaves the shared device
// alone.
func NewBackendWithProvider(p gpucontext.DeviceProvider) (*Backend, error) {
	if p == nil {
		return nil, ErrNilProvider
	}
	b := NewBackend()
	b.provider = p
	b.initialized = true
	return b, nil
}

// Init brings up the GPU: instance, adapter, device, queue. Calling Init
// on an initialized backend is a no-op.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	b.instance = core.NewInstance(&gputypes.InstanceDescriptor{
		Backends: gputypes.BackendsPrimary,
	})

	adapterID, err := b.instance.RequestAdapter(&gputypes.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	b.adapter = adapterID

	logGPUInfo(adapterID)
	b.info, _ = getGPUInfo(adapterID)

	deviceID, err := createDevice(adapterID, "mapview-device")
	if err != nil {
		_ = releaseAdapter(adapterID)
		b.adapter = core.AdapterID{}
		return err
	}
	b.device = deviceID

	queueID, err := getDeviceQueue(deviceID)
	if err != nil {
		_ = releaseDevice(deviceID)
		_ = releaseAdapter(adapterID)
		b.device = core.DeviceID{}
		b.adapter = core.AdapterID{}
		return err
	}
	b.queue = queueID

	b.initialized = true
	logging.Logger().Info("wgpu: backend initialized")
	return nil
}

// Close releases the backend's GPU resources. A device obtained from a
// provider is left untouched. The backend must not be used after Close.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}

	if b.provider == nil {
		if !b.device.IsZero() {
			if err := releaseDevice(b.device); err != nil {
				logging.Logger().Warn("wgpu: release device", "error", err)
			}
			b.device = core.DeviceID{}
		}
		if !b.adapter.IsZero() {
			if err := releaseAdapter(b.adapter); err != nil {
				logging.Logger().Warn("wgpu: release adapter", "error", err)
			}
			b.adapter = core.AdapterID{}
		}
		b.instance = nil
		b.queue = core.QueueID{}
	}

	b.buffers = make(map[gpu.BufferID]*bufferRes)
	b.shaders = make(map[gpu.ShaderModuleID]*shaderRes)
	b.pipelines = make(map[gpu.PipelineID]*pipelineRes)
	b.bindGroups = make(map[gpu.BindGroupID]*bindGroupRes)
	b.info = nil
	b.initialized = false
}

// IsInitialized reports whether Init has completed.
func (b *Backend) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// GPUInfo returns information about the selected GPU, or nil when the
// backend is uninitialized or device-sharing.
func (b *Backend) GPUInfo() *GPUInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

// Device returns the GPU device ID. Zero when uninitialized or when the
// device belongs to a provider.
func (b *Backend) Device() core.DeviceID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device
}

func bufferUsage(desc *gpu.BufferDesc) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopyDst
	if desc.Binding&gpu.BindVertex != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if desc.Binding&gpu.BindIndex != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if desc.Binding&gpu.BindUniform != 0 {
		u |= gputypes.BufferUsageUniform
	}
	return u
}

// CreateBuffer allocates a buffer.
func (b *Backend) CreateBuffer(desc *gpu.BufferDesc) (gpu.BufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return gpu.InvalidID, ErrNotInitialized
	}
	if desc.Size == 0 {
		return gpu.InvalidID, fmt.Errorf("wgpu: buffer %q: zero size", desc.Label)
	}
	if desc.Kind != gpu.BufferImmutable && desc.Kind != gpu.BufferDynamic {
		return gpu.InvalidID, fmt.Errorf("wgpu: buffer %q: unknown kind %d", desc.Label, desc.Kind)
	}
	if desc.Binding == 0 {
		return gpu.InvalidID, fmt.Errorf("wgpu: buffer %q: no binding flags", desc.Label)
	}

	// TODO: when core exposes buffer creation, allocate the wgpu buffer
	// here with the converted usage instead of the host shadow.
	id := gpu.BufferID(b.nextID.Add(1))
	b.buffers[id] = &bufferRes{
		label:   desc.Label,
		size:    desc.Size,
		kind:    desc.Kind,
		binding: desc.Binding,
		usage:   bufferUsage(desc),
		data:    make([]byte, desc.Size),
	}
	return id, nil
}

// DestroyBuffer releases a buffer. Unknown handles are ignored.
func (b *Backend) DestroyBuffer(id gpu.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, id)
}

// CreateShaderModule compiles WGSL source into a shader module.
func (b *Backend) CreateShaderModule(label, wgsl string) (gpu.ShaderModuleID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return gpu.InvalidID, ErrNotInitialized
	}
	spirv, err := compileWGSL(wgsl)
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: shader %q: %w", label, err)
	}

	id := gpu.ShaderModuleID(b.nextID.Add(1))
	b.shaders[id] = &shaderRes{label: label, source: wgsl, spirv: spirv}
	logging.Logger().Debug("wgpu: shader compiled", "label", label, "words", len(spirv))
	return id, nil
}

// CreatePipeline builds a graphics pipeline.
func (b *Backend) CreatePipeline(desc *gpu.PipelineDesc) (gpu.PipelineID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return gpu.InvalidID, ErrNotInitialized
	}
	sh, ok := b.shaders[desc.Shader]
	if !ok {
		return gpu.InvalidID, fmt.Errorf("wgpu: pipeline %q: shader: %w", desc.Label, ErrInvalidHandle)
	}
	if !hasEntryPoint(sh.source, desc.VertexEntry) {
		return gpu.InvalidID, fmt.Errorf("wgpu: pipeline %q: no vertex entry %q in shader %q",
			desc.Label, desc.VertexEntry, sh.label)
	}
	if !hasEntryPoint(sh.source, desc.FragmentEntry) {
		return gpu.InvalidID, fmt.Errorf("wgpu: pipeline %q: no fragment entry %q in shader %q",
			desc.Label, desc.FragmentEntry, sh.label)
	}
	if desc.Topology != gpu.TopologyTriangles && desc.Topology != gpu.TopologyTriangleStrip {
		return gpu.InvalidID, fmt.Errorf("wgpu: pipeline %q: unknown topology %d", desc.Label, desc.Topology)
	}

	id := gpu.PipelineID(b.nextID.Add(1))
	b.pipelines[id] = &pipelineRes{desc: *desc}
	return id, nil
}

// CreateBindGroup builds a resource binding set.
func (b *Backend) CreateBindGroup(desc *gpu.BindGroupDesc) (gpu.BindGroupID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return gpu.InvalidID, ErrNotInitialized
	}
	buf, ok := b.buffers[desc.Uniforms]
	if !ok {
		return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q: uniforms: %w", desc.Label, ErrInvalidHandle)
	}
	if buf.binding&gpu.BindUniform == 0 {
		return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q: buffer %q lacks uniform binding",
			desc.Label, buf.label)
	}
	if desc.UniformSize == 0 || desc.UniformSize > buf.size {
		return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q: uniform size %d outside buffer %q",
			desc.Label, desc.UniformSize, buf.label)
	}

	id := gpu.BindGroupID(b.nextID.Add(1))
	b.bindGroups[id] = &bindGroupRes{desc: *desc}
	return id, nil
}

type staticWrite struct {
	buf  gpu.BufferID
	data []byte
}

type dynamicWrite struct {
	buf          gpu.BufferID
	offset, size uint64
	data         []byte
}

// writeBatch accumulates buffer updates for the next Submit.
type writeBatch struct {
	static  []staticWrite
	dynamic []dynamicWrite
}

var _ gpu.Batch = (*writeBatch)(nil)

func (w *writeBatch) UploadStatic(buf gpu.BufferID, data []byte) {
	w.static = append(w.static, staticWrite{buf: buf, data: data})
}

func (w *writeBatch) UpdateDynamic(buf gpu.BufferID, offset, size uint64, data []byte) {
	w.dynamic = append(w.dynamic, dynamicWrite{buf: buf, offset: offset, size: size, data: data})
}

// NewBatch starts a resource-update batch.
func (b *Backend) NewBatch() gpu.Batch {
	return &writeBatch{}
}

func (b *Backend) applyWrites(w *writeBatch) error {
	for _, s := range w.static {
		res, ok := b.buffers[s.buf]
		if !ok {
			return fmt.Errorf("wgpu: static upload: %w", ErrInvalidHandle)
		}
		if res.kind != gpu.BufferImmutable {
			return fmt.Errorf("wgpu: static upload into dynamic buffer %q", res.label)
		}
		if res.uploaded {
			return fmt.Errorf("wgpu: buffer %q uploaded twice", res.label)
		}
		if uint64(len(s.data)) > res.size {
			return fmt.Errorf("wgpu: upload of %d bytes overflows buffer %q (%d)",
				len(s.data), res.label, res.size)
		}
		// TODO: when core exposes queue buffer writes, this becomes a
		// single write on b.queue.
		copy(res.data, s.data)
		res.uploaded = true
	}
	for _, d := range w.dynamic {
		res, ok := b.buffers[d.buf]
		if !ok {
			return fmt.Errorf("wgpu: dynamic update: %w", ErrInvalidHandle)
		}
		if res.kind != gpu.BufferDynamic {
			return fmt.Errorf("wgpu: dynamic update into immutable buffer %q", res.label)
		}
		if d.offset+d.size > res.size {
			return fmt.Errorf("wgpu: update [%d,%d) overflows buffer %q (%d)",
				d.offset, d.offset+d.size, res.label, res.size)
		}
		if uint64(len(d.data)) < d.size {
			return fmt.Errorf("wgpu: update of buffer %q: %d bytes of data for size %d",
				res.label, len(d.data), d.size)
		}
		copy(res.data[d.offset:d.offset+d.size], d.data[:d.size])
	}
	return nil
}

// encoderState tracks the bound state while a command list replays, so
// malformed streams fail loudly instead of producing garbage frames.
type encoderState struct {
	pipeline *pipelineRes

	haveBindings bool
	haveVertex   bool

	// indexBytes is the byte range left in the bound index buffer from
	// its offset to its end.
	indexBytes uint64
}

func (b *Backend) replay(ops []gpu.Op) (int, error) {
	var st encoderState
	draws := 0
	for i := range ops {
		op := &ops[i]
		switch op.Kind {
		case gpu.OpSetViewport, gpu.OpSetScissor:
			// Carried into the render-pass descriptor.

		case gpu.OpSetPipeline:
			p, ok := b.pipelines[op.Pipeline]
			if !ok {
				return draws, fmt.Errorf("wgpu: set pipeline: %w", ErrInvalidHandle)
			}
			st.pipeline = p

		case gpu.OpSetShaderResources:
			bg, ok := b.bindGroups[op.Bindings]
			if !ok {
				return draws, fmt.Errorf("wgpu: set bindings: %w", ErrInvalidHandle)
			}
			if op.DynOffset%gpu.UniformAlign != 0 {
				return draws, fmt.Errorf("wgpu: dynamic offset %d not %d-aligned",
					op.DynOffset, gpu.UniformAlign)
			}
			buf, ok := b.buffers[bg.desc.Uniforms]
			if !ok {
				return draws, fmt.Errorf("wgpu: set bindings: uniforms: %w", ErrInvalidHandle)
			}
			if uint64(op.DynOffset)+bg.desc.UniformSize > buf.size {
				return draws, fmt.Errorf("wgpu: dynamic offset %d outside buffer %q (%d)",
					op.DynOffset, buf.label, buf.size)
			}
			st.haveBindings = true

		case gpu.OpSetVertexInput:
			vb, ok := b.buffers[op.Vertex]
			if !ok {
				return draws, fmt.Errorf("wgpu: set vertex buffer: %w", ErrInvalidHandle)
			}
			if vb.binding&gpu.BindVertex == 0 {
				return draws, fmt.Errorf("wgpu: buffer %q lacks vertex binding", vb.label)
			}
			if op.VertexOff > vb.size {
				return draws, fmt.Errorf("wgpu: vertex offset %d outside buffer %q (%d)",
					op.VertexOff, vb.label, vb.size)
			}
			ib, ok := b.buffers[op.Index]
			if !ok {
				return draws, fmt.Errorf("wgpu: set index buffer: %w", ErrInvalidHandle)
			}
			if ib.binding&gpu.BindIndex == 0 {
				return draws, fmt.Errorf("wgpu: buffer %q lacks index binding", ib.label)
			}
			if op.IndexOff > ib.size {
				return draws, fmt.Errorf("wgpu: index offset %d outside buffer %q (%d)",
					op.IndexOff, ib.label, ib.size)
			}
			if op.IndexFormat != gpu.IndexUint32 {
				return draws, fmt.Errorf("wgpu: unsupported index format %d", op.IndexFormat)
			}
			st.haveVertex = true
			st.indexBytes = ib.size - op.IndexOff

		case gpu.OpDraw:
			if st.pipeline == nil || !st.haveBindings {
				return draws, fmt.Errorf("wgpu: draw without pipeline or bindings")
			}
			draws++

		case gpu.OpDrawIndexed:
			if st.pipeline == nil || !st.haveBindings {
				return draws, fmt.Errorf("wgpu: indexed draw without pipeline or bindings")
			}
			if !st.pipeline.desc.HasVertexInput {
				return draws, fmt.Errorf("wgpu: indexed draw on pipeline %q without vertex input",
					st.pipeline.desc.Label)
			}
			if !st.haveVertex {
				return draws, fmt.Errorf("wgpu: indexed draw without bound vertex input")
			}
			if uint64(op.Count)*4 > st.indexBytes {
				return draws, fmt.Errorf("wgpu: indexed draw of %d indices exceeds index buffer", op.Count)
			}
			draws++

		default:
			return draws, fmt.Errorf("wgpu: unknown command kind %d", op.Kind)
		}
	}
	return draws, nil
}

// Submit applies the batch's buffer writes and replays the command list.
//
// The command stream is validated against the backend's resource tables.
// Encoding onto a wgpu render pass follows the same walk once core
// exposes pass recording; until then validated frames are accounted and
// dropped.
func (b *Backend) Submit(batch gpu.Batch, commands *gpu.CommandList) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return ErrNotInitialized
	}
	wb, ok := batch.(*writeBatch)
	if !ok {
		return ErrForeignBatch
	}

	if err := b.applyWrites(wb); err != nil {
		return err
	}

	draws, err := b.replay(commands.Ops())
	if err != nil {
		return err
	}

	// TODO: when core exposes render passes, encode the replayed ops
	// via a command encoder and submit to b.queue here.
	logging.Logger().Debug("wgpu: frame submitted",
		"draws", draws, "static", len(wb.static), "dynamic", len(wb.dynamic))
	return nil
}
