package wgpu

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/mapview/gpu"
)

// mockProvider stands in for a host application sharing its device.
type mockProvider struct{}

func (mockProvider) Device() gpucontext.Device             { return nil }
func (mockProvider) Queue() gpucontext.Queue               { return nil }
func (mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (mockProvider) Adapter() gpucontext.Adapter           { return nil }
func (mockProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

func testBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackendWithProvider(mockProvider{})
	if err != nil {
		t.Fatalf("NewBackendWithProvider: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

const testShaderWGSL = `
struct Uniforms {
	mat: mat4x4<f32>,
	color: vec4<f32>,
};

@group(0) @binding(0) var<uniform> u: Uniforms;

@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
	return u.mat * vec4<f32>(pos, 0.0, 1.0);
}

@vertex
fn vs_quad(@builtin(vertex_index) vi: u32) -> @builtin(position) vec4<f32> {
	var corners = array<vec2<f32>, 4>(
		vec2<f32>(-1.0, -1.0),
		vec2<f32>(1.0, -1.0),
		vec2<f32>(-1.0, 1.0),
		vec2<f32>(1.0, 1.0),
	);
	return vec4<f32>(corners[vi], 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
	return u.color;
}
`

func TestBackendRequiresInit(t *testing.T) {
	b := NewBackend()

	if _, err := b.CreateBuffer(&gpu.BufferDesc{Size: 16, Kind: gpu.BufferDynamic, Binding: gpu.BindUniform}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CreateBuffer err = %v, want ErrNotInitialized", err)
	}
	if _, err := b.CreateShaderModule("s", testShaderWGSL); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CreateShaderModule err = %v, want ErrNotInitialized", err)
	}
	if err := b.Submit(b.NewBatch(), &gpu.CommandList{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Submit err = %v, want ErrNotInitialized", err)
	}
}

func TestNewBackendWithProviderNil(t *testing.T) {
	if _, err := NewBackendWithProvider(nil); !errors.Is(err, ErrNilProvider) {
		t.Errorf("err = %v, want ErrNilProvider", err)
	}
}

func TestBackendWithProviderReady(t *testing.T) {
	b := testBackend(t)
	if !b.IsInitialized() {
		t.Error("provider-backed backend not initialized")
	}
	if err := b.Init(); err != nil {
		t.Errorf("Init on provider-backed backend: %v", err)
	}
	if !b.Device().IsZero() {
		t.Error("provider-backed backend should not own a device")
	}
}

func TestCreateBufferValidation(t *testing.T) {
	b := testBackend(t)

	tests := []struct {
		name string
		desc gpu.BufferDesc
	}{
		{"zero size", gpu.BufferDesc{Kind: gpu.BufferImmutable, Binding: gpu.BindVertex}},
		{"no kind", gpu.BufferDesc{Size: 16, Binding: gpu.BindVertex}},
		{"no binding", gpu.BufferDesc{Size: 16, Kind: gpu.BufferImmutable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.CreateBuffer(&tt.desc); err == nil {
				t.Error("expected error")
			}
		})
	}

	id, err := b.CreateBuffer(&gpu.BufferDesc{
		Label: "ok", Size: 16, Kind: gpu.BufferImmutable, Binding: gpu.BindVertex,
	})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if id == gpu.InvalidID {
		t.Error("got invalid id for valid buffer")
	}
}

func TestBufferUsageConversion(t *testing.T) {
	tests := []struct {
		name    string
		binding gpu.BufferBinding
		want    gputypes.BufferUsage
	}{
		{"vertex", gpu.BindVertex, gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst},
		{"index", gpu.BindIndex, gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst},
		{"uniform", gpu.BindUniform, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{"vertex+index", gpu.BindVertex | gpu.BindIndex,
			gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bufferUsage(&gpu.BufferDesc{Binding: tt.binding})
			if got != tt.want {
				t.Errorf("bufferUsage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasEntryPoint(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		want  bool
	}{
		{"vertex entry", "vs_main", true},
		{"second vertex entry", "vs_quad", true},
		{"fragment entry", "fs_main", true},
		{"missing", "vs_other", false},
		{"prefix only", "vs", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasEntryPoint(testShaderWGSL, tt.entry); got != tt.want {
				t.Errorf("hasEntryPoint(%q) = %v, want %v", tt.entry, got, tt.want)
			}
		})
	}
}

func TestCreatePipeline(t *testing.T) {
	b := testBackend(t)
	shader, err := b.CreateShaderModule("test", testShaderWGSL)
	if err != nil {
		t.Fatalf("CreateShaderModule: %v", err)
	}

	if _, err := b.CreatePipeline(&gpu.PipelineDesc{
		Label: "fill", Shader: shader,
		VertexEntry: "vs_main", FragmentEntry: "fs_main",
		Topology: gpu.TopologyTriangles, HasVertexInput: true,
	}); err != nil {
		t.Errorf("CreatePipeline: %v", err)
	}

	if _, err := b.CreatePipeline(&gpu.PipelineDesc{
		Label: "bad entry", Shader: shader,
		VertexEntry: "vs_missing", FragmentEntry: "fs_main",
		Topology: gpu.TopologyTriangles,
	}); err == nil || !strings.Contains(err.Error(), "vs_missing") {
		t.Errorf("missing entry err = %v, want mention of vs_missing", err)
	}

	if _, err := b.CreatePipeline(&gpu.PipelineDesc{
		Label: "bad shader", Shader: gpu.ShaderModuleID(9999),
		VertexEntry: "vs_main", FragmentEntry: "fs_main",
		Topology: gpu.TopologyTriangles,
	}); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("unknown shader err = %v, want ErrInvalidHandle", err)
	}
}

func TestCreateBindGroupValidation(t *testing.T) {
	b := testBackend(t)

	uniforms, err := b.CreateBuffer(&gpu.BufferDesc{
		Label: "uniforms", Size: 4 * gpu.UniformAlign,
		Kind: gpu.BufferDynamic, Binding: gpu.BindUniform,
	})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	vertex, err := b.CreateBuffer(&gpu.BufferDesc{
		Label: "vertex", Size: 64, Kind: gpu.BufferImmutable, Binding: gpu.BindVertex,
	})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	if _, err := b.CreateBindGroup(&gpu.BindGroupDesc{
		Uniforms: uniforms, UniformSize: gpu.UniformAlign,
	}); err != nil {
		t.Errorf("CreateBindGroup: %v", err)
	}
	if _, err := b.CreateBindGroup(&gpu.BindGroupDesc{
		Uniforms: gpu.BufferID(9999), UniformSize: gpu.UniformAlign,
	}); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("unknown buffer err = %v, want ErrInvalidHandle", err)
	}
	if _, err := b.CreateBindGroup(&gpu.BindGroupDesc{
		Uniforms: vertex, UniformSize: gpu.UniformAlign,
	}); err == nil {
		t.Error("expected error for non-uniform buffer")
	}
	if _, err := b.CreateBindGroup(&gpu.BindGroupDesc{
		Uniforms: uniforms, UniformSize: 8 * gpu.UniformAlign,
	}); err == nil {
		t.Error("expected error for oversized uniform record")
	}
}

// frameSetup builds the resources one composed frame needs.
type frameSetup struct {
	vertex, index, uniforms gpu.BufferID
	fill, background        gpu.PipelineID
	bindings                gpu.BindGroupID
}

func setupFrame(t *testing.T, b *Backend) frameSetup {
	t.Helper()
	var s frameSetup
	var err error

	s.vertex, err = b.CreateBuffer(&gpu.BufferDesc{
		Label: "vertex", Size: 64, Kind: gpu.BufferImmutable, Binding: gpu.BindVertex,
	})
	if err != nil {
		t.Fatalf("vertex buffer: %v", err)
	}
	s.index, err = b.CreateBuffer(&gpu.BufferDesc{
		Label: "index", Size: 24, Kind: gpu.BufferImmutable, Binding: gpu.BindIndex,
	})
	if err != nil {
		t.Fatalf("index buffer: %v", err)
	}
	s.uniforms, err = b.CreateBuffer(&gpu.BufferDesc{
		Label: "uniforms", Size: 4 * gpu.UniformAlign,
		Kind: gpu.BufferDynamic, Binding: gpu.BindUniform,
	})
	if err != nil {
		t.Fatalf("uniform buffer: %v", err)
	}

	shader, err := b.CreateShaderModule("test", testShaderWGSL)
	if err != nil {
		t.Fatalf("shader: %v", err)
	}
	s.fill, err = b.CreatePipeline(&gpu.PipelineDesc{
		Label: "fill", Shader: shader,
		VertexEntry: "vs_main", FragmentEntry: "fs_main",
		Topology: gpu.TopologyTriangles, HasVertexInput: true,
	})
	if err != nil {
		t.Fatalf("fill pipeline: %v", err)
	}
	s.background, err = b.CreatePipeline(&gpu.PipelineDesc{
		Label: "background", Shader: shader,
		VertexEntry: "vs_quad", FragmentEntry: "fs_main",
		Topology: gpu.TopologyTriangleStrip,
	})
	if err != nil {
		t.Fatalf("background pipeline: %v", err)
	}
	s.bindings, err = b.CreateBindGroup(&gpu.BindGroupDesc{
		Uniforms: s.uniforms, UniformSize: gpu.UniformAlign,
	})
	if err != nil {
		t.Fatalf("bind group: %v", err)
	}
	return s
}

func TestSubmitFrame(t *testing.T) {
	b := testBackend(t)
	s := setupFrame(t, b)

	vtxData := bytes.Repeat([]byte{1}, 64)
	idxData := bytes.Repeat([]byte{2}, 24)
	uniData := bytes.Repeat([]byte{3}, 2*gpu.UniformAlign)

	batch := b.NewBatch()
	batch.UploadStatic(s.vertex, vtxData)
	batch.UploadStatic(s.index, idxData)
	batch.UpdateDynamic(s.uniforms, 0, uint64(len(uniData)), uniData)

	cmds := &gpu.CommandList{}
	cmds.SetViewport(0, 0, 512, 512)
	cmds.SetScissor(0, 0, 512, 512)
	cmds.SetPipeline(s.background)
	cmds.SetShaderResources(s.bindings, 0)
	cmds.Draw(4)
	cmds.SetPipeline(s.fill)
	cmds.SetShaderResources(s.bindings, gpu.UniformAlign)
	cmds.SetVertexInput(s.vertex, 0, s.index, 0, gpu.IndexUint32)
	cmds.DrawIndexed(6)

	if err := b.Submit(batch, cmds); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := b.buffers[s.vertex].data; !bytes.Equal(got, vtxData) {
		t.Error("vertex data not applied")
	}
	if got := b.buffers[s.uniforms].data[:len(uniData)]; !bytes.Equal(got, uniData) {
		t.Error("uniform data not applied")
	}

	// Immutable buffers accept exactly one upload.
	again := b.NewBatch()
	again.UploadStatic(s.vertex, vtxData)
	if err := b.Submit(again, &gpu.CommandList{}); err == nil {
		t.Error("expected error for second static upload")
	}
}

func TestSubmitValidation(t *testing.T) {
	b := testBackend(t)
	s := setupFrame(t, b)

	t.Run("foreign batch", func(t *testing.T) {
		if err := b.Submit(nil, &gpu.CommandList{}); !errors.Is(err, ErrForeignBatch) {
			t.Errorf("err = %v, want ErrForeignBatch", err)
		}
	})

	t.Run("draw without pipeline", func(t *testing.T) {
		cmds := &gpu.CommandList{}
		cmds.Draw(4)
		if err := b.Submit(b.NewBatch(), cmds); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("misaligned dynamic offset", func(t *testing.T) {
		cmds := &gpu.CommandList{}
		cmds.SetPipeline(s.background)
		cmds.SetShaderResources(s.bindings, 100)
		if err := b.Submit(b.NewBatch(), cmds); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("dynamic offset past buffer end", func(t *testing.T) {
		cmds := &gpu.CommandList{}
		cmds.SetPipeline(s.background)
		cmds.SetShaderResources(s.bindings, 4*gpu.UniformAlign)
		if err := b.Submit(b.NewBatch(), cmds); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("index draw past buffer end", func(t *testing.T) {
		cmds := &gpu.CommandList{}
		cmds.SetPipeline(s.fill)
		cmds.SetShaderResources(s.bindings, 0)
		cmds.SetVertexInput(s.vertex, 0, s.index, 0, gpu.IndexUint32)
		cmds.DrawIndexed(100)
		if err := b.Submit(b.NewBatch(), cmds); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("indexed draw without vertex input", func(t *testing.T) {
		cmds := &gpu.CommandList{}
		cmds.SetPipeline(s.fill)
		cmds.SetShaderResources(s.bindings, 0)
		cmds.DrawIndexed(6)
		if err := b.Submit(b.NewBatch(), cmds); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("dynamic update overflow", func(t *testing.T) {
		batch := b.NewBatch()
		data := make([]byte, 8*gpu.UniformAlign)
		batch.UpdateDynamic(s.uniforms, 0, uint64(len(data)), data)
		if err := b.Submit(batch, &gpu.CommandList{}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("static upload into dynamic buffer", func(t *testing.T) {
		batch := b.NewBatch()
		batch.UploadStatic(s.uniforms, make([]byte, 16))
		if err := b.Submit(batch, &gpu.CommandList{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDestroyBuffer(t *testing.T) {
	b := testBackend(t)
	id, err := b.CreateBuffer(&gpu.BufferDesc{
		Label: "v", Size: 16, Kind: gpu.BufferImmutable, Binding: gpu.BindVertex,
	})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	b.DestroyBuffer(id)
	b.DestroyBuffer(id)

	batch := b.NewBatch()
	batch.UploadStatic(id, make([]byte, 16))
	if err := b.Submit(batch, &gpu.CommandList{}); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("upload into destroyed buffer err = %v, want ErrInvalidHandle", err)
	}
}

func TestCloseResets(t *testing.T) {
	b := testBackend(t)
	if _, err := b.CreateBuffer(&gpu.BufferDesc{
		Label: "v", Size: 16, Kind: gpu.BufferImmutable, Binding: gpu.BindVertex,
	}); err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	b.Close()
	b.Close()

	if _, err := b.CreateBuffer(&gpu.BufferDesc{
		Label: "v", Size: 16, Kind: gpu.BufferImmutable, Binding: gpu.BindVertex,
	}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("CreateBuffer after Close err = %v, want ErrNotInitialized", err)
	}
}
