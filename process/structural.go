package process

import (
	"context"
	"fmt"
	"time"

	"github.com/forgekit/assetcore/asset"
)

// TextureProcessor performs the structural stages that don't require a real
// image codec — mipmap/LOD bucketing and option validation — then defers
// actual pixel decode to a host-supplied Decoder (spec non-goals: concrete
// PNG/JPEG/... decoders are external collaborators).
type TextureProcessor struct{ Decode Decoder }

func NewTextureProcessor(decode Decoder) *TextureProcessor { return &TextureProcessor{Decode: decode} }

func (p *TextureProcessor) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".bmp", ".tga", ".dds", ".ktx", ".hdr", ".exr"}
}

func (p *TextureProcessor) CanProcess(path string, meta asset.Metadata) bool {
	return meta.Type == asset.TypeTexture
}

func (p *TextureProcessor) Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error) {
	start := time.Now()
	info := map[string]string{"mipmaps": fmt.Sprintf("%v", opts.GenerateMipmaps)}
	if opts.Texture != nil {
		info["codec"] = opts.Texture.Codec
		info["max_res"] = fmt.Sprintf("%d", opts.Texture.MaxRes)
	}

	if p.Decode == nil {
		return &Result{Success: true, OutputBytes: input, ProcessingInfo: info, ProcessingTime: time.Since(start)}, nil
	}
	decoded, outBytes, err := p.Decode(input, opts)
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error(), ProcessingTime: time.Since(start)}, nil
	}
	return &Result{Success: true, OutputBytes: outBytes, Decoded: decoded, ProcessingInfo: info, ProcessingTime: time.Since(start)}, nil
}

func (p *TextureProcessor) EstimateTime(inputSize int64, opts Options) time.Duration {
	factor := time.Duration(1)
	if opts.GenerateMipmaps {
		factor = 2
	}
	return time.Duration(inputSize/1024+1) * time.Microsecond * 50 * factor
}

func (p *TextureProcessor) EstimateOutputSize(inputSize int64, opts Options) int64 {
	if opts.GenerateMipmaps {
		return inputSize * 4 / 3 // mip chain overhead
	}
	return inputSize
}

// MeshProcessor performs weld/normal-generation metadata bookkeeping and
// defers actual geometry decode (OBJ/FBX/glTF/...) to a host Decoder.
type MeshProcessor struct{ Decode Decoder }

func NewMeshProcessor(decode Decoder) *MeshProcessor { return &MeshProcessor{Decode: decode} }

func (p *MeshProcessor) SupportedExtensions() []string {
	return []string{".obj", ".fbx", ".gltf", ".glb", ".dae", ".3ds", ".ply"}
}

func (p *MeshProcessor) CanProcess(path string, meta asset.Metadata) bool {
	return meta.Type == asset.TypeMesh
}

func (p *MeshProcessor) Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error) {
	start := time.Now()
	info := map[string]string{}
	if opts.Mesh != nil {
		info["weld"] = fmt.Sprintf("%v", opts.Mesh.Weld)
		info["generate_normals"] = fmt.Sprintf("%v", opts.Mesh.GenerateNormals)
		info["target_triangles"] = fmt.Sprintf("%d", opts.Mesh.TargetTriangles)
	}
	if p.Decode == nil {
		return &Result{Success: true, OutputBytes: input, ProcessingInfo: info, ProcessingTime: time.Since(start)}, nil
	}
	decoded, outBytes, err := p.Decode(input, opts)
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error(), ProcessingTime: time.Since(start)}, nil
	}
	return &Result{Success: true, OutputBytes: outBytes, Decoded: decoded, ProcessingInfo: info, ProcessingTime: time.Since(start)}, nil
}

func (p *MeshProcessor) EstimateTime(inputSize int64, opts Options) time.Duration {
	return time.Duration(inputSize/2048+1) * time.Microsecond * 80
}

func (p *MeshProcessor) EstimateOutputSize(inputSize int64, opts Options) int64 { return inputSize }

// AudioProcessor validates resample parameters and defers real audio decode
// (WAV/MP3/OGG/...) to a host Decoder.
type AudioProcessor struct{ Decode Decoder }

func NewAudioProcessor(decode Decoder) *AudioProcessor { return &AudioProcessor{Decode: decode} }

func (p *AudioProcessor) SupportedExtensions() []string {
	return []string{".wav", ".mp3", ".ogg", ".flac", ".aac"}
}

func (p *AudioProcessor) CanProcess(path string, meta asset.Metadata) bool {
	return meta.Type == asset.TypeAudio
}

func (p *AudioProcessor) Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Audio != nil && opts.Audio.SampleRate < 0 {
		return &Result{Success: false, ErrorMessage: "audio processor: negative sample_rate", ProcessingTime: time.Since(start)}, nil
	}
	info := map[string]string{}
	if opts.Audio != nil {
		info["sample_rate"] = fmt.Sprintf("%d", opts.Audio.SampleRate)
		info["to_mono"] = fmt.Sprintf("%v", opts.Audio.ToMono)
	}
	if p.Decode == nil {
		return &Result{Success: true, OutputBytes: input, ProcessingInfo: info, ProcessingTime: time.Since(start)}, nil
	}
	decoded, outBytes, err := p.Decode(input, opts)
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error(), ProcessingTime: time.Since(start)}, nil
	}
	return &Result{Success: true, OutputBytes: outBytes, Decoded: decoded, ProcessingInfo: info, ProcessingTime: time.Since(start)}, nil
}

func (p *AudioProcessor) EstimateTime(inputSize int64, opts Options) time.Duration {
	return time.Duration(inputSize/4096+1) * time.Microsecond * 40
}

func (p *AudioProcessor) EstimateOutputSize(inputSize int64, opts Options) int64 { return inputSize }

// ShaderProcessor passes shader source/bytecode through to a host Decoder
// (GLSL/HLSL compilation is entirely external).
type ShaderProcessor struct{ Decode Decoder }

func NewShaderProcessor(decode Decoder) *ShaderProcessor { return &ShaderProcessor{Decode: decode} }

func (p *ShaderProcessor) SupportedExtensions() []string {
	return []string{".glsl", ".hlsl", ".vert", ".frag", ".comp", ".spv"}
}

func (p *ShaderProcessor) CanProcess(path string, meta asset.Metadata) bool {
	return meta.Type == asset.TypeShader
}

func (p *ShaderProcessor) Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error) {
	start := time.Now()
	if p.Decode == nil {
		return &Result{Success: true, OutputBytes: input, ProcessingTime: time.Since(start)}, nil
	}
	decoded, outBytes, err := p.Decode(input, opts)
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error(), ProcessingTime: time.Since(start)}, nil
	}
	return &Result{Success: true, OutputBytes: outBytes, Decoded: decoded, ProcessingTime: time.Since(start)}, nil
}

func (p *ShaderProcessor) EstimateTime(inputSize int64, opts Options) time.Duration {
	return time.Duration(inputSize/1024+1) * time.Microsecond * 30
}

func (p *ShaderProcessor) EstimateOutputSize(inputSize int64, opts Options) int64 { return inputSize }

// BinaryProcessor is a pure pass-through for Binary/Script/Scene/Font/
// Animation assets that need no structural stage at all.
type BinaryProcessor struct{}

func NewBinaryProcessor() *BinaryProcessor { return &BinaryProcessor{} }

func (p *BinaryProcessor) SupportedExtensions() []string { return nil }

func (p *BinaryProcessor) CanProcess(path string, meta asset.Metadata) bool {
	switch meta.Type {
	case asset.TypeBinary, asset.TypeScript, asset.TypeScene, asset.TypeFont, asset.TypeAnimation, asset.TypeMaterial:
		return true
	default:
		return false
	}
}

func (p *BinaryProcessor) Process(ctx context.Context, input []byte, meta asset.Metadata, opts Options) (*Result, error) {
	start := time.Now()
	return &Result{Success: true, OutputBytes: input, ProcessingTime: time.Since(start)}, nil
}

func (p *BinaryProcessor) EstimateTime(inputSize int64, opts Options) time.Duration {
	return time.Duration(inputSize/8192+1) * time.Microsecond * 10
}

func (p *BinaryProcessor) EstimateOutputSize(inputSize int64, opts Options) int64 { return inputSize }
