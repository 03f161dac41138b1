// Package asset defines the identity, type, state, and metadata model shared
// by every other package in the pipeline: AssetId, AssetType, AssetState,
// QualityLevel, LoadFlags, AssetMetadata, AssetRecord, Asset and AssetHandle.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package asset

import (
	"hash/fnv"
	"strings"
)

// ID is a 64-bit opaque identifier, stable for a given logical path within a
// run, derived deterministically by FNV-1a 64 (asset_id_from_path). Zero is
// reserved as Invalid.
type ID uint64

const Invalid ID = 0

// FromPath computes an asset's ID from its logical path. Total, pure,
// deterministic: identical paths across processes produce identical IDs.
// Grounded on spec.md §4.A: "FNV-1a 64, zero collapsed to 1" — the stdlib
// hash/fnv implementation is the named algorithm itself, not a fallback.
func FromPath(path string) ID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	id := ID(h.Sum64())
	if id == Invalid {
		return 1
	}
	return id
}

// Type is the closed AssetType variant set.
type Type int

const (
	TypeUnknown Type = iota
	TypeTexture
	TypeMesh
	TypeMaterial
	TypeShader
	TypeAudio
	TypeAnimation
	TypeFont
	TypeScene
	TypeScript
	TypeConfig
	TypeBinary
)

var typeNames = map[Type]string{
	TypeUnknown:   "Unknown",
	TypeTexture:   "Texture",
	TypeMesh:      "Mesh",
	TypeMaterial:  "Material",
	TypeShader:    "Shader",
	TypeAudio:     "Audio",
	TypeAnimation: "Animation",
	TypeFont:      "Font",
	TypeScene:     "Scene",
	TypeScript:    "Script",
	TypeConfig:    "Config",
	TypeBinary:    "Binary",
}

var nameTypes = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, n := range typeNames {
		m[strings.ToLower(n)] = t
	}
	return m
}()

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Unknown"
}

// TypeFromName parses a serialized type name (case-insensitive), Unknown if
// unrecognized.
func TypeFromName(name string) Type {
	if t, ok := nameTypes[strings.ToLower(name)]; ok {
		return t
	}
	return TypeUnknown
}

var extTypes = map[string]Type{
	".png": TypeTexture, ".jpg": TypeTexture, ".jpeg": TypeTexture, ".bmp": TypeTexture,
	".tga": TypeTexture, ".dds": TypeTexture, ".ktx": TypeTexture, ".hdr": TypeTexture, ".exr": TypeTexture,
	".obj": TypeMesh, ".fbx": TypeMesh, ".gltf": TypeMesh, ".glb": TypeMesh,
	".dae": TypeMesh, ".3ds": TypeMesh, ".ply": TypeMesh,
	".wav": TypeAudio, ".mp3": TypeAudio, ".ogg": TypeAudio, ".flac": TypeAudio, ".aac": TypeAudio,
	".glsl": TypeShader, ".hlsl": TypeShader, ".vert": TypeShader, ".frag": TypeShader,
	".comp": TypeShader, ".spv": TypeShader,
	".json": TypeConfig, ".xml": TypeConfig, ".yaml": TypeConfig, ".yml": TypeConfig, ".ini": TypeConfig,
	".mat":   TypeMaterial,
	".anim":  TypeAnimation,
	".ttf":   TypeFont,
	".otf":   TypeFont,
	".scene": TypeScene,
	".lua":   TypeScript,
	".py":    TypeScript,
}

// TypeFromExtension maps a file extension (with or without leading dot,
// case-insensitive) to an AssetType; total, Unknown for unrecognized.
func TypeFromExtension(ext string) Type {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if t, ok := extTypes[ext]; ok {
		return t
	}
	return TypeUnknown
}

// State is the asset lifecycle state machine (spec §3): Unloaded -> Queued ->
// Loading -> Loaded; from Loaded either Stale or Error; Streaming coexists
// with Loaded at a lower quality level.
type State int

const (
	StateUnloaded State = iota
	StateQueued
	StateLoading
	StateLoaded
	StateStale
	StateError
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateQueued:
		return "Queued"
	case StateLoading:
		return "Loading"
	case StateLoaded:
		return "Loaded"
	case StateStale:
		return "Stale"
	case StateError:
		return "Error"
	case StateStreaming:
		return "Streaming"
	default:
		return "Unknown"
	}
}

// Quality is the ordered quality-level tier Low < Medium < High < Ultra.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
	QualityUltra
)

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	case QualityUltra:
		return "ultra"
	default:
		return "unknown"
	}
}
