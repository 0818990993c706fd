package systems

import (
	"sync"

	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// MaterialHandle is a slot in the material constants buffer.
type MaterialHandle = uint32

/**
 * MaterialRegistry interns material assets by pointer identity. Each
 * distinct asset gets one slot in the material constants buffer with
 * its texture references resolved through the binder. Slots persist
 * across frames; texture indices refresh as residency completes.
 */
type MaterialRegistry struct {
	mu        sync.Mutex
	binder    *TextureBinder
	lookup    map[*metadata.MaterialAsset]MaterialHandle
	constants []metadata.MaterialConstants
	// Slots still waiting on at least one texture upload.
	unresolved map[MaterialHandle]*metadata.MaterialAsset
}

func NewMaterialRegistry(binder *TextureBinder) *MaterialRegistry {
	return &MaterialRegistry{
		binder:     binder,
		lookup:     make(map[*metadata.MaterialAsset]MaterialHandle),
		unresolved: make(map[MaterialHandle]*metadata.MaterialAsset),
	}
}

// GetOrRegister returns the slot interned for material, allocating one
// and resolving its textures on first sight.
func (mr *MaterialRegistry) GetOrRegister(material *metadata.MaterialAsset) MaterialHandle {
	mr.mu.Lock()
	if handle, ok := mr.lookup[material]; ok {
		mr.mu.Unlock()
		return handle
	}
	handle := MaterialHandle(len(mr.constants))
	mr.lookup[material] = handle
	mr.constants = append(mr.constants, material.Constants)
	mr.unresolved[handle] = material
	mr.mu.Unlock()

	// Texture resolution calls into the binder and the uploader, so it
	// happens outside the registry lock.
	mr.refreshSlot(handle, material)
	return handle
}

// RefreshPending re-resolves texture indices for slots that were still
// waiting on uploads. Called once per frame before finalization.
func (mr *MaterialRegistry) RefreshPending() {
	mr.mu.Lock()
	pending := make(map[MaterialHandle]*metadata.MaterialAsset, len(mr.unresolved))
	for handle, material := range mr.unresolved {
		pending[handle] = material
	}
	mr.mu.Unlock()

	for handle, material := range pending {
		mr.refreshSlot(handle, material)
	}
}

func (mr *MaterialRegistry) refreshSlot(handle MaterialHandle, material *metadata.MaterialAsset) {
	constants := material.Constants
	allResident := true
	resolve := func(asset *metadata.TextureAsset) uint32 {
		index, resident := mr.binder.Resolve(asset)
		if !resident {
			allResident = false
		}
		return uint32(index)
	}
	constants.BaseColorTextureIndex = resolve(material.BaseColorTexture)
	constants.NormalTextureIndex = resolve(material.NormalTexture)
	constants.MetallicTextureIndex = resolve(material.MetallicTexture)
	constants.RoughnessTextureIndex = resolve(material.RoughnessTexture)
	constants.AmbientOcclusionTextureIndex = resolve(material.OcclusionTexture)
	constants.EmissiveTextureIndex = resolve(material.EmissiveTexture)

	mr.mu.Lock()
	mr.constants[handle] = constants
	if allResident {
		delete(mr.unresolved, handle)
	}
	mr.mu.Unlock()
}

func (mr *MaterialRegistry) Count() int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return len(mr.constants)
}

// Constants copies the packed constants array for upload.
func (mr *MaterialRegistry) Constants() []metadata.MaterialConstants {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	out := make([]metadata.MaterialConstants, len(mr.constants))
	copy(out, mr.constants)
	return out
}
