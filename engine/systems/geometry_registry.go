package systems

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// GeometryBuffers are the resident GPU buffers of one mesh LOD with
// their bindless indices.
type GeometryBuffers struct {
	VertexBuffer renderer.Buffer
	IndexBuffer  renderer.Buffer
	VertexSRV    metadata.ShaderVisibleIndex
	IndexSRV     metadata.ShaderVisibleIndex
}

type lodResidencyState uint8

const (
	lodAbsent lodResidencyState = iota
	lodUploading
	lodResident
)

type lodResidency struct {
	state   lodResidencyState
	buffers GeometryBuffers
	// Both uploads of an indexed LOD must complete before it flips
	// resident.
	outstanding int
}

type geometryEntry struct {
	lods []lodResidency
}

/**
 * GeometryRegistry tracks which mesh LODs have resident vertex and
 * index buffers. Missing LODs get buffer creation and uploads kicked
 * off; the caller drops the draw for the current frame and finds the
 * LOD resident on a later one.
 */
type GeometryRegistry struct {
	mu       sync.Mutex
	graphics renderer.Graphics
	registry *ResourceRegistry
	uploader *UploadCoordinator
	entries  map[metadata.ResourceKey]*geometryEntry
}

func NewGeometryRegistry(graphics renderer.Graphics, registry *ResourceRegistry, uploader *UploadCoordinator) *GeometryRegistry {
	return &GeometryRegistry{
		graphics: graphics,
		registry: registry,
		uploader: uploader,
		entries:  make(map[metadata.ResourceKey]*geometryEntry),
	}
}

// Lookup reports whether the LOD's buffers are resident.
func (gr *GeometryRegistry) Lookup(asset *metadata.GeometryAsset, lod uint32) (GeometryBuffers, bool) {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	entry, ok := gr.entries[asset.Key]
	if !ok || lod >= uint32(len(entry.lods)) {
		return GeometryBuffers{}, false
	}
	res := &entry.lods[lod]
	if res.state != lodResident {
		return GeometryBuffers{}, false
	}
	return res.buffers, true
}

// Request kicks off residency for the LOD if it is absent. Returns the
// buffers when already resident.
func (gr *GeometryRegistry) Request(asset *metadata.GeometryAsset, lod uint32) (GeometryBuffers, bool) {
	if buffers, ok := gr.Lookup(asset, lod); ok {
		return buffers, true
	}

	gr.mu.Lock()
	entry, ok := gr.entries[asset.Key]
	if !ok {
		entry = &geometryEntry{lods: make([]lodResidency, len(asset.LODs))}
		gr.entries[asset.Key] = entry
	}
	if lod >= uint32(len(entry.lods)) {
		gr.mu.Unlock()
		core.LogError("geometry registry: %q has no LOD %d", asset.Name, lod)
		return GeometryBuffers{}, false
	}
	res := &entry.lods[lod]
	if res.state != lodAbsent {
		gr.mu.Unlock()
		return GeometryBuffers{}, false
	}
	res.state = lodUploading
	gr.mu.Unlock()

	if err := gr.beginResidency(asset, lod); err != nil {
		core.LogError("geometry registry: residency for %q LOD %d failed: %s", asset.Name, lod, err.Error())
		gr.mu.Lock()
		entry.lods[lod].state = lodAbsent
		gr.mu.Unlock()
	}
	return GeometryBuffers{}, false
}

// geometryBufferKey derives distinct resource keys for the per-LOD
// vertex and index buffers from the asset key.
func geometryBufferKey(base metadata.ResourceKey, lod uint32, index bool) metadata.ResourceKey {
	key := uint64(base)<<8 | uint64(lod)<<1
	if index {
		key |= 1
	}
	return metadata.ResourceKey(key)
}

func (gr *GeometryRegistry) beginResidency(asset *metadata.GeometryAsset, lod uint32) error {
	data := &asset.LODs[lod]
	buffers := GeometryBuffers{
		VertexSRV: metadata.InvalidShaderVisibleIndex,
		IndexSRV:  metadata.InvalidShaderVisibleIndex,
	}
	outstanding := 1
	if data.IsIndexed {
		outstanding = 2
	}

	vbKey := geometryBufferKey(asset.Key, lod, false)
	vb, srv, err := gr.createGeometryBuffer(vbKey, fmt.Sprintf("%s/lod%d/vb", asset.Name, lod), data.VertexData)
	if err != nil {
		return err
	}
	buffers.VertexBuffer = vb
	buffers.VertexSRV = srv

	var ibKey metadata.ResourceKey
	if data.IsIndexed {
		ibKey = geometryBufferKey(asset.Key, lod, true)
		ib, srv, err := gr.createGeometryBuffer(ibKey, fmt.Sprintf("%s/lod%d/ib", asset.Name, lod), data.IndexData)
		if err != nil {
			return err
		}
		buffers.IndexBuffer = ib
		buffers.IndexSRV = srv
	}

	gr.mu.Lock()
	res := &gr.entries[asset.Key].lods[lod]
	res.buffers = buffers
	res.outstanding = outstanding
	gr.mu.Unlock()

	if err := gr.submitBufferUpload(asset.Key, lod, vbKey, buffers.VertexBuffer, data.VertexData); err != nil {
		return err
	}
	if data.IsIndexed {
		if err := gr.submitBufferUpload(asset.Key, lod, ibKey, buffers.IndexBuffer, data.IndexData); err != nil {
			return err
		}
	}
	return nil
}

func (gr *GeometryRegistry) createGeometryBuffer(key metadata.ResourceKey, name string, data []byte) (renderer.Buffer, metadata.ShaderVisibleIndex, error) {
	buffer, err := gr.graphics.CreateBuffer(renderer.BufferDesc{
		Name:  name,
		Size:  uint64(len(data)),
		Usage: metadata.ResourceStateShaderResource,
	})
	if err != nil {
		return nil, metadata.InvalidShaderVisibleIndex, err
	}
	if err := gr.registry.Register(key, buffer); err != nil {
		return nil, metadata.InvalidShaderVisibleIndex, err
	}
	handle, err := gr.registry.GetOrCreateView(key, metadata.ViewDescription{
		ViewType:   metadata.ViewTypeSRVBuffer,
		Visibility: metadata.VisibilityShader,
	})
	if err != nil {
		return nil, metadata.InvalidShaderVisibleIndex, err
	}
	return buffer, handle.ShaderVisibleIndex(), nil
}

func (gr *GeometryRegistry) submitBufferUpload(assetKey metadata.ResourceKey, lod uint32, bufferKey metadata.ResourceKey, dst renderer.Buffer, data []byte) error {
	_, err := gr.uploader.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		Key:       bufferKey,
		DstBuffer: dst,
		Data:      data,
		QueueRole: metadata.QueueRoleCopy,
		DebugName: fmt.Sprintf("geometry:%#x/lod%d", uint64(bufferKey), lod),
		OnComplete: func(result UploadResult) {
			gr.onUploadDone(assetKey, lod, result)
		},
	})
	return err
}

func (gr *GeometryRegistry) onUploadDone(assetKey metadata.ResourceKey, lod uint32, result UploadResult) {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	entry, ok := gr.entries[assetKey]
	if !ok || lod >= uint32(len(entry.lods)) {
		return
	}
	res := &entry.lods[lod]
	if result.Status != metadata.TicketCompleted {
		core.LogWarn("geometry registry: upload for key %#x LOD %d finished %s: %v",
			uint64(assetKey), lod, result.Status.String(), result.Err)
		res.state = lodAbsent
		return
	}
	res.outstanding--
	if res.outstanding == 0 {
		res.state = lodResident
	}
}

func (gr *GeometryRegistry) ResidentLODCount() int {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	count := 0
	for _, entry := range gr.entries {
		for i := range entry.lods {
			if entry.lods[i].state == lodResident {
				count++
			}
		}
	}
	return count
}

type geometryLODKey struct {
	key metadata.ResourceKey
	lod uint32
}

/**
 * GeometryResidencyCache memoizes registry lookups for one collection
 * pass so hot nodes sharing a mesh hit the registry lock once.
 */
type GeometryResidencyCache struct {
	mu       sync.Mutex
	registry *GeometryRegistry
	memo     map[geometryLODKey]geometryLookup
}

type geometryLookup struct {
	buffers  GeometryBuffers
	resident bool
}

func NewGeometryResidencyCache(registry *GeometryRegistry) *GeometryResidencyCache {
	return &GeometryResidencyCache{
		registry: registry,
		memo:     make(map[geometryLODKey]geometryLookup),
	}
}

// Resolve returns resident buffers or kicks off residency and reports
// false for this frame.
func (gc *GeometryResidencyCache) Resolve(asset *metadata.GeometryAsset, lod uint32) (GeometryBuffers, bool) {
	key := geometryLODKey{key: asset.Key, lod: lod}
	gc.mu.Lock()
	if hit, ok := gc.memo[key]; ok {
		gc.mu.Unlock()
		return hit.buffers, hit.resident
	}
	gc.mu.Unlock()

	buffers, resident := gc.registry.Request(asset, lod)

	gc.mu.Lock()
	gc.memo[key] = geometryLookup{buffers: buffers, resident: resident}
	gc.mu.Unlock()
	return buffers, resident
}

func (gc *GeometryResidencyCache) Reset() {
	gc.mu.Lock()
	clear(gc.memo)
	gc.mu.Unlock()
}
