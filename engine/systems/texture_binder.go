package systems

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

/**
 * TextureBinder resolves texture assets to shader-visible descriptor
 * indices. Textures without resident pixel data get their upload
 * enqueued; the draw referencing them uses the invalid index until the
 * upload completes, then resolves normally on a later frame.
 */
type TextureBinder struct {
	mu       sync.Mutex
	graphics renderer.Graphics
	registry *ResourceRegistry
	uploader *UploadCoordinator

	resident map[metadata.ResourceKey]metadata.ShaderVisibleIndex
	pending  map[metadata.ResourceKey]UploadTicket
}

func NewTextureBinder(graphics renderer.Graphics, registry *ResourceRegistry, uploader *UploadCoordinator) *TextureBinder {
	return &TextureBinder{
		graphics: graphics,
		registry: registry,
		uploader: uploader,
		resident: make(map[metadata.ResourceKey]metadata.ShaderVisibleIndex),
		pending:  make(map[metadata.ResourceKey]UploadTicket),
	}
}

// Resolve returns the shader-visible index for asset. The second return
// is false while the texture is still uploading. A nil asset resolves
// to the invalid index immediately; shaders treat it as unbound.
func (tb *TextureBinder) Resolve(asset *metadata.TextureAsset) (metadata.ShaderVisibleIndex, bool) {
	if asset == nil {
		return metadata.InvalidShaderVisibleIndex, true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if index, ok := tb.resident[asset.Key]; ok {
		return index, true
	}
	if _, ok := tb.pending[asset.Key]; ok {
		return metadata.InvalidShaderVisibleIndex, false
	}
	if err := tb.beginResidencyLocked(asset); err != nil {
		core.LogError("texture binder: residency for %q failed: %s", asset.Name, err.Error())
		return metadata.InvalidShaderVisibleIndex, false
	}
	return metadata.InvalidShaderVisibleIndex, false
}

// beginResidencyLocked creates the texture, its shader-visible view and
// the upload request moving the pixels onto the GPU.
func (tb *TextureBinder) beginResidencyLocked(asset *metadata.TextureAsset) error {
	texture, err := tb.graphics.CreateTexture(renderer.TextureDesc{
		Name:      asset.Name,
		Width:     asset.Width,
		Height:    asset.Height,
		Depth:     1,
		MipLevels: 1,
		Usage:     metadata.ResourceStateShaderResource,
	})
	if err != nil {
		return err
	}
	if err := tb.registry.Register(asset.Key, texture); err != nil {
		return err
	}
	handle, err := tb.registry.GetOrCreateView(asset.Key, metadata.ViewDescription{
		ViewType:   metadata.ViewTypeSRVTexture,
		Visibility: metadata.VisibilityShader,
	})
	if err != nil {
		return err
	}
	index := handle.ShaderVisibleIndex()

	key := asset.Key
	ticket, err := tb.uploader.Submit(&UploadRequest{
		Kind:       metadata.UploadKindTextureRegion,
		Key:        key,
		DstTexture: texture,
		Region: metadata.TextureRegion{
			Width:  asset.Width,
			Height: asset.Height,
			Depth:  1,
		},
		Data:      asset.Pixels,
		QueueRole: metadata.QueueRoleCopy,
		DebugName: fmt.Sprintf("texture:%s", asset.Name),
		OnComplete: func(result UploadResult) {
			tb.onUploadDone(key, index, result)
		},
	})
	if err != nil {
		return err
	}
	tb.pending[key] = ticket
	return nil
}

func (tb *TextureBinder) onUploadDone(key metadata.ResourceKey, index metadata.ShaderVisibleIndex, result UploadResult) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	delete(tb.pending, key)
	if result.Status != metadata.TicketCompleted {
		core.LogWarn("texture binder: upload for key %#x finished %s: %v", uint64(key), result.Status.String(), result.Err)
		return
	}
	tb.resident[key] = index
}

func (tb *TextureBinder) ResidentCount() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.resident)
}

func (tb *TextureBinder) PendingCount() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.pending)
}
