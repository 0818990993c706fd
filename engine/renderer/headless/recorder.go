package headless

import (
	"fmt"

	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

type CommandKind uint8

const (
	CmdSetPipelineState CommandKind = iota
	CmdSetRoot32BitConstant
	CmdSetRootCBV
	CmdCopyBufferRegion
	CmdCopyTextureRegion
	CmdBarrier
	CmdDraw
	CmdDrawIndexed
	CmdDispatch
)

// RecordedCommand retains everything a recorder was asked to do, so tests
// can assert on the emitted stream.
type RecordedCommand struct {
	Kind CommandKind

	// Barrier fields.
	Key  metadata.ResourceKey
	From metadata.ResourceState
	To   metadata.ResourceState

	// Copy fields.
	Dst       renderer.NativeObject
	Src       renderer.NativeObject
	DstOffset uint64
	SrcOffset uint64
	Size      uint64
	Region    metadata.TextureRegion

	// Draw/dispatch/root fields.
	Args [5]uint32
}

type CommandListImpl struct {
	name     string
	recorder *Recorder
	Commands []RecordedCommand
}

func (c *CommandListImpl) Name() string {
	return c.name
}

type recorderState uint8

const (
	recorderRecording recorderState = iota
	recorderEnded
)

// Recorder accumulates commands for one queue role. Copies execute
// eagerly against the in-memory resources so that "GPU" results are
// observable as soon as the fence completes.
type Recorder struct {
	backend *Backend
	role    metadata.QueueRole
	state   recorderState
	serial  uint64

	commands []RecordedCommand
	// Barriers batched until the next draw/dispatch or End.
	pendingBarriers []RecordedCommand
}

func newRecorder(backend *Backend, role metadata.QueueRole) *Recorder {
	return &Recorder{backend: backend, role: role}
}

func (r *Recorder) reset() {
	r.state = recorderRecording
	r.serial++
	r.commands = r.commands[:0]
	r.pendingBarriers = r.pendingBarriers[:0]
}

func (r *Recorder) SetPipelineState(pso renderer.NativeObject) {
	r.commands = append(r.commands, RecordedCommand{Kind: CmdSetPipelineState, Dst: pso})
}

func (r *Recorder) SetComputeRoot32BitConstant(rootParameterIndex, value, destOffsetInValues uint32) {
	r.commands = append(r.commands, RecordedCommand{
		Kind: CmdSetRoot32BitConstant,
		Args: [5]uint32{rootParameterIndex, value, destOffsetInValues},
	})
}

func (r *Recorder) SetComputeRootConstantBufferView(rootParameterIndex uint32, gpuAddress uint64) {
	r.commands = append(r.commands, RecordedCommand{
		Kind: CmdSetRootCBV,
		Args: [5]uint32{rootParameterIndex},
		Size: gpuAddress,
	})
}

func (r *Recorder) CopyBufferRegion(dst renderer.Buffer, dstOffset uint64, src renderer.Buffer, srcOffset, size uint64) {
	r.commands = append(r.commands, RecordedCommand{
		Kind:      CmdCopyBufferRegion,
		Dst:       dst,
		Src:       src,
		DstOffset: dstOffset,
		SrcOffset: srcOffset,
		Size:      size,
	})
	// Execute eagerly; completion visibility is gated by the fence.
	d, dok := dst.(*Buffer)
	s, sok := src.(*Buffer)
	if dok && sok {
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	}
}

func (r *Recorder) CopyTextureRegion(dst renderer.Texture, region metadata.TextureRegion, src renderer.Buffer, srcOffset uint64) {
	r.commands = append(r.commands, RecordedCommand{
		Kind:      CmdCopyTextureRegion,
		Dst:       dst,
		Src:       src,
		SrcOffset: srcOffset,
		Region:    region,
	})
	d, dok := dst.(*Texture)
	s, sok := src.(*Buffer)
	if dok && sok {
		copyTextureRows(d, region, s.data[srcOffset:])
	}
}

func copyTextureRows(dst *Texture, region metadata.TextureRegion, src []byte) {
	rowBytes := uint64(region.Width) * 4
	pitch := region.RowPitch
	if pitch == 0 {
		pitch = rowBytes
	}
	dstPitch := uint64(dst.desc.Width) * 4
	for row := uint64(0); row < uint64(region.Height); row++ {
		dstOff := (uint64(region.Y)+row)*dstPitch + uint64(region.X)*4
		srcOff := row * pitch
		if dstOff+rowBytes > uint64(len(dst.data)) || srcOff+rowBytes > uint64(len(src)) {
			return
		}
		copy(dst.data[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
	}
}

// TransitionResource batches a barrier only when the tracked state
// differs from the requested one.
func (r *Recorder) TransitionResource(key metadata.ResourceKey, to metadata.ResourceState) {
	states := r.backend.states
	if states == nil {
		r.pendingBarriers = append(r.pendingBarriers, RecordedCommand{Kind: CmdBarrier, Key: key, To: to})
		return
	}
	from := states.GetState(key, metadata.AllSubresources)
	if from == to {
		return
	}
	states.SetState(key, metadata.AllSubresources, to)
	r.pendingBarriers = append(r.pendingBarriers, RecordedCommand{Kind: CmdBarrier, Key: key, From: from, To: to})
}

func (r *Recorder) flushBarriers() {
	if len(r.pendingBarriers) == 0 {
		return
	}
	r.commands = append(r.commands, r.pendingBarriers...)
	r.pendingBarriers = r.pendingBarriers[:0]
}

func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.flushBarriers()
	r.commands = append(r.commands, RecordedCommand{
		Kind: CmdDraw,
		Args: [5]uint32{vertexCount, instanceCount, firstVertex, firstInstance},
	})
}

func (r *Recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	r.flushBarriers()
	r.commands = append(r.commands, RecordedCommand{
		Kind: CmdDrawIndexed,
		Args: [5]uint32{indexCount, instanceCount, firstIndex, uint32(baseVertex), firstInstance},
	})
}

func (r *Recorder) Dispatch(x, y, z uint32) {
	r.flushBarriers()
	r.commands = append(r.commands, RecordedCommand{Kind: CmdDispatch, Args: [5]uint32{x, y, z}})
}

func (r *Recorder) End() (renderer.CommandList, error) {
	if r.state != recorderRecording {
		return nil, fmt.Errorf("recorder for %s queue already ended", r.role)
	}
	r.flushBarriers()
	r.state = recorderEnded
	list := &CommandListImpl{
		name:     fmt.Sprintf("%s_cl_%d", r.role, r.serial),
		recorder: r,
		Commands: append([]RecordedCommand(nil), r.commands...),
	}
	return list, nil
}
