package systems

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/headless"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

func newTestCoordinator(t *testing.T) (*UploadCoordinator, *headless.Backend) {
	t.Helper()
	backend := headless.New()
	coordinator, err := NewUploadCoordinator(&UploadCoordinatorConfig{FramesInFlight: 3}, backend)
	require.NoError(t, err)
	return coordinator, backend
}

func makeDstBuffer(t *testing.T, backend *headless.Backend, size uint64) renderer.Buffer {
	t.Helper()
	buf, err := backend.CreateBuffer(renderer.BufferDesc{Name: "dst", Size: size})
	require.NoError(t, err)
	return buf
}

func TestUploadTicketLifecycle(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	copyQueue := backend.Queue(metadata.QueueRoleCopy).(*headless.Queue)
	copyQueue.SetAutoComplete(false)

	dst := makeDstBuffer(t, backend, 256)
	payload := bytes.Repeat([]byte{0xAB}, 128)

	var results []UploadResult
	ticket, err := coordinator.Submit(&UploadRequest{
		Kind:       metadata.UploadKindBuffer,
		DstBuffer:  dst,
		Data:       payload,
		QueueRole:  metadata.QueueRoleCopy,
		DebugName:  "lifecycle",
		OnComplete: func(r UploadResult) { results = append(results, r) },
	})
	require.NoError(t, err)
	require.NotEqual(t, InvalidUploadTicket, ticket)

	status, err := coordinator.Status(ticket)
	require.NoError(t, err)
	assert.Equal(t, metadata.TicketPending, status)

	require.NoError(t, coordinator.Flush())
	status, _ = coordinator.Status(ticket)
	assert.Equal(t, metadata.TicketInFlight, status)
	assert.Empty(t, results)

	// The fence has not completed yet: the ticket stays in flight.
	coordinator.OnFrameStart(0)
	status, _ = coordinator.Status(ticket)
	assert.Equal(t, metadata.TicketInFlight, status)

	copyQueue.Complete(copyQueue.GetCurrentValue())
	coordinator.OnFrameStart(1)

	status, _ = coordinator.Status(ticket)
	assert.Equal(t, metadata.TicketCompleted, status)
	require.Len(t, results, 1)
	assert.Equal(t, metadata.TicketCompleted, results[0].Status)
	assert.Equal(t, uint64(len(payload)), results[0].BytesUploaded)
	assert.NotEqual(t, [16]byte{}, [16]byte(results[0].CorrelationID))

	// Callback runs exactly once even across further frames.
	coordinator.OnFrameStart(2)
	assert.Len(t, results, 1)

	// Payload landed in the destination buffer.
	assert.Equal(t, payload, dst.(*headless.Buffer).Bytes()[:len(payload)])

	result, ok := coordinator.Result(ticket)
	require.True(t, ok)
	assert.Equal(t, metadata.TicketCompleted, result.Status)

	stats := coordinator.Stats()
	assert.Equal(t, uint64(1), stats.Submitted)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, uint64(len(payload)), stats.BytesStaged)
}

func TestUploadTerminalTicketsPruned(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 64)

	ticket, err := coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		Data:      []byte{1, 2, 3, 4},
		QueueRole: metadata.QueueRoleCopy,
	})
	require.NoError(t, err)
	require.NoError(t, coordinator.Flush())

	// Auto-complete fences finish the ticket on the next frame start.
	coordinator.OnFrameStart(0)
	status, err := coordinator.Status(ticket)
	require.NoError(t, err)
	assert.Equal(t, metadata.TicketCompleted, status)

	// Terminal entries survive framesInFlight frames, then vanish.
	for slot := metadata.FrameSlot(1); slot <= 3; slot++ {
		coordinator.OnFrameStart(slot)
	}
	coordinator.OnFrameStart(1)
	_, err = coordinator.Status(ticket)
	assert.ErrorIs(t, err, metadata.ErrTicketNotFound)
}

func TestUploadBatchingHonorsRegionCap(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 300<<10)

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	requests := make([]*UploadRequest, 0, 300)
	for i := 0; i < 300; i++ {
		requests = append(requests, &UploadRequest{
			Kind:      metadata.UploadKindBuffer,
			DstBuffer: dst,
			DstOffset: uint64(i) * 1024,
			Data:      payload,
			QueueRole: metadata.QueueRoleCopy,
			DebugName: "bulk",
		})
	}
	tickets, err := coordinator.SubmitBatch(requests)
	require.NoError(t, err)
	require.Len(t, tickets, 300)

	// The flush time slice may defer work to later calls.
	for coordinator.PendingCount() > 0 {
		require.NoError(t, coordinator.Flush())
	}

	// 300 regions exceed the per-list cap, so at least two lists went out.
	copyQueue := backend.Queue(metadata.QueueRoleCopy).(*headless.Queue)
	assert.GreaterOrEqual(t, copyQueue.SubmitCount(), 2)

	stats := coordinator.Stats()
	assert.GreaterOrEqual(t, stats.CommandListsUsed, uint64(2))
	assert.Equal(t, uint64(300<<10), stats.BytesStaged)

	// They all complete within the next frames.
	coordinator.OnFrameStart(0)
	coordinator.OnFrameStart(1)
	for _, ticket := range tickets {
		status, err := coordinator.Status(ticket)
		require.NoError(t, err)
		assert.Equal(t, metadata.TicketCompleted, status)
	}
}

func TestUploadByteCapSplitsBatches(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 3*(metadata.MaxBytesPerCommandList/2+1024))

	// Three requests slightly over half the byte cap each cannot share
	// a command list pairwise.
	size := uint64(metadata.MaxBytesPerCommandList/2 + 512)
	payload := make([]byte, size)
	for i := 0; i < 3; i++ {
		_, err := coordinator.Submit(&UploadRequest{
			Kind:      metadata.UploadKindBuffer,
			DstBuffer: dst,
			DstOffset: uint64(i) * size,
			Data:      payload,
			QueueRole: metadata.QueueRoleCopy,
		})
		require.NoError(t, err)
	}
	for coordinator.PendingCount() > 0 {
		require.NoError(t, coordinator.Flush())
	}

	copyQueue := backend.Queue(metadata.QueueRoleCopy).(*headless.Queue)
	assert.Equal(t, 3, copyQueue.SubmitCount())
}

func TestUploadRequestValidation(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 16)

	_, err := coordinator.Submit(&UploadRequest{Kind: metadata.UploadKindBuffer})
	assert.ErrorIs(t, err, metadata.ErrInvalidRequest)

	// Overrun destination.
	_, err = coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		DstOffset: 8,
		Data:      make([]byte, 16),
		QueueRole: metadata.QueueRoleCopy,
	})
	assert.ErrorIs(t, err, metadata.ErrInvalidRequest)

	_, err = coordinator.Submit(&UploadRequest{
		Kind:       metadata.UploadKindTextureRegion,
		DstTexture: nil,
		Data:       []byte{1},
	})
	assert.ErrorIs(t, err, metadata.ErrInvalidRequest)

	assert.Zero(t, coordinator.Stats().Submitted)
}

func TestUploadProducerPanicFailsTicket(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 64)

	var result UploadResult
	ticket, err := coordinator.Submit(&UploadRequest{
		Kind:         metadata.UploadKindProducer,
		DstBuffer:    dst,
		Producer:     func(dst []byte) error { panic("boom") },
		ProducerSize: 32,
		QueueRole:    metadata.QueueRoleCopy,
		OnComplete:   func(r UploadResult) { result = r },
	})
	require.NoError(t, err)

	require.NoError(t, coordinator.Flush())
	status, _ := coordinator.Status(ticket)
	assert.Equal(t, metadata.TicketFailed, status)
	assert.ErrorIs(t, result.Err, metadata.ErrProducerFailed)
}

func TestUploadTextureRegionRepacksRows(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	tex, err := backend.CreateTexture(renderer.TextureDesc{Name: "tex", Width: 4, Height: 4})
	require.NoError(t, err)

	// 4x4 RGBA, tightly packed 16-byte rows.
	payload := make([]byte, 4*4*4)
	for i := range payload {
		payload[i] = byte(i)
	}
	ticket, err := coordinator.Submit(&UploadRequest{
		Kind:       metadata.UploadKindTextureRegion,
		DstTexture: tex,
		Region:     metadata.TextureRegion{Width: 4, Height: 4, Depth: 1},
		Data:       payload,
		QueueRole:  metadata.QueueRoleCopy,
	})
	require.NoError(t, err)
	require.NoError(t, coordinator.Flush())

	coordinator.OnFrameStart(0)
	status, _ := coordinator.Status(ticket)
	assert.Equal(t, metadata.TicketCompleted, status)
	assert.Equal(t, payload, tex.(*headless.Texture).Bytes())

	// The staged footprint pads each row to the pitch alignment.
	stats := coordinator.Stats()
	assert.Equal(t, uint64(4)*metadata.AlignmentRowPitch, stats.BytesStaged)
}

func TestUploadCancelPendingOnly(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 64)

	var result UploadResult
	ticket, err := coordinator.Submit(&UploadRequest{
		Kind:       metadata.UploadKindBuffer,
		DstBuffer:  dst,
		Data:       []byte{1, 2, 3, 4},
		QueueRole:  metadata.QueueRoleCopy,
		OnComplete: func(r UploadResult) { result = r },
	})
	require.NoError(t, err)

	require.NoError(t, coordinator.Cancel(ticket))
	status, _ := coordinator.Status(ticket)
	assert.Equal(t, metadata.TicketCancelled, status)
	assert.ErrorIs(t, result.Err, metadata.ErrCancelled)
	assert.Zero(t, coordinator.PendingCount())

	// Cancelling a submitted ticket is a no-op.
	ticket2, err := coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		Data:      []byte{5, 6, 7, 8},
		QueueRole: metadata.QueueRoleCopy,
	})
	require.NoError(t, err)
	require.NoError(t, coordinator.Flush())
	require.NoError(t, coordinator.Cancel(ticket2))
	status, _ = coordinator.Status(ticket2)
	assert.Equal(t, metadata.TicketInFlight, status)

	assert.ErrorIs(t, coordinator.Cancel(UploadTicket(9999)), metadata.ErrTicketNotFound)
}

func TestUploadSubmitFailureFailsBatch(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 64)

	var result UploadResult
	ticket, err := coordinator.Submit(&UploadRequest{
		Kind:       metadata.UploadKindBuffer,
		DstBuffer:  dst,
		Data:       []byte{1, 2, 3, 4},
		QueueRole:  metadata.QueueRoleCopy,
		OnComplete: func(r UploadResult) { result = r },
	})
	require.NoError(t, err)

	backend.FailNextSubmit(errors.New("queue rejected work"))
	err = coordinator.Flush()
	require.ErrorIs(t, err, metadata.ErrSubmitFailed)

	status, _ := coordinator.Status(ticket)
	assert.Equal(t, metadata.TicketFailed, status)
	assert.ErrorIs(t, result.Err, metadata.ErrSubmitFailed)
}

func TestUploadDeviceLostFailsOutstanding(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	copyQueue := backend.Queue(metadata.QueueRoleCopy).(*headless.Queue)
	copyQueue.SetAutoComplete(false)
	dst := makeDstBuffer(t, backend, 256)

	// One in flight, one still pending.
	inflight, err := coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		Data:      []byte{1, 2, 3, 4},
		QueueRole: metadata.QueueRoleCopy,
	})
	require.NoError(t, err)
	require.NoError(t, coordinator.Flush())

	pending, err := coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		DstOffset: 16,
		Data:      []byte{5, 6, 7, 8},
		QueueRole: metadata.QueueRoleCopy,
	})
	require.NoError(t, err)

	coordinator.OnDeviceLost()

	for _, ticket := range []UploadTicket{inflight, pending} {
		status, err := coordinator.Status(ticket)
		require.NoError(t, err)
		assert.Equal(t, metadata.TicketFailed, status)
		result, ok := coordinator.Result(ticket)
		require.True(t, ok)
		assert.ErrorIs(t, result.Err, metadata.ErrDeviceLost)
	}

	// New submissions are rejected until recovery.
	_, err = coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		Data:      []byte{9},
		QueueRole: metadata.QueueRoleCopy,
	})
	assert.ErrorIs(t, err, metadata.ErrDeviceLost)
	assert.ErrorIs(t, coordinator.Flush(), metadata.ErrDeviceLost)
}

func TestUploadShutdownCancelsOutstanding(t *testing.T) {
	coordinator, backend := newTestCoordinator(t)
	dst := makeDstBuffer(t, backend, 64)

	ticket, err := coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		Data:      []byte{1, 2},
		QueueRole: metadata.QueueRoleCopy,
	})
	require.NoError(t, err)
	require.NoError(t, coordinator.Shutdown())

	_, err = coordinator.Status(ticket)
	assert.ErrorIs(t, err, metadata.ErrTicketNotFound)
	_, err = coordinator.Submit(&UploadRequest{
		Kind:      metadata.UploadKindBuffer,
		DstBuffer: dst,
		Data:      []byte{3},
		QueueRole: metadata.QueueRoleCopy,
	})
	assert.ErrorIs(t, err, metadata.ErrTrackerShutdown)
}

func TestInlineTransfersResetPerSlot(t *testing.T) {
	backend := headless.New()
	queue := backend.Queue(metadata.QueueRoleGraphics)
	provider, err := NewSingleBufferStaging(&SingleBufferStagingConfig{InitialCapacity: 1024}, backend)
	require.NoError(t, err)
	inline := NewInlineTransfersCoordinator(queue, provider)

	alloc, err := inline.AllocateTransient(512, "per-frame constants")
	require.NoError(t, err)
	require.Len(t, alloc.Mapped, 512)

	inline.OnFrameEnd(0)
	// Fence auto-completes; the next frame start reclaims the range.
	inline.OnFrameStart(1)

	again, err := inline.AllocateTransient(1024, "whole buffer")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), again.Offset)
}
