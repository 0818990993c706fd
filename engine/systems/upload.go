package systems

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// UploadTicket identifies one upload request through its lifecycle.
type UploadTicket uint64

const InvalidUploadTicket UploadTicket = 0

// UploadDataProducer writes payload bytes directly into a staging range.
type UploadDataProducer func(dst []byte) error

// UploadRequest describes a buffer copy, a texture region copy, or a
// producer-backed fill targeted at a registered resource.
type UploadRequest struct {
	Kind metadata.UploadKind
	// Key of the destination resource, used for state transitions.
	Key metadata.ResourceKey

	DstBuffer renderer.Buffer
	DstOffset uint64

	DstTexture renderer.Texture
	Region     metadata.TextureRegion

	// Data is the source payload for buffer and texture uploads. For
	// producer uploads, Producer fills ProducerSize bytes instead.
	Data         []byte
	Producer     UploadDataProducer
	ProducerSize uint64

	QueueRole  metadata.QueueRole
	DebugName  string
	OnComplete func(UploadResult)
}

// UploadResult is the terminal outcome of a ticket.
type UploadResult struct {
	Ticket        UploadTicket
	Status        metadata.TicketStatus
	Err           error
	BytesUploaded uint64
	CorrelationID uuid.UUID
}

type UploadStats struct {
	Submitted        uint64
	Completed        uint64
	Failed           uint64
	Cancelled        uint64
	BytesStaged      uint64
	CommandListsUsed uint64
}

type pendingUpload struct {
	request     *UploadRequest
	ticket      UploadTicket
	correlation uuid.UUID
	size        uint64
}

type ticketEntry struct {
	role        metadata.QueueRole
	fence       metadata.FenceValue
	status      metadata.TicketStatus
	err         error
	bytes       uint64
	correlation uuid.UUID
	onComplete  func(UploadResult)
	// Frame counter after which a terminal entry is pruned.
	retainUntil uint64
}

type UploadCoordinatorConfig struct {
	FramesInFlight uint32
	// Providers maps queue roles to their staging provider. Roles
	// without an entry fall back to a per-role single-buffer provider
	// created on first use.
	Providers map[metadata.QueueRole]StagingProvider
	// Capacity for lazily created fallback providers.
	FallbackCapacity uint64
}

/**
 * UploadCoordinator accumulates upload requests per destination queue
 * role, batches them onto command lists within the region and byte caps,
 * and retires tickets against each queue's completed fence value.
 */
type UploadCoordinator struct {
	mu       sync.Mutex
	graphics renderer.Graphics

	framesInFlight uint32
	fallbackCap    uint64
	providers      map[metadata.QueueRole]StagingProvider
	pending        map[metadata.QueueRole][]*pendingUpload
	tickets        map[UploadTicket]*ticketEntry
	nextTicket     UploadTicket
	frameCounter   uint64
	deviceLost     bool
	shutdown       bool
	stats          UploadStats
}

func NewUploadCoordinator(config *UploadCoordinatorConfig, graphics renderer.Graphics) (*UploadCoordinator, error) {
	if config.FramesInFlight == 0 {
		err := fmt.Errorf("func NewUploadCoordinator - config.FramesInFlight must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if config.FallbackCapacity == 0 {
		config.FallbackCapacity = 4 << 20
	}
	providers := make(map[metadata.QueueRole]StagingProvider)
	for role, p := range config.Providers {
		providers[role] = p
	}
	return &UploadCoordinator{
		graphics:       graphics,
		framesInFlight: config.FramesInFlight,
		fallbackCap:    config.FallbackCapacity,
		providers:      providers,
		pending:        make(map[metadata.QueueRole][]*pendingUpload),
		tickets:        make(map[UploadTicket]*ticketEntry),
	}, nil
}

// Submit validates and enqueues one request. The returned ticket is
// Pending until the next flush submits it.
func (c *UploadCoordinator) Submit(request *UploadRequest) (UploadTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(request)
}

func (c *UploadCoordinator) SubmitBatch(requests []*UploadRequest) ([]UploadTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tickets := make([]UploadTicket, 0, len(requests))
	for _, request := range requests {
		ticket, err := c.submitLocked(request)
		if err != nil {
			return tickets, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

func (c *UploadCoordinator) submitLocked(request *UploadRequest) (UploadTicket, error) {
	if c.shutdown {
		return InvalidUploadTicket, metadata.ErrTrackerShutdown
	}
	if c.deviceLost {
		return InvalidUploadTicket, metadata.ErrDeviceLost
	}
	size, err := validateRequest(request)
	if err != nil {
		return InvalidUploadTicket, err
	}

	c.nextTicket++
	ticket := c.nextTicket
	c.tickets[ticket] = &ticketEntry{
		role:        request.QueueRole,
		status:      metadata.TicketPending,
		bytes:       size,
		correlation: uuid.New(),
		onComplete:  request.OnComplete,
	}
	c.pending[request.QueueRole] = append(c.pending[request.QueueRole], &pendingUpload{
		request:     request,
		ticket:      ticket,
		correlation: c.tickets[ticket].correlation,
		size:        size,
	})
	c.stats.Submitted++
	return ticket, nil
}

func validateRequest(request *UploadRequest) (uint64, error) {
	switch request.Kind {
	case metadata.UploadKindBuffer:
		if request.DstBuffer == nil || len(request.Data) == 0 {
			return 0, fmt.Errorf("%w: buffer upload %q needs a destination and payload",
				metadata.ErrInvalidRequest, request.DebugName)
		}
		if request.DstOffset+uint64(len(request.Data)) > request.DstBuffer.GetSize() {
			return 0, fmt.Errorf("%w: buffer upload %q overruns destination",
				metadata.ErrInvalidRequest, request.DebugName)
		}
		return uint64(len(request.Data)), nil
	case metadata.UploadKindTextureRegion:
		if request.DstTexture == nil || len(request.Data) == 0 {
			return 0, fmt.Errorf("%w: texture upload %q needs a destination and payload",
				metadata.ErrInvalidRequest, request.DebugName)
		}
		if request.Region.Width == 0 || request.Region.Height == 0 {
			return 0, fmt.Errorf("%w: texture upload %q has an empty region",
				metadata.ErrInvalidRequest, request.DebugName)
		}
		return stagedTextureSize(&request.Region, uint64(len(request.Data))), nil
	case metadata.UploadKindProducer:
		if request.DstBuffer == nil || request.Producer == nil || request.ProducerSize == 0 {
			return 0, fmt.Errorf("%w: producer upload %q needs a destination, callback and size",
				metadata.ErrInvalidRequest, request.DebugName)
		}
		return request.ProducerSize, nil
	}
	return 0, fmt.Errorf("%w: unknown upload kind %d", metadata.ErrInvalidRequest, request.Kind)
}

// stagedTextureSize is the staging footprint with rows padded to the
// row pitch alignment.
func stagedTextureSize(region *metadata.TextureRegion, dataLen uint64) uint64 {
	depth := uint64(region.Depth)
	if depth == 0 {
		depth = 1
	}
	rows := uint64(region.Height) * depth
	rowSize := dataLen / rows
	rowPitch := math.AlignUp(rowSize, metadata.AlignmentRowPitch)
	return rowPitch * rows
}

func (c *UploadCoordinator) provider(role metadata.QueueRole) (StagingProvider, error) {
	if p, ok := c.providers[role]; ok {
		return p, nil
	}
	p, err := NewSingleBufferStaging(&SingleBufferStagingConfig{InitialCapacity: c.fallbackCap}, c.graphics)
	if err != nil {
		return nil, err
	}
	c.providers[role] = p
	return p, nil
}

// Flush records and submits accumulated requests. A flush is bounded by
// the time slice; whatever does not fit stays pending for the next call.
// Failure callbacks run after the lock is dropped.
func (c *UploadCoordinator) Flush() error {
	var callbacks []func()
	defer func() {
		for _, cb := range callbacks {
			cb()
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deviceLost {
		return metadata.ErrDeviceLost
	}
	deadline := time.Now().Add(metadata.FlushTimeSliceMs * time.Millisecond)
	for role := metadata.QueueRole(0); role < metadata.QueueRoleCount; role++ {
		for len(c.pending[role]) > 0 {
			if time.Now().After(deadline) {
				return nil
			}
			if err := c.flushBatchLocked(role, &callbacks); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushBatchLocked submits one command list worth of requests for role.
// Callbacks of failed tickets are appended for the caller to run
// outside the lock.
func (c *UploadCoordinator) flushBatchLocked(role metadata.QueueRole, callbacks *[]func()) error {
	batch := c.takeBatchLocked(role)
	if len(batch) == 0 {
		return nil
	}
	provider, err := c.provider(role)
	if err != nil {
		return err
	}
	recorder, err := c.graphics.AcquireRecorder(role)
	if err != nil {
		return fmt.Errorf("%w: %s", metadata.ErrRecordingFailed, err.Error())
	}

	submitted := make([]*pendingUpload, 0, len(batch))
	for _, upload := range batch {
		if entry := c.tickets[upload.ticket]; entry == nil || entry.status != metadata.TicketPending {
			continue
		}
		if err := c.recordUpload(recorder, provider, upload); err != nil {
			c.appendFinishLocked(callbacks, upload.ticket, metadata.TicketFailed, err)
			continue
		}
		submitted = append(submitted, upload)
	}

	list, err := recorder.End()
	if err != nil {
		return c.failSubmission(callbacks, submitted, fmt.Errorf("%w: %s", metadata.ErrRecordingFailed, err.Error()))
	}
	queue := c.graphics.Queue(role)
	if err := queue.Submit(list); err != nil {
		return c.failSubmission(callbacks, submitted, fmt.Errorf("%w: %s", metadata.ErrSubmitFailed, err.Error()))
	}
	fence := queue.Signal()
	provider.NotifySubmitted(fence)
	c.stats.CommandListsUsed++

	for _, upload := range submitted {
		entry := c.tickets[upload.ticket]
		entry.status = metadata.TicketInFlight
		entry.fence = fence
		c.stats.BytesStaged += upload.size
	}
	return nil
}

// takeBatchLocked pops requests up to the region and byte caps.
func (c *UploadCoordinator) takeBatchLocked(role metadata.QueueRole) []*pendingUpload {
	queue := c.pending[role]
	batch := make([]*pendingUpload, 0, len(queue))
	bytes := uint64(0)
	taken := 0
	for _, upload := range queue {
		if len(batch) >= metadata.MaxRegionsPerCommandList {
			break
		}
		if len(batch) > 0 && bytes+upload.size > metadata.MaxBytesPerCommandList {
			break
		}
		batch = append(batch, upload)
		bytes += upload.size
		taken++
	}
	c.pending[role] = queue[taken:]
	return batch
}

func (c *UploadCoordinator) recordUpload(recorder renderer.CommandRecorder, provider StagingProvider, upload *pendingUpload) error {
	staging, err := provider.Allocate(upload.size, upload.request.DebugName)
	if err != nil {
		return err
	}
	request := upload.request
	switch request.Kind {
	case metadata.UploadKindBuffer:
		copy(staging.Mapped, request.Data)
		recorder.TransitionResource(request.Key, metadata.ResourceStateCopyDest)
		recorder.CopyBufferRegion(request.DstBuffer, request.DstOffset, staging.Buffer, staging.Offset, uint64(len(request.Data)))
	case metadata.UploadKindProducer:
		if err := runProducer(request.Producer, staging.Mapped); err != nil {
			return fmt.Errorf("%w: %q: %s", metadata.ErrProducerFailed, request.DebugName, err.Error())
		}
		recorder.TransitionResource(request.Key, metadata.ResourceStateCopyDest)
		recorder.CopyBufferRegion(request.DstBuffer, request.DstOffset, staging.Buffer, staging.Offset, request.ProducerSize)
	case metadata.UploadKindTextureRegion:
		region := request.Region
		region.RowPitch = stageTextureRows(staging.Mapped, request.Data, &region)
		recorder.TransitionResource(request.Key, metadata.ResourceStateCopyDest)
		recorder.CopyTextureRegion(request.DstTexture, region, staging.Buffer, staging.Offset)
	}
	return nil
}

// stageTextureRows repacks tightly packed source rows into the staging
// range at the aligned row pitch and returns that pitch.
func stageTextureRows(dst, src []byte, region *metadata.TextureRegion) uint64 {
	depth := uint64(region.Depth)
	if depth == 0 {
		depth = 1
	}
	rows := uint64(region.Height) * depth
	rowSize := uint64(len(src)) / rows
	rowPitch := math.AlignUp(rowSize, metadata.AlignmentRowPitch)
	for row := uint64(0); row < rows; row++ {
		copy(dst[row*rowPitch:row*rowPitch+rowSize], src[row*rowSize:(row+1)*rowSize])
	}
	return rowPitch
}

func runProducer(producer UploadDataProducer, dst []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return producer(dst)
}

func (c *UploadCoordinator) failSubmission(callbacks *[]func(), uploads []*pendingUpload, cause error) error {
	for _, upload := range uploads {
		c.appendFinishLocked(callbacks, upload.ticket, metadata.TicketFailed, cause)
	}
	core.LogError("upload submission failed: %s", cause.Error())
	return cause
}

// OnFrameStart retires providers and tickets against each queue's
// completed fence value and prunes stale terminal entries.
func (c *UploadCoordinator) OnFrameStart(slot metadata.FrameSlot) {
	c.mu.Lock()
	c.frameCounter++
	completed := make(map[metadata.QueueRole]metadata.FenceValue, len(c.providers))
	for role, provider := range c.providers {
		value := c.graphics.Queue(role).GetCompletedValue()
		completed[role] = value
		provider.RetireCompleted(value)
		provider.OnSlotAdvance(slot)
	}

	var callbacks []func()
	for ticket, entry := range c.tickets {
		if entry.status == metadata.TicketInFlight && entry.fence <= completed[entry.role] {
			if cb := c.completeLocked(ticket, entry, metadata.TicketCompleted, nil); cb != nil {
				callbacks = append(callbacks, cb)
			}
		}
		if entry.status.Terminal() && c.frameCounter > entry.retainUntil {
			delete(c.tickets, ticket)
		}
	}
	c.mu.Unlock()

	// Completion callbacks run on the render thread, outside the lock.
	for _, cb := range callbacks {
		cb()
	}
}

// appendFinishLocked moves a ticket to a terminal state and defers its
// callback to the collected list, which the caller runs after
// releasing the coordinator lock.
func (c *UploadCoordinator) appendFinishLocked(callbacks *[]func(), ticket UploadTicket, status metadata.TicketStatus, cause error) {
	entry := c.tickets[ticket]
	if entry == nil || entry.status.Terminal() {
		return
	}
	if cb := c.completeLocked(ticket, entry, status, cause); cb != nil {
		*callbacks = append(*callbacks, cb)
	}
}

func (c *UploadCoordinator) completeLocked(ticket UploadTicket, entry *ticketEntry, status metadata.TicketStatus, cause error) func() {
	entry.status = status
	entry.err = cause
	entry.retainUntil = c.frameCounter + uint64(c.framesInFlight)
	switch status {
	case metadata.TicketCompleted:
		c.stats.Completed++
	case metadata.TicketFailed:
		c.stats.Failed++
	case metadata.TicketCancelled:
		c.stats.Cancelled++
	}
	if entry.onComplete == nil {
		return nil
	}
	result := UploadResult{
		Ticket:        ticket,
		Status:        status,
		Err:           cause,
		BytesUploaded: entry.bytes,
		CorrelationID: entry.correlation,
	}
	cb := entry.onComplete
	entry.onComplete = nil
	return func() { cb(result) }
}

// Status reports the current lifecycle state of a ticket.
func (c *UploadCoordinator) Status(ticket UploadTicket) (metadata.TicketStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tickets[ticket]
	if !ok {
		return 0, metadata.ErrTicketNotFound
	}
	return entry.status, nil
}

// Result returns the terminal outcome of a ticket, if it reached one.
func (c *UploadCoordinator) Result(ticket UploadTicket) (UploadResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tickets[ticket]
	if !ok || !entry.status.Terminal() {
		return UploadResult{}, false
	}
	return UploadResult{
		Ticket:        ticket,
		Status:        entry.status,
		Err:           entry.err,
		BytesUploaded: entry.bytes,
		CorrelationID: entry.correlation,
	}, true
}

// Cancel aborts a Pending ticket. After submission it is a no-op; the
// submitted work still completes normally.
func (c *UploadCoordinator) Cancel(ticket UploadTicket) error {
	var callbacks []func()
	defer func() {
		for _, cb := range callbacks {
			cb()
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tickets[ticket]
	if !ok {
		return metadata.ErrTicketNotFound
	}
	if entry.status != metadata.TicketPending {
		return nil
	}
	queue := c.pending[entry.role]
	for i, upload := range queue {
		if upload.ticket == ticket {
			c.pending[entry.role] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	c.appendFinishLocked(&callbacks, ticket, metadata.TicketCancelled, metadata.ErrCancelled)
	return nil
}

// OnDeviceLost fails every outstanding ticket and rejects new submissions.
func (c *UploadCoordinator) OnDeviceLost() {
	var callbacks []func()
	defer func() {
		for _, cb := range callbacks {
			cb()
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceLost = true
	c.pending = make(map[metadata.QueueRole][]*pendingUpload)
	for ticket, entry := range c.tickets {
		if !entry.status.Terminal() {
			c.appendFinishLocked(&callbacks, ticket, metadata.TicketFailed, metadata.ErrDeviceLost)
		}
	}
	core.LogWarn("upload coordinator: device lost, outstanding tickets failed")
}

func (c *UploadCoordinator) Stats() UploadStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *UploadCoordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, queue := range c.pending {
		total += len(queue)
	}
	return total
}

func (c *UploadCoordinator) Shutdown() error {
	var callbacks []func()
	defer func() {
		for _, cb := range callbacks {
			cb()
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
	for ticket, entry := range c.tickets {
		if !entry.status.Terminal() {
			c.appendFinishLocked(&callbacks, ticket, metadata.TicketCancelled, metadata.ErrTrackerShutdown)
		}
		delete(c.tickets, ticket)
	}
	for _, provider := range c.providers {
		if err := provider.Close(); err != nil {
			return err
		}
	}
	return nil
}

// InlineTransfersCoordinator tracks direct writes recorded on graphics
// command lists that bypass the upload request path. It stamps one
// synthetic fence per frame slot so the shared provider's transient
// ranges reset consistently.
type InlineTransfersCoordinator struct {
	mu       sync.Mutex
	queue    renderer.CommandQueue
	provider StagingProvider
}

func NewInlineTransfersCoordinator(queue renderer.CommandQueue, provider StagingProvider) *InlineTransfersCoordinator {
	return &InlineTransfersCoordinator{queue: queue, provider: provider}
}

// AllocateTransient hands out staging bytes valid until the current
// slot's synthetic fence retires.
func (c *InlineTransfersCoordinator) AllocateTransient(size uint64, debugName string) (*StagingAllocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider.Allocate(size, debugName)
}

// OnFrameEnd signals the synthetic fence covering this slot's inline
// transfers.
func (c *InlineTransfersCoordinator) OnFrameEnd(metadata.FrameSlot) metadata.FenceValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	fence := c.queue.Signal()
	c.provider.NotifySubmitted(fence)
	return fence
}

func (c *InlineTransfersCoordinator) OnFrameStart(slot metadata.FrameSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider.RetireCompleted(c.queue.GetCompletedValue())
	c.provider.OnSlotAdvance(slot)
}
