package metadata

import "errors"

// Staging alignment policy. Offsets handed out by staging providers honor
// these, matching the strictest backend requirements.
const (
	AlignmentRowPitch   uint64 = 256
	AlignmentPlacement  uint64 = 512
	AlignmentBufferCopy uint64 = 256
)

// Batching caps per upload command list, whichever hits first.
const (
	MaxRegionsPerCommandList = 256
	MaxBytesPerCommandList   = 64 << 20
)

// FlushTimeSliceMs bounds one upload flush; remaining requests defer to
// the next frame.
const FlushTimeSliceMs = 2

// Upload domain error codes.
var (
	ErrInvalidRequest     = errors.New("invalid upload request")
	ErrStagingAllocFailed = errors.New("staging allocation failed")
	ErrRecordingFailed    = errors.New("upload recording failed")
	ErrSubmitFailed       = errors.New("upload submit failed")
	ErrDeviceLost         = errors.New("device lost")
	ErrProducerFailed     = errors.New("upload producer failed")
	ErrCancelled          = errors.New("upload cancelled")
	ErrTicketNotFound     = errors.New("upload ticket not found")
	ErrTrackerShutdown    = errors.New("upload tracker shut down")
	ErrUnsupportedFormat  = errors.New("unsupported upload format")
)

// TicketStatus is the lifecycle state of an upload request. Transitions
// are monotonic: Pending -> InFlight -> {Completed, Failed, Cancelled}.
type TicketStatus uint8

const (
	TicketPending TicketStatus = iota
	TicketInFlight
	TicketCompleted
	TicketFailed
	TicketCancelled
)

func (s TicketStatus) String() string {
	switch s {
	case TicketPending:
		return "pending"
	case TicketInFlight:
		return "in_flight"
	case TicketCompleted:
		return "completed"
	case TicketFailed:
		return "failed"
	case TicketCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the ticket can never change state again.
func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketFailed || s == TicketCancelled
}

// UploadKind selects what an upload request describes.
type UploadKind uint8

const (
	UploadKindBuffer UploadKind = iota
	UploadKindTextureRegion
	UploadKindProducer
)

// TextureRegion describes the destination of a texture region copy.
type TextureRegion struct {
	MipLevel   uint32
	ArraySlice uint32
	X, Y, Z    uint32
	Width      uint32
	Height     uint32
	Depth      uint32
	RowPitch   uint64
}
