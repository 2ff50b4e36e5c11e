package messages

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Framer builds outgoing Frames with monotonically increasing
// sequence numbers, mirroring the teacher's MessageFramer (one framer
// per connection side).
type Framer struct {
	sequence uint64
}

// NewFramer creates an empty framer.
func NewFramer() *Framer { return &Framer{} }

// NewRequest builds a Request frame for op with the given payload.
func (f *Framer) NewRequest(op RequestOp, payload interface{}) (*Frame, error) {
	return f.newFrame(KindRequest, string(op), payload)
}

// NewResponse builds a Response frame correlated to requestID.
func (f *Framer) NewResponse(requestID string, payload interface{}) (*Frame, error) {
	frame, err := f.newFrame(KindResponse, "", payload)
	if err != nil {
		return nil, err
	}
	frame.Header.ID = requestID
	return frame, nil
}

// NewErrorResponse builds a Response frame carrying an ErrorPayload.
func (f *Framer) NewErrorResponse(requestID string, kind, message string) (*Frame, error) {
	return f.NewResponse(requestID, ErrorPayload{Kind: kind, Message: message})
}

// NewNotification builds a Notification frame for op.
func (f *Framer) NewNotification(op NotificationOp, payload interface{}) (*Frame, error) {
	return f.newFrame(KindNotification, string(op), payload)
}

func (f *Framer) newFrame(kind FrameKind, op string, payload interface{}) (*Frame, error) {
	id, err := generateFrameID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate frame id: %w", err)
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Frame{
		Header: FrameHeader{
			Version:     ProtocolVersionCurrent,
			ID:          id,
			Kind:        kind,
			Op:          op,
			Sequence:    atomic.AddUint64(&f.sequence, 1),
			TimestampNs: time.Now().UnixNano(),
		},
		Payload: payloadBytes,
	}, nil
}

func generateFrameID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidateFrame checks structural well-formedness before a frame is
// dispatched (spec §4.4 framing rules).
func ValidateFrame(f *Frame) error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}
	if f.Header.Version <= 0 {
		return fmt.Errorf("frame version is required")
	}
	if f.Header.ID == "" {
		return fmt.Errorf("frame id is required")
	}
	switch f.Header.Kind {
	case KindRequest, KindResponse, KindNotification:
	default:
		return fmt.Errorf("invalid frame kind: %q", f.Header.Kind)
	}
	if f.Header.Kind != KindResponse && f.Header.Op == "" {
		return fmt.Errorf("frame op is required for kind %q", f.Header.Kind)
	}
	if f.Header.TimestampNs <= 0 {
		return fmt.Errorf("frame timestamp is required")
	}
	return nil
}

// opMinVersion records the minimum protocol version each request op
// requires (spec §8 S7: "Client negotiates version 2. Calling lock()
// must raise ServerVersionTooLow"). Ops absent from this table are
// available from version 1 onward.
var opMinVersion = map[RequestOp]int{
	OpLockDevice:   3,
	OpUnlockDevice: 3,
}

// MinVersionFor returns the minimum protocol version op requires.
func MinVersionFor(op RequestOp) int {
	if v, ok := opMinVersion[op]; ok {
		return v
	}
	return 1
}

// FrameStats accumulates framing counters, mirroring the teacher's
// MessageFrameStats.
type FrameStats struct {
	TotalCreated   uint64
	TotalValidated uint64
	TotalInvalid   uint64
	TotalRejectedByVersion uint64
}

// FrameStatsTracker is a concurrency-safe counter set.
type FrameStatsTracker struct {
	stats FrameStats
}

// NewFrameStatsTracker creates an empty tracker.
func NewFrameStatsTracker() *FrameStatsTracker { return &FrameStatsTracker{} }

func (t *FrameStatsTracker) RecordCreated()            { atomic.AddUint64(&t.stats.TotalCreated, 1) }
func (t *FrameStatsTracker) RecordValidated()           { atomic.AddUint64(&t.stats.TotalValidated, 1) }
func (t *FrameStatsTracker) RecordInvalid()             { atomic.AddUint64(&t.stats.TotalInvalid, 1) }
func (t *FrameStatsTracker) RecordRejectedByVersion()    { atomic.AddUint64(&t.stats.TotalRejectedByVersion, 1) }

// Snapshot returns the current counters.
func (t *FrameStatsTracker) Snapshot() FrameStats {
	return FrameStats{
		TotalCreated:           atomic.LoadUint64(&t.stats.TotalCreated),
		TotalValidated:         atomic.LoadUint64(&t.stats.TotalValidated),
		TotalInvalid:           atomic.LoadUint64(&t.stats.TotalInvalid),
		TotalRejectedByVersion: atomic.LoadUint64(&t.stats.TotalRejectedByVersion),
	}
}
