package audit

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
)

// Record is one line of the audit trail.
type Record struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	Severity  string            `json:"severity"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// FromEvent maps a domain event to an audit record. Events that are not
// part of the audit trail report false.
func FromEvent(ev events.Event) (Record, bool) {
	r := Record{EventType: ev.EventName(), Timestamp: ev.OccurredAt().UTC(), Severity: SeverityInfo}
	switch e := ev.(type) {
	case token.Created:
		r.UserID, r.TokenID, r.DeviceID = e.UserID, e.TokenID, e.DeviceID
	case token.Rotated:
		r.UserID, r.TokenID, r.DeviceID = e.UserID, e.NewID, e.DeviceID
		r.Metadata = map[string]string{"replaced_id": e.OldID}
	case token.Revoked:
		r.UserID, r.TokenID = e.UserID, e.TokenID
		r.Metadata = map[string]string{"reason": e.Reason}
	case token.ReuseDetected:
		r.UserID, r.TokenID, r.DeviceID = e.UserID, e.TokenID, e.DeviceID
		r.Severity = SeverityCritical
		r.Metadata = map[string]string{"previous_status": e.PreviousStatus.String()}
	case token.ChainCompromised:
		r.UserID = e.UserID
		r.Severity = SeverityCritical
		r.Metadata = map[string]string{"revoked_count": strconv.Itoa(e.RevokedCount)}
	case token.ExpiredUsage:
		r.UserID, r.TokenID = e.UserID, e.TokenID
		r.Metadata = map[string]string{"expired_at": e.ExpiresAt.UTC().Format(time.RFC3339)}
	case token.DeviceMismatchDetected:
		r.UserID, r.TokenID, r.DeviceID = e.UserID, e.TokenID, e.ActualDeviceID
		r.Severity = SeverityWarning
		r.Metadata = map[string]string{"expected_device_id": e.ExpectedDeviceID}
	case user.RolesChanged:
		r.UserID = e.UserID
		r.Metadata = map[string]string{
			"actor":        e.Actor.String(),
			"old_role_ids": joinRoleIDs(e.OldRoleIDs),
			"new_role_ids": joinRoleIDs(e.NewRoleIDs),
		}
	default:
		return Record{}, false
	}
	return r, true
}

func joinRoleIDs(ids []user.RoleID) string {
	b := make([]byte, 0, len(ids)*3)
	for i, id := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(id), 10)
	}
	return string(b)
}

// Sink receives audit records.
type Sink interface {
	Emit(ctx context.Context, r Record)
}

// NoOpSink drops records.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Record) {}

// ChannelSink writes records into a buffered channel.
type ChannelSink struct {
	records chan Record
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{records: make(chan Record, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, r Record) {
	select {
	case s.records <- r:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Records() <-chan Record {
	return s.records
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, r Record) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}
