package service

import (
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// StatefulMarker is one entry of a session's billing-continuity marker
// list (§3, §4.8).
type StatefulMarker struct {
	Model     string
	Marker    string
	Timestamp time.Time
}

// QuotaSnapshot is the decoded form of a provider's quota header
// (§3, §4.8).
type QuotaSnapshot struct {
	Entitlement       int // ent; -1 means unlimited
	Overage           int // ov
	OveragePermitted  int // ovPerm
	PercentRemaining  int // rem
	ResetDate         string // rst
	Used              int
	Available         int
}

// TurnSnapshot is the opaque undo checkpoint a turn opens before its
// file-mutating tools run (§4.11).
type TurnSnapshot struct {
	ID        string
	CreatedAt time.Time
}

// Session is the narrow boundary view the core reads/writes (§3, §6).
// Persistence, concurrency, and storage format are delegated entirely
// to the collaborator that implements this interface.
type Session interface {
	SessionID() string
	SelectedModel() string

	AddMessage(role, content string, meta MessageMeta) error
	Save() error
	GetConversationHistory() []LLMMessage

	LastGitHubCopilotResponseID() string
	SetLastGitHubCopilotResponseID(id string)

	StatefulMarkers() []StatefulMarker
	PrependStatefulMarker(m StatefulMarker, toolCallIteration int)

	Quota() QuotaSnapshot
	SetQuota(q QuotaSnapshot)
	LastPremiumUsed() int
	SetLastPremiumUsed(n int)

	ContextFiles() []ContextFile

	UserInterrupted() bool
	SetUserInterrupted(bool)

	OpenTurnSnapshot() TurnSnapshot
	RecordAPIUsage(usage LLMResponse, model, provider string)
}

// MessageMeta carries the optional fields add_message accepts (§6).
type MessageMeta struct {
	ToolCalls  []entity.ToolCallInfo
	ToolCallID string
}

// MaxStatefulMarkers bounds the session's marker list (§3, §8 invariant 5).
const MaxStatefulMarkers = 10

// MaxTurnSnapshots bounds the session's undo ring (§4.11).
const MaxTurnSnapshots = 20

// StoreStatefulMarker prepends a marker to markers and truncates to
// MaxStatefulMarkers, honoring the iteration<=1 gate (§4.8, §8 invariant
// 4). Returns the (possibly unchanged) slice.
func StoreStatefulMarker(markers []StatefulMarker, m StatefulMarker, toolCallIteration int) []StatefulMarker {
	if toolCallIteration > 1 {
		return markers
	}
	out := make([]StatefulMarker, 0, len(markers)+1)
	out = append(out, m)
	out = append(out, markers...)
	if len(out) > MaxStatefulMarkers {
		out = out[:MaxStatefulMarkers]
	}
	return out
}

// GetStatefulMarker returns the most recent marker for model, if any.
func GetStatefulMarker(markers []StatefulMarker, model string) (StatefulMarker, bool) {
	for _, m := range markers {
		if m.Model == model {
			return m, true
		}
	}
	return StatefulMarker{}, false
}
