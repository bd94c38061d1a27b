package persistence

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/service"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/persistence/models"
)

// GormSession is a GORM-backed implementation of service.Session. All
// mutation methods operate on an in-memory copy and only hit the
// database on Save, mirroring the teacher's repository Save()-on-demand
// pattern rather than writing on every field mutation.
type GormSession struct {
	mu sync.Mutex

	db    *gorm.DB
	id    string
	model string

	history      []service.LLMMessage
	markers      []service.StatefulMarker
	quota        service.QuotaSnapshot
	contextFiles []service.ContextFile

	lastCopilotRespID string
	lastPremiumUsed   int
	userInterrupted   bool
}

var _ service.Session = (*GormSession)(nil)

// GormSessionStore creates and loads GormSession instances.
type GormSessionStore struct {
	db *gorm.DB
}

// NewGormSessionStore creates a session store backed by db.
func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

// GetOrCreate loads the session row for id, or creates a fresh one with
// defaultModel if none exists yet.
func (s *GormSessionStore) GetOrCreate(id, defaultModel string) (*GormSession, error) {
	var row models.SessionModel
	err := s.db.First(&row, "id = ?", id).Error
	if err == nil {
		return fromModel(s.db, &row)
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	sess := &GormSession{
		db:    s.db,
		id:    id,
		model: defaultModel,
		quota: service.QuotaSnapshot{Entitlement: -1},
	}
	if err := sess.Save(); err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}
	return sess, nil
}

func fromModel(db *gorm.DB, row *models.SessionModel) (*GormSession, error) {
	sess := &GormSession{
		db:                db,
		id:                row.ID,
		model:             row.SelectedModel,
		lastCopilotRespID: row.LastGitHubCopilotRespID,
		lastPremiumUsed:   row.LastPremiumUsed,
		userInterrupted:   row.UserInterrupted,
	}
	if row.HistoryJSON != "" {
		if err := json.Unmarshal([]byte(row.HistoryJSON), &sess.history); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
	}
	if row.MarkersJSON != "" {
		if err := json.Unmarshal([]byte(row.MarkersJSON), &sess.markers); err != nil {
			return nil, fmt.Errorf("decode markers: %w", err)
		}
	}
	if row.QuotaJSON != "" {
		if err := json.Unmarshal([]byte(row.QuotaJSON), &sess.quota); err != nil {
			return nil, fmt.Errorf("decode quota: %w", err)
		}
	} else {
		sess.quota = service.QuotaSnapshot{Entitlement: -1}
	}
	if row.ContextFilesJSON != "" {
		if err := json.Unmarshal([]byte(row.ContextFilesJSON), &sess.contextFiles); err != nil {
			return nil, fmt.Errorf("decode context files: %w", err)
		}
	}
	return sess, nil
}

func (s *GormSession) SessionID() string     { return s.id }
func (s *GormSession) SelectedModel() string { return s.model }

// AddMessage appends a role/content turn to the conversation history.
func (s *GormSession) AddMessage(role, content string, meta service.MessageMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, service.LLMMessage{
		Role:       role,
		Content:    content,
		ToolCalls:  meta.ToolCalls,
		ToolCallID: meta.ToolCallID,
	})
	return nil
}

// GetConversationHistory returns a defensive copy of the stored history.
func (s *GormSession) GetConversationHistory() []service.LLMMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]service.LLMMessage, len(s.history))
	copy(out, s.history)
	return out
}

func (s *GormSession) LastGitHubCopilotResponseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCopilotRespID
}

func (s *GormSession) SetLastGitHubCopilotResponseID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCopilotRespID = id
}

func (s *GormSession) StatefulMarkers() []service.StatefulMarker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]service.StatefulMarker, len(s.markers))
	copy(out, s.markers)
	return out
}

func (s *GormSession) PrependStatefulMarker(m service.StatefulMarker, toolCallIteration int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = service.StoreStatefulMarker(s.markers, m, toolCallIteration)
}

func (s *GormSession) Quota() service.QuotaSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota
}

func (s *GormSession) SetQuota(q service.QuotaSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota = q
}

func (s *GormSession) LastPremiumUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPremiumUsed
}

func (s *GormSession) SetLastPremiumUsed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPremiumUsed = n
}

func (s *GormSession) ContextFiles() []service.ContextFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]service.ContextFile, len(s.contextFiles))
	copy(out, s.contextFiles)
	return out
}

// SetContextFiles replaces the session's context file list. Not part of
// the service.Session interface (context files are configured, not
// mutated mid-turn), but callers populating a new session need it.
func (s *GormSession) SetContextFiles(files []service.ContextFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contextFiles = files
}

func (s *GormSession) UserInterrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userInterrupted
}

func (s *GormSession) SetUserInterrupted(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInterrupted = v
}

// OpenTurnSnapshot opens an undo checkpoint. The snapshot is identified
// by ID only; callers that need actual file-state capture layer it on
// top (the core only needs a stable opaque handle, §4.11).
func (s *GormSession) OpenTurnSnapshot() service.TurnSnapshot {
	return service.TurnSnapshot{ID: uuid.NewString(), CreatedAt: time.Now()}
}

// RecordAPIUsage folds a completed turn's usage into the quota/marker
// bookkeeping the session already tracks.
func (s *GormSession) RecordAPIUsage(usage service.LLMResponse, model, provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPremiumUsed = usage.TokensUsed
	_ = provider
	_ = model
}

// Save persists the session to the database.
func (s *GormSession) Save() error {
	s.mu.Lock()
	historyJSON, err := json.Marshal(s.history)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode history: %w", err)
	}
	markersJSON, err := json.Marshal(s.markers)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode markers: %w", err)
	}
	quotaJSON, err := json.Marshal(s.quota)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode quota: %w", err)
	}
	contextFilesJSON, err := json.Marshal(s.contextFiles)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode context files: %w", err)
	}

	row := &models.SessionModel{
		ID:                      s.id,
		SelectedModel:           s.model,
		HistoryJSON:             string(historyJSON),
		MarkersJSON:             string(markersJSON),
		QuotaJSON:               string(quotaJSON),
		ContextFilesJSON:        string(contextFilesJSON),
		LastGitHubCopilotRespID: s.lastCopilotRespID,
		LastPremiumUsed:         s.lastPremiumUsed,
		UserInterrupted:         s.userInterrupted,
		UpdatedAt:               time.Now(),
	}
	s.mu.Unlock()

	return s.db.Save(row).Error
}
