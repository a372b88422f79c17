package store

import (
	"sort"
	"sync"
	"time"

	"mockinterview/pkg/domain"
)

// MemoryStore keeps interview state in-process for tests and single-node runs.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User // key: user ID
	email         map[string]string      // email -> user ID
	profiles      map[string]domain.Profile
	resumes       map[string]domain.Resume
	sessions      map[string]domain.Session
	sessionOrder  []string
	questions     map[string]domain.Question
	byPosition    map[string][]string // session ID -> question IDs in position order
	answers       map[string]domain.Answer
	answerOrder   []string
	analyses      map[string]domain.AnalysisResult
	notifications []domain.Notification
	eventKeys     map[string]struct{}
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		email:      make(map[string]string),
		profiles:   make(map[string]domain.Profile),
		resumes:    make(map[string]domain.Resume),
		sessions:   make(map[string]domain.Session),
		questions:  make(map[string]domain.Question),
		byPosition: make(map[string][]string),
		answers:    make(map[string]domain.Answer),
		analyses:   make(map[string]domain.AnalysisResult),
		eventKeys:  make(map[string]struct{}),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) SaveProfile(p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
	return nil
}

func (m *MemoryStore) GetProfile(userID string) (domain.Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	return p, ok, nil
}

func (m *MemoryStore) SaveResume(r domain.Resume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes[r.ID] = r
	return nil
}

func (m *MemoryStore) GetResume(id string) (domain.Resume, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resumes[id]
	return r, ok, nil
}

// SaveSession stores or replaces a session and tracks insertion order.
func (m *MemoryStore) SaveSession(s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; !exists {
		m.sessionOrder = append(m.sessionOrder, s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSession(id string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

// ListSessionsByUser returns the user's sessions, newest first.
func (m *MemoryStore) ListSessionsByUser(userID string) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Session, 0)
	for i := len(m.sessionOrder) - 1; i >= 0; i-- {
		if s, ok := m.sessions[m.sessionOrder[i]]; ok && s.UserID == userID {
			res = append(res, s)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].StartedAt.After(res[j].StartedAt)
	})
	return res, nil
}

func (m *MemoryStore) AdvanceSessionState(id string, from, to domain.SessionState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.State != from {
		return false, nil
	}
	s.State = to
	m.sessions[id] = s
	return true, nil
}

// CloseSession stamps ended_at on the first call only.
func (m *MemoryStore) CloseSession(id string, at time.Time) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	if s.EndedAt == nil {
		ended := at.UTC()
		s.EndedAt = &ended
		s.State = domain.SessionClosed
		m.sessions[id] = s
	}
	return s, nil
}

func (m *MemoryStore) InsertQuestions(sessionID string, questions []domain.Question) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, ErrNotFound
	}
	if len(m.byPosition[sessionID]) > 0 || len(questions) == 0 {
		return false, nil
	}
	ordered := make([]domain.Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })
	ids := make([]string, 0, len(ordered))
	for _, q := range ordered {
		q.SessionID = sessionID
		m.questions[q.ID] = q
		ids = append(ids, q.ID)
	}
	m.byPosition[sessionID] = ids
	if s.State == domain.SessionCreated {
		s.State = domain.SessionQuestionsReady
		m.sessions[sessionID] = s
	}
	return true, nil
}

// ListQuestions returns questions in generation order.
func (m *MemoryStore) ListQuestions(sessionID string) ([]domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byPosition[sessionID]
	res := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		res = append(res, m.questions[id])
	}
	return res, nil
}

func (m *MemoryStore) GetQuestion(id string) (domain.Question, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	return q, ok, nil
}

// NextUnanswered returns the earliest question without any answer.
func (m *MemoryStore) NextUnanswered(sessionID string) (domain.Question, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	answered := make(map[string]struct{})
	for _, a := range m.answers {
		if a.SessionID == sessionID {
			answered[a.QuestionID] = struct{}{}
		}
	}
	for _, id := range m.byPosition[sessionID] {
		if _, ok := answered[id]; !ok {
			return m.questions[id], true, nil
		}
	}
	return domain.Question{}, false, nil
}

// SaveAnswer stores or replaces an answer and tracks insertion order.
func (m *MemoryStore) SaveAnswer(a domain.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.answers[a.ID]; !exists {
		m.answerOrder = append(m.answerOrder, a.ID)
	}
	m.answers[a.ID] = a
	return nil
}

func (m *MemoryStore) GetAnswer(id string) (domain.Answer, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.answers[id]
	return a, ok, nil
}

// ListAnswersBySession returns answers ordered by responded_at.
func (m *MemoryStore) ListAnswersBySession(sessionID string) ([]domain.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Answer, 0)
	for _, id := range m.answerOrder {
		if a, ok := m.answers[id]; ok && a.SessionID == sessionID {
			res = append(res, a)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].RespondedAt.Before(res[j].RespondedAt) })
	return res, nil
}

func (m *MemoryStore) SetAnalysisStatus(answerID string, status domain.AnalysisStatus, reason string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok {
		return ErrNotFound
	}
	a.AnalysisStatus = status
	a.FailureReason = reason
	a.Attempts = attempts
	a.UpdatedAt = time.Now().UTC()
	m.answers[answerID] = a
	return nil
}

func (m *MemoryStore) SetTranscript(answerID, transcript string, segments []domain.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok {
		return ErrNotFound
	}
	a.Transcript = transcript
	a.Segments = append([]domain.Segment(nil), segments...)
	a.UpdatedAt = time.Now().UTC()
	m.answers[answerID] = a
	return nil
}

// ReplaceAnalysis writes the result and the done status under one lock.
func (m *MemoryStore) ReplaceAnalysis(r domain.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[r.AnswerID]
	if !ok {
		return ErrNotFound
	}
	a.AnalysisStatus = domain.AnalysisDone
	a.FailureReason = ""
	a.UpdatedAt = time.Now().UTC()
	m.answers[r.AnswerID] = a
	m.analyses[r.AnswerID] = r
	return nil
}

func (m *MemoryStore) GetAnalysis(answerID string) (domain.AnalysisResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.analyses[answerID]
	return r, ok, nil
}

func (m *MemoryStore) ListAnalysesBySession(sessionID string) ([]domain.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.AnalysisResult, 0)
	for _, id := range m.answerOrder {
		a, ok := m.answers[id]
		if !ok || a.SessionID != sessionID {
			continue
		}
		if r, ok := m.analyses[id]; ok {
			res = append(res, r)
		}
	}
	return res, nil
}

// CreateNotification inserts n unless its event key was already recorded.
func (m *MemoryStore) CreateNotification(n domain.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.EventKey != "" {
		if _, dup := m.eventKeys[n.EventKey]; dup {
			return false, nil
		}
		m.eventKeys[n.EventKey] = struct{}{}
	}
	m.notifications = append(m.notifications, n)
	return true, nil
}

// ListNotifications returns a user's notifications, newest first.
func (m *MemoryStore) ListNotifications(userID string) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Notification, 0)
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].UserID == userID {
			res = append(res, m.notifications[i])
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) MarkNotificationRead(id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].UserID == userID {
			m.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}
