// Package memstore is an in-process store.Store used by unit tests and the
// zero-dependency dev mode. Semantics mirror the Postgres implementation,
// including receipt monotonicity and lease expiry rules.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
)

type Store struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time

	projects      map[string]*model.Project // by project_id
	slugIndex     map[string]string         // slug -> project_id
	agents        map[string]*model.Agent   // by agent_id
	apiKeys       map[string]*model.APIKey  // by key_hash
	contacts      map[string]*model.Contact // by contact_id
	mailMsgs      map[string]*model.MailMessage
	sessions      map[string]*model.ChatSession
	sessionByHash map[string]string // project_id+"\x00"+hash -> session_id
	participants  map[string][]model.ChatParticipant
	chatMsgs      map[string][]*model.ChatMessage // per session, append order
	receipts      map[string]*model.ReadReceipt   // session_id+"\x00"+agent_id
	leases        map[string]*model.Reservation   // project_id+"\x00"+resource_key
}

func New() *Store {
	return &Store{
		now:           time.Now,
		projects:      make(map[string]*model.Project),
		slugIndex:     make(map[string]string),
		agents:        make(map[string]*model.Agent),
		apiKeys:       make(map[string]*model.APIKey),
		contacts:      make(map[string]*model.Contact),
		mailMsgs:      make(map[string]*model.MailMessage),
		sessions:      make(map[string]*model.ChatSession),
		sessionByHash: make(map[string]string),
		participants:  make(map[string][]model.ChatParticipant),
		chatMsgs:      make(map[string][]*model.ChatMessage),
		receipts:      make(map[string]*model.ReadReceipt),
		leases:        make(map[string]*model.Reservation),
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// tick returns a strictly increasing timestamp so message ordering by
// created_at is total even within one clock granule.
func (s *Store) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func key2(a, b string) string { return a + "\x00" + b }

func (s *Store) Projects() store.Projects         { return &projects{s} }
func (s *Store) Agents() store.Agents             { return &agents{s} }
func (s *Store) APIKeys() store.APIKeys           { return &apiKeys{s} }
func (s *Store) Contacts() store.Contacts         { return &contacts{s} }
func (s *Store) Mail() store.Mail                 { return &mail{s} }
func (s *Store) Chat() store.Chat                 { return &chat{s} }
func (s *Store) Reservations() store.Reservations { return &reservations{s} }

func (s *Store) Ping(context.Context) error { return nil }

// --- Projects ---

type projects struct{ s *Store }

func (p *projects) EnsureBySlug(_ context.Context, slug, name string) (*model.Project, bool, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if id, ok := p.s.slugIndex[slug]; ok {
		out := *p.s.projects[id]
		return &out, false, nil
	}
	pr := &model.Project{
		ProjectID: uuid.New().String(),
		Slug:      slug,
		Name:      name,
		CreatedAt: p.s.tick(),
	}
	p.s.projects[pr.ProjectID] = pr
	p.s.slugIndex[slug] = pr.ProjectID
	out := *pr
	return &out, true, nil
}

func (p *projects) GetByID(_ context.Context, projectID string) (*model.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pr, ok := p.s.projects[projectID]
	if !ok || pr.DeletedAt != nil {
		return nil, model.ErrNotFound
	}
	out := *pr
	return &out, nil
}

// --- Agents ---

type agents struct{ s *Store }

func (a *agents) Create(_ context.Context, m *model.Agent) (*model.Agent, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, ag := range a.s.agents {
		if ag.ProjectID == m.ProjectID && ag.Alias == m.Alias && ag.DeletedAt == nil {
			return nil, model.ErrConflict
		}
	}
	out := *m
	if out.AgentID == "" {
		out.AgentID = uuid.New().String()
	}
	out.Status = model.AgentStatusActive
	out.CreatedAt = a.s.tick()
	cp := out
	a.s.agents[out.AgentID] = &cp
	return &out, nil
}

func (a *agents) GetByID(_ context.Context, projectID, agentID string) (*model.Agent, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	ag, ok := a.s.agents[agentID]
	if !ok || ag.ProjectID != projectID || ag.DeletedAt != nil {
		return nil, model.ErrNotFound
	}
	out := *ag
	return &out, nil
}

func (a *agents) GetByAlias(_ context.Context, projectID, alias string) (*model.Agent, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, ag := range a.s.agents {
		if ag.ProjectID == projectID && ag.Alias == alias && ag.DeletedAt == nil {
			out := *ag
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

func (a *agents) List(_ context.Context, projectID string) ([]*model.Agent, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var res []*model.Agent
	for _, ag := range a.s.agents {
		if ag.ProjectID == projectID && ag.DeletedAt == nil {
			out := *ag
			res = append(res, &out)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Alias < res[j].Alias })
	return res, nil
}

// --- API keys ---

type apiKeys struct{ s *Store }

func (k *apiKeys) Create(_ context.Context, m *model.APIKey) (*model.APIKey, error) {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	out := *m
	if out.APIKeyID == "" {
		out.APIKeyID = uuid.New().String()
	}
	out.IsActive = true
	out.CreatedAt = k.s.tick()
	cp := out
	k.s.apiKeys[out.KeyHash] = &cp
	return &out, nil
}

func (k *apiKeys) GetActiveByHash(_ context.Context, keyHash string) (*model.APIKey, error) {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	key, ok := k.s.apiKeys[keyHash]
	if !ok || !key.IsActive {
		return nil, model.ErrNotFound
	}
	out := *key
	return &out, nil
}

func (k *apiKeys) TouchLastUsed(_ context.Context, keyHash string, at time.Time) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if key, ok := k.s.apiKeys[keyHash]; ok {
		t := at
		key.LastUsedAt = &t
	}
	return nil
}

// --- Contacts ---

type contacts struct{ s *Store }

func (c *contacts) Add(_ context.Context, m *model.Contact) (*model.Contact, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, ct := range c.s.contacts {
		if ct.ProjectID == m.ProjectID && ct.ContactAddress == m.ContactAddress {
			return nil, model.ErrConflict
		}
	}
	out := *m
	if out.ContactID == "" {
		out.ContactID = uuid.New().String()
	}
	out.CreatedAt = c.s.tick()
	cp := out
	c.s.contacts[out.ContactID] = &cp
	return &out, nil
}

func (c *contacts) List(_ context.Context, projectID string) ([]*model.Contact, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var res []*model.Contact
	for _, ct := range c.s.contacts {
		if ct.ProjectID == projectID {
			out := *ct
			res = append(res, &out)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ContactAddress < res[j].ContactAddress })
	return res, nil
}

func (c *contacts) Remove(_ context.Context, projectID, contactID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if ct, ok := c.s.contacts[contactID]; ok && ct.ProjectID == projectID {
		delete(c.s.contacts, contactID)
	}
	return nil
}

func (c *contacts) Exists(_ context.Context, projectID, address string) (bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, ct := range c.s.contacts {
		if ct.ProjectID == projectID && ct.ContactAddress == address {
			return true, nil
		}
	}
	return false, nil
}

// --- Mail ---

type mail struct{ s *Store }

func (m *mail) Create(_ context.Context, msg *model.MailMessage) (*model.MailMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := *msg
	if out.MessageID == "" {
		out.MessageID = uuid.New().String()
	}
	out.CreatedAt = m.s.tick()
	cp := out
	m.s.mailMsgs[out.MessageID] = &cp
	return &out, nil
}

func (m *mail) Inbox(_ context.Context, projectID, agentID string, unreadOnly bool, limit int) ([]*model.MailMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var res []*model.MailMessage
	for _, msg := range m.s.mailMsgs {
		if msg.ProjectID != projectID || msg.ToAgentID != agentID {
			continue
		}
		if unreadOnly && msg.ReadAt != nil {
			continue
		}
		out := *msg
		res = append(res, &out)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *mail) Get(_ context.Context, projectID, messageID string) (*model.MailMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.mailMsgs[messageID]
	if !ok || msg.ProjectID != projectID {
		return nil, model.ErrNotFound
	}
	out := *msg
	return &out, nil
}

func (m *mail) Ack(_ context.Context, projectID, messageID string, at time.Time) (time.Time, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.mailMsgs[messageID]
	if !ok || msg.ProjectID != projectID {
		return time.Time{}, model.ErrNotFound
	}
	if msg.ReadAt == nil {
		t := at
		msg.ReadAt = &t
	}
	return *msg.ReadAt, nil
}

func (m *mail) UnreadCount(_ context.Context, projectID, agentID string) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, msg := range m.s.mailMsgs {
		if msg.ProjectID == projectID && msg.ToAgentID == agentID && msg.ReadAt == nil {
			n++
		}
	}
	return n, nil
}
