package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aweb-dev/aweb/internal/auth"
	"github.com/aweb-dev/aweb/internal/model"
	"github.com/aweb-dev/aweb/internal/store"
	"github.com/aweb-dev/aweb/internal/validate"
)

// IdentityService owns projects, agents, API keys, and contacts.
type IdentityService struct {
	store    store.Store
	presence *Presence
}

func NewIdentityService(s store.Store, p *Presence) *IdentityService {
	return &IdentityService{store: s, presence: p}
}

// InitResult carries the one-time plaintext key alongside the created rows.
type InitResult struct {
	Project *model.Project
	Agent   *model.Agent
	APIKey  string
	Created bool
}

// Init bootstraps a project and agent and issues a fresh key. The project is
// reused when the slug exists; an existing alias gets a new key for the same
// agent. An empty alias auto-allocates the next free classic name.
func (s *IdentityService) Init(ctx context.Context, slug, alias, humanName, agentType, accessMode string) (*InitResult, error) {
	slug, err := validate.ProjectSlug(slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrValidation, err)
	}
	if accessMode == "" {
		accessMode = model.AccessModeOpen
	}
	if accessMode != model.AccessModeOpen && accessMode != model.AccessModeContactsOnly {
		return nil, fmt.Errorf("%w: invalid access_mode %q", model.ErrValidation, accessMode)
	}

	project, _, err := s.store.Projects().EnsureBySlug(ctx, slug, slug)
	if err != nil {
		return nil, err
	}

	var agent *model.Agent
	created := false
	if alias == "" {
		alias, err = s.freeAliasPrefix(ctx, project.ProjectID)
		if err != nil {
			return nil, err
		}
	} else if alias, err = validate.AgentAlias(alias); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrValidation, err)
	}

	agent, err = s.store.Agents().Create(ctx, &model.Agent{
		ProjectID:  project.ProjectID,
		Alias:      alias,
		HumanName:  humanName,
		AgentType:  agentType,
		AccessMode: accessMode,
	})
	switch {
	case err == nil:
		created = true
	case errors.Is(err, model.ErrConflict):
		// re-init: same agent, fresh key
		agent, err = s.store.Agents().GetByAlias(ctx, project.ProjectID, alias)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	plaintext, hash, err := auth.GenerateKey()
	if err != nil {
		return nil, err
	}
	agentID := agent.AgentID
	if _, err := s.store.APIKeys().Create(ctx, &model.APIKey{
		ProjectID: project.ProjectID,
		AgentID:   &agentID,
		KeyHash:   hash,
	}); err != nil {
		return nil, err
	}

	return &InitResult{Project: project, Agent: agent, APIKey: plaintext, Created: created}, nil
}

// IntrospectResult describes the caller.
type IntrospectResult struct {
	ProjectID   string `json:"project_id"`
	ProjectSlug string `json:"project_slug"`
	AgentID     string `json:"agent_id,omitempty"`
	Alias       string `json:"alias,omitempty"`
	HumanName   string `json:"human_name,omitempty"`
	AgentType   string `json:"agent_type,omitempty"`
}

func (s *IdentityService) Introspect(ctx context.Context, p *auth.Principal) (*IntrospectResult, error) {
	project, err := s.store.Projects().GetByID(ctx, p.ProjectID)
	if err != nil {
		return nil, err
	}
	out := &IntrospectResult{ProjectID: project.ProjectID, ProjectSlug: project.Slug}
	if p.Agent() {
		agent, err := s.store.Agents().GetByID(ctx, p.ProjectID, p.AgentID)
		if err != nil {
			return nil, err
		}
		out.AgentID = agent.AgentID
		out.Alias = agent.Alias
		out.HumanName = agent.HumanName
		out.AgentType = agent.AgentType
	}
	return out, nil
}

// AgentWithPresence is an agent row enriched with online status.
type AgentWithPresence struct {
	model.Agent
	Online bool `json:"online"`
}

func (s *IdentityService) ListAgents(ctx context.Context, p *auth.Principal) ([]*AgentWithPresence, error) {
	agents, err := s.store.Agents().List(ctx, p.ProjectID)
	if err != nil {
		return nil, err
	}
	res := make([]*AgentWithPresence, 0, len(agents))
	for _, a := range agents {
		res = append(res, &AgentWithPresence{
			Agent:  *a,
			Online: s.presence.Online(ctx, p.ProjectID, a.AgentID),
		})
	}
	return res, nil
}

func (s *IdentityService) Heartbeat(ctx context.Context, p *auth.Principal) error {
	if !p.Agent() {
		return model.ErrForbidden
	}
	return s.presence.Heartbeat(ctx, p.ProjectID, p.AgentID)
}

// SuggestAliasPrefix returns the first classic name free in the project.
func (s *IdentityService) SuggestAliasPrefix(ctx context.Context, p *auth.Principal) (string, error) {
	return s.freeAliasPrefix(ctx, p.ProjectID)
}

func (s *IdentityService) freeAliasPrefix(ctx context.Context, projectID string) (string, error) {
	agents, err := s.store.Agents().List(ctx, projectID)
	if err != nil {
		return "", err
	}
	aliases := make([]string, 0, len(agents))
	for _, a := range agents {
		aliases = append(aliases, a.Alias)
	}
	prefix := validate.SuggestNamePrefix(aliases)
	if prefix == "" {
		return "", fmt.Errorf("%w: alias space exhausted", model.ErrConflict)
	}
	return prefix, nil
}

// --- Contacts ---

func (s *IdentityService) AddContact(ctx context.Context, p *auth.Principal, address, label string) (*model.Contact, error) {
	address, err := validate.ContactAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrValidation, err)
	}
	if p.Agent() {
		if agent, err := s.store.Agents().GetByID(ctx, p.ProjectID, p.AgentID); err == nil && agent.Alias == address {
			return nil, fmt.Errorf("%w: cannot add self as contact", model.ErrValidation)
		}
	}
	c := &model.Contact{ProjectID: p.ProjectID, ContactAddress: address}
	if label != "" {
		c.Label = &label
	}
	return s.store.Contacts().Add(ctx, c)
}

func (s *IdentityService) ListContacts(ctx context.Context, p *auth.Principal) ([]*model.Contact, error) {
	return s.store.Contacts().List(ctx, p.ProjectID)
}

func (s *IdentityService) RemoveContact(ctx context.Context, p *auth.Principal, contactID string) error {
	return s.store.Contacts().Remove(ctx, p.ProjectID, contactID)
}

// --- Access gate ---

// allowedSender enforces contacts_only recipients: the sender's canonical
// address (bare alias or "slug/alias") must be in the project's contact set.
func (s *IdentityService) allowedSender(ctx context.Context, recipient, sender *model.Agent) (bool, error) {
	if recipient.AccessMode != model.AccessModeContactsOnly {
		return true, nil
	}
	if ok, err := s.store.Contacts().Exists(ctx, recipient.ProjectID, sender.Alias); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	project, err := s.store.Projects().GetByID(ctx, sender.ProjectID)
	if err != nil {
		return false, err
	}
	return s.store.Contacts().Exists(ctx, recipient.ProjectID, project.Slug+"/"+sender.Alias)
}

// CheckSendAllowed is the shared mail/chat gate.
func (s *IdentityService) CheckSendAllowed(ctx context.Context, recipient, sender *model.Agent) error {
	ok, err := s.allowedSender(ctx, recipient, sender)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s accepts messages from contacts only", model.ErrForbidden, recipient.Alias)
	}
	return nil
}

// ResolveRecipient finds an active-or-not agent by id or alias within the
// project. Exactly one of agentID/alias must be set.
func (s *IdentityService) ResolveRecipient(ctx context.Context, projectID, agentID, alias string) (*model.Agent, error) {
	switch {
	case agentID != "":
		return s.store.Agents().GetByID(ctx, projectID, agentID)
	case alias != "":
		return s.store.Agents().GetByAlias(ctx, projectID, strings.TrimSpace(alias))
	default:
		return nil, fmt.Errorf("%w: recipient is required", model.ErrValidation)
	}
}
