package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aweb-dev/aweb/internal/model"
)

// mapNoRows converts sql.ErrNoRows into the domain sentinel.
func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// --- Projects ---

type projects struct{ db *sql.DB }

func (p *projects) EnsureBySlug(ctx context.Context, slug, name string) (*model.Project, bool, error) {
	res, err := p.db.ExecContext(ctx, `
        INSERT INTO projects (project_id, slug, name)
        VALUES ($1,$2,$3)
        ON CONFLICT (slug) WHERE deleted_at IS NULL DO NOTHING
    `, uuid.New().String(), slug, name)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	var out model.Project
	row := p.db.QueryRowContext(ctx, `
        SELECT project_id, slug, name, created_at
        FROM projects WHERE slug=$1 AND deleted_at IS NULL
    `, slug)
	if err := row.Scan(&out.ProjectID, &out.Slug, &out.Name, &out.CreatedAt); err != nil {
		return nil, false, mapNoRows(err)
	}
	return &out, n == 1, nil
}

func (p *projects) GetByID(ctx context.Context, projectID string) (*model.Project, error) {
	var out model.Project
	row := p.db.QueryRowContext(ctx, `
        SELECT project_id, slug, name, created_at
        FROM projects WHERE project_id=$1 AND deleted_at IS NULL
    `, projectID)
	if err := row.Scan(&out.ProjectID, &out.Slug, &out.Name, &out.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

// --- Agents ---

type agents struct{ db *sql.DB }

func (a *agents) Create(ctx context.Context, m *model.Agent) (*model.Agent, error) {
	id := m.AgentID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := a.db.QueryRowContext(ctx, `
        INSERT INTO agents (agent_id, project_id, alias, human_name, agent_type, access_mode, status)
        VALUES ($1,$2,$3,$4,$5,$6,'active')
        ON CONFLICT (project_id, alias) WHERE deleted_at IS NULL DO NOTHING
        RETURNING created_at
    `, id, m.ProjectID, m.Alias, m.HumanName, m.AgentType, m.AccessMode)
	if err := row.Scan(&created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	out := *m
	out.AgentID = id
	out.Status = model.AgentStatusActive
	out.CreatedAt = created
	return &out, nil
}

const agentCols = `agent_id, project_id, alias, human_name, agent_type, access_mode, status, created_at`

func scanAgent(row interface{ Scan(...any) error }) (*model.Agent, error) {
	var out model.Agent
	if err := row.Scan(&out.AgentID, &out.ProjectID, &out.Alias, &out.HumanName,
		&out.AgentType, &out.AccessMode, &out.Status, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *agents) GetByID(ctx context.Context, projectID, agentID string) (*model.Agent, error) {
	row := a.db.QueryRowContext(ctx, `
        SELECT `+agentCols+` FROM agents
        WHERE project_id=$1 AND agent_id=$2 AND deleted_at IS NULL
    `, projectID, agentID)
	out, err := scanAgent(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return out, nil
}

func (a *agents) GetByAlias(ctx context.Context, projectID, alias string) (*model.Agent, error) {
	row := a.db.QueryRowContext(ctx, `
        SELECT `+agentCols+` FROM agents
        WHERE project_id=$1 AND alias=$2 AND deleted_at IS NULL
    `, projectID, alias)
	out, err := scanAgent(row)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return out, nil
}

func (a *agents) List(ctx context.Context, projectID string) ([]*model.Agent, error) {
	rows, err := a.db.QueryContext(ctx, `
        SELECT `+agentCols+` FROM agents
        WHERE project_id=$1 AND deleted_at IS NULL
        ORDER BY alias
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Agent
	for rows.Next() {
		ag, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ag)
	}
	return res, rows.Err()
}

// --- API keys ---

type apiKeys struct{ db *sql.DB }

func (k *apiKeys) Create(ctx context.Context, m *model.APIKey) (*model.APIKey, error) {
	id := m.APIKeyID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := k.db.QueryRowContext(ctx, `
        INSERT INTO api_keys (api_key_id, project_id, agent_id, key_hash, is_active)
        VALUES ($1,$2,$3,$4,TRUE)
        RETURNING created_at
    `, id, m.ProjectID, m.AgentID, m.KeyHash)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.APIKeyID = id
	out.IsActive = true
	out.CreatedAt = created
	return &out, nil
}

func (k *apiKeys) GetActiveByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	var out model.APIKey
	row := k.db.QueryRowContext(ctx, `
        SELECT api_key_id, project_id, agent_id, key_hash, is_active, created_at, last_used_at
        FROM api_keys WHERE key_hash=$1 AND is_active
    `, keyHash)
	if err := row.Scan(&out.APIKeyID, &out.ProjectID, &out.AgentID, &out.KeyHash,
		&out.IsActive, &out.CreatedAt, &out.LastUsedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (k *apiKeys) TouchLastUsed(ctx context.Context, keyHash string, at time.Time) error {
	_, err := k.db.ExecContext(ctx, `
        UPDATE api_keys SET last_used_at=$2 WHERE key_hash=$1
    `, keyHash, at)
	return err
}

// --- Contacts ---

type contacts struct{ db *sql.DB }

func (c *contacts) Add(ctx context.Context, m *model.Contact) (*model.Contact, error) {
	id := m.ContactID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO contacts (contact_id, project_id, contact_address, label)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (project_id, contact_address) DO NOTHING
        RETURNING created_at
    `, id, m.ProjectID, m.ContactAddress, m.Label)
	if err := row.Scan(&created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrConflict
		}
		return nil, err
	}
	out := *m
	out.ContactID = id
	out.CreatedAt = created
	return &out, nil
}

func (c *contacts) List(ctx context.Context, projectID string) ([]*model.Contact, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT contact_id, project_id, contact_address, label, created_at
        FROM contacts WHERE project_id=$1 ORDER BY contact_address
    `, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Contact
	for rows.Next() {
		var ct model.Contact
		if err := rows.Scan(&ct.ContactID, &ct.ProjectID, &ct.ContactAddress, &ct.Label, &ct.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &ct)
	}
	return res, rows.Err()
}

func (c *contacts) Remove(ctx context.Context, projectID, contactID string) error {
	_, err := c.db.ExecContext(ctx, `
        DELETE FROM contacts WHERE project_id=$1 AND contact_id=$2
    `, projectID, contactID)
	return err
}

func (c *contacts) Exists(ctx context.Context, projectID, address string) (bool, error) {
	var one int
	row := c.db.QueryRowContext(ctx, `
        SELECT 1 FROM contacts WHERE project_id=$1 AND contact_address=$2
    `, projectID, address)
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
