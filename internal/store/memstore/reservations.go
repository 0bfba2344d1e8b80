package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/aweb-dev/aweb/internal/model"
)

type reservations struct{ s *Store }

func (r *reservations) Acquire(_ context.Context, res *model.Reservation, now time.Time) (*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lk := key2(res.ProjectID, res.ResourceKey)
	if cur, ok := r.s.leases[lk]; ok && cur.Held(now) {
		return nil, &model.ReservationConflictError{
			ResourceKey:   res.ResourceKey,
			HolderAgentID: cur.HolderAgentID,
			HolderAlias:   cur.HolderAlias,
			ExpiresAt:     cur.ExpiresAt,
		}
	}
	out := *res
	out.AcquiredAt = now
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	cp := out
	r.s.leases[lk] = &cp
	return &out, nil
}

func (r *reservations) Renew(_ context.Context, projectID, resourceKey, holderAgentID string, now, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.leases[key2(projectID, resourceKey)]
	if !ok || !cur.Held(now) {
		return model.ErrNotFound
	}
	if cur.HolderAgentID != holderAgentID {
		return model.ErrForbidden
	}
	cur.ExpiresAt = expiresAt
	return nil
}

func (r *reservations) Release(_ context.Context, projectID, resourceKey, holderAgentID string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lk := key2(projectID, resourceKey)
	cur, ok := r.s.leases[lk]
	if !ok {
		return false, nil
	}
	if cur.Held(now) && cur.HolderAgentID != holderAgentID {
		return false, model.ErrForbidden
	}
	delete(r.s.leases, lk)
	return true, nil
}

func (r *reservations) RevokeOwn(_ context.Context, projectID, holderAgentID, prefix string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	othersMatch := false
	for lk, cur := range r.s.leases {
		if cur.ProjectID != projectID {
			continue
		}
		if prefix != "" && !strings.HasPrefix(cur.ResourceKey, prefix) {
			continue
		}
		if cur.HolderAgentID != holderAgentID {
			othersMatch = true
			continue
		}
		delete(r.s.leases, lk)
		n++
	}
	if n == 0 && prefix != "" && othersMatch {
		return 0, model.ErrForbidden
	}
	return n, nil
}

func (r *reservations) List(_ context.Context, projectID, prefix string, now time.Time) ([]*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var res []*model.Reservation
	for _, cur := range r.s.leases {
		if cur.ProjectID != projectID || !cur.Held(now) {
			continue
		}
		if prefix != "" && !strings.HasPrefix(cur.ResourceKey, prefix) {
			continue
		}
		out := *cur
		res = append(res, &out)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ResourceKey < res[j].ResourceKey })
	return res, nil
}
