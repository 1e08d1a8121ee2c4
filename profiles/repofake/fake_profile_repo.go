package fakeprofilerepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-clinic-session/profiles"
)

var _ profiles.Repo = (*FakeProfileRepo)(nil)

// FakeProfileRepo is an in-memory profiles.Repo. Stored profiles are copied on
// the way in and out so callers cannot mutate shared state.
type FakeProfileRepo struct {
	profiles map[string]*profiles.Profile // keyed by user id
	lock     sync.RWMutex
	nowTime  func() time.Time
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{
		profiles: make(map[string]*profiles.Profile),
		nowTime:  time.Now,
	}
}

func (pr *FakeProfileRepo) GetByUserID(_ context.Context, userID string) (*profiles.Profile, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	p, ok := pr.profiles[userID]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	return p.Clone(), nil
}

func (pr *FakeProfileRepo) Insert(_ context.Context, profile *profiles.Profile) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if _, ok := pr.profiles[profile.UserID]; ok {
		return profiles.ErrDuplicate
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	now := pr.nowTime()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	pr.profiles[profile.UserID] = profile.Clone()
	return nil
}

func (pr *FakeProfileRepo) Update(_ context.Context, profile *profiles.Profile) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	existing, ok := pr.profiles[profile.UserID]
	if !ok {
		return profiles.ErrNotFound
	}
	updated := profile.Clone()
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = pr.nowTime()
	pr.profiles[profile.UserID] = updated
	return nil
}

func (pr *FakeProfileRepo) SetActive(_ context.Context, userID string, active bool) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	p, ok := pr.profiles[userID]
	if !ok {
		return profiles.ErrNotFound
	}
	p.Active = active
	p.UpdatedAt = pr.nowTime()
	return nil
}

func (pr *FakeProfileRepo) List(_ context.Context, offset, limit int) (profiles.ListResponse, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	all := make([]*profiles.Profile, 0, len(pr.profiles))
	for _, p := range pr.profiles {
		all = append(all, p.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].FullName == all[j].FullName {
			return all[i].UserID < all[j].UserID
		}
		return all[i].FullName < all[j].FullName
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return profiles.ListResponse{Total: len(all), Offset: offset, Limit: limit}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return profiles.ListResponse{
		Profiles: all[offset:end],
		Total:    len(all),
		Offset:   offset,
		Limit:    limit,
	}, nil
}

// Delete removes the profile linked to the user. It is not part of
// profiles.Repo; tests use it to simulate external edits.
func (pr *FakeProfileRepo) Delete(userID string) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	delete(pr.profiles, userID)
}
