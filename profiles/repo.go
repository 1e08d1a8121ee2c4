package profiles

import "context"

// Repo is the profile table keyed by identity provider user id.
type Repo interface {
	// GetByUserID returns ErrNotFound when no profile is linked to the user
	GetByUserID(ctx context.Context, userID string) (*Profile, error)

	// Insert stores a new profile, assigning ID and timestamps when unset
	Insert(ctx context.Context, profile *Profile) error

	// Update replaces the editable fields of an existing profile
	Update(ctx context.Context, profile *Profile) error

	// SetActive enables or disables the profile linked to the user
	SetActive(ctx context.Context, userID string, active bool) error

	// List returns profiles ordered by full name
	List(ctx context.Context, offset, limit int) (ListResponse, error)
}
