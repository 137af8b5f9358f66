package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidGrant is wrapped by every grant validation failure.
var ErrInvalidGrant = errors.New("invalid grant")

// AccessControl is a single grant: the maximum verbs a profile allows on one resource.
type AccessControl struct {
	Resource    Resource `json:"resource" db:"resource"`
	CanView     bool     `json:"can_view" db:"can_view"`
	CanEdit     bool     `json:"can_edit" db:"can_edit"`
	CanDelete   bool     `json:"can_delete" db:"can_delete"`
	Description *string  `json:"description,omitempty" db:"description"`
}

// Allows reports whether the grant covers verb.
func (ac AccessControl) Allows(v Verb) bool {
	switch v {
	case VerbView:
		return ac.CanView
	case VerbEdit:
		return ac.CanEdit
	case VerbDelete:
		return ac.CanDelete
	default:
		return false
	}
}

// Validate enforces that edit and delete imply view.
func (ac AccessControl) Validate() error {
	if !ac.Resource.IsValid() {
		return fmt.Errorf("%w: unknown resource %q", ErrInvalidGrant, ac.Resource)
	}
	if (ac.CanEdit || ac.CanDelete) && !ac.CanView {
		return fmt.Errorf("%w: %s grants edit or delete without view", ErrInvalidGrant, ac.Resource)
	}
	return nil
}

func (ac AccessControl) equal(other AccessControl) bool {
	if ac.Resource != other.Resource || ac.CanView != other.CanView ||
		ac.CanEdit != other.CanEdit || ac.CanDelete != other.CanDelete {
		return false
	}
	return descriptionValue(ac.Description) == descriptionValue(other.Description)
}

func descriptionValue(d *string) string {
	if d == nil {
		return ""
	}
	return *d
}

// AccessProfile is a named, tenant-scoped bundle of grants.
type AccessProfile struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrgID          uuid.UUID       `json:"org_id" db:"org_id"`
	Name           string          `json:"name" db:"name"`
	Description    *string         `json:"description,omitempty" db:"description"`
	AccessControls []AccessControl `json:"access_controls" db:"-"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Grant returns the profile's grant for resource, if any.
func (p *AccessProfile) Grant(r Resource) (AccessControl, bool) {
	if p == nil {
		return AccessControl{}, false
	}
	for _, ac := range p.AccessControls {
		if ac.Resource == r {
			return ac, true
		}
	}
	return AccessControl{}, false
}

// SameContent reports whether name, description and grants match other.
// Both profiles must carry normalized grants.
func (p *AccessProfile) SameContent(other *AccessProfile) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Name == other.Name &&
		descriptionValue(p.Description) == descriptionValue(other.Description) &&
		GrantsEqual(p.AccessControls, other.AccessControls)
}

// NormalizeGrants validates grants and returns a copy in registry order.
// A resource may appear at most once.
func NormalizeGrants(grants []AccessControl) ([]AccessControl, error) {
	out := make([]AccessControl, 0, len(grants))
	seen := make(map[Resource]struct{}, len(grants))
	for _, g := range grants {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[g.Resource]; dup {
			return nil, fmt.Errorf("%w: duplicate grant for %s", ErrInvalidGrant, g.Resource)
		}
		seen[g.Resource] = struct{}{}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Resource.index() < out[j].Resource.index()
	})
	return out, nil
}

// GrantsEqual compares two normalized grant sets.
func GrantsEqual(a, b []AccessControl) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

// ProfilePatch is an update to apply to the stored profile. Nil Name and
// Description keep the stored values. Grants are replaced only when ReplaceGrants is set.
type ProfilePatch struct {
	Name           *string
	Description    *string
	AccessControls []AccessControl
	ReplaceGrants  bool
	UpdatedAt      time.Time
}

// Apply returns a copy of p with the patch applied. p is not modified.
func (pt ProfilePatch) Apply(p *AccessProfile) *AccessProfile {
	out := *p
	out.AccessControls = cloneGrants(p.AccessControls)
	if pt.Name != nil {
		out.Name = *pt.Name
	}
	if pt.Description != nil {
		d := *pt.Description
		out.Description = &d
	}
	if pt.ReplaceGrants {
		out.AccessControls = cloneGrants(pt.AccessControls)
	}
	out.UpdatedAt = pt.UpdatedAt
	return &out
}

func cloneGrants(grants []AccessControl) []AccessControl {
	out := make([]AccessControl, len(grants))
	copy(out, grants)
	return out
}

// NormalizeName trims surrounding whitespace; uniqueness is checked on the trimmed form.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// CreateProfileRequest represents the request to create a profile
type CreateProfileRequest struct {
	Name           string          `json:"name"`
	Description    *string         `json:"description,omitempty"`
	AccessControls []AccessControl `json:"access_controls"`
}

// UpdateProfileRequest replaces a profile's grants. Name and description are optional.
type UpdateProfileRequest struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	AccessControls []AccessControl `json:"access_controls"`
}

// BindUserRequest represents the request to (re)bind a user to a profile
type BindUserRequest struct {
	ProfileID uuid.UUID `json:"profile_id"`
}

// ListProfilesResponse is returned by the list endpoint.
type ListProfilesResponse struct {
	Profiles []*AccessProfile `json:"profiles"`
	Total    int              `json:"total"`
}

// EffectiveAccessResponse describes what the caller may do on every resource.
type EffectiveAccessResponse struct {
	RegistryVersion int                  `json:"registry_version"`
	Role            string               `json:"role"`
	Resources       map[Resource]VerbSet `json:"resources"`
}
