package model

import (
	"fmt"
	"sort"
	"strings"
)

// PublicMembershipID is reserved: an empty Membership is public.
const PublicMembershipID = "public"

// Membership is the set of fleet ids an entity belongs to. The zero value is
// public and grants access to everyone.
type Membership struct {
	ids []string
}

// NewMembership builds a membership from fleet ids.
func NewMembership(ids ...string) (Membership, error) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if id == PublicMembershipID {
			return Membership{}, fmt.Errorf("%s is reserved, please use another membership id", PublicMembershipID)
		}
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return Membership{ids: out}, nil
}

// IsPublic reports whether no fleet ids are set.
func (m Membership) IsPublic() bool { return len(m.ids) == 0 }

// IDs returns a copy of the fleet ids in ascending order.
func (m Membership) IDs() []string { return append([]string(nil), m.ids...) }

// Has reports whether id is one of the member fleets.
func (m Membership) Has(id string) bool {
	i := sort.SearchStrings(m.ids, id)
	return i < len(m.ids) && m.ids[i] == id
}

// InCommon lists the fleet ids shared with other.
func (m Membership) InCommon(other Membership) []string {
	var out []string
	for _, id := range m.ids {
		if other.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// GrantAccess reports whether an entity with membership other may use an
// entity with membership m.
func (m Membership) GrantAccess(other Membership) bool {
	return m.IsPublic() || len(m.InCommon(other)) > 0
}

// GrantAccessTo reports whether the single fleet id may use m.
func (m Membership) GrantAccessTo(id string) bool {
	return m.IsPublic() || m.Has(id)
}

func (m Membership) String() string { return strings.Join(m.ids, ",") }

// MarshalJSON writes the ids as a list, or null when public.
func (m Membership) MarshalJSON() ([]byte, error) {
	if m.IsPublic() {
		return []byte("null"), nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range m.ids {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q", id)
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}
