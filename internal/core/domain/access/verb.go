package access

// Verb is the unit of permission.
type Verb string

const (
	VerbView   Verb = "view"
	VerbEdit   Verb = "edit"
	VerbDelete Verb = "delete"
)

// Verbs returns every verb in ascending order of privilege.
func Verbs() []Verb {
	return []Verb{VerbView, VerbEdit, VerbDelete}
}

func (v Verb) String() string {
	return string(v)
}

func (v Verb) IsValid() bool {
	switch v {
	case VerbView, VerbEdit, VerbDelete:
		return true
	default:
		return false
	}
}

func ParseVerb(s string) (Verb, bool) {
	v := Verb(s)
	return v, v.IsValid()
}

// VerbSet is the effective capability on one resource.
type VerbSet struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

func (s *VerbSet) set(v Verb) {
	switch v {
	case VerbView:
		s.View = true
	case VerbEdit:
		s.Edit = true
	case VerbDelete:
		s.Delete = true
	}
}
