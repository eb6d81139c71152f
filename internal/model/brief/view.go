package brief

import "time"

// SessionView is what the owning visitor sees while planning.
type SessionView struct {
	Fields
	Status Status `json:"status"`
}

// PublicView is served by share token. It never carries session or contact data.
type PublicView struct {
	Fields
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionView projects the brief for its owner.
func (b *Brief) SessionView() SessionView {
	return SessionView{Fields: b.Fields.withEmptyLists(), Status: b.Status}
}

// PublicView projects the brief for anonymous readers of a share link.
func (b *Brief) PublicView() PublicView {
	return PublicView{Fields: b.Fields.withEmptyLists(), Status: b.Status, CreatedAt: b.CreatedAt}
}

// withEmptyLists keeps lists encoded as [] rather than null.
func (f Fields) withEmptyLists() Fields {
	if f.Goals == nil {
		f.Goals = []string{}
	}
	if f.Features == nil {
		f.Features = []string{}
	}
	return f
}
