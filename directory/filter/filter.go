// Package filter defines the abstract boolean query expression over
// directory entries, independent of how entries are stored.
package filter

// Expr is an immutable filter tree node.
type Expr interface {
	isFilter()
}

// True matches every entry.
type True struct{}

// False matches no entry.
type False struct{}

// And is the conjunction of its children. Empty And matches everything.
type And []Expr

// Or is the disjunction of its children. Empty Or matches nothing.
type Or []Expr

type Not struct {
	Expr Expr
}

// DisplayNameIs matches the display name case insensitively.
type DisplayNameIs string

// IdIs matches the surrogate entry id.
type IdIs int64

// UuidIs matches the stable entry UUID.
type UuidIs string

// MemberOf matches entries related to the given peer entry through the
// membership table: for groups the peer is a user id (groups the user
// belongs to), for users the peer is a group id (users in the group).
type MemberOf int64

// Substring is an LDAP style substring pattern. All fragments must appear in
// order; Initial anchors the start and Final the end when present.
type Substring struct {
	Initial string
	Any     []string
	Final   string
}

// DisplayNameSubstring matches the display name case insensitively against
// a substring pattern.
type DisplayNameSubstring Substring

// AttributeIs matches entries that have an attribute with the given name
// and exact serialized value.
type AttributeIs struct {
	Name  string
	Value []byte
}

// HasAttribute matches entries that have any value for the named attribute.
type HasAttribute string

func (True) isFilter()                 {}
func (False) isFilter()                {}
func (And) isFilter()                  {}
func (Or) isFilter()                   {}
func (Not) isFilter()                  {}
func (DisplayNameIs) isFilter()        {}
func (IdIs) isFilter()                 {}
func (UuidIs) isFilter()               {}
func (MemberOf) isFilter()             {}
func (DisplayNameSubstring) isFilter() {}
func (AttributeIs) isFilter()          {}
func (HasAttribute) isFilter()         {}
