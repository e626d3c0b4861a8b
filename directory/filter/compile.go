package filter

import (
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

// Tables tells the compiler which relations back an entry kind. This is the
// only kind specific input; the compiler itself is pure and stateless.
type Tables struct {
	// Entries is the entry table, e.g. "groups".
	Entries string
	// Attributes is the wide attribute table, e.g. "group_attributes".
	Attributes string
	// MembershipOwn is the membership column holding this kind's entry id.
	MembershipOwn string
	// MembershipPeer is the membership column holding the other kind's id.
	MembershipPeer string
}

var GroupTables = Tables{
	Entries:        "groups",
	Attributes:     "group_attributes",
	MembershipOwn:  "group_id",
	MembershipPeer: "user_id",
}

var UserTables = Tables{
	Entries:        "users",
	Attributes:     "user_attributes",
	MembershipOwn:  "user_id",
	MembershipPeer: "group_id",
}

// Compile translates a filter tree into an equivalent relational condition
// attachable to a query over the entry table. Unknown attribute names are
// not rejected here; they simply match no rows. Callers wanting early
// rejection validate against the schema registry first.
func Compile(t Tables, f Expr) clause.Expression {
	switch f := f.(type) {
	case True:
		return constant(true)
	case False:
		return constant(false)
	case And:
		if len(f) == 0 {
			return constant(true)
		}
		return clause.And(compileAll(t, f)...)
	case Or:
		if len(f) == 0 {
			return constant(false)
		}
		return clause.Or(compileAll(t, f)...)
	case Not:
		return clause.Not(Compile(t, f.Expr))
	case DisplayNameIs:
		return clause.Eq{
			Column: clause.Column{Table: t.Entries, Name: "lowercase_display_name"},
			Value:  strings.ToLower(string(f)),
		}
	case IdIs:
		return clause.Eq{
			Column: clause.Column{Table: t.Entries, Name: "id"},
			Value:  int64(f),
		}
	case UuidIs:
		return clause.Eq{
			Column: clause.Column{Table: t.Entries, Name: "uuid"},
			Value:  string(f),
		}
	case MemberOf:
		return clause.Expr{
			SQL:  fmt.Sprintf("%s.id IN (SELECT %s FROM memberships WHERE %s = ?)", t.Entries, t.MembershipOwn, t.MembershipPeer),
			Vars: []interface{}{int64(f)},
		}
	case DisplayNameSubstring:
		return clause.Like{
			Column: clause.Column{Table: t.Entries, Name: "lowercase_display_name"},
			Value:  Substring(f).Pattern(),
		}
	case AttributeIs:
		return attributeCondition(t, f.Name, f.Value)
	case HasAttribute:
		return attributeCondition(t, string(f), nil)
	}
	panic(fmt.Sprintf("unhandled filter variant %T", f))
}

func compileAll(t Tables, fs []Expr) []clause.Expression {
	exprs := make([]clause.Expression, 0, len(fs))
	for _, f := range fs {
		exprs = append(exprs, Compile(t, f))
	}
	return exprs
}

func constant(b bool) clause.Expression {
	if b {
		return clause.Expr{SQL: "1 = 1"}
	}
	return clause.Expr{SQL: "1 = 0"}
}

// attributeCondition restricts entries to those with a row in the attribute
// table for the given name. A nil value degenerates to a presence check.
func attributeCondition(t Tables, name string, value []byte) clause.Expression {
	if value == nil {
		return clause.Expr{
			SQL:  fmt.Sprintf("%s.id IN (SELECT entry_id FROM %s WHERE attribute_name = ?)", t.Entries, t.Attributes),
			Vars: []interface{}{name},
		}
	}
	return clause.Expr{
		SQL:  fmt.Sprintf("%s.id IN (SELECT entry_id FROM %s WHERE attribute_name = ? AND value = ?)", t.Entries, t.Attributes),
		Vars: []interface{}{name, value},
	}
}

// Pattern renders the fragment triple as a single LIKE pattern with
// wildcard separators, lowercased for comparison against the precomputed
// lowercase display name column.
func (s Substring) Pattern() string {
	parts := make([]string, 0, len(s.Any)+2)
	parts = append(parts, s.Initial)
	parts = append(parts, s.Any...)
	parts = append(parts, s.Final)
	return strings.ToLower(strings.Join(parts, "%"))
}
