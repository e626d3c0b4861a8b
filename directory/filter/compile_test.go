package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// buildSQL renders a compiled filter the way a query would, without hitting
// the database.
func buildSQL(t *testing.T, tables Tables, f Expr) (string, []interface{}) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	var rows []map[string]interface{}
	tx := db.Session(&gorm.Session{DryRun: true}).Table(tables.Entries).Where(Compile(tables, f)).Find(&rows)
	require.NoError(t, tx.Error)

	return tx.Statement.SQL.String(), tx.Statement.Vars
}

func TestConstantFilters(t *testing.T) {
	sql, _ := buildSQL(t, GroupTables, True{})
	assert.Contains(t, sql, "1 = 1")

	sql, _ = buildSQL(t, GroupTables, False{})
	assert.Contains(t, sql, "1 = 0")
}

func TestEmptyBooleanIdentities(t *testing.T) {
	sql, _ := buildSQL(t, GroupTables, And{})
	assert.Contains(t, sql, "1 = 1")

	sql, _ = buildSQL(t, GroupTables, Or{})
	assert.Contains(t, sql, "1 = 0")
}

func TestDisplayNameComparesLowercased(t *testing.T) {
	sql, vars := buildSQL(t, GroupTables, DisplayNameIs("eMpTy gRoup"))
	assert.Contains(t, sql, "lowercase_display_name")
	assert.Equal(t, []interface{}{"empty group"}, vars)
}

func TestIdAndUuidEquality(t *testing.T) {
	sql, vars := buildSQL(t, GroupTables, IdIs(42))
	assert.Contains(t, sql, "`groups`.`id`")
	assert.Equal(t, []interface{}{int64(42)}, vars)

	sql, vars = buildSQL(t, UserTables, UuidIs("abc-def"))
	assert.Contains(t, sql, "`users`.`uuid`")
	assert.Equal(t, []interface{}{"abc-def"}, vars)
}

func TestMembershipSubqueryPerKind(t *testing.T) {
	sql, vars := buildSQL(t, GroupTables, MemberOf(7))
	assert.Contains(t, sql, "groups.id IN (SELECT group_id FROM memberships WHERE user_id = ?)")
	assert.Equal(t, []interface{}{int64(7)}, vars)

	sql, vars = buildSQL(t, UserTables, MemberOf(3))
	assert.Contains(t, sql, "users.id IN (SELECT user_id FROM memberships WHERE group_id = ?)")
	assert.Equal(t, []interface{}{int64(3)}, vars)
}

func TestAttributeEqualityAndPresence(t *testing.T) {
	sql, vars := buildSQL(t, GroupTables, AttributeIs{Name: "gid", Value: []byte(`[512]`)})
	assert.Contains(t, sql, "SELECT entry_id FROM group_attributes WHERE attribute_name = ? AND value = ?")
	assert.Equal(t, []interface{}{"gid", []byte(`[512]`)}, vars)

	sql, vars = buildSQL(t, GroupTables, HasAttribute("gid"))
	assert.Contains(t, sql, "SELECT entry_id FROM group_attributes WHERE attribute_name = ?")
	assert.NotContains(t, sql, "AND value")
	assert.Equal(t, []interface{}{"gid"}, vars)
}

func TestSubstringPattern(t *testing.T) {
	pattern := Substring{Initial: "be", Any: []string{"sT"}, Final: "P"}.Pattern()
	assert.Equal(t, "be%st%p", pattern)

	pattern = Substring{Any: []string{"Mid"}}.Pattern()
	assert.Equal(t, "%mid%", pattern)

	pattern = Substring{Initial: "A", Final: "z"}.Pattern()
	assert.Equal(t, "a%z", pattern)
}

func TestSubstringCompilesToLike(t *testing.T) {
	sql, vars := buildSQL(t, GroupTables, DisplayNameSubstring{Initial: "be", Any: []string{"sT"}, Final: "P"})
	assert.Contains(t, sql, "LIKE")
	assert.Contains(t, sql, "lowercase_display_name")
	assert.Equal(t, []interface{}{"be%st%p"}, vars)
}

func TestNestedBooleans(t *testing.T) {
	f := And{
		Not{Expr: MemberOf(9)},
		IdIs(1),
	}
	sql, vars := buildSQL(t, GroupTables, f)
	assert.Contains(t, sql, "NOT")
	assert.Contains(t, sql, "memberships")
	assert.Contains(t, sql, "`groups`.`id`")
	assert.Equal(t, []interface{}{int64(9), int64(1)}, vars)
}
