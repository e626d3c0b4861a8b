package registry

import (
	"fmt"
	"testing"
	"time"

	"dirstore/directory/schema"
	"dirstore/directory/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDb(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(schema.AllModels()...))
	return db
}

func names(l AttributeList) []string {
	out := make([]string, 0, len(l.Attributes))
	for _, attr := range l.Attributes {
		out = append(out, attr.Name)
	}
	return out
}

func TestBuiltinAttributesPresentAndSorted(t *testing.T) {
	db := setupDb(t)

	snapshot, err := CurrentSchema(db)
	require.NoError(t, err)

	assert.Equal(t, []string{"creation_date", "display_name", "group_id", "uuid"}, names(snapshot.GroupAttributes))
	assert.Equal(t, []string{"creation_date", "display_name", "mail", "uuid", "user_id"}, names(snapshot.UserAttributes))

	for _, attr := range snapshot.GroupAttributes.Attributes {
		assert.True(t, attr.IsHardcoded, attr.Name)
	}

	groupId, ok := snapshot.GroupAttributes.Get("group_id")
	require.True(t, ok)
	assert.Equal(t, types.TypeInteger, groupId.Type)
	assert.True(t, groupId.IsReadonly)

	mail, ok := snapshot.UserAttributes.Get("mail")
	require.True(t, ok)
	assert.True(t, mail.IsEditable)
	assert.False(t, mail.IsReadonly)
}

func TestSchemaSnapshotsAreStable(t *testing.T) {
	db := setupDb(t)

	first, err := CurrentSchema(db)
	require.NoError(t, err)
	second, err := CurrentSchema(db)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAddAttributeSortsIntoSchema(t *testing.T) {
	db := setupDb(t)

	err := AddGroupAttribute(db, CreateAttributeRequest{
		Name:       "gid",
		Type:       types.TypeInteger,
		IsVisible:  true,
		IsEditable: true,
	})
	require.NoError(t, err)

	snapshot, err := CurrentSchema(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"creation_date", "display_name", "gid", "group_id", "uuid"}, names(snapshot.GroupAttributes))

	typ, isList, ok := snapshot.GroupAttributes.AttributeType("gid")
	require.True(t, ok)
	assert.Equal(t, types.TypeInteger, typ)
	assert.False(t, isList)

	// the user schema is untouched
	_, ok = snapshot.UserAttributes.Get("gid")
	assert.False(t, ok)
}

func TestAddDuplicateAttribute(t *testing.T) {
	db := setupDb(t)

	req := CreateAttributeRequest{Name: "department", Type: types.TypeString, IsVisible: true}
	require.NoError(t, AddUserAttribute(db, req))

	err := AddUserAttribute(db, req)
	assert.ErrorIs(t, err, ErrAttributeExists)

	err = AddUserAttribute(db, CreateAttributeRequest{Name: "display_name", Type: types.TypeString})
	assert.ErrorIs(t, err, ErrAttributeExists)
}

func TestAddInvalidAttribute(t *testing.T) {
	db := setupDb(t)

	err := AddGroupAttribute(db, CreateAttributeRequest{Name: "", Type: types.TypeString})
	assert.ErrorIs(t, err, ErrInvalidAttribute)

	err = AddGroupAttribute(db, CreateAttributeRequest{Name: "x", Type: "blob"})
	assert.ErrorIs(t, err, ErrInvalidAttribute)
}

func TestDeleteAttributeRemovesStoredValues(t *testing.T) {
	db := setupDb(t)

	require.NoError(t, AddGroupAttribute(db, CreateAttributeRequest{Name: "gid", Type: types.TypeInteger}))

	group := schema.Group{
		DisplayName:          "Staff",
		LowercaseDisplayName: "staff",
		Uuid:                 "00000000-0000-0000-0000-000000000001",
		CreationDate:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(&group).Error)
	require.NoError(t, db.Create(&schema.GroupAttribute{EntryId: group.Id, Name: "gid", Value: []byte(`[512]`)}).Error)

	require.NoError(t, DeleteGroupAttribute(db, "gid"))

	snapshot, err := CurrentSchema(db)
	require.NoError(t, err)
	_, ok := snapshot.GroupAttributes.Get("gid")
	assert.False(t, ok)

	var count int64
	require.NoError(t, db.Model(&schema.GroupAttribute{}).Where("attribute_name = ?", "gid").Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteBuiltinAttribute(t *testing.T) {
	db := setupDb(t)

	err := DeleteGroupAttribute(db, "display_name")
	assert.ErrorIs(t, err, ErrAttributeReserved)

	err = DeleteUserAttribute(db, "no_such_attribute")
	assert.ErrorIs(t, err, ErrAttributeNotFound)
}

func TestParseAndApplySeed(t *testing.T) {
	db := setupDb(t)

	seed, err := ParseSeed([]byte(`
user_attributes:
  - name: department
    type: string
    editable: true
  - name: badge_photo
    type: jpeg_photo
    visible: false
group_attributes:
  - name: gid
    type: integer
`))
	require.NoError(t, err)

	require.NoError(t, ApplySeed(db, seed))
	// applying twice is a no-op, not an error
	require.NoError(t, ApplySeed(db, seed))

	snapshot, err := CurrentSchema(db)
	require.NoError(t, err)

	department, ok := snapshot.UserAttributes.Get("department")
	require.True(t, ok)
	assert.True(t, department.IsEditable)
	assert.True(t, department.IsVisible)

	photo, ok := snapshot.UserAttributes.Get("badge_photo")
	require.True(t, ok)
	assert.False(t, photo.IsVisible)
	assert.Equal(t, types.TypeJpeg, photo.Type)

	_, ok = snapshot.GroupAttributes.Get("gid")
	assert.True(t, ok)
}

func TestParseSeedRejectsUnknownType(t *testing.T) {
	_, err := ParseSeed([]byte(`
group_attributes:
  - name: gid
    type: number
`))
	assert.ErrorIs(t, err, ErrInvalidAttribute)
}
