// Package registry holds the authoritative attribute schema for each entry
// kind. The schema seen by callers is the administrator defined attribute
// set merged with a fixed built in set, sorted by name. Every read returns a
// fresh immutable snapshot.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"dirstore/directory/schema"
	"dirstore/directory/types"

	"gorm.io/gorm"
)

var (
	ErrAttributeExists   = errors.New("attribute already exists in the schema")
	ErrAttributeNotFound = errors.New("attribute does not exist in the schema")
	ErrAttributeReserved = errors.New("attribute is built in and cannot be modified")
	ErrInvalidAttribute  = errors.New("invalid attribute definition")
)

type AttributeSchema struct {
	Name        string
	Type        types.AttributeType
	IsList      bool
	IsVisible   bool
	IsEditable  bool
	IsHardcoded bool
	IsReadonly  bool
}

// AttributeList is a schema slice for one entry kind, sorted by name with
// unique names.
type AttributeList struct {
	Attributes []AttributeSchema
}

func (l AttributeList) Get(name string) (AttributeSchema, bool) {
	idx := sort.Search(len(l.Attributes), func(i int) bool {
		return l.Attributes[i].Name >= name
	})
	if idx < len(l.Attributes) && l.Attributes[idx].Name == name {
		return l.Attributes[idx], true
	}
	return AttributeSchema{}, false
}

// AttributeType implements types.SchemaLookup.
func (l AttributeList) AttributeType(name string) (types.AttributeType, bool, bool) {
	attr, ok := l.Get(name)
	if !ok {
		return "", false, false
	}
	return attr.Type, attr.IsList, true
}

// Schema is a point in time snapshot of the merged attribute lists.
type Schema struct {
	UserAttributes  AttributeList
	GroupAttributes AttributeList
}

func builtinUserAttributes() []AttributeSchema {
	return []AttributeSchema{
		{Name: "user_id", Type: types.TypeString, IsVisible: true, IsHardcoded: true, IsReadonly: true},
		{Name: "creation_date", Type: types.TypeDateTime, IsVisible: true, IsHardcoded: true, IsReadonly: true},
		{Name: "mail", Type: types.TypeString, IsVisible: true, IsEditable: true, IsHardcoded: true},
		{Name: "uuid", Type: types.TypeString, IsVisible: true, IsHardcoded: true, IsReadonly: true},
		{Name: "display_name", Type: types.TypeString, IsVisible: true, IsEditable: true, IsHardcoded: true},
	}
}

func builtinGroupAttributes() []AttributeSchema {
	return []AttributeSchema{
		{Name: "group_id", Type: types.TypeInteger, IsVisible: true, IsHardcoded: true, IsReadonly: true},
		{Name: "creation_date", Type: types.TypeDateTime, IsVisible: true, IsHardcoded: true, IsReadonly: true},
		{Name: "uuid", Type: types.TypeString, IsVisible: true, IsHardcoded: true, IsReadonly: true},
		{Name: "display_name", Type: types.TypeString, IsVisible: true, IsEditable: true, IsHardcoded: true},
	}
}

// merge appends the built ins to the administrator defined base and sorts.
// It only ever runs on the raw persisted definitions, never on an already
// merged snapshot, so built ins cannot be duplicated.
func merge(defined []AttributeSchema, builtins []AttributeSchema) AttributeList {
	merged := make([]AttributeSchema, 0, len(defined)+len(builtins))
	merged = append(merged, defined...)
	merged = append(merged, builtins...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return AttributeList{Attributes: merged}
}

// CurrentSchema loads the administrator defined attributes and returns the
// merged snapshot. It can run against the pool or a transaction handle.
func CurrentSchema(db *gorm.DB) (Schema, error) {
	var definitions []schema.AttributeDefinition
	result := db.Order("name").Find(&definitions)
	if result.Error != nil {
		slog.Error("sql error loading attribute definitions", "error", result.Error)
		return Schema{}, schema.ErrDbAccessFailed
	}

	byKind := map[string][]AttributeSchema{}
	for _, def := range definitions {
		byKind[def.Kind] = append(byKind[def.Kind], AttributeSchema{
			Name:       def.Name,
			Type:       types.AttributeType(def.Type),
			IsList:     def.IsList,
			IsVisible:  def.IsVisible,
			IsEditable: def.IsEditable,
		})
	}

	return Schema{
		UserAttributes:  merge(byKind[schema.KindUser], builtinUserAttributes()),
		GroupAttributes: merge(byKind[schema.KindGroup], builtinGroupAttributes()),
	}, nil
}

type CreateAttributeRequest struct {
	Name       string
	Type       types.AttributeType
	IsList     bool
	IsVisible  bool
	IsEditable bool
}

func AddUserAttribute(db *gorm.DB, req CreateAttributeRequest) error {
	return addAttribute(db, schema.KindUser, req)
}

func AddGroupAttribute(db *gorm.DB, req CreateAttributeRequest) error {
	return addAttribute(db, schema.KindGroup, req)
}

func addAttribute(db *gorm.DB, kind string, req CreateAttributeRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidAttribute)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q for attribute %q", ErrInvalidAttribute, req.Type, req.Name)
	}

	return db.Transaction(func(txn *gorm.DB) error {
		snapshot, err := CurrentSchema(txn)
		if err != nil {
			return err
		}
		if _, ok := kindAttributes(snapshot, kind).Get(req.Name); ok {
			return fmt.Errorf("%w: %s attribute %q", ErrAttributeExists, kind, req.Name)
		}

		definition := schema.AttributeDefinition{
			Kind:       kind,
			Name:       req.Name,
			Type:       string(req.Type),
			IsList:     req.IsList,
			IsVisible:  req.IsVisible,
			IsEditable: req.IsEditable,
		}
		if result := txn.Create(&definition); result.Error != nil {
			slog.Error("sql error creating attribute definition", "kind", kind, "name", req.Name, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
}

func DeleteUserAttribute(db *gorm.DB, name string) error {
	return deleteAttribute(db, schema.KindUser, name)
}

func DeleteGroupAttribute(db *gorm.DB, name string) error {
	return deleteAttribute(db, schema.KindGroup, name)
}

// deleteAttribute removes an administrator defined attribute along with any
// stored values for it.
func deleteAttribute(db *gorm.DB, kind string, name string) error {
	return db.Transaction(func(txn *gorm.DB) error {
		snapshot, err := CurrentSchema(txn)
		if err != nil {
			return err
		}
		attr, ok := kindAttributes(snapshot, kind).Get(name)
		if !ok {
			return fmt.Errorf("%w: %s attribute %q", ErrAttributeNotFound, kind, name)
		}
		if attr.IsHardcoded {
			return fmt.Errorf("%w: %s attribute %q", ErrAttributeReserved, kind, name)
		}

		result := txn.Delete(&schema.AttributeDefinition{Kind: kind, Name: name})
		if result.Error != nil {
			slog.Error("sql error deleting attribute definition", "kind", kind, "name", name, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		result = txn.Where("attribute_name = ?", name).Delete(attributeModel(kind))
		if result.Error != nil {
			slog.Error("sql error deleting stored attribute values", "kind", kind, "name", name, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
}

func kindAttributes(s Schema, kind string) AttributeList {
	if kind == schema.KindUser {
		return s.UserAttributes
	}
	return s.GroupAttributes
}

func attributeModel(kind string) interface{} {
	if kind == schema.KindUser {
		return &schema.UserAttribute{}
	}
	return &schema.GroupAttribute{}
}
