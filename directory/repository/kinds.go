package repository

import (
	"time"

	"dirstore/directory/filter"
	"dirstore/directory/registry"
	"dirstore/directory/schema"
)

type entryModel interface {
	EntryID() int64
}

// EntryKind is the capability bundle that makes the repository generic over
// users and groups: table names for the filter compiler, the schema slice
// selector, and the entry record constructor.
type EntryKind struct {
	Name       string
	Tables     filter.Tables
	Attributes func(registry.Schema) registry.AttributeList
	HasMembers bool
	HasEmail   bool

	newEntry func(displayName, lowercaseName, uid, email string, creationDate time.Time) entryModel
}

var GroupKind = EntryKind{
	Name:       schema.KindGroup,
	Tables:     filter.GroupTables,
	Attributes: func(s registry.Schema) registry.AttributeList { return s.GroupAttributes },
	HasMembers: true,
	newEntry: func(displayName, lowercaseName, uid, email string, creationDate time.Time) entryModel {
		return &schema.Group{
			DisplayName:          displayName,
			LowercaseDisplayName: lowercaseName,
			Uuid:                 uid,
			CreationDate:         creationDate,
		}
	},
}

var UserKind = EntryKind{
	Name:       schema.KindUser,
	Tables:     filter.UserTables,
	Attributes: func(s registry.Schema) registry.AttributeList { return s.UserAttributes },
	HasEmail:   true,
	newEntry: func(displayName, lowercaseName, uid, email string, creationDate time.Time) entryModel {
		return &schema.User{
			DisplayName:          displayName,
			LowercaseDisplayName: lowercaseName,
			Uuid:                 uid,
			Email:                email,
			CreationDate:         creationDate,
		}
	},
}
