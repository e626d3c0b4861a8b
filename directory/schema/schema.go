package schema

import (
	"time"
)

const (
	KindUser  = "user"
	KindGroup = "group"
)

type Group struct {
	Id int64 `gorm:"column:id;primaryKey;autoIncrement"`

	DisplayName          string `gorm:"size:255;not null"`
	LowercaseDisplayName string `gorm:"size:255;not null;uniqueIndex"`
	Uuid                 string `gorm:"size:36;not null;uniqueIndex"`

	CreationDate time.Time `gorm:"not null"`

	Attributes []GroupAttribute `gorm:"foreignKey:EntryId;constraint:OnDelete:CASCADE"`
	Members    []Membership     `gorm:"foreignKey:GroupId;constraint:OnDelete:CASCADE"`
}

type User struct {
	Id int64 `gorm:"column:id;primaryKey;autoIncrement"`

	DisplayName          string `gorm:"size:255;not null"`
	LowercaseDisplayName string `gorm:"size:255;not null;uniqueIndex"`
	Uuid                 string `gorm:"size:36;not null;uniqueIndex"`
	Email                string `gorm:"size:254;not null"`

	CreationDate time.Time `gorm:"not null"`

	Attributes  []UserAttribute `gorm:"foreignKey:EntryId;constraint:OnDelete:CASCADE"`
	Memberships []Membership    `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
}

// One row per (entry, attribute) pair. Multi valued attributes are stored as
// a single serialized collection.
type GroupAttribute struct {
	EntryId int64  `gorm:"primaryKey"`
	Name    string `gorm:"column:attribute_name;primaryKey;size:255"`
	Value   []byte `gorm:"not null"`
}

type UserAttribute struct {
	EntryId int64  `gorm:"primaryKey"`
	Name    string `gorm:"column:attribute_name;primaryKey;size:255"`
	Value   []byte `gorm:"not null"`
}

type Membership struct {
	GroupId int64 `gorm:"primaryKey"`
	UserId  int64 `gorm:"primaryKey"`

	Group *Group `gorm:"constraint:OnDelete:CASCADE"`
	User  *User  `gorm:"constraint:OnDelete:CASCADE"`
}

// AttributeDefinition is an administrator defined attribute. Built in
// attributes are merged in by the registry and never stored here.
type AttributeDefinition struct {
	Kind string `gorm:"primaryKey;size:16"`
	Name string `gorm:"primaryKey;size:255"`

	Type       string `gorm:"size:32;not null"`
	IsList     bool   `gorm:"not null;default:false"`
	IsVisible  bool   `gorm:"not null;default:true"`
	IsEditable bool   `gorm:"not null;default:true"`
}

func (g *Group) EntryID() int64 { return g.Id }
func (u *User) EntryID() int64  { return u.Id }

// AllModels lists every model for migration setup.
func AllModels() []interface{} {
	return []interface{}{
		&Group{}, &User{}, &GroupAttribute{}, &UserAttribute{},
		&Membership{}, &AttributeDefinition{},
	}
}
