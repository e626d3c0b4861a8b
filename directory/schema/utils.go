package schema

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"
)

var (
	ErrEntryNotFound      = errors.New("entry not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrDuplicateEntry     = errors.New("an entry with this display name already exists")
	ErrSchemaViolation    = errors.New("attribute is not declared in the schema")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetGroup(groupId int64, db *gorm.DB) (Group, error) {
	var group Group

	result := db.First(&group, "id = ?", groupId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return group, ErrEntryNotFound
		}
		slog.Error("sql error in get group", "group_id", groupId, "error", result.Error)
		return group, ErrDbAccessFailed
	}

	return group, nil
}

func GetUser(userId int64, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrEntryNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetMembership(groupId, userId int64, db *gorm.DB) (Membership, error) {
	var membership Membership

	result := db.First(&membership, "group_id = ? and user_id = ?", groupId, userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return membership, ErrMembershipNotFound
		}
		slog.Error("sql error in get membership", "group_id", groupId, "user_id", userId, "error", result.Error)
		return membership, ErrDbAccessFailed
	}

	return membership, nil
}
