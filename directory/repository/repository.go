// Package repository implements list/get/create/update/delete for directory
// entries across the entry, attribute and membership tables.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"dirstore/directory/filter"
	"dirstore/directory/registry"
	"dirstore/directory/schema"
	"dirstore/directory/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is a fully assembled directory entry. Members holds user ids and is
// only populated for the group kind.
type Entry struct {
	Id           int64
	DisplayName  string
	CreationDate time.Time
	Uuid         string
	Email        string
	Attributes   []types.Attribute
	Members      []int64
}

type AttributeAssignment struct {
	Name   string
	Values []types.Value
}

type CreateRequest struct {
	DisplayName string
	Email       string
	Attributes  []AttributeAssignment
}

// UpdateRequest applies a partial update: nil fields are left untouched.
// Attribute names appearing multiple times in InsertAttributes are
// last-value-wins.
type UpdateRequest struct {
	Id               int64
	DisplayName      *string
	Email            *string
	DeleteAttributes []string
	InsertAttributes []AttributeAssignment
}

type Repository struct {
	db   *gorm.DB
	kind EntryKind
}

func NewGroupRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, kind: GroupKind}
}

func NewUserRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, kind: UserKind}
}

type entryRow struct {
	Id           int64
	DisplayName  string
	Uuid         string
	Email        string
	CreationDate time.Time
}

func (row entryRow) entry() Entry {
	return Entry{
		Id:           row.Id,
		DisplayName:  row.DisplayName,
		Uuid:         row.Uuid,
		Email:        row.Email,
		CreationDate: row.CreationDate,
	}
}

type attributeRow struct {
	EntryId int64  `gorm:"column:entry_id"`
	Name    string `gorm:"column:attribute_name"`
	Value   []byte `gorm:"column:value"`
}

func (r *Repository) entryColumns() []string {
	cols := []string{"id", "display_name", "uuid", "creation_date"}
	if r.kind.HasEmail {
		cols = append(cols, "email")
	}
	return cols
}

// matchedIds builds the sub-query selecting the ids of entries satisfying
// the compiled condition. Statements are single use, so a fresh one is built
// per call.
func (r *Repository) matchedIds(db *gorm.DB, cond clause.Expression) *gorm.DB {
	return db.Table(r.kind.Tables.Entries).Select("id").Where(cond)
}

// List returns the entries matching the filter (nil matches everything),
// with their members and attributes attached, sorted by display name.
//
// The entry+membership fetch and the attribute fetch are two separate reads
// outside a shared transaction, so a concurrent schema or attribute change
// between them can be observed. This matches the reference behavior; see
// DESIGN.md.
func (r *Repository) List(ctx context.Context, f filter.Expr) ([]Entry, error) {
	db := r.db.WithContext(ctx)

	if f == nil {
		f = filter.True{}
	}
	cond := filter.Compile(r.kind.Tables, f)

	var rows []entryRow
	result := db.Table(r.kind.Tables.Entries).Select(r.entryColumns()).Where(cond).Order("id").Find(&rows)
	if result.Error != nil {
		slog.Error("sql error listing entries", "kind", r.kind.Name, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}

	if r.kind.HasMembers {
		var memberships []schema.Membership
		result := db.
			Where(r.kind.Tables.MembershipOwn+" IN (?)", r.matchedIds(db, cond)).
			Order(r.kind.Tables.MembershipOwn).
			Find(&memberships)
		if result.Error != nil {
			slog.Error("sql error listing entry memberships", "kind", r.kind.Name, "error", result.Error)
			return nil, schema.ErrDbAccessFailed
		}

		i := 0
		for idx := range entries {
			for i < len(memberships) && memberships[i].GroupId < entries[idx].Id {
				i++
			}
			for i < len(memberships) && memberships[i].GroupId == entries[idx].Id {
				entries[idx].Members = append(entries[idx].Members, memberships[i].UserId)
				i++
			}
		}
	}

	snapshot, err := registry.CurrentSchema(db)
	if err != nil {
		return nil, err
	}
	attrs := r.kind.Attributes(snapshot)

	var attrRows []attributeRow
	result = db.Table(r.kind.Tables.Attributes).
		Where("entry_id IN (?)", r.matchedIds(db, cond)).
		Order("entry_id").Order("attribute_name").
		Find(&attrRows)
	if result.Error != nil {
		slog.Error("sql error listing entry attributes", "kind", r.kind.Name, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	// Both sides are sorted by entry id, so a single linear merge suffices.
	i := 0
	for idx := range entries {
		for i < len(attrRows) && attrRows[i].EntryId < entries[idx].Id {
			i++
		}
		for i < len(attrRows) && attrRows[i].EntryId == entries[idx].Id {
			attr, err := types.Deserialize(attrRows[i].Name, attrRows[i].Value, attrs)
			if err != nil {
				return nil, fmt.Errorf("%s %d: %w", r.kind.Name, entries[idx].Id, err)
			}
			entries[idx].Attributes = append(entries[idx].Attributes, attr)
			i++
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].DisplayName < entries[j].DisplayName })
	return entries, nil
}

// GetDetails fetches one entry by id with attributes ordered by name.
func (r *Repository) GetDetails(ctx context.Context, id int64) (Entry, error) {
	db := r.db.WithContext(ctx)

	var row entryRow
	result := db.Table(r.kind.Tables.Entries).Select(r.entryColumns()).Where("id = ?", id).Limit(1).Find(&row)
	if result.Error != nil {
		slog.Error("sql error fetching entry", "kind", r.kind.Name, "id", id, "error", result.Error)
		return Entry{}, schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return Entry{}, fmt.Errorf("%w: %s %d", schema.ErrEntryNotFound, r.kind.Name, id)
	}
	entry := row.entry()

	if r.kind.HasMembers {
		var memberships []schema.Membership
		result := db.Where("group_id = ?", id).Order("user_id").Find(&memberships)
		if result.Error != nil {
			slog.Error("sql error fetching entry memberships", "kind", r.kind.Name, "id", id, "error", result.Error)
			return Entry{}, schema.ErrDbAccessFailed
		}
		for _, membership := range memberships {
			entry.Members = append(entry.Members, membership.UserId)
		}
	}

	snapshot, err := registry.CurrentSchema(db)
	if err != nil {
		return Entry{}, err
	}
	attrs := r.kind.Attributes(snapshot)

	var attrRows []attributeRow
	result = db.Table(r.kind.Tables.Attributes).Where("entry_id = ?", id).Order("attribute_name").Find(&attrRows)
	if result.Error != nil {
		slog.Error("sql error fetching entry attributes", "kind", r.kind.Name, "id", id, "error", result.Error)
		return Entry{}, schema.ErrDbAccessFailed
	}
	for _, attrRow := range attrRows {
		attr, err := types.Deserialize(attrRow.Name, attrRow.Value, attrs)
		if err != nil {
			return Entry{}, fmt.Errorf("%s %d: %w", r.kind.Name, id, err)
		}
		entry.Attributes = append(entry.Attributes, attr)
	}

	return entry, nil
}

// Create inserts the entry and its attributes in one transaction. Any
// attribute name missing from the current schema aborts the whole
// transaction.
func (r *Repository) Create(ctx context.Context, req CreateRequest) (int64, error) {
	now := time.Now().UTC()
	lower := strings.ToLower(req.DisplayName)
	uid := entryUuid(req.DisplayName, now)

	var newId int64
	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		snapshot, err := registry.CurrentSchema(txn)
		if err != nil {
			return err
		}
		attrs := r.kind.Attributes(snapshot)

		var existing entryRow
		result := txn.Table(r.kind.Tables.Entries).Select("id").Where("lowercase_display_name = ?", lower).Limit(1).Find(&existing)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate display name", "kind", r.kind.Name, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: %q", schema.ErrDuplicateEntry, req.DisplayName)
		}

		record := r.kind.newEntry(req.DisplayName, lower, uid, req.Email, now)
		if result := txn.Create(record); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %q", schema.ErrDuplicateEntry, req.DisplayName)
			}
			slog.Error("sql error creating entry", "kind", r.kind.Name, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		id := record.EntryID()

		attrRows := make([]attributeRow, 0, len(req.Attributes))
		for _, assignment := range req.Attributes {
			if _, ok := attrs.Get(assignment.Name); !ok {
				return fmt.Errorf("%w: %q is not declared in the %s schema", schema.ErrSchemaViolation, assignment.Name, r.kind.Name)
			}
			value, err := types.Serialize(assignment.Values)
			if err != nil {
				return err
			}
			attrRows = append(attrRows, attributeRow{EntryId: id, Name: assignment.Name, Value: value})
		}
		if len(attrRows) > 0 {
			if result := txn.Table(r.kind.Tables.Attributes).Create(&attrRows); result.Error != nil {
				slog.Error("sql error creating entry attributes", "kind", r.kind.Name, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}

		newId = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newId, nil
}

// Update applies the partial field update and the attribute delete/upsert
// lists in one transaction. Unknown attribute names in either list abort the
// whole transaction.
func (r *Repository) Update(ctx context.Context, req UpdateRequest) error {
	return r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var existing entryRow
		result := txn.Table(r.kind.Tables.Entries).Select("id").Where("id = ?", req.Id).Limit(1).Find(&existing)
		if result.Error != nil {
			slog.Error("sql error fetching entry for update", "kind", r.kind.Name, "id", req.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s %d", schema.ErrEntryNotFound, r.kind.Name, req.Id)
		}

		snapshot, err := registry.CurrentSchema(txn)
		if err != nil {
			return err
		}
		attrs := r.kind.Attributes(snapshot)

		updates := map[string]interface{}{}
		if req.DisplayName != nil {
			updates["display_name"] = *req.DisplayName
			updates["lowercase_display_name"] = strings.ToLower(*req.DisplayName)
		}
		if req.Email != nil && r.kind.HasEmail {
			updates["email"] = *req.Email
		}
		if len(updates) > 0 {
			result := txn.Table(r.kind.Tables.Entries).Where("id = ?", req.Id).Updates(updates)
			if result.Error != nil {
				if errors.Is(result.Error, gorm.ErrDuplicatedKey) && req.DisplayName != nil {
					return fmt.Errorf("%w: %q", schema.ErrDuplicateEntry, *req.DisplayName)
				}
				slog.Error("sql error updating entry", "kind", r.kind.Name, "id", req.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}

		for _, name := range req.DeleteAttributes {
			if _, ok := attrs.Get(name); !ok {
				return fmt.Errorf("%w: %q is not declared in the %s schema", schema.ErrSchemaViolation, name, r.kind.Name)
			}
		}

		// Repeated names in one request collapse to the last value so the
		// multi-row upsert below never touches the same key twice.
		latest := map[string][]byte{}
		order := make([]string, 0, len(req.InsertAttributes))
		for _, assignment := range req.InsertAttributes {
			if _, ok := attrs.Get(assignment.Name); !ok {
				return fmt.Errorf("%w: %q is not declared in the %s schema", schema.ErrSchemaViolation, assignment.Name, r.kind.Name)
			}
			value, err := types.Serialize(assignment.Values)
			if err != nil {
				return err
			}
			if _, seen := latest[assignment.Name]; !seen {
				order = append(order, assignment.Name)
			}
			latest[assignment.Name] = value
		}

		if len(req.DeleteAttributes) > 0 {
			result := txn.Table(r.kind.Tables.Attributes).
				Where("entry_id = ? AND attribute_name IN ?", req.Id, req.DeleteAttributes).
				Delete(&attributeRow{})
			if result.Error != nil {
				slog.Error("sql error deleting entry attributes", "kind", r.kind.Name, "id", req.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}

		if len(order) > 0 {
			attrRows := make([]attributeRow, 0, len(order))
			for _, name := range order {
				attrRows = append(attrRows, attributeRow{EntryId: req.Id, Name: name, Value: latest[name]})
			}
			result := txn.Table(r.kind.Tables.Attributes).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "entry_id"}, {Name: "attribute_name"}},
					DoUpdates: clause.AssignmentColumns([]string{"value"}),
				}).
				Create(&attrRows)
			if result.Error != nil {
				slog.Error("sql error upserting entry attributes", "kind", r.kind.Name, "id", req.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}

		return nil
	})
}

// Delete removes the entry row. Attribute and membership rows go with it
// through the foreign key cascade, not application logic.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Table(r.kind.Tables.Entries).Where("id = ?", id).Delete(&entryRow{})
	if result.Error != nil {
		slog.Error("sql error deleting entry", "kind", r.kind.Name, "id", id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %d", schema.ErrEntryNotFound, r.kind.Name, id)
	}
	return nil
}

var errNotGroupKind = errors.New("memberships are only defined for the group kind")

// AddMembership links a user into a group after checking both exist.
func (r *Repository) AddMembership(ctx context.Context, groupId, userId int64) error {
	if !r.kind.HasMembers {
		return errNotGroupKind
	}
	return r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if _, err := schema.GetGroup(groupId, txn); err != nil {
			return fmt.Errorf("group %d: %w", groupId, err)
		}
		if _, err := schema.GetUser(userId, txn); err != nil {
			return fmt.Errorf("user %d: %w", userId, err)
		}

		membership := schema.Membership{GroupId: groupId, UserId: userId}
		result := txn.Clauses(clause.OnConflict{DoNothing: true}).Create(&membership)
		if result.Error != nil {
			slog.Error("sql error creating membership", "group_id", groupId, "user_id", userId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
}

func (r *Repository) RemoveMembership(ctx context.Context, groupId, userId int64) error {
	if !r.kind.HasMembers {
		return errNotGroupKind
	}
	result := r.db.WithContext(ctx).Delete(&schema.Membership{GroupId: groupId, UserId: userId})
	if result.Error != nil {
		slog.Error("sql error deleting membership", "group_id", groupId, "user_id", userId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: group %d user %d", schema.ErrMembershipNotFound, groupId, userId)
	}
	return nil
}

// entryUuid derives the stable entry uuid from the display name and
// creation time, so it never changes once assigned.
func entryUuid(displayName string, creationDate time.Time) string {
	seed := fmt.Sprintf("%s:%s", displayName, creationDate.Format(time.RFC3339Nano))
	return uuid.NewSHA1(uuid.NameSpaceX500, []byte(seed)).String()
}
