package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"dirstore/directory/types"

	"gorm.io/gorm"
	"gopkg.in/yaml.v3"
)

// Seed is the initial administrator defined schema, usually loaded from a
// YAML file shipped with the deployment.
type Seed struct {
	UserAttributes  []SeedAttribute `yaml:"user_attributes"`
	GroupAttributes []SeedAttribute `yaml:"group_attributes"`
}

type SeedAttribute struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	List     bool   `yaml:"list"`
	Visible  *bool  `yaml:"visible"`
	Editable bool   `yaml:"editable"`
}

func (a SeedAttribute) request() CreateAttributeRequest {
	visible := true
	if a.Visible != nil {
		visible = *a.Visible
	}
	return CreateAttributeRequest{
		Name:       a.Name,
		Type:       types.AttributeType(a.Type),
		IsList:     a.List,
		IsVisible:  visible,
		IsEditable: a.Editable,
	}
}

func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing schema seed: %w", err)
	}
	for _, attr := range append(append([]SeedAttribute{}, seed.UserAttributes...), seed.GroupAttributes...) {
		if !types.AttributeType(attr.Type).Valid() {
			return Seed{}, fmt.Errorf("%w: unknown type %q for seed attribute %q", ErrInvalidAttribute, attr.Type, attr.Name)
		}
	}
	return seed, nil
}

// ApplySeed inserts every seed attribute, skipping names that already exist
// so re-running a deployment is idempotent.
func ApplySeed(db *gorm.DB, seed Seed) error {
	for _, attr := range seed.UserAttributes {
		if err := AddUserAttribute(db, attr.request()); err != nil {
			if errors.Is(err, ErrAttributeExists) {
				slog.Info("skipping existing user attribute from seed", "name", attr.Name)
				continue
			}
			return err
		}
	}
	for _, attr := range seed.GroupAttributes {
		if err := AddGroupAttribute(db, attr.request()); err != nil {
			if errors.Is(err, ErrAttributeExists) {
				slog.Info("skipping existing group attribute from seed", "name", attr.Name)
				continue
			}
			return err
		}
	}
	return nil
}
