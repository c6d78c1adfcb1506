package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrStoreUnavailable        = errors.New("durable store unavailable")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrModelUnavailable        = errors.New("model unavailable")
	ErrConfigMissing           = errors.New("configuration missing")
)

// ConfigMissingError names the setting an operation needed but did not find.
type ConfigMissingError struct {
	Setting string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("configuration missing: %s is not set", e.Setting)
}

func (e *ConfigMissingError) Is(target error) bool {
	return target == ErrConfigMissing
}

func MissingConfig(setting string) error {
	return &ConfigMissingError{Setting: setting}
}
