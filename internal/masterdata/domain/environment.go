package masterdata

import (
	"context"
	"errors"
)

// Environment is a monitored room or area selectable in report queries.
type Environment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Validate checks environment invariants.
func (e Environment) Validate() error {
	if e.ID == "" {
		return errors.New("environment: empty id")
	}
	if e.Name == "" {
		return errors.New("environment: empty name")
	}
	return nil
}

// EnvironmentRepository lists environments.
type EnvironmentRepository interface {
	ListEnvironments(ctx context.Context) ([]Environment, error)
}

// FindEnvironment returns the environment with id.
func FindEnvironment(envs []Environment, id string) (Environment, bool) {
	for _, e := range envs {
		if e.ID == id {
			return e, true
		}
	}
	return Environment{}, false
}
