package application

import (
	"context"
	"errors"
	"log"

	masterdata "building-monitor/internal/masterdata/domain"
)

// ReferenceService serves organization and environment reference data.
type ReferenceService struct {
	orgs   masterdata.OrganizationRepository
	envs   masterdata.EnvironmentRepository
	files  masterdata.LogoStore
	logger *log.Logger
}

// NewReferenceService constructs a reference service.
func NewReferenceService(orgs masterdata.OrganizationRepository, envs masterdata.EnvironmentRepository, files masterdata.LogoStore, logger *log.Logger) (*ReferenceService, error) {
	if orgs == nil {
		return nil, errors.New("reference service: nil organization repository")
	}
	if envs == nil {
		return nil, errors.New("reference service: nil environment repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReferenceService{orgs: orgs, envs: envs, files: files, logger: logger}, nil
}

// Organization returns the organization profile.
func (s *ReferenceService) Organization(ctx context.Context) (masterdata.Organization, error) {
	return s.orgs.GetOrganization(ctx)
}

// Environments lists selectable environments.
func (s *ReferenceService) Environments(ctx context.Context) ([]masterdata.Environment, error) {
	return s.envs.ListEnvironments(ctx)
}

// Environment resolves one environment by id.
func (s *ReferenceService) Environment(ctx context.Context, id string) (masterdata.Environment, error) {
	envs, err := s.envs.ListEnvironments(ctx)
	if err != nil {
		return masterdata.Environment{}, err
	}
	env, ok := masterdata.FindEnvironment(envs, id)
	if !ok {
		return masterdata.Environment{}, masterdata.ErrNotFound
	}
	return env, nil
}

// UpdateOrganization validates the submitted values against the profile
// form and saves the result.
func (s *ReferenceService) UpdateOrganization(ctx context.Context, values map[string]any) (masterdata.Organization, error) {
	current, err := s.orgs.GetOrganization(ctx)
	if err != nil {
		return masterdata.Organization{}, err
	}
	f := masterdata.NewOrganizationForm(current)
	f.ChangeAll(values)
	updated, err := masterdata.OrganizationFromForm(current, f)
	if err != nil {
		return masterdata.Organization{}, err
	}
	if err := s.orgs.SaveOrganization(ctx, updated); err != nil {
		return masterdata.Organization{}, err
	}
	return updated, nil
}

// Logo fetches the organization logo. A missing logo yields nil without error.
func (s *ReferenceService) Logo(ctx context.Context, org masterdata.Organization) []byte {
	if s.files == nil || org.Logo == "" {
		return nil
	}
	data, err := s.files.FetchFile(ctx, org.Logo)
	if err != nil {
		s.logger.Printf("reference: fetch logo %s: %v", org.Logo, err)
		return nil
	}
	return data
}
