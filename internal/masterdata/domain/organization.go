package masterdata

import (
	"context"
	"errors"
	"strings"

	"building-monitor/internal/form"
)

// ErrNotFound indicates missing reference data.
var ErrNotFound = errors.New("masterdata: not found")

// Organization is the identity printed on report headers.
type Organization struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	CityID   string `json:"cityId"`
	CityName string `json:"cityName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Webpage  string `json:"webpage"`
	// Logo is a path on the backend file endpoint.
	Logo string `json:"logo"`
}

// Organization form messages.
const (
	MessageNameRequired    = "El nombre es requerido"
	MessageAddressRequired = "La dirección es requerida"
	MessageCityRequired    = "La ciudad es requerida"
	MessageEmailRequired   = "El correo electrónico es requerido"
	MessageEmailInvalid    = "El correo electrónico no es válido"
	MessagePhoneRequired   = "El teléfono es requerido"
	MessageWebpageRequired = "La página web es requerida"
	MessageLogoRequired    = "El logo es requerido"
)

// NewOrganizationForm returns the profile form seeded with org.
func NewOrganizationForm(org Organization) *form.Form {
	return form.New(
		map[string]any{
			"name":    org.Name,
			"address": org.Address,
			"cityId":  org.CityID,
			"email":   org.Email,
			"phone":   org.Phone,
			"webpage": org.Webpage,
			"logo":    org.Logo,
		},
		map[string]form.Rule{
			"name":    form.Required(MessageNameRequired),
			"address": form.Required(MessageAddressRequired),
			"cityId":  form.Required(MessageCityRequired),
			"email":   form.Contains("@", MessageEmailInvalid),
			"phone":   form.Required(MessagePhoneRequired),
			"webpage": form.Required(MessageWebpageRequired),
			"logo":    form.Required(MessageLogoRequired),
		},
	)
}

// ValidationError carries the first failing form message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "masterdata: " + e.Message
}

// OrganizationFromForm applies valid form values onto base.
func OrganizationFromForm(base Organization, f *form.Form) (Organization, error) {
	if f == nil {
		return Organization{}, errors.New("masterdata: nil form")
	}
	if !f.Valid() {
		return Organization{}, &ValidationError{Message: f.FirstMessage()}
	}
	org := base
	org.Name = f.String("name")
	org.Address = f.String("address")
	if city := f.String("cityId"); city != base.CityID {
		org.CityID = city
		org.CityName = ""
	}
	org.Email = f.String("email")
	org.Phone = f.String("phone")
	org.Webpage = f.String("webpage")
	org.Logo = f.String("logo")
	return org, org.Validate()
}

// Validate checks organization invariants.
func (o Organization) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("organization: empty id")
	}
	if strings.TrimSpace(o.Name) == "" {
		return errors.New("organization: empty name")
	}
	return nil
}

// OrganizationRepository reads and updates the organization profile.
type OrganizationRepository interface {
	GetOrganization(ctx context.Context) (Organization, error)
	SaveOrganization(ctx context.Context, org Organization) error
}

// LogoStore retrieves stored files by path.
type LogoStore interface {
	FetchFile(ctx context.Context, path string) ([]byte, error)
}
