package reports

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a report type.
type Kind string

const (
	KindEnergyConsumption     Kind = "energy-consumption"
	KindEnvironmentConditions Kind = "environment-conditions"
	KindAirQuality            Kind = "air-quality"
	KindEnergyWaste           Kind = "energy-waste"
	KindSecurityMovement      Kind = "security-movement"
)

// ErrUnknownKind indicates an unsupported report type.
var ErrUnknownKind = errors.New("reports: unknown report type")

// Mapper reshapes a raw aggregation payload into chart datasets.
type Mapper func(payload []byte) (Result, error)

// Definition is one fixed combination of endpoint, datasets and layout.
type Definition struct {
	Kind  Kind
	Path  string
	Title string
	// FileName is the deterministic download name of the PDF.
	FileName string
	// Charts lists the dataset names rendered into the document, in order.
	Charts        []string
	ImagesPerPage int
	Map           Mapper
}

// XLSXFileName returns the spreadsheet download name.
func (d Definition) XLSXFileName() string {
	name := d.FileName
	if len(name) > 4 && name[len(name)-4:] == ".pdf" {
		name = name[:len(name)-4]
	}
	return name + ".xlsx"
}

var definitions = map[Kind]Definition{
	KindEnergyConsumption: {
		Kind:          KindEnergyConsumption,
		Path:          "/reports/energy-consumption/resume/",
		Title:         "Reporte de consumo de energía eléctrica",
		FileName:      "Reporte de consumo energético.pdf",
		Charts:        []string{"power", "voltage", "current", "pf"},
		ImagesPerPage: 2,
		Map:           MapEnergyConsumption,
	},
	KindEnvironmentConditions: {
		Kind:          KindEnvironmentConditions,
		Path:          "/reports/environment-conditions/resume/",
		Title:         "Reporte de condiciones del ambiente",
		FileName:      "Reporte de condiciones del ambiente.pdf",
		Charts:        []string{"temperature", "humidity", "pressure", "noise", "internal-luminosity", "external-luminosity"},
		ImagesPerPage: 2,
		Map:           MapEnvironmentConditions,
	},
	KindAirQuality: {
		Kind:          KindAirQuality,
		Path:          "/reports/gases/resume/",
		Title:         "Reporte de calidad del aire",
		FileName:      "Reporte de calidad del aire.pdf",
		Charts:        []string{"mq2", "mq4", "mq7", "mq135"},
		ImagesPerPage: 2,
		Map:           MapAirQuality,
	},
	KindEnergyWaste: {
		Kind:          KindEnergyWaste,
		Path:          "/reports/energy-waste/resume/",
		Title:         "Reporte de uso ineficiente de energía eléctrica",
		FileName:      "Reporte de uso ineficiente de energía eléctrica.pdf",
		Charts:        []string{"energy-waste"},
		ImagesPerPage: 2,
		Map:           MapEnergyWaste,
	},
	KindSecurityMovement: {
		Kind:          KindSecurityMovement,
		Path:          "/reports/security-movement/resume/",
		Title:         "Reporte de seguridad y movimiento",
		FileName:      "Reporte de seguridad y movimiento.pdf",
		Charts:        nil,
		ImagesPerPage: 2,
		Map:           MapSecurityMovement,
	},
}

// Lookup returns the definition of a report type.
func Lookup(kind Kind) (Definition, error) {
	def, ok := definitions[kind]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return def, nil
}

// Kinds lists every supported report type.
func Kinds() []Kind {
	return []Kind{
		KindEnergyConsumption,
		KindEnvironmentConditions,
		KindAirQuality,
		KindEnergyWaste,
		KindSecurityMovement,
	}
}

func decode(payload []byte, out any) error {
	if len(payload) == 0 {
		return errors.New("reports: empty aggregation payload")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("reports: decode aggregation payload: %w", err)
	}
	return nil
}
