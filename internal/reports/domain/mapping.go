package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// number accepts JSON numbers, quoted numbers, booleans and null.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`:
		*n = 0
		return nil
	case "true":
		*n = 1
		return nil
	case "false":
		*n = 0
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		raw = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("reports: invalid number %s", string(data))
	}
	*n = number(v)
	return nil
}

func floats(in []number) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

const (
	lineAC       = "Aire acondicionado"
	lineDevices  = "Tomas de corriente"
	lineLighting = "Iluminación"

	seriesMin = "Mínimo"
	seriesMax = "Máximo"
)

type energyConsumptionPayload struct {
	Labels []string `json:"labels"`

	VoltageAC       []number `json:"averagedVoltageDataAC"`
	VoltageDevices  []number `json:"averagedVoltageDataDevices"`
	VoltageLighting []number `json:"averagedVoltageDataLighting"`

	CurrentAC       []number `json:"averagedCurrentDataAC"`
	CurrentDevices  []number `json:"averagedCurrentDataDevices"`
	CurrentLighting []number `json:"averagedCurrentDataLighting"`

	PowerAC       []number `json:"averagedPowerDataAC"`
	PowerDevices  []number `json:"averagedPowerDataDevices"`
	PowerLighting []number `json:"averagedPowerDataLighting"`

	PfAC       []number `json:"averagedPfDataAC"`
	PfDevices  []number `json:"averagedPfDataDevices"`
	PfLighting []number `json:"averagedPfDataLighting"`

	TotalAC       number `json:"totalEnergyConsumptionAC"`
	TotalDevices  number `json:"totalEnergyConsumptionDevices"`
	TotalLighting number `json:"totalEnergyConsumptionLighting"`

	HourlyAC       number `json:"hourlyEnergyConsumptionAC"`
	HourlyDevices  number `json:"hourlyEnergyConsumptionDevices"`
	HourlyLighting number `json:"hourlyEnergyConsumptionLighting"`

	Diff string `json:"diff"`
}

// MapEnergyConsumption maps the energy consumption summary into power,
// voltage, current and power factor datasets.
func MapEnergyConsumption(payload []byte) (Result, error) {
	var p energyConsumptionPayload
	if err := decode(payload, &p); err != nil {
		return Result{}, err
	}
	lines := func(name, title, unit string, ac, devices, lighting []number) Dataset {
		return Dataset{
			Name:   name,
			Title:  title,
			Unit:   unit,
			Labels: append([]string(nil), p.Labels...),
			Series: []Series{
				{Name: lineAC, Values: floats(ac)},
				{Name: lineDevices, Values: floats(devices)},
				{Name: lineLighting, Values: floats(lighting)},
			},
		}
	}
	res := Result{
		Datasets: []Dataset{
			lines("power", "Potencia (W)", "W", p.PowerAC, p.PowerDevices, p.PowerLighting),
			lines("voltage", "Tensión (V)", "V", p.VoltageAC, p.VoltageDevices, p.VoltageLighting),
			lines("current", "Corriente (A)", "A", p.CurrentAC, p.CurrentDevices, p.CurrentLighting),
			lines("pf", "Factor de potencia", "", p.PfAC, p.PfDevices, p.PfLighting),
		},
		Summary: []SummaryLine{
			{Title: lineAC, Total: float64(p.TotalAC), Hourly: float64(p.HourlyAC)},
			{Title: lineDevices, Total: float64(p.TotalDevices), Hourly: float64(p.HourlyDevices)},
			{Title: lineLighting, Total: float64(p.TotalLighting), Hourly: float64(p.HourlyLighting)},
		},
		Lapse: p.Diff,
	}
	return res, res.Validate()
}

type environmentConditionsPayload struct {
	TempAndHumidity struct {
		Labels  []string `json:"labels"`
		MinTemp []number `json:"minTemp"`
		MaxTemp []number `json:"maxTemp"`
		MinHum  []number `json:"minHum"`
		MaxHum  []number `json:"maxHum"`
	} `json:"tempAndHumidityData"`
	PressureAndTemp struct {
		Labels  []string `json:"labels"`
		MinPres []number `json:"minPres"`
		MaxPres []number `json:"maxPres"`
	} `json:"pressureAndTempData"`
	AmbientNoise struct {
		Labels       []string `json:"labels"`
		AverageNoise []number `json:"averageNoise"`
	} `json:"ambientNoiseData"`
	InternalLuminosity levelRange `json:"internalLuminosityData"`
	ExternalLuminosity levelRange `json:"externalLuminosityData"`
}

type levelRange struct {
	Labels   []string `json:"labels"`
	MinLevel []number `json:"minLevel"`
	MaxLevel []number `json:"maxLevel"`
}

func minMax(name, title, unit string, labels []string, mins, maxs []number) Dataset {
	return Dataset{
		Name:   name,
		Title:  title,
		Unit:   unit,
		Labels: append([]string(nil), labels...),
		Series: []Series{
			{Name: seriesMin, Values: floats(mins)},
			{Name: seriesMax, Values: floats(maxs)},
		},
	}
}

// MapEnvironmentConditions maps temperature, humidity, pressure, noise and
// luminosity aggregates. Each section carries its own labels.
func MapEnvironmentConditions(payload []byte) (Result, error) {
	var p environmentConditionsPayload
	if err := decode(payload, &p); err != nil {
		return Result{}, err
	}
	th := p.TempAndHumidity
	res := Result{
		Datasets: []Dataset{
			minMax("temperature", "Temperatura (°C)", "°C", th.Labels, th.MinTemp, th.MaxTemp),
			minMax("humidity", "Humedad relativa (%)", "%", th.Labels, th.MinHum, th.MaxHum),
			minMax("pressure", "Presión atmosférica (hPa)", "hPa", p.PressureAndTemp.Labels, p.PressureAndTemp.MinPres, p.PressureAndTemp.MaxPres),
			{
				Name:   "noise",
				Title:  "Ruido ambiental (dB)",
				Unit:   "dB",
				Labels: append([]string(nil), p.AmbientNoise.Labels...),
				Series: []Series{{Name: "Promedio", Values: floats(p.AmbientNoise.AverageNoise)}},
			},
			minMax("internal-luminosity", "Niveles de luminosidad interna", "lx", p.InternalLuminosity.Labels, p.InternalLuminosity.MinLevel, p.InternalLuminosity.MaxLevel),
			minMax("external-luminosity", "Niveles de luminosidad externa", "lx", p.ExternalLuminosity.Labels, p.ExternalLuminosity.MinLevel, p.ExternalLuminosity.MaxLevel),
		},
	}
	return res, res.Validate()
}

type gasPayload struct {
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	Mins   []number `json:"mins"`
	Maxs   []number `json:"maxs"`
}

type airQualityPayload struct {
	MQ2   gasPayload `json:"mq2"`
	MQ4   gasPayload `json:"mq4"`
	MQ7   gasPayload `json:"mq7"`
	MQ135 gasPayload `json:"mq135"`
}

// MapAirQuality maps the per-sensor gas concentration ranges.
func MapAirQuality(payload []byte) (Result, error) {
	var p airQualityPayload
	if err := decode(payload, &p); err != nil {
		return Result{}, err
	}
	gas := func(name, fallback string, g gasPayload) Dataset {
		title := g.Title
		if title == "" {
			title = fallback
		}
		return minMax(name, title, "ppm", g.Labels, g.Mins, g.Maxs)
	}
	res := Result{
		Datasets: []Dataset{
			gas("mq2", "Gases inflamables (MQ-2)", p.MQ2),
			gas("mq4", "Metano (MQ-4)", p.MQ4),
			gas("mq7", "Monóxido de carbono (MQ-7)", p.MQ7),
			gas("mq135", "Calidad del aire (MQ-135)", p.MQ135),
		},
	}
	return res, res.Validate()
}

type energyWastePayload struct {
	Labels          []string `json:"labels"`
	PowerAC         []number `json:"averagePowerAC"`
	PowerLighting   []number `json:"averagePowerLighting"`
	PowerDevices    []number `json:"averagePowerDevices"`
	MotionDetection []number `json:"motionDetection"`
}

// MapEnergyWaste maps average power per line next to motion detection, the
// overlap of which reveals consumption in empty rooms.
func MapEnergyWaste(payload []byte) (Result, error) {
	var p energyWastePayload
	if err := decode(payload, &p); err != nil {
		return Result{}, err
	}
	res := Result{
		Datasets: []Dataset{{
			Name:   "energy-waste",
			Title:  "Uso ineficiente de energía eléctrica",
			Unit:   "W",
			Labels: append([]string(nil), p.Labels...),
			Series: []Series{
				{Name: lineAC, Values: floats(p.PowerAC)},
				{Name: lineLighting, Values: floats(p.PowerLighting)},
				{Name: lineDevices, Values: floats(p.PowerDevices)},
				{Name: "Movimiento detectado", Values: floats(p.MotionDetection)},
			},
		}},
	}
	return res, res.Validate()
}

type securityRow struct {
	DateRange struct {
		Initial string `json:"initial"`
		Final   string `json:"final"`
	} `json:"dateRange"`
	MotionDetection struct {
		WasDetected bool   `json:"wasDetected"`
		Count       number `json:"count"`
	} `json:"motionDetection"`
	CountPeople struct {
		Initial number `json:"initial"`
		Final   number `json:"final"`
		Min     number `json:"min"`
		Max     number `json:"max"`
	} `json:"countPeople"`
	WindowsStatus struct {
		WereOpen bool `json:"wereOpen"`
	} `json:"windowsStatus"`
	DoorsStatus struct {
		WereOpen bool `json:"wereOpen"`
	} `json:"doorsStatus"`
	Warning struct {
		ShowWarning bool `json:"showWarning"`
	} `json:"warning"`
}

// SecurityColumns are the table headers of the security movement report.
var SecurityColumns = []string{"DESDE", "HASTA", "DETECTADO", "MOVIMIENTOS", "INICIAL", "FINAL", "MÍNIMO", "MÁXIMO", "PUERTAS", "VENTANAS"}

// MapSecurityMovement maps per-interval movement rows. Rows may arrive as an
// array or as an object keyed by interval; objects are ordered by start time.
func MapSecurityMovement(payload []byte) (Result, error) {
	var p struct {
		Data json.RawMessage `json:"data"`
	}
	if err := decode(payload, &p); err != nil {
		return Result{}, err
	}
	rows, err := securityRows(p.Data)
	if err != nil {
		return Result{}, err
	}

	table := &Table{Columns: append([]string(nil), SecurityColumns...)}
	movements := Dataset{Name: "movements", Title: "Movimientos detectados", Series: []Series{{Name: "Movimientos"}}}
	occupancy := Dataset{Name: "occupancy", Title: "Personas en el ambiente", Series: []Series{{Name: seriesMin}, {Name: seriesMax}}}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.DateRange.Initial,
			row.DateRange.Final,
			yesNo(row.MotionDetection.WasDetected),
			formatNumber(float64(row.MotionDetection.Count)),
			formatNumber(float64(row.CountPeople.Initial)),
			formatNumber(float64(row.CountPeople.Final)),
			formatNumber(float64(row.CountPeople.Min)),
			formatNumber(float64(row.CountPeople.Max)),
			openClosed(row.DoorsStatus.WereOpen),
			openClosed(row.WindowsStatus.WereOpen),
		})
		table.Flagged = append(table.Flagged, row.Warning.ShowWarning)
		movements.Labels = append(movements.Labels, row.DateRange.Initial)
		movements.Series[0].Values = append(movements.Series[0].Values, float64(row.MotionDetection.Count))
		occupancy.Labels = append(occupancy.Labels, row.DateRange.Initial)
		occupancy.Series[0].Values = append(occupancy.Series[0].Values, float64(row.CountPeople.Min))
		occupancy.Series[1].Values = append(occupancy.Series[1].Values, float64(row.CountPeople.Max))
	}
	if movements.Labels == nil {
		movements.Labels = []string{}
		occupancy.Labels = []string{}
		movements.Series[0].Values = []float64{}
		occupancy.Series[0].Values = []float64{}
		occupancy.Series[1].Values = []float64{}
	}
	res := Result{Datasets: []Dataset{movements, occupancy}, Table: table}
	return res, res.Validate()
}

func securityRows(raw json.RawMessage) ([]securityRow, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var rows []securityRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("reports: decode security rows: %w", err)
		}
		return rows, nil
	}
	var keyed map[string]securityRow
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("reports: decode security rows: %w", err)
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keyed[keys[i]].DateRange.Initial, keyed[keys[j]].DateRange.Initial
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	rows := make([]securityRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, keyed[k])
	}
	return rows, nil
}

func yesNo(v bool) string {
	if v {
		return "SI"
	}
	return "NO"
}

func openClosed(v bool) string {
	if v {
		return "Abiertas"
	}
	return "Cerradas"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
