package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	realtime "building-monitor/internal/realtime/domain"
)

// Source kinds.
const (
	SourceNone      = "none"
	SourceHTTP      = "http"
	SourceWebsocket = "websocket"
	SourceMQTT      = "mqtt"
	SourceKafka     = "kafka"
)

const defaultDecimals = 2

// Catalog is the realtime panel configuration: push source and widgets.
type Catalog struct {
	Window  int            `yaml:"window"`
	Source  SourceConfig   `yaml:"source"`
	Widgets []WidgetConfig `yaml:"widgets"`
}

// SourceConfig selects and configures the push connection.
type SourceConfig struct {
	Kind        string   `yaml:"kind"`
	URL         string   `yaml:"url"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	TopicPrefix string   `yaml:"topic_prefix"`
	GroupID     string   `yaml:"group_id"`
	ClientID    string   `yaml:"client_id"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
}

// WidgetConfig describes one widget.
type WidgetConfig struct {
	Name       string              `yaml:"name"`
	Kind       realtime.WidgetKind `yaml:"kind"`
	Title      string              `yaml:"title"`
	Unit       string              `yaml:"unit"`
	Channel    string              `yaml:"channel"`
	Field      string              `yaml:"field"`
	Decimals   *int                `yaml:"decimals"`
	TrueLabel  string              `yaml:"true_label"`
	FalseLabel string              `yaml:"false_label"`
	Extras     []string            `yaml:"extras"`
	Window     int                 `yaml:"window"`
	Inputs     []JoinInputConfig   `yaml:"inputs"`
}

// JoinInputConfig is one column of a join widget.
type JoinInputConfig struct {
	Channel string `yaml:"channel"`
	Field   string `yaml:"field"`
	Series  string `yaml:"series"`
}

func decimals(n int) *int {
	return &n
}

// lineInputs joins one measurement of the three electrical lines. The AC
// meter reports short field names.
func lineInputs(field, acField string) []JoinInputConfig {
	return []JoinInputConfig{
		{Channel: "pzemLigthing", Field: field, Series: "Iluminación"},
		{Channel: "pzemAC", Field: acField, Series: "Aire acondicionado"},
		{Channel: "pzemDevices", Field: field, Series: "Tomacorrientes"},
	}
}

// DefaultCatalog returns the building sensor channels.
func DefaultCatalog() Catalog {
	return Catalog{
		Window: realtime.DefaultWindow,
		Source: SourceConfig{Kind: SourceHTTP},
		Widgets: []WidgetConfig{
			{Name: "temperature", Kind: realtime.KindValue, Title: "Temperatura", Unit: "°C", Channel: "tempAndHumidity", Field: "temperature", Decimals: decimals(1)},
			{Name: "humidity", Kind: realtime.KindValue, Title: "Humedad", Unit: "%", Channel: "tempAndHumidity", Field: "humidity", Decimals: decimals(1)},
			{Name: "pressure", Kind: realtime.KindValue, Title: "Presión atmosférica", Unit: "hPa", Channel: "pressureAndTemp", Field: "pressure", Decimals: decimals(1)},
			{Name: "ambient-noise", Kind: realtime.KindValue, Title: "Ruido ambiental", Unit: "dB", Channel: "ambientNoise", Field: "l"},
			{Name: "external-luminosity", Kind: realtime.KindValue, Title: "Iluminación exterior", Unit: "lx", Channel: "externalLuminosity", Field: "l"},
			{Name: "flammable-gases", Kind: realtime.KindValue, Title: "Gases inflamables", Unit: "ppm", Channel: "flammableGases", Field: "p"},
			{Name: "carbon-monoxide", Kind: realtime.KindValue, Title: "Monóxido de carbono", Unit: "ppm", Channel: "carbonMonoxide", Field: "ppm"},
			{Name: "motion", Kind: realtime.KindStatus, Title: "Movimiento", Channel: "motionDetection", Field: "m", TrueLabel: "Movimiento detectado", FalseLabel: "Sin movimiento"},
			{Name: "doors", Kind: realtime.KindStatus, Title: "Puertas", Channel: "doorsStatus", Field: "o", TrueLabel: "Puertas abiertas", FalseLabel: "Puertas cerradas"},
			{Name: "windows", Kind: realtime.KindStatus, Title: "Ventanas", Channel: "windowsStatus", Field: "areOpen", TrueLabel: "Ventanas abiertas", FalseLabel: "Ventanas cerradas"},
			{Name: "people", Kind: realtime.KindCounter, Title: "Personas", Channel: "countPeople", Field: "count"},
			{Name: "lighting-consumption", Kind: realtime.KindTrend, Title: "Consumo de iluminación", Unit: "W", Channel: "pzemLigthing", Field: "power", Extras: []string{"current", "pf", "voltage"}},
			{Name: "ac-consumption", Kind: realtime.KindTrend, Title: "Consumo de aire acondicionado", Unit: "W", Channel: "pzemAC", Field: "p", Extras: []string{"c", "pf", "v"}},
			{Name: "power-factor", Kind: realtime.KindJoin, Title: "Factor de potencia", Inputs: []JoinInputConfig{
				{Channel: "pzemLigthing", Field: "pf", Series: "Iluminación"},
				{Channel: "pzemAC", Field: "pf", Series: "Aire acondicionado"},
				{Channel: "pzemDevices", Field: "pf", Series: "Tomacorrientes"},
			}},
			{Name: "current", Kind: realtime.KindJoin, Title: "Corriente", Unit: "A", Inputs: lineInputs("current", "c")},
			{Name: "voltage", Kind: realtime.KindJoin, Title: "Voltaje", Unit: "V", Inputs: lineInputs("voltage", "v")},
			{Name: "power", Kind: realtime.KindJoin, Title: "Potencia", Unit: "W", Inputs: lineInputs("power", "p")},
		},
	}
}

// LoadCatalog loads the catalog from DASHBOARD_CONFIG when set, then applies
// environment overrides for the source.
func LoadCatalog() (Catalog, error) {
	cfg := DefaultCatalog()

	if path := os.Getenv("DASHBOARD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if kind := os.Getenv("REALTIME_SOURCE"); kind != "" {
		cfg.Source.Kind = kind
	}
	switch cfg.Source.Kind {
	case SourceWebsocket:
		cfg.Source.URL = getenvDefault("REALTIME_WS_URL", cfg.Source.URL)
	case SourceMQTT:
		if brokers := splitCSV(os.Getenv("MQTT_BROKERS")); len(brokers) > 0 {
			cfg.Source.Brokers = brokers
		}
		cfg.Source.TopicPrefix = getenvDefault("MQTT_TOPIC_PREFIX", cfg.Source.TopicPrefix)
		cfg.Source.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.Source.ClientID)
		cfg.Source.Username = getenvDefault("MQTT_USERNAME", cfg.Source.Username)
		cfg.Source.Password = getenvDefault("MQTT_PASSWORD", cfg.Source.Password)
	case SourceKafka:
		if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
			cfg.Source.Brokers = brokers
		}
		cfg.Source.Topic = getenvDefault("KAFKA_TOPIC", cfg.Source.Topic)
		cfg.Source.GroupID = getenvDefault("KAFKA_GROUP_ID", cfg.Source.GroupID)
	}
	if window := os.Getenv("REALTIME_WINDOW"); window != "" {
		n, err := strconv.Atoi(window)
		if err != nil {
			return cfg, fmt.Errorf("realtime: invalid REALTIME_WINDOW: %w", err)
		}
		cfg.Window = n
	}
	return cfg, cfg.Validate()
}

// Validate checks the source settings.
func (c Catalog) Validate() error {
	switch c.Source.Kind {
	case "", SourceNone, SourceHTTP:
	case SourceWebsocket:
		if c.Source.URL == "" {
			return errors.New("realtime: websocket source requires url")
		}
	case SourceMQTT:
		if len(c.Source.Brokers) == 0 {
			return errors.New("realtime: mqtt source requires brokers")
		}
	case SourceKafka:
		if len(c.Source.Brokers) == 0 || c.Source.Topic == "" {
			return errors.New("realtime: kafka source requires brokers and topic")
		}
	default:
		return fmt.Errorf("realtime: unknown source kind %q", c.Source.Kind)
	}
	if len(c.Widgets) == 0 {
		return errors.New("realtime: no widgets configured")
	}
	return nil
}

// Channels lists the distinct channels consumed by the widgets, in order.
func (c Catalog) Channels() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(channel string) {
		if _, ok := seen[channel]; ok || channel == "" {
			return
		}
		seen[channel] = struct{}{}
		out = append(out, channel)
	}
	for _, w := range c.Widgets {
		add(w.Channel)
		for _, in := range w.Inputs {
			add(in.Channel)
		}
	}
	return out
}

// Build constructs the widgets.
func (c Catalog) Build() ([]realtime.Widget, error) {
	out := make([]realtime.Widget, 0, len(c.Widgets))
	for _, wc := range c.Widgets {
		w, err := c.build(wc)
		if err != nil {
			return nil, fmt.Errorf("realtime: widget %q: %w", wc.Name, err)
		}
		out = append(out, w)
	}
	return out, nil
}

func (c Catalog) build(wc WidgetConfig) (realtime.Widget, error) {
	meta := realtime.Meta{Name: wc.Name, Title: wc.Title, Unit: wc.Unit}
	dec := defaultDecimals
	if wc.Decimals != nil {
		dec = *wc.Decimals
	}
	window := wc.Window
	if window <= 0 {
		window = c.Window
	}
	switch wc.Kind {
	case realtime.KindValue:
		return realtime.NewValueWidget(meta, wc.Channel, wc.Field, dec)
	case realtime.KindStatus:
		return realtime.NewStatusWidget(meta, wc.Channel, wc.Field, wc.TrueLabel, wc.FalseLabel)
	case realtime.KindCounter:
		return realtime.NewCounterWidget(meta, wc.Channel, wc.Field)
	case realtime.KindTrend:
		return realtime.NewTrendWidget(meta, wc.Channel, wc.Field, wc.Extras, dec, window)
	case realtime.KindJoin:
		inputs := make([]realtime.JoinInput, len(wc.Inputs))
		for i, in := range wc.Inputs {
			inputs[i] = realtime.JoinInput{Channel: in.Channel, Field: in.Field, Series: in.Series}
		}
		return realtime.NewJoinWidget(meta, inputs, dec, window)
	}
	return nil, fmt.Errorf("unknown kind %q", wc.Kind)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
