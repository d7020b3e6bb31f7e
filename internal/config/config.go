package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	// ErrMissingKey is returned when required settings are absent.
	ErrMissingKey = errors.New("missing required configuration")
	// ErrInvalidValue is returned when a setting is present but unusable.
	ErrInvalidValue = errors.New("invalid configuration")
)

// AppConfig holds every setting. The key tag names the environment variable
// (or secrets.toml entry) the field is read from.
type AppConfig struct {
	MistralAPIKey   string `key:"MISTRAL_API_KEY" validate:"required"`
	GroqAPIKey      string `key:"GROQ_API_KEY" validate:"required"`
	GoogleAPIKey    string `key:"GOOGLE_API_KEY" validate:"required"`
	AnthropicAPIKey string `key:"ANTHROPIC_API_KEY"`

	MistralModel       string   `key:"MISTRAL_MODEL_NAME" validate:"required"`
	MistralDisplayName string   `key:"MISTRAL_DISPLAY_NAME" validate:"required"`
	MistralTemperature *float64 `key:"MISTRAL_TEMPERATURE" validate:"required,gte=0,lte=2"`
	MistralMaxTokens   int      `key:"MISTRAL_MAX_TOKENS" validate:"required,gt=0"`

	GeminiModel       string `key:"GEMINI_MODEL_NAME" validate:"required"`
	GeminiDisplayName string `key:"GEMINI_DISPLAY_NAME" validate:"required"`

	LlamaModel       string   `key:"LLAMA_MODEL_NAME" validate:"required"`
	LlamaDisplayName string   `key:"LLAMA_DISPLAY_NAME" validate:"required"`
	LlamaTemperature *float64 `key:"LLAMA_TEMPERATURE" validate:"required,gte=0,lte=2"`
	LlamaMaxTokens   int      `key:"LLAMA_MAX_TOKENS" validate:"required,gt=0"`

	// Claude is registered only when ANTHROPIC_API_KEY is set.
	ClaudeModel       string `key:"CLAUDE_MODEL_NAME" validate:"required_with=AnthropicAPIKey"`
	ClaudeDisplayName string `key:"CLAUDE_DISPLAY_NAME"`

	WeatherProvider   string `key:"WEATHER_PROVIDER" validate:"oneof=openweathermap weatherapi openmeteo"`
	WeatherAPIURL     string `key:"WEATHER_API_URL" validate:"required,url"`
	OpenWeatherAPIKey string `key:"OPENWEATHER_API_KEY" validate:"required_if=WeatherProvider openweathermap"`
	WeatherAPIKey     string `key:"WEATHERAPI_API_KEY" validate:"required_if=WeatherProvider weatherapi"`
	GeocoderAPIKey    string `key:"GEOCODER_API_KEY" validate:"required_if=WeatherProvider openmeteo"`
	WeatherMaxRetries int    `key:"WEATHER_MAX_RETRIES" validate:"gte=0,lte=5"`
	// WeatherTimezone groups readings by day when the provider reports no zone.
	WeatherTimezone *time.Location `key:"WEATHER_TIMEZONE"`

	HelperBackend  string `key:"HELPER_BACKEND" validate:"required"`
	PrimaryBackend string `key:"PRIMARY_BACKEND" validate:"required"`
	UseWeatherAPI  bool   `key:"USE_WEATHER_API"`
	DualMode       bool   `key:"DUAL_MODE"`
	DualModePolicy string `key:"DUAL_MODE_POLICY" validate:"oneof=sequential concurrent"`
	ContextTurns   int    `key:"CONTEXT_TURNS" validate:"gt=0"`

	BackendTimeout time.Duration `key:"BACKEND_TIMEOUT" validate:"gt=0"`
	HTTPTimeout    time.Duration `key:"HTTP_TIMEOUT" validate:"gt=0"`

	SessionIdleTTL       time.Duration `key:"SESSION_IDLE_TTL"`
	SessionSweepInterval time.Duration `key:"SESSION_SWEEP_INTERVAL"`
	SessionMaxHistory    int           `key:"SESSION_MAX_HISTORY" validate:"gte=0"`

	NatsURL   string `key:"NATS_URL"`
	NatsToken string `key:"NATS_TOKEN"`

	LogLevel string `key:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	Port     string `key:"PORT" validate:"required,numeric"`
}

var defaults = map[string]string{
	"WEATHER_PROVIDER":       "openweathermap",
	"WEATHER_API_URL":        "https://api.openweathermap.org/data/2.5/forecast",
	"WEATHER_MAX_RETRIES":    "0",
	"HELPER_BACKEND":         "mistral",
	"PRIMARY_BACKEND":        "mistral",
	"USE_WEATHER_API":        "true",
	"DUAL_MODE":              "false",
	"DUAL_MODE_POLICY":       "sequential",
	"CONTEXT_TURNS":          "5",
	"BACKEND_TIMEOUT":        "60s",
	"HTTP_TIMEOUT":           "10s",
	"SESSION_IDLE_TTL":       "30m",
	"SESSION_SWEEP_INTERVAL": "5m",
	"SESSION_MAX_HISTORY":    "0",
	"LOG_LEVEL":              "info",
	"PORT":                   "8080",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if key := f.Tag.Get("key"); key != "" {
			return key
		}
		return f.Name
	})
	return v
}

// Load reads configuration from .env, an optional secrets.toml and the
// environment, in increasing order of precedence. It fails when any required
// key is missing so the process stops before serving.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.WithField("event", "config").Infof("no .env file found or error loading it: %v", err)
	}
	return loadFrom(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("secrets")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath(".streamlit")
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.WithField("event", "config").WithError(err).Warn("cannot read secrets file")
		}
	} else {
		log.WithFields(log.Fields{"event": "config", "file": v.ConfigFileUsed()}).Info("loaded secrets file")
	}
	return v
}

func loadFrom(v *viper.Viper) (*AppConfig, error) {
	p := &parser{v: v}
	cfg := &AppConfig{
		MistralAPIKey:   p.str("MISTRAL_API_KEY"),
		GroqAPIKey:      p.str("GROQ_API_KEY"),
		GoogleAPIKey:    p.str("GOOGLE_API_KEY"),
		AnthropicAPIKey: p.str("ANTHROPIC_API_KEY"),

		MistralModel:       p.str("MISTRAL_MODEL_NAME"),
		MistralDisplayName: p.str("MISTRAL_DISPLAY_NAME"),
		MistralTemperature: p.floatVal("MISTRAL_TEMPERATURE"),
		MistralMaxTokens:   p.intVal("MISTRAL_MAX_TOKENS"),

		GeminiModel:       p.str("GEMINI_MODEL_NAME"),
		GeminiDisplayName: p.str("GEMINI_DISPLAY_NAME"),

		LlamaModel:       p.str("LLAMA_MODEL_NAME"),
		LlamaDisplayName: p.str("LLAMA_DISPLAY_NAME"),
		LlamaTemperature: p.floatVal("LLAMA_TEMPERATURE"),
		LlamaMaxTokens:   p.intVal("LLAMA_MAX_TOKENS"),

		ClaudeModel:       p.str("CLAUDE_MODEL_NAME"),
		ClaudeDisplayName: p.str("CLAUDE_DISPLAY_NAME"),

		WeatherProvider:   strings.ToLower(p.str("WEATHER_PROVIDER")),
		WeatherAPIURL:     p.str("WEATHER_API_URL"),
		OpenWeatherAPIKey: p.str("OPENWEATHER_API_KEY"),
		WeatherAPIKey:     p.str("WEATHERAPI_API_KEY"),
		GeocoderAPIKey:    p.str("GEOCODER_API_KEY"),
		WeatherMaxRetries: p.intVal("WEATHER_MAX_RETRIES"),
		WeatherTimezone:   p.zoneVal("WEATHER_TIMEZONE"),

		HelperBackend:  p.str("HELPER_BACKEND"),
		PrimaryBackend: p.str("PRIMARY_BACKEND"),
		UseWeatherAPI:  p.boolVal("USE_WEATHER_API"),
		DualMode:       p.boolVal("DUAL_MODE"),
		DualModePolicy: strings.ToLower(p.str("DUAL_MODE_POLICY")),
		ContextTurns:   p.intVal("CONTEXT_TURNS"),

		BackendTimeout: p.durationVal("BACKEND_TIMEOUT"),
		HTTPTimeout:    p.durationVal("HTTP_TIMEOUT"),

		SessionIdleTTL:       p.durationVal("SESSION_IDLE_TTL"),
		SessionSweepInterval: p.durationVal("SESSION_SWEEP_INTERVAL"),
		SessionMaxHistory:    p.intVal("SESSION_MAX_HISTORY"),

		NatsURL:   p.str("NATS_URL"),
		NatsToken: p.str("NATS_TOKEN"),

		LogLevel: strings.ToLower(p.str("LOG_LEVEL")),
		Port:     p.str("PORT"),
	}
	if cfg.ClaudeDisplayName == "" {
		cfg.ClaudeDisplayName = cfg.ClaudeModel
	}

	var missing []string
	invalid := p.invalid

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fe := range verrs {
			if strings.HasPrefix(fe.Tag(), "required") {
				if !p.failed(fe.Field()) {
					missing = append(missing, fe.Field())
				}
				continue
			}
			invalid = append(invalid, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidValue, strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// parser reads typed values and records keys it could not parse.
type parser struct {
	v       *viper.Viper
	invalid []string
	bad     map[string]bool
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) fail(key string, err error) {
	if p.bad == nil {
		p.bad = make(map[string]bool)
	}
	p.bad[key] = true
	p.invalid = append(p.invalid, fmt.Sprintf("%s: %v", key, err))
}

func (p *parser) failed(key string) bool {
	return p.bad[key]
}

func (p *parser) intVal(key string) int {
	s := p.str(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, err)
		return 0
	}
	return n
}

func (p *parser) floatVal(key string) *float64 {
	s := p.str(key)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, err)
		return nil
	}
	return &f
}

func (p *parser) boolVal(key string) bool {
	s := p.str(key)
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, err)
		return false
	}
	return b
}

func (p *parser) durationVal(key string) time.Duration {
	s := p.str(key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, err)
		return 0
	}
	return d
}

func (p *parser) zoneVal(key string) *time.Location {
	s := p.str(key)
	if s == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		p.fail(key, err)
		return time.UTC
	}
	return loc
}
