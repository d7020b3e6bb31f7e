package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/weather-chat/internal/api/http"
	"github.com/i474232898/weather-chat/internal/chat"
	"github.com/i474232898/weather-chat/internal/config"
	"github.com/i474232898/weather-chat/internal/events"
	"github.com/i474232898/weather-chat/internal/fanout"
	"github.com/i474232898/weather-chat/internal/intent"
	"github.com/i474232898/weather-chat/internal/llm"
	"github.com/i474232898/weather-chat/internal/scheduler"
	"github.com/i474232898/weather-chat/internal/store"
	"github.com/i474232898/weather-chat/internal/weather"
	"github.com/i474232898/weather-chat/internal/weather/providers"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Load configuration; missing keys stop the process here.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Shared HTTP client for outbound weather calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	gateway := weather.NewGateway(cfg.WeatherTimezone, weatherProviders(cfg, httpClient)...)

	// LLM calls carry their own per-backend deadline.
	llmClient := &http.Client{}
	registry, err := buildBackends(cfg, llmClient)
	if err != nil {
		log.Fatalf("failed to register backends: %v", err)
	}

	helper, err := registry.Get(cfg.HelperBackend)
	if err != nil {
		log.Fatalf("helper backend: %v", err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL, cfg.NatsToken)
		if err != nil {
			log.WithError(err).Warn("nats unavailable, turn events disabled")
		} else {
			publisher = nc
		}
	}
	defer publisher.Close()

	policy, err := fanout.ParsePolicy(cfg.DualModePolicy)
	if err != nil {
		log.Fatalf("dual mode policy: %v", err)
	}

	orch, err := chat.New(chat.Options{
		Classifier:   intent.NewClassifier(helper),
		Resolver:     intent.NewResolver(helper, nil),
		Weather:      gateway,
		Engine:       fanout.NewEngine(),
		Publisher:    publisher,
		Backends:     registry.All(),
		Primary:      cfg.PrimaryBackend,
		Policy:       policy,
		ContextTurns: cfg.ContextTurns,
	})
	if err != nil {
		log.Fatalf("failed to build orchestrator: %v", err)
	}

	sessions := store.NewMemoryStore(cfg.SessionMaxHistory, store.Settings{
		UseWeatherAPI: cfg.UseWeatherAPI,
		DualMode:      cfg.DualMode,
	})

	// Scheduler that periodically evicts idle sessions.
	sched := scheduler.New(sessions, cfg.SessionIdleTTL, cfg.SessionSweepInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Streaming turns can outlive any fixed write deadline.
	app := fiber.New(fiber.Config{
		AppName:               "weather-chat",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.NewHandler(orch, sessions, gateway))

	go func() {
		log.WithFields(log.Fields{
			"event":    "listen",
			"port":     cfg.Port,
			"backends": len(registry.All()),
		}).Info("weather-chat started")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// weatherProviders returns the configured provider first, followed by any
// other provider whose credentials are present.
func weatherProviders(cfg *config.AppConfig, client *http.Client) []weather.Provider {
	backoff := providers.DefaultBackoff
	backoff.MaxRetries = cfg.WeatherMaxRetries

	// WEATHER_API_URL defaults to the OpenWeatherMap endpoint and only
	// overrides the primary provider's base URL.
	primaryURL := func(name string) string {
		if cfg.WeatherProvider == name {
			if name != "openweathermap" && cfg.WeatherAPIURL == providers.DefaultOpenWeatherURL {
				return ""
			}
			return cfg.WeatherAPIURL
		}
		return ""
	}

	all := map[string]weather.Provider{}
	if cfg.OpenWeatherAPIKey != "" {
		all["openweathermap"] = providers.NewOpenWeatherProvider(client, primaryURL("openweathermap"), cfg.OpenWeatherAPIKey, backoff)
	}
	if cfg.WeatherAPIKey != "" {
		all["weatherapi"] = providers.NewWeatherAPIProvider(client, primaryURL("weatherapi"), cfg.WeatherAPIKey, backoff)
	}
	if cfg.GeocoderAPIKey != "" {
		all["openmeteo"] = providers.NewOpenMeteoProvider(client, primaryURL("openmeteo"), providers.GoogleGeocoder(cfg.GeocoderAPIKey), backoff)
	}

	var provs []weather.Provider
	if p, ok := all[cfg.WeatherProvider]; ok {
		provs = append(provs, p)
	}
	for _, name := range []string{"openweathermap", "weatherapi", "openmeteo"} {
		if p, ok := all[name]; ok && name != cfg.WeatherProvider {
			provs = append(provs, p)
		}
	}
	return provs
}

func buildBackends(cfg *config.AppConfig, client *http.Client) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	backends := []*llm.Backend{
		llm.NewBackend("mistral", cfg.MistralDisplayName,
			llm.NewOpenAICompatible("mistral", client, llm.DefaultMistralURL, cfg.MistralAPIKey, cfg.MistralModel),
			llm.Options{Temperature: cfg.MistralTemperature, MaxTokens: cfg.MistralMaxTokens},
			cfg.BackendTimeout),
		llm.NewBackend("gemini", cfg.GeminiDisplayName,
			llm.NewGemini(client, llm.DefaultGeminiURL, cfg.GoogleAPIKey, cfg.GeminiModel),
			llm.Options{},
			cfg.BackendTimeout),
		llm.NewBackend("llama", cfg.LlamaDisplayName,
			llm.NewOpenAICompatible("groq", client, llm.DefaultGroqURL, cfg.GroqAPIKey, cfg.LlamaModel),
			llm.Options{Temperature: cfg.LlamaTemperature, MaxTokens: cfg.LlamaMaxTokens},
			cfg.BackendTimeout),
	}
	if cfg.AnthropicAPIKey != "" {
		backends = append(backends, llm.NewBackend("claude", cfg.ClaudeDisplayName,
			llm.NewAnthropic(client, llm.DefaultAnthropicURL, cfg.AnthropicAPIKey, cfg.ClaudeModel),
			llm.Options{},
			cfg.BackendTimeout))
	}

	for _, b := range backends {
		if err := registry.Register(b); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
