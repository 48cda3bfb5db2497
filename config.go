package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all server configuration.
// Priority (lowest → highest): defaults < .env file < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Server
	DB   string `json:"db"`   // sqlite data source
	Dev  bool   `json:"dev"`  // dev mode: debug logging, db dumps after transitions
	Addr string `json:"addr"` // HTTP listen address

	// Logging (extended diagnostics, off by default)
	LogOutputDir string `json:"log_output_dir"`
	LogRequests  bool   `json:"log_requests"`
	LogDB        bool   `json:"log_db"`
	LogWS        bool   `json:"log_ws"`
	LogDebug     bool   `json:"log_debug"`

	// Game rules
	NightLength         time.Duration `json:"night_length"`
	AnnouncementsLength time.Duration `json:"announcements_length"`
	VotingLength        time.Duration `json:"voting_length"`
	TrialLength         time.Duration `json:"trial_length"`
	TrialResultsLength  time.Duration `json:"trial_results_length"`
	MinPlayers          int           `json:"min_players"`
	InactivityLimit     int           `json:"inactivity_limit"`
	InactivityWarning   int           `json:"inactivity_warning"`
	RoleList            []string      `json:"role_list"` // used when the host starts without one
	Seed                uint64        `json:"seed"`      // 0 = random

	// AI Storyteller
	StorytellerProvider    string        `json:"storyteller_provider"`    // ollama | openai | claude | gemini | groq | openai-compatible
	StorytellerModel       string        `json:"storyteller_model"`       // model name
	StorytellerOllamaURL   string        `json:"storyteller_ollama_url"`  // Ollama server URL
	StorytellerURL         string        `json:"storyteller_url"`         // base URL for openai-compatible
	StorytellerAPIKey      string        `json:"storyteller_api_key"`     // API key for openai-compatible and groq
	StorytellerTemperature string        `json:"storyteller_temperature"` // float 0-1 as string
	StorytellerTimeout     time.Duration `json:"storyteller_timeout"`
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		OutputDir:   cfg.LogOutputDir,
		LogRequests: cfg.LogRequests,
		LogDB:       cfg.LogDB,
		LogWS:       cfg.LogWS,
		Debug:       cfg.LogDebug || cfg.Dev,
	}
}

func (cfg AppConfig) sessionOptions() SessionOptions {
	opts := DefaultSessionOptions()
	opts.MinPlayers = cfg.MinPlayers
	opts.InactivityLimit = cfg.InactivityLimit
	opts.InactivityWarning = cfg.InactivityWarning
	opts.Seed = cfg.Seed
	return opts
}

// phaseLength is how long the scheduler waits in a phase
func (cfg AppConfig) phaseLength(phase Phase, sub Subphase) time.Duration {
	if phase == PhaseNight {
		return cfg.NightLength
	}
	switch sub {
	case SubAnnouncements:
		return cfg.AnnouncementsLength
	case SubVoting:
		return cfg.VotingLength
	case SubTrial:
		return cfg.TrialLength
	}
	return cfg.TrialResultsLength
}

func defaultConfig() AppConfig {
	return AppConfig{
		DB:                   "file::memory:?cache=shared",
		Addr:                 ":8080",
		NightLength:          5 * time.Minute,
		AnnouncementsLength:  2 * time.Minute,
		VotingLength:         7 * time.Minute,
		TrialLength:          5 * time.Minute,
		TrialResultsLength:   30 * time.Second,
		MinPlayers:           4,
		InactivityLimit:      6,
		InactivityWarning:    3,
		StorytellerOllamaURL: "http://localhost:11434",
		StorytellerTimeout:   30 * time.Second,
	}
}

// envPrefix namespaces every environment variable
const envPrefix = "MAFIA_"

// loadConfig builds a config by layering: defaults → .env → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after parsing.
func loadConfig(configPath string) AppConfig {
	cfg := defaultConfig()

	// Layer 1: .env file, which never overrides variables already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Config: failed to load .env: %v", err)
	}

	// Layer 2: env vars
	env := func(key string) string { return os.Getenv(envPrefix + key) }
	envBool := func(key string) (val bool, set bool) {
		v := env(key)
		if v == "" {
			return false, false
		}
		return v == "1" || v == "true" || v == "yes", true
	}
	envDur := func(key string, dst *time.Duration) {
		if v := env(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			} else {
				log.Printf("Config: invalid %s%s %q: %v", envPrefix, key, v, err)
			}
		}
	}
	envInt := func(key string, dst *int) {
		if v := env(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				log.Printf("Config: invalid %s%s %q: %v", envPrefix, key, v, err)
			}
		}
	}

	if v := env("DB"); v != "" {
		cfg.DB = v
	}
	if v, ok := envBool("DEV"); ok {
		cfg.Dev = v
	}
	if v := env("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := env("LOG_OUTPUT_DIR"); v != "" {
		cfg.LogOutputDir = v
	}
	if v, ok := envBool("LOG_REQUESTS"); ok {
		cfg.LogRequests = v
	}
	if v, ok := envBool("LOG_DB"); ok {
		cfg.LogDB = v
	}
	if v, ok := envBool("LOG_WS"); ok {
		cfg.LogWS = v
	}
	if v, ok := envBool("LOG_DEBUG"); ok {
		cfg.LogDebug = v
	}
	envDur("NIGHT_LENGTH", &cfg.NightLength)
	envDur("ANNOUNCEMENTS_LENGTH", &cfg.AnnouncementsLength)
	envDur("VOTING_LENGTH", &cfg.VotingLength)
	envDur("TRIAL_LENGTH", &cfg.TrialLength)
	envDur("TRIAL_RESULTS_LENGTH", &cfg.TrialResultsLength)
	envInt("MIN_PLAYERS", &cfg.MinPlayers)
	envInt("INACTIVITY_LIMIT", &cfg.InactivityLimit)
	envInt("INACTIVITY_WARNING", &cfg.InactivityWarning)
	if v := env("ROLE_LIST"); v != "" {
		cfg.RoleList = splitRoleList(v)
	}
	if v := env("SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := env("STORYTELLER_PROVIDER"); v != "" {
		cfg.StorytellerProvider = v
	}
	if v := env("STORYTELLER_MODEL"); v != "" {
		cfg.StorytellerModel = v
	}
	if v := env("STORYTELLER_OLLAMA_URL"); v != "" {
		cfg.StorytellerOllamaURL = v
	}
	if v := env("STORYTELLER_URL"); v != "" {
		cfg.StorytellerURL = v
	}
	if v := env("STORYTELLER_API_KEY"); v != "" {
		cfg.StorytellerAPIKey = v
	}
	if v := env("STORYTELLER_TEMPERATURE"); v != "" {
		cfg.StorytellerTemperature = v
	}
	envDur("STORYTELLER_TIMEOUT", &cfg.StorytellerTimeout)

	// Layer 3: JSON config file, only fields present in the file override env vars
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			log.Printf("Config: failed to parse %s: %v", configPath, err)
		} else {
			applyJSONOverlay(&cfg, overlay)
			log.Printf("Config: loaded from %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", configPath, err)
	}

	return cfg
}

// splitRoleList parses "Mafioso, Doctor, Any" into identifiers
func splitRoleList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
// Durations are written as strings such as "5m" or "30s".
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) {
	str := func(key string, dst *string) {
		if v, ok := m[key]; ok {
			json.Unmarshal(v, dst)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := m[key]; ok {
			json.Unmarshal(v, dst)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := m[key]; ok {
			json.Unmarshal(v, dst)
		}
	}
	duration := func(key string, dst *time.Duration) {
		var s string
		str(key, &s)
		if s == "" {
			return
		}
		if d, err := time.ParseDuration(s); err == nil {
			*dst = d
		} else {
			log.Printf("Config: invalid %s %q: %v", key, s, err)
		}
	}

	str("db", &cfg.DB)
	boolean("dev", &cfg.Dev)
	str("addr", &cfg.Addr)
	str("log_output_dir", &cfg.LogOutputDir)
	boolean("log_requests", &cfg.LogRequests)
	boolean("log_db", &cfg.LogDB)
	boolean("log_ws", &cfg.LogWS)
	boolean("log_debug", &cfg.LogDebug)
	duration("night_length", &cfg.NightLength)
	duration("announcements_length", &cfg.AnnouncementsLength)
	duration("voting_length", &cfg.VotingLength)
	duration("trial_length", &cfg.TrialLength)
	duration("trial_results_length", &cfg.TrialResultsLength)
	integer("min_players", &cfg.MinPlayers)
	integer("inactivity_limit", &cfg.InactivityLimit)
	integer("inactivity_warning", &cfg.InactivityWarning)
	if v, ok := m["role_list"]; ok {
		json.Unmarshal(v, &cfg.RoleList)
	}
	if v, ok := m["seed"]; ok {
		json.Unmarshal(v, &cfg.Seed)
	}
	str("storyteller_provider", &cfg.StorytellerProvider)
	str("storyteller_model", &cfg.StorytellerModel)
	str("storyteller_ollama_url", &cfg.StorytellerOllamaURL)
	str("storyteller_url", &cfg.StorytellerURL)
	str("storyteller_api_key", &cfg.StorytellerAPIKey)
	str("storyteller_temperature", &cfg.StorytellerTemperature)
	duration("storyteller_timeout", &cfg.StorytellerTimeout)
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	fs                     *flag.FlagSet
	configPath             *string
	db                     *string
	dev                    *bool
	addr                   *string
	logOutputDir           *string
	logRequests            *bool
	logDB                  *bool
	logWS                  *bool
	logDebug               *bool
	nightLength            *time.Duration
	votingLength           *time.Duration
	trialLength            *time.Duration
	minPlayers             *int
	roleList               *string
	seed                   *uint64
	storytellerProvider    *string
	storytellerModel       *string
	storytellerURL         *string
	storytellerAPIKey      *string
	storytellerTemperature *string
}

// registerFlags registers all CLI flags on fs and returns pointers to their values.
// Parse fs after this, then applyTo to layer them over the loaded config.
func registerFlags(fs *flag.FlagSet) flagValues {
	return flagValues{
		fs:                     fs,
		configPath:             fs.String("config", "config.json", "path to JSON config file"),
		db:                     fs.String("db", "", "sqlite data source"),
		dev:                    fs.Bool("dev", false, "enable development mode (debug logging, db dumps)"),
		addr:                   fs.String("addr", "", "HTTP listen address (e.g. :8080)"),
		logOutputDir:           fs.String("log-output-dir", "", "directory for extended log files"),
		logRequests:            fs.Bool("log-requests", false, "log HTTP requests"),
		logDB:                  fs.Bool("log-db", false, "log database dumps"),
		logWS:                  fs.Bool("log-ws", false, "log WebSocket messages"),
		logDebug:               fs.Bool("log-debug", false, "enable debug logging"),
		nightLength:            fs.Duration("night-length", 0, "length of a night"),
		votingLength:           fs.Duration("voting-length", 0, "length of the voting subphase"),
		trialLength:            fs.Duration("trial-length", 0, "length of a trial"),
		minPlayers:             fs.Int("min-players", 0, "players needed to start"),
		roleList:               fs.String("role-list", "", "default comma separated role identifiers"),
		seed:                   fs.Uint64("seed", 0, "random seed (0 = random)"),
		storytellerProvider:    fs.String("storyteller-provider", "", "AI storyteller provider (ollama|openai|claude|gemini|groq|openai-compatible)"),
		storytellerModel:       fs.String("storyteller-model", "", "AI storyteller model name"),
		storytellerURL:         fs.String("storyteller-url", "", "base URL for openai-compatible provider"),
		storytellerAPIKey:      fs.String("storyteller-api-key", "", "API key for storyteller provider"),
		storytellerTemperature: fs.String("storyteller-temperature", "", "sampling temperature 0-1"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(cfg *AppConfig) {
	fv.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DB = *fv.db
		case "dev":
			cfg.Dev = *fv.dev
		case "addr":
			cfg.Addr = *fv.addr
		case "log-output-dir":
			cfg.LogOutputDir = *fv.logOutputDir
		case "log-requests":
			cfg.LogRequests = *fv.logRequests
		case "log-db":
			cfg.LogDB = *fv.logDB
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "night-length":
			cfg.NightLength = *fv.nightLength
		case "voting-length":
			cfg.VotingLength = *fv.votingLength
		case "trial-length":
			cfg.TrialLength = *fv.trialLength
		case "min-players":
			cfg.MinPlayers = *fv.minPlayers
		case "role-list":
			cfg.RoleList = splitRoleList(*fv.roleList)
		case "seed":
			cfg.Seed = *fv.seed
		case "storyteller-provider":
			cfg.StorytellerProvider = *fv.storytellerProvider
		case "storyteller-model":
			cfg.StorytellerModel = *fv.storytellerModel
		case "storyteller-url":
			cfg.StorytellerURL = *fv.storytellerURL
		case "storyteller-api-key":
			cfg.StorytellerAPIKey = *fv.storytellerAPIKey
		case "storyteller-temperature":
			cfg.StorytellerTemperature = *fv.storytellerTemperature
		}
	})
}
