package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all diaforge server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string   `json:"listen_addr"`
	DBPath          string   `json:"db_path"`
	OutputDir       string   `json:"output_dir"`
	LogLevel        string   `json:"log_level"`
	PlantUMLJar     string   `json:"plantuml_jar"`
	JavaBin         string   `json:"java_bin"`
	RenderTimeoutS  int      `json:"render_timeout_s"`
	AgentTimeoutS   int      `json:"agent_timeout_s"`
	MaxRepairs      int      `json:"max_repairs"`
	FatalRules      []string `json:"fatal_rules"`
	IDQuery         string   `json:"id_query"`
	AgentEndpoint   string   `json:"agent_endpoint"`
	AgentModel      string   `json:"agent_model"`
	AgentAPIKey     string   `json:"agent_api_key"`
	JanitorSchedule string   `json:"janitor_schedule"`
	RetentionHours  int      `json:"retention_hours"`
	MCP             bool     `json:"mcp"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:     ":4200",
		DBPath:         filepath.Join(diaforgeDir(), "diaforge.db"),
		OutputDir:      filepath.Join(diaforgeDir(), "output"),
		LogLevel:       "info",
		PlantUMLJar:    filepath.Join(diaforgeDir(), "plantuml.jar"),
		RenderTimeoutS: 30,
		AgentTimeoutS:  60,
		MaxRepairs:     2,
		AgentEndpoint:  "https://api.openai.com/v1",
		AgentModel:     "gpt-4o-mini",
		RetentionHours: 24,
	}
}

func diaforgeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".diaforge"
	}
	return filepath.Join(home, ".diaforge")
}

func settingsPath() string {
	return filepath.Join(diaforgeDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("DIAFORGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DIAFORGE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DIAFORGE_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("DIAFORGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DIAFORGE_PLANTUML_JAR"); v != "" {
		cfg.PlantUMLJar = v
	}
	if v := os.Getenv("DIAFORGE_JAVA_BIN"); v != "" {
		cfg.JavaBin = v
	}
	if v := os.Getenv("DIAFORGE_RENDER_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RenderTimeoutS = n
		}
	}
	if v := os.Getenv("DIAFORGE_AGENT_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AgentTimeoutS = n
		}
	}
	if v := os.Getenv("DIAFORGE_MAX_REPAIRS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRepairs = n
		}
	}
	if v := os.Getenv("DIAFORGE_ID_QUERY"); v != "" {
		cfg.IDQuery = v
	}
	if v := os.Getenv("DIAFORGE_AGENT_ENDPOINT"); v != "" {
		cfg.AgentEndpoint = v
	}
	if v := os.Getenv("DIAFORGE_AGENT_MODEL"); v != "" {
		cfg.AgentModel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AgentAPIKey = v
	}
	if v := os.Getenv("DIAFORGE_AGENT_API_KEY"); v != "" {
		cfg.AgentAPIKey = v
	}
	if v := os.Getenv("DIAFORGE_JANITOR_SCHEDULE"); v != "" {
		cfg.JanitorSchedule = v
	}
	if v := os.Getenv("DIAFORGE_RETENTION_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionHours = n
		}
	}
	if v := os.Getenv("DIAFORGE_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}

	return cfg
}

func (c Config) renderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutS) * time.Second
}

func (c Config) agentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutS) * time.Second
}

func (c Config) retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
