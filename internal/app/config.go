package app

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type HeaderConfig struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

type Config struct {
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`

	API struct {
		RequiredHeaders []HeaderConfig `toml:"required_headers"`
	} `toml:"api"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Cache struct {
		RedisURL string `toml:"redis_url"`
		Channel  string `toml:"channel"`
	} `toml:"cache"`

	Reminder struct {
		BotToken    string           `toml:"bot_token"`
		Schedule    string           `toml:"schedule"`
		WindowHours int              `toml:"window_hours"`
		Chats       map[string]int64 `toml:"chats"`
	} `toml:"reminder"`

	GSheet []GSheetConfig `toml:"gsheet"`
}

type GSheetConfig struct {
	CredentialsPath string `toml:"credentials_path"`
	SheetID         string `toml:"sheet_id"`
	SheetName       string `toml:"sheet_name"`
	Schedule        string `toml:"schedule"`
}

const (
	defaultMigrationsDir  = "./migrations"
	defaultChannel        = "missionboard:invalidate"
	defaultReminderWindow = 24
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(path, data)
}

// ParseConfig decodes TOML config content and fills in defaults.
func ParseConfig(path string, data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("Server port is not specified in config, use a value like :9999")
	}
	if config.Database.DSN == "" {
		return nil, fmt.Errorf("Database dsn is not specified in config")
	}
	if config.Database.MigrationsDir == "" {
		config.Database.MigrationsDir = defaultMigrationsDir
	}
	if config.Cache.Channel == "" {
		config.Cache.Channel = defaultChannel
	}
	if config.Reminder.WindowHours <= 0 {
		config.Reminder.WindowHours = defaultReminderWindow
	}

	logger.Debug.Printf("Loaded reminder config: schedule=%q window=%dh chats=%d",
		config.Reminder.Schedule, config.Reminder.WindowHours, len(config.Reminder.Chats))

	return &config, nil
}
