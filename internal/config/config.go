// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/constants"
	"rideguardian/internal/utils"
)

// Config хранит все конфигурационные параметры процесса.
// Настройки тенанта (расход топлива, ставки, лимиты правил) лежат в таблице config.
type Config struct {
	AppEnv   string
	AppMode  string
	Port     string
	LogLevel string
	Location *time.Location

	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	MapsAPIKey     string
	MappingTimeout time.Duration

	WorkerCount int
	ExportDir   string

	APITokenHash       string
	DownloadSigningKey []byte

	TelegramToken string
	NotifyChatID  int64
}

// LoadConfig загружает конфигурацию из переменных окружения.
// Файл .env (если есть) должен быть загружен до вызова.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        os.Getenv("ENV"),
		AppMode:       strings.ToLower(os.Getenv("APP_MODE")),
		Port:          os.Getenv("PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		DBDriver:      strings.ToLower(os.Getenv("DB_DRIVER")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
		ExportDir:     os.Getenv("EXPORT_DIR"),
		APITokenHash:  os.Getenv("API_TOKEN_HASH"),
		TelegramToken: os.Getenv("TELEGRAM_APITOKEN"),
	}

	if cfg.AppMode != constants.APP_MODE_MULTI {
		cfg.AppMode = constants.APP_MODE_SINGLE
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	tz := os.Getenv("TIMEZONE")
	if tz == "" {
		tz = "Europe/Berlin"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("Предупреждение: неизвестный часовой пояс TIMEZONE='%s': %v. Используется локальное время.", tz, err)
		loc = time.Local
	}
	cfg.Location = loc

	// Без DATABASE_URL работаем на встроенной sqlite.
	if cfg.DBDriver == "" {
		if cfg.DatabaseURL != "" {
			cfg.DBDriver = "postgres"
		} else {
			cfg.DBDriver = "sqlite"
		}
	}
	if cfg.DBDriver == "sqlite" && cfg.SQLitePath == "" {
		cfg.SQLitePath = "rideguardian.db"
		log.Printf("Предупреждение: SQLITE_PATH не установлен, используется '%s'.", cfg.SQLitePath)
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		log.Println("Критическая ошибка: DB_DRIVER=postgres, но DATABASE_URL не установлен.")
	}

	cfg.MapsAPIKey = os.Getenv("MAPS_API_KEY")
	if cfg.MapsAPIKey == "" {
		if enc := os.Getenv("MAPS_API_KEY_ENC"); enc != "" {
			if errKey := utils.InitEncryptionKey("CONFIG_ENCRYPTION_KEY_HEX"); errKey != nil {
				return nil, errKey
			}
			plain, errDec := utils.DecryptSecret(enc)
			if errDec != nil {
				log.Printf("Предупреждение: не удалось расшифровать MAPS_API_KEY_ENC: %v. Расстояния будут оцениваться.", errDec)
			} else {
				cfg.MapsAPIKey = plain
			}
		}
	}
	if cfg.MapsAPIKey == "" {
		log.Println("Предупреждение: ключ картографического сервиса не задан. Расстояния будут оцениваться.")
	}

	cfg.MappingTimeout = constants.MAPPING_TIMEOUT
	if raw := os.Getenv("MAPPING_TIMEOUT_SECONDS"); raw != "" {
		sec, errParse := strconv.ParseFloat(raw, 64)
		if errParse != nil || sec <= 0 {
			log.Printf("Предупреждение: некорректное значение MAPPING_TIMEOUT_SECONDS ('%s'). Используется %v.", raw, cfg.MappingTimeout)
		} else {
			cfg.MappingTimeout = time.Duration(sec * float64(time.Second))
		}
	}

	cfg.WorkerCount = 3
	if raw := os.Getenv("WORKER_COUNT"); raw != "" {
		n, errParse := strconv.Atoi(raw)
		if errParse != nil || n < 1 {
			log.Printf("Предупреждение: некорректное значение WORKER_COUNT ('%s'). Используется %d.", raw, cfg.WorkerCount)
		} else {
			cfg.WorkerCount = n
		}
	}

	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(os.TempDir(), "rideguardian-exports")
		log.Printf("Предупреждение: EXPORT_DIR не установлен, используется '%s'.", cfg.ExportDir)
	}

	if key := os.Getenv("DOWNLOAD_SIGNING_KEY"); key != "" {
		cfg.DownloadSigningKey = []byte(key)
	} else {
		cfg.DownloadSigningKey = []byte(utils.GenerateUUID())
		log.Println("Предупреждение: DOWNLOAD_SIGNING_KEY не установлен, ссылки на выгрузки действуют до перезапуска.")
	}

	if cfg.APITokenHash == "" && cfg.AppMode == constants.APP_MODE_MULTI {
		log.Println("Предупреждение: API_TOKEN_HASH не установлен, API доступно без авторизации.")
	}

	if cfg.TelegramToken != "" {
		cfg.NotifyChatID, err = strconv.ParseInt(os.Getenv("NOTIFY_CHAT_ID"), 10, 64)
		if err != nil {
			log.Printf("Предупреждение: не удалось прочитать NOTIFY_CHAT_ID: %v. Уведомления отключены.", err)
			cfg.NotifyChatID = 0
		}
	}

	log.Println("Конфигурация загружена.")
	return cfg, nil
}

// IsDev - режим разработки (подробные логи Telegram API).
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// DSN возвращает строку подключения выбранного драйвера.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

// ApplyLogLevel настраивает уровень логирования logrus.
func (c *Config) ApplyLogLevel() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Printf("Предупреждение: неизвестный LOG_LEVEL '%s', используется info.", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
