package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Supported warehouse drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	// DBDSN overrides the DSN assembled from the fields above. For sqlite it
	// is the database file path.
	DBDSN string

	DBConnectAttempts int
	BatchSize         int
	ResetSchema       bool

	InputXLSX   string
	InputSheets []string
	StagingCSV  string

	LogLevel  string
	LogFormat string

	PushgatewayURL string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", DriverMySQL))

	return &Config{
		DBDriver:   driver,
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", defaultPort(driver)),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "online_retail"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBDSN:      getEnv("DB_DSN", ""),

		DBConnectAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 1),
		BatchSize:         getEnvInt("BATCH_SIZE", 500),
		ResetSchema:       getEnvBool("RESET_SCHEMA", true),

		InputXLSX:   getEnv("INPUT_XLSX", "data/online_retail_II.xlsx"),
		InputSheets: getEnvList("INPUT_SHEETS", []string{"Year 2009-2010", "Year 2010-2011"}),
		StagingCSV:  getEnv("STAGING_CSV", "data/online_retail_ii.csv"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
	}
}

// Validate reports the first configuration value that cannot be used.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q (want mysql, postgres or sqlite)", c.DBDriver)
	}
	if c.DBConnectAttempts < 1 {
		return fmt.Errorf("config: DB_CONNECT_ATTEMPTS must be at least 1, got %d", c.DBConnectAttempts)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if strings.TrimSpace(c.StagingCSV) == "" {
		return fmt.Errorf("config: STAGING_CSV cannot be empty")
	}
	if len(c.InputSheets) == 0 {
		return fmt.Errorf("config: INPUT_SHEETS cannot be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}

	switch c.DBDriver {
	case DriverPostgres:
		return "host=" + c.DBHost +
			" port=" + c.DBPort +
			" user=" + c.DBUser +
			" password=" + c.DBPassword +
			" dbname=" + c.DBName +
			" sslmode=" + c.DBSSLMode
	case DriverSQLite:
		return "data/" + c.DBName + ".db"
	default:
		// utf8mb4 matches the charset the warehouse was created with.
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
	}
}

// UseDriver switches the warehouse driver. The port follows the new
// driver's default unless DB_PORT is set.
func (c *Config) UseDriver(driver string) {
	c.DBDriver = strings.ToLower(driver)
	if os.Getenv("DB_PORT") == "" {
		c.DBPort = defaultPort(c.DBDriver)
	}
}

func defaultPort(driver string) string {
	if driver == DriverPostgres {
		return "5432"
	}
	return "3306"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
