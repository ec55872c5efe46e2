package cmd

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "cvsift"
)

type Config struct {
	Database *DatabaseConfig `mapstructure:"database"`
	Storage  *StorageConfig  `mapstructure:"storage"`
	Gmail    *GmailConfig    `mapstructure:"gmail"`
	AI       *AIConfig       `mapstructure:"ai"`
	Sheets   *SheetsConfig   `mapstructure:"sheets"`
}

type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn-file"`
}

type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type GmailConfig struct {
	CredentialsFile   string  `mapstructure:"credentials-file"`
	TokenFile         string  `mapstructure:"token-file"`
	User              string  `mapstructure:"user"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
}

type AIConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	BaseURL      string `mapstructure:"base-url"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type SheetsConfig struct {
	CredentialsFile string `mapstructure:"credentials-file"`
	SpreadsheetID   string `mapstructure:"spreadsheet-id"`
	Tab             string `mapstructure:"tab"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cvsift pulls CV attachments from a mailbox, classifies them and matches candidates to open positions",
	}
)

// Execute executes the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cvsift.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().Int64P("team", "t", 1, "team the command works on")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("team", rootCmd.PersistentFlags().Lookup("team"))

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", app+".db")
	viper.SetDefault("storage.dir", "uploads")
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.max-log-length", 200)
	viper.SetDefault("sheets.tab", "Matches")
	viper.SetDefault("gmail.requests-per-second", 5)

	// Keys without a default are still declared so CVSIFT_* variables reach Unmarshal.
	for _, key := range []string{
		"database.dsn-file",
		"gmail.credentials-file", "gmail.token-file", "gmail.user",
		"ai.api-key", "ai.api-key-file", "ai.model", "ai.base-url",
		"sheets.credentials-file", "sheets.spreadsheet-id",
	} {
		viper.SetDefault(key, "")
	}
}

func initConfig() {
	// A missing .env file is fine, everything can come from the config file.
	_ = godotenv.Load()

	viper.SetEnvPrefix(strings.ToUpper(app))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Database == nil {
		config.Database = &DatabaseConfig{}
	}
	if config.Storage == nil {
		config.Storage = &StorageConfig{}
	}
	if config.Gmail == nil {
		config.Gmail = &GmailConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.Sheets == nil {
		config.Sheets = &SheetsConfig{}
	}

	return config, nil
}

func teamID() int64 {
	return viper.GetInt64("team")
}
