package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var supportedDbs = supportedType{
	"badger":   {},
	"inmemory": {},
}

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int
	DbType   string
	DbDir    string
}

// LoadConfig reads the daemon configuration from CHARMSD_* environment
// variables, applying defaults where unset, and prepares the datadir.
func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("CHARMSD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	viper.SetDefault("datadir", btcutil.AppDataDir("charmsd", false))
	viper.SetDefault("port", 17784)
	viper.SetDefault("log-level", int(log.InfoLevel))
	viper.SetDefault("db-type", "badger")

	dbType := viper.GetString("db-type")
	if !supportedDbs.supports(dbType) {
		return nil, fmt.Errorf(
			"db type %q not supported, must be one of: %s",
			dbType, supportedDbs,
		)
	}

	datadir := viper.GetString("datadir")
	var dbDir string
	if dbType == "badger" {
		if err := makeDirectoryIfNotExists(datadir); err != nil {
			return nil, fmt.Errorf("failed to create datadir: %s", err)
		}
		dbDir = filepath.Join(datadir, "db")
	}

	return &Config{
		Datadir:  datadir,
		Port:     viper.GetUint32("port"),
		LogLevel: viper.GetInt("log-level"),
		DbType:   dbType,
		DbDir:    dbDir,
	}, nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
