package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/kelseyhightower/envconfig"

	"github.com/openshelf/lending-service/internal/server"
	"github.com/openshelf/lending-service/internal/service"
	"github.com/openshelf/lending-service/pkg/kafka"
	"github.com/openshelf/lending-service/pkg/logger"
	"github.com/openshelf/lending-service/pkg/postgres"
)

type Config struct {
	Server   server.Config     `yaml:"server"`
	Database postgres.DB       `yaml:"db"`
	Kafka    kafka.Config      `yaml:"kafka"`
	Policy   service.Policy    `yaml:"policy"`
	Admin    service.AdminSeed `yaml:"admin"`
	Log      logger.Log        `yaml:"log"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = &config
		printConfig(cfg)
	})

	return cfg
}

func printConfig(cfg *Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
