package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/addspin/tlsca/autosign"
	"github.com/addspin/tlsca/ca"
	"github.com/spf13/viper"
)

// Config - снимок настроек приложения после чтения config.yaml
type Config struct {
	DatabasePath string
	Port         string
	APIKey       string
	Digest       string
	OCSPURL      string
	OCSPTTL      time.Duration // окно действия ответов респондера
	OCSPCacheTTL time.Duration // время хранения результатов проверки у клиента
	CA           ca.Config
}

// SetDefaults регистрирует значения по умолчанию для всех ключей
func SetDefaults() {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	viper.SetDefault("database.path", "./tlsca.db")
	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.apiKey", "")

	viper.SetDefault("ca.name", hostname)
	viper.SetDefault("ca.digest", "SHA256")
	viper.SetDefault("ca.ttl", 3650)
	viper.SetDefault("ca.certTTL", 1825)
	viper.SetDefault("ca.crlTTL", 7)
	viper.SetDefault("ca.keyAlgorithm", "rsa")
	viper.SetDefault("ca.keySize", 4096)
	viper.SetDefault("ca.crlPath", "./crlFile/revoked.crl")

	viper.SetDefault("ocsp.url", "http://localhost:8080/api/v1/ocsp")
	viper.SetDefault("ocsp.ttl", 1)
	viper.SetDefault("ocsp.cacheTTL", 1)
	viper.SetDefault("ocsp.ttlUnit", "hours")

	viper.SetDefault("autosign", "false")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// LoadConfig читает файл настроек. Пустой file означает config.yaml в текущей
// директории, его отсутствие не ошибка
func LoadConfig(file string) (Config, error) {
	SetDefaults()
	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
	}
	return CurrentConfig()
}

// CurrentConfig собирает Config из текущего состояния viper
func CurrentConfig() (Config, error) {
	policy, err := autosign.FromSetting(viper.GetString("autosign"))
	if err != nil {
		return Config{}, err
	}
	unit := viper.GetString("ocsp.ttlUnit")
	return Config{
		DatabasePath: viper.GetString("database.path"),
		Port:         viper.GetString("app.port"),
		APIKey:       viper.GetString("app.apiKey"),
		Digest:       viper.GetString("ca.digest"),
		OCSPURL:      viper.GetString("ocsp.url"),
		OCSPTTL:      SelectTime(unit, viper.GetInt("ocsp.ttl")),
		OCSPCacheTTL: SelectTime(unit, viper.GetInt("ocsp.cacheTTL")),
		CA: ca.Config{
			Name:         viper.GetString("ca.name"),
			Passphrase:   viper.GetString("ca.passphrase"),
			TTL:          SelectTime("days", viper.GetInt("ca.ttl")),
			CertTTL:      SelectTime("days", viper.GetInt("ca.certTTL")),
			KeyAlgorithm: viper.GetString("ca.keyAlgorithm"),
			KeySize:      viper.GetInt("ca.keySize"),
			CRLTTL:       SelectTime("days", viper.GetInt("ca.crlTTL")),
			CRLPath:      viper.GetString("ca.crlPath"),
			Autosign:     policy,
		},
	}, nil
}
