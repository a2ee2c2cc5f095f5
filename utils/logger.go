package utils

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const fallbackLogFile = "./logs/tlsca.log"

// LogSettings - ключи logging.* из конфига
type LogSettings struct {
	Level  string // debug, info, warn, error
	Format string // json или text
	Output string // stdout, file или both
	File   string
}

// LogSettingsFromViper читает настройки логирования из viper
func LogSettingsFromViper() LogSettings {
	return LogSettings{
		Level:  strings.ToLower(viper.GetString("logging.level")),
		Format: strings.ToLower(viper.GetString("logging.format")),
		Output: strings.ToLower(viper.GetString("logging.output")),
		File:   viper.GetString("logging.file"),
	}
}

// SetupSlogLogger настраивает глобальный slog по настройкам из конфига.
// Возвращает открытый лог-файл (nil при выводе только в stdout)
func SetupSlogLogger() (*os.File, error) {
	return SetupLogger(LogSettingsFromViper(), os.Stdout)
}

// SetupLogger настраивает глобальный slog и стандартный log
func SetupLogger(settings LogSettings, stdout io.Writer) (*os.File, error) {
	if settings.File == "" {
		settings.File = "/var/log/tlsca.log"
	}

	var writer io.Writer
	var file *os.File
	var err error

	switch settings.Output {
	case "file":
		if file, err = openLogFile(&settings.File); err != nil {
			return nil, err
		}
		writer = file
	case "both":
		if file, err = openLogFile(&settings.File); err != nil {
			return nil, err
		}
		writer = io.MultiWriter(stdout, file)
	default:
		settings.Output = "stdout"
		writer = stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     parseLevel(settings.Level),
		AddSource: true,
	}
	var handler slog.Handler
	if settings.Format == "text" {
		handler = slog.NewTextHandler(writer, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))

	// стандартный log пишет туда же, форматирование остается за slog
	log.SetOutput(writer)
	log.SetFlags(0)

	slog.Info("Логирование настроено",
		"level", settings.Level,
		"format", settings.Format,
		"output", settings.Output,
		"file", settings.File)
	return file, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openLogFile открывает лог-файл на дозапись. Если директорию создать нельзя,
// path заменяется на ./logs/tlsca.log
func openLogFile(path *string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(*path), 0o755); err != nil {
		*path = fallbackLogFile
		if err := os.MkdirAll(filepath.Dir(*path), 0o755); err != nil {
			return nil, fmt.Errorf("не удалось создать директорию для логов: %w", err)
		}
	}

	file, err := os.OpenFile(*path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть лог файл %s: %w", *path, err)
	}
	return file, nil
}
