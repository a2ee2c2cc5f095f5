// Package autosign решает, подписывать ли запрос на сертификат без участия оператора.
package autosign

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// CSR - запрос на сертификат вместе с именем узла
type CSR struct {
	Name    string
	Request *x509.CertificateRequest
}

// PEM возвращает текстовую форму запроса
func (c CSR) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: c.Request.Raw})
}

// Policy - правило автоподписи
type Policy interface {
	Allowed(csr CSR) (bool, error)
}

// AllowAll подписывает любой запрос
type AllowAll struct{}

// Allowed реализует Policy
func (AllowAll) Allowed(CSR) (bool, error) { return true, nil }

// CommandPolicy передает решение внешней команде: `<Path> <имя>`,
// PEM запроса на stdin. Код выхода 0 означает разрешение.
// Таймаута нет, зависшая команда блокирует вызывающего
type CommandPolicy struct {
	Path string
}

// Allowed реализует Policy
func (p CommandPolicy) Allowed(csr CSR) (bool, error) {
	tmp, err := os.CreateTemp("", "tlsca-csr-*.pem")
	if err != nil {
		return false, fmt.Errorf("autosign: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(csr.PEM()); err != nil {
		return false, fmt.Errorf("autosign: write csr: %w", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return false, fmt.Errorf("autosign: rewind csr: %w", err)
	}

	cmd := exec.Command(p.Path, csr.Name)
	cmd.Stdin = tmp
	output, err := cmd.CombinedOutput()
	slog.Debug("Autosign: вывод команды", "command", p.Path, "csr", csr.Name, "output", string(output))

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		slog.Info("Autosign: запрос разрешен", "csr", csr.Name)
		return true, nil
	case errors.As(err, &exitErr):
		slog.Info("Autosign: запрос отклонен", "csr", csr.Name, "exitCode", exitErr.ExitCode())
		return false, nil
	default:
		return false, fmt.Errorf("autosign: run %s: %w", p.Path, err)
	}
}

// FilePolicy разрешает запросы, имя которых подходит под один из шаблонов файла.
// Файл перечитывается при каждой проверке; комментарии и пустые строки пропускаются
type FilePolicy struct {
	Path string
}

// Allowed реализует Policy
func (p FilePolicy) Allowed(csr CSR) (bool, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return false, fmt.Errorf("autosign: read %s: %w", p.Path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pattern, err := glob.Compile(line, '.')
		if err != nil {
			slog.Warn("Autosign: некорректный шаблон", "file", p.Path, "pattern", line, "error", err)
			continue
		}
		if pattern.Match(csr.Name) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// FromSetting строит правило из значения настройки autosign:
// "false" или пустое значение выключают автоподпись (nil), "true" подписывает все,
// абсолютный путь к исполняемому файлу дает CommandPolicy, к обычному файлу FilePolicy.
// Отсутствующий файл выключает автоподпись
func FromSetting(value string) (Policy, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "", "false":
		return nil, nil
	case "true":
		return AllowAll{}, nil
	}

	if !filepath.IsAbs(value) {
		return nil, fmt.Errorf("the autosign configuration '%s' must be a fully qualified file", value)
	}
	info, err := os.Stat(value)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Autosign: файл настройки не найден, автоподпись выключена", "path", value)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("autosign: stat %s: %w", value, err)
	}
	if info.Mode()&0o111 != 0 {
		return CommandPolicy{Path: value}, nil
	}
	return FilePolicy{Path: value}, nil
}
