package check

import (
	"context"
	"crypto/x509"
	"log/slog"
	"time"
)

// CRLRefresher - УЦ, CRL которого нужно поддерживать в актуальном состоянии
type CRLRefresher interface {
	CRL() (*x509.RevocationList, error)
	RegenerateCRL() error
}

// RefreshCRL перевыпускает CRL, когда прошла половина его срока действия.
// Проверка выполняется сразу и затем каждые interval до отмены ctx
func RefreshCRL(ctx context.Context, refresher CRLRefresher, interval time.Duration) {
	slog.Info("CRL: Запуск модуля обновления CRL", "interval", interval)

	checkCRL(refresher, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("CRL: Модуль обновления CRL остановлен")
			return
		case now := <-ticker.C:
			checkCRL(refresher, now)
		}
	}
}

// checkCRL возвращает true, если CRL был перевыпущен
func checkCRL(refresher CRLRefresher, now time.Time) bool {
	list, err := refresher.CRL()
	if err != nil {
		slog.Error("CRL: Ошибка чтения CRL", "error", err)
	}
	if err == nil && !dueForRefresh(list, now) {
		return false
	}

	if err := refresher.RegenerateCRL(); err != nil {
		slog.Error("CRL: Ошибка перевыпуска CRL", "error", err)
		return false
	}
	slog.Info("CRL: CRL перевыпущен")
	return true
}

func dueForRefresh(list *x509.RevocationList, now time.Time) bool {
	half := list.NextUpdate.Sub(list.ThisUpdate) / 2
	return !now.Before(list.ThisUpdate.Add(half))
}
