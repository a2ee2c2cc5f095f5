package ocsp

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Requester - удостоверение, которым подписываются запросы. Пустое значение
// дает анонимные запросы
type Requester struct {
	Certificate *x509.Certificate
	Key         crypto.Signer
}

type cacheEntry struct {
	result   []Result
	expireAt time.Time
}

// ResultCache хранит результаты проверок по серийному номеру.
// Один мьютекс охватывает и поиск, и обмен с респондером: одновременно
// выполняется не более одного OCSP-обмена
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	transport Transport
	caCert    *x509.Certificate
	ttl       time.Duration
	now       func() time.Time
}

// NewResultCache создает кеш. ttl берется из локальной настройки ocsp.ttl,
// окно действия из ответа респондера на время хранения не влияет
func NewResultCache(transport Transport, caCert *x509.Certificate, ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries:   make(map[string]cacheEntry),
		transport: transport,
		caCert:    caCert,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Verify возвращает статус certToCheck из кеша или после обмена с респондером.
// Ошибки не кешируются
func (c *ResultCache) Verify(ctx context.Context, certToCheck *x509.Certificate, requester Requester) ([]Result, error) {
	if certToCheck == nil || certToCheck.SerialNumber == nil {
		return nil, errors.New("ocsp: certificate to check is required")
	}
	key := certToCheck.SerialNumber.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && !c.now().After(entry.expireAt) {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return entry.result, nil
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()

	result, err := c.roundTrip(ctx, certToCheck, requester)
	if err != nil {
		cacheLookupsTotal.WithLabelValues("failure").Inc()
		slog.Warn("OCSP: проверка статуса не удалась", "serial", key, "error", err)
		return nil, err
	}
	c.entries[key] = cacheEntry{result: result, expireAt: c.now().Add(c.ttl)}
	return result, nil
}

func (c *ResultCache) roundTrip(ctx context.Context, certToCheck *x509.Certificate, requester Requester) ([]Result, error) {
	req, err := GenerateRequest(certToCheck, requester.Certificate, requester.Key, c.caCert)
	if err != nil {
		return nil, err
	}
	text, err := c.transport.RoundTrip(ctx, req.Marshal())
	if err != nil {
		return nil, err
	}
	resp, err := DecodeResponse(text)
	if err != nil {
		return nil, err
	}
	result, err := resp.Verify(req)
	if err != nil {
		return nil, err
	}
	if err := resp.CheckSignatureFrom(c.caCert); err != nil {
		return nil, err
	}
	return result, nil
}

// Expire очищает кеш целиком
func (c *ResultCache) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
