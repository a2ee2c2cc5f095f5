package ocsp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/client"
	"golang.org/x/crypto/ocsp"
)

// RequestContentType - тип содержимого OCSP-запроса на проводе
const RequestContentType = "application/ocsp-request"

// Transport доставляет запрос в DER-форме респонденту и возвращает
// ответ в виде текстового конверта
type Transport interface {
	RoundTrip(ctx context.Context, der []byte) ([]byte, error)
}

// LocalTransport передает запросы респонденту в том же процессе
type LocalTransport struct {
	Responder *Responder
}

// RoundTrip реализует Transport
func (t LocalTransport) RoundTrip(ctx context.Context, der []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Handle(t.Responder, der)
}

// Handle разбирает запрос, отвечает на него и упаковывает ответ в конверт.
// Нераспознанный запрос получает ответ MALFORMED_REQUEST
func Handle(responder *Responder, der []byte) ([]byte, error) {
	var resp *Response
	req, err := ParseRequest(der)
	if err != nil {
		slog.Warn("OCSP: некорректный запрос", "error", err)
		resp = NewErrorResponse(ocsp.Malformed)
		responsesTotal.WithLabelValues(resp.Status.String()).Inc()
	} else {
		resp = responder.Respond(req)
	}
	return resp.Encode()
}

// HTTPTransport отправляет запросы удаленному респонденту методом POST
type HTTPTransport struct {
	URL    string
	Client *client.Client
}

// NewHTTPTransport создает транспорт для респондера по адресу url
func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{URL: url, Client: client.New()}
}

// RoundTrip реализует Transport
func (t *HTTPTransport) RoundTrip(ctx context.Context, der []byte) ([]byte, error) {
	resp, err := t.Client.R().
		SetContext(ctx).
		SetHeader("Content-Type", RequestContentType).
		SetHeader("Accept", EnvelopeContentType).
		SetRawBody(der).
		Post(t.URL)
	if err != nil {
		return nil, fmt.Errorf("ocsp: send request to %s: %w", t.URL, err)
	}
	defer resp.Close()

	if resp.StatusCode() != fiber.StatusOK {
		return nil, fmt.Errorf("ocsp: responder %s returned HTTP %d", t.URL, resp.StatusCode())
	}
	// тело принадлежит пулу fasthttp и освобождается в Close
	body := append([]byte(nil), resp.Body()...)
	return body, nil
}
