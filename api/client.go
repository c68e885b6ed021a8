// Package api, sunucunun REST yüzeyine erişen network collaborator'dır.
//
// Sorumluluklar:
//   - Bearer token'ı her isteğe eklemek (TokenSource üzerinden)
//   - Oturum düşmüş cevapları (401, redirect) pkg.ErrUnauthenticated'a çevirmek, retry YOK
//   - 2xx dışı cevapları pkg.RequestError'a çevirmek (sunucu mesajı parse edilebiliyorsa onunla)
//   - Body'leri models DTO'larına parse edip doğrulamak (fail-closed)
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/pkg"
)

// maxBodySize, okunacak maksimum cevap boyutu.
const maxBodySize = 8 << 20

// TokenSource, o anki bearer token'ı verir. Token yoksa ok=false.
// SessionGuard bu interface'i karşılar.
type TokenSource interface {
	Token() (string, bool)
}

// Client, REST API client'ı.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *zap.Logger
}

// NewClient, base URL'i normalize eder ve client oluşturur.
//
// Redirect'ler takip edilmez: sunucu oturum düşünce login sayfasına yönlendirir,
// bu cevabı görüp ErrUnauthenticated'a çevirmek istiyoruz.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}, nil
}

// SetTokenSource, bearer token kaynağını bağlar.
// Guard client'a (refresh için) client da guard'a (token için) bağımlı olduğundan
// bağlantı constructor sonrasında kurulur.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// NormalizeBaseURL, URL'in scheme içerdiğini doğrular ve sondaki "/"'ı kırpar.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("api url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("api url must include scheme and host (http://host:port)")
	}
	return strings.TrimRight(value, "/"), nil
}

// request, tek bir HTTP isteğinin parametreleri.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	accept      string
	// bearer boşsa TokenSource'tan alınır; anonymous=true ise hiç eklenmez.
	bearer    string
	anonymous bool
}

// do, isteği gönderir ve 2xx cevabın body'sini döner.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	if !r.anonymous {
		token := r.bearer
		if token == "" && c.tokens != nil {
			token, _ = c.tokens.Token()
		}
		if token == "" {
			return nil, fmt.Errorf("%w: no credential for %s", pkg.ErrUnauthenticated, r.path)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", pkg.ErrRequestFailed, r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", pkg.ErrRequestFailed, err)
	}

	c.log.Debug("request completed",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if err := responseError(resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}

// errorPayload, sunucunun hata gövdesi: {message} veya {error}.
type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// responseError, status code'u hata taksonomisine eşler. 2xx → nil.
func responseError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: session expired or invalid", pkg.ErrUnauthenticated)
	case status >= 300 && status < 400:
		return fmt.Errorf("%w: redirected to login (%d)", pkg.ErrUnauthenticated, status)
	case status == http.StatusForbidden && len(bytes.TrimSpace(body)) == 0:
		return fmt.Errorf("%w: forbidden without reason", pkg.ErrUnauthenticated)
	}

	reqErr := &pkg.RequestError{Status: status}
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		reqErr.Message = payload.Message
		if reqErr.Message == "" {
			reqErr.Message = payload.Error
		}
	}
	return reqErr
}

// decodeJSON, 2xx body'yi parse eder; bozuksa ErrMalformedPayload.
func decodeJSON(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
	}
	return nil
}

// IsSessionError, hata login'e dönmeyi gerektiriyor mu?
func IsSessionError(err error) bool {
	return errors.Is(err, pkg.ErrUnauthenticated)
}
