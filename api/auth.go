package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// Login, kullanıcı adı/şifre ile token alır. Sunucu token'ı düz metin döner.
// 401 → "invalid credentials" (ErrUnauthenticated).
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	req := models.LoginRequest{Username: username, Password: password}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	data, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        bytes.NewReader(body),
		contentType: "application/json",
		accept:      "text/plain",
		anonymous:   true,
	})
	if err != nil {
		if errors.Is(err, pkg.ErrUnauthenticated) {
			return "", fmt.Errorf("%w: invalid credentials", pkg.ErrUnauthenticated)
		}
		return "", err
	}
	return tokenFromBody(data)
}

// Refresh, verilen token ile yeni token ister.
// Token parametre olarak alınır, refresh sırasında guard henüz yeni token'ı bilmez.
func (c *Client) Refresh(ctx context.Context, token string) (string, error) {
	data, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/refresh",
		accept: "text/plain",
		bearer: token,
	})
	if err != nil {
		return "", err
	}
	return tokenFromBody(data)
}

// Me, oturum sahibinin profilini döner.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/auth/users/me",
		accept: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var dto models.UserDTO
	if err := decodeJSON(data, &dto); err != nil {
		return nil, err
	}
	user, err := dto.ToUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
	}
	return user, nil
}

// tokenFromBody, düz metin token'ı okur. Bazı sürümler token'ı JSON string
// olarak tırnaklı döner; tırnaklar kırpılır.
func tokenFromBody(data []byte) (string, error) {
	token := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if token == "" || strings.ContainsAny(token, " \n\t") {
		return "", fmt.Errorf("%w: empty or invalid token body", pkg.ErrMalformedPayload)
	}
	return token, nil
}
