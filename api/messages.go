package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// historyPath, scope'a göre history endpoint'i.
func historyPath(scope models.ChatScope) (string, error) {
	switch scope.Kind {
	case models.ScopeChannel:
		return fmt.Sprintf("/api/channels/%d/messages", scope.ID), nil
	case models.ScopeDirectMessage:
		return fmt.Sprintf("/api/dm-chats/%d/messages", scope.ID), nil
	default:
		return "", pkg.ErrNoActiveScope
	}
}

// FetchHistory, scope'un mesaj sayfasını getirir.
//
// Sunucu Spring Page döner: {content: [...], last: bool}. Her eleman ayrı
// doğrulanır; bozuk veya başka scope'a ait kayıtlar loglanıp atlanır, sayfanın
// geri kalanı kullanılır.
func (c *Client) FetchHistory(ctx context.Context, scope models.ChatScope, page, size int) (*models.MessagePage, error) {
	path, err := historyPath(scope)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   path,
		query:  query,
		accept: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var dto models.MessagePageDTO
	if err := decodeJSON(data, &dto); err != nil {
		return nil, err
	}
	if dto.Content == nil {
		return nil, fmt.Errorf("%w: page has no content field", pkg.ErrMalformedPayload)
	}

	result := &models.MessagePage{Scope: scope, Page: page}
	for _, raw := range dto.Content {
		var msg models.MessageDTO
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn("dropping malformed history record", zap.Stringer("scope", scope), zap.Error(err))
			continue
		}
		rec, err := msg.ToRecord()
		if err != nil {
			c.log.Warn("dropping invalid history record", zap.Stringer("scope", scope), zap.Error(err))
			continue
		}
		if rec.Scope != scope {
			c.log.Warn("dropping history record from another scope",
				zap.Stringer("scope", scope), zap.Stringer("record_scope", rec.Scope), zap.Int64("id", rec.ID))
			continue
		}
		result.Records = append(result.Records, rec)
	}

	if dto.Last != nil {
		result.HasMore = !*dto.Last
	} else {
		result.HasMore = len(dto.Content) >= size
	}
	return result, nil
}

// SendWithAttachments, dosyalı mesajı multipart olarak gönderir.
//
// Part'lar:
//   - sendMessageDTO: application/json (ChatMessagePayload)
//   - files: her dosya için bir part
//
// Sunucu oluşan mesajı dönerse record olarak parse edilir; boş body → nil record.
func (c *Client) SendWithAttachments(ctx context.Context, req models.SendMessageRequest) (*models.MessageRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payload, err := json.Marshal(models.NewChatMessagePayload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message payload: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="sendMessageDTO"; filename="blob"`)
	header.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create payload part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write payload part: %w", err)
	}

	for _, f := range req.Files {
		if err := writeFilePart(mw, f); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	data, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/messages",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		accept:      "application/json",
	})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var msg models.MessageDTO
	if err := decodeJSON(data, &msg); err != nil {
		return nil, err
	}
	rec, err := msg.ToRecord()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
	}
	return rec, nil
}

func writeFilePart(mw *multipart.Writer, f models.Upload) error {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part %s: %w", f.Name, err)
	}
	if _, err := io.Copy(part, f.Reader); err != nil {
		return fmt.Errorf("failed to write file part %s: %w", f.Name, err)
	}
	return nil
}
