package models

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageRecord, cache'te tutulan tek bir mesaj.
//
// ID tüm sistemde benzersizdir (sadece scope içinde değil).
// CreatedAt sıralama anahtarıdır; eşitlikte ID küçük olan önce gelir.
//
// EditedMarker, render edilen "(edited)" işaretidir: Edited false→true
// geçişinde bir kez set edilir ve bir daha silinmez/çoğaltılmaz.
type MessageRecord struct {
	ID              int64
	Scope           ChatScope
	SenderID        int64
	SenderDisplay   string
	SenderAvatarRef string
	Content         string
	MessageType     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Edited          bool
	EditedMarker    bool
	ParentMessageID *int64
	ReplyTo         *ParentInfo
	Attachments     []Attachment
	Reactions       ReactionState
}

// Attachment, mesaja eklenmiş dosyanın referansı. İçerik indirilmez.
type Attachment struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"fileName"`
	FileURL    string    `json:"fileUrl"`
	MimeType   string    `json:"mimeType"`
	FileSize   int64     `json:"fileSize"`
	Type       string    `json:"attachmentType"`
	UploadedAt time.Time `json:"-"`
}

// ParentInfo, yanıtlanan mesajın kısa özeti (sunucu tarafından doldurulur).
type ParentInfo struct {
	SenderUsername string `json:"senderUsername"`
	ContentSnippet string `json:"contentSnippet"`
}

// Clone, record'un derin kopyasını döner.
// Cache dışına çıkan her record kopyadır, rendering katmanı cache'i mutate edemez.
func (m *MessageRecord) Clone() *MessageRecord {
	if m == nil {
		return nil
	}
	cp := *m
	if m.ParentMessageID != nil {
		id := *m.ParentMessageID
		cp.ParentMessageID = &id
	}
	if m.ReplyTo != nil {
		p := *m.ReplyTo
		cp.ReplyTo = &p
	}
	if m.Attachments != nil {
		cp.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	cp.Reactions = m.Reactions.Clone()
	return &cp
}

// Before, sıralama karşılaştırması: createdAt artan, eşitlikte id artan.
func (m *MessageRecord) Before(other *MessageRecord) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// MessagePage, history fetch'in sonucu.
// Sunucu Spring Page döner; HasMore = !last.
type MessagePage struct {
	Scope   ChatScope
	Page    int
	Records []*MessageRecord
	HasMore bool
}

// MaxContentLength, mesaj içeriği için üst sınır (karakter).
const MaxContentLength = 2000

// SendMessageRequest, yeni mesaj gönderme intent'i.
// Dosyasız mesajlar push kanalından, dosyalı mesajlar multipart REST çağrısıyla gider.
type SendMessageRequest struct {
	Scope           ChatScope
	Content         string
	ParentMessageID *int64
	Files           []Upload
}

// Validate, isteği kontrol eder. Sadece dosya içeren mesajlarda content boş olabilir.
func (r *SendMessageRequest) Validate(maxFiles int) error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Scope.IsZero() {
		return fmt.Errorf("chat scope is required")
	}
	if r.Content == "" && len(r.Files) == 0 {
		return fmt.Errorf("message content or attachment is required")
	}
	if utf8.RuneCountInString(r.Content) > MaxContentLength {
		return fmt.Errorf("message content must be at most %d characters", MaxContentLength)
	}
	if maxFiles > 0 && len(r.Files) > maxFiles {
		return fmt.Errorf("at most %d attachments allowed", maxFiles)
	}
	return nil
}

// Upload, gönderilecek dosya. Reader'ı kapatmak çağıranın sorumluluğundadır.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}
