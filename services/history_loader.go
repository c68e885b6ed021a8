package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// DefaultHistoryPageSize, bir history sayfasındaki mesaj sayısı.
const DefaultHistoryPageSize = 50

// HistoryFetcher, sayfalı history çağrısı. api.Client karşılar.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, scope models.ChatScope, page, size int) (*models.MessagePage, error)
}

// HistoryLoader, bir scope'un geçmiş mesajlarını sayfa sayfa çeker.
//
// Sonuç cache'e burada yazılmaz: scope bu arada değişmiş olabilir,
// uygulayıp uygulamamaya session event loop'u karar verir.
type HistoryLoader struct {
	fetcher  HistoryFetcher
	pageSize int
	log      *zap.Logger
}

// NewHistoryLoader, pageSize <= 0 → DefaultHistoryPageSize.
func NewHistoryLoader(fetcher HistoryFetcher, pageSize int, log *zap.Logger) *HistoryLoader {
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	return &HistoryLoader{fetcher: fetcher, pageSize: pageSize, log: log}
}

// Load, scope'un en yeni sayfasını (0) çeker.
func (l *HistoryLoader) Load(ctx context.Context, scope models.ChatScope) (*models.MessagePage, error) {
	return l.LoadPage(ctx, scope, 0)
}

// LoadPage, n. sayfayı çeker. Dönen sayfanın scope'u istenenle aynı olmak zorunda.
func (l *HistoryLoader) LoadPage(ctx context.Context, scope models.ChatScope, page int) (*models.MessagePage, error) {
	if scope.IsZero() {
		return nil, pkg.ErrNoActiveScope
	}
	if page < 0 {
		return nil, fmt.Errorf("%w: negative page", pkg.ErrBadRequest)
	}

	result, err := l.fetcher.FetchHistory(ctx, scope, page, l.pageSize)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Scope != scope {
		return nil, fmt.Errorf("%w: history page for wrong scope", pkg.ErrMalformedPayload)
	}

	l.log.Debug("history page loaded",
		zap.String("scope", scope.String()),
		zap.Int("page", page),
		zap.Int("records", len(result.Records)),
		zap.Bool("has_more", result.HasMore),
	)
	return result, nil
}
