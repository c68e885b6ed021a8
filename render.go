package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/akinalp/chatsync/models"
)

// messageView, tail'in ekrana neyi zaten yazdığını takip eder.
// Session sadece "mesajlar değişti" der; neyin değiştiğini buradaki diff bulur.
type messageView struct {
	printed map[int64]string
}

func newMessageView() *messageView {
	return &messageView{printed: make(map[int64]string)}
}

// Diff, yeni veya değişmiş kayıtları ve artık görünmeyen id'leri döner,
// sonra kendi durumunu günceller.
func (v *messageView) Diff(records []*models.MessageRecord) (changed []*models.MessageRecord, removed []int64) {
	current := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		current[rec.ID] = struct{}{}
		fp := fingerprint(rec)
		if v.printed[rec.ID] != fp {
			changed = append(changed, rec)
			v.printed[rec.ID] = fp
		}
	}
	for id := range v.printed {
		if _, ok := current[id]; !ok {
			removed = append(removed, id)
			delete(v.printed, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return changed, removed
}

// Reset, scope değişince çağrılır.
func (v *messageView) Reset() {
	v.printed = make(map[int64]string)
}

func fingerprint(rec *models.MessageRecord) string {
	return fmt.Sprintf("%t|%d|%s|%s", rec.EditedMarker, len(rec.Attachments), rec.SenderDisplay, rec.Content)
}

// formatMessage, bir mesajı terminal için biçimlendirir.
//
//	#12 amy · 3 minutes ago (edited)
//	  ↪ bob: hi there
//	  selam
//	  📎 notes.pdf (1.2 MB)
func formatMessage(rec *models.MessageRecord, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s · %s", rec.ID, displayName(rec), humanize.RelTime(rec.CreatedAt, now, "ago", "from now"))
	if rec.EditedMarker {
		b.WriteString(" (edited)")
	}
	b.WriteByte('\n')

	if rec.ReplyTo != nil {
		fmt.Fprintf(&b, "  ↪ %s: %s\n", rec.ReplyTo.SenderUsername, rec.ReplyTo.ContentSnippet)
	}
	for _, line := range strings.Split(rec.Content, "\n") {
		if line == "" && rec.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "  %s\n", line)
	}
	for _, a := range rec.Attachments {
		fmt.Fprintf(&b, "  📎 %s (%s)\n", a.FileName, humanize.Bytes(uint64(max(a.FileSize, 0))))
	}
	return b.String()
}

func displayName(rec *models.MessageRecord) string {
	if rec.SenderDisplay != "" {
		return rec.SenderDisplay
	}
	return "user " + strconv.FormatInt(rec.SenderID, 10)
}

// formatReactions, reaksiyon gruplarını tek satıra döker. Kendi tepkimiz * ile işaretlenir.
//
//	👍 2* (amy, me)  🎉 1 (bob)
func formatReactions(groups []models.ReactionGroup) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		mark := ""
		if g.ReactedByMe {
			mark = "*"
		}
		parts = append(parts, fmt.Sprintf("%s %d%s (%s)", g.Emoji, g.Count, mark, strings.Join(g.Users, ", ")))
	}
	return strings.Join(parts, "  ")
}

// inputKind, tail --input satırlarının türü.
type inputKind int

const (
	inputNone inputKind = iota
	inputSend
	inputOlder
	inputReact
	inputScope
	inputQuit
)

type inputCommand struct {
	kind      inputKind
	text      string
	messageID int64
	emoji     string
	scope     models.ChatScope
}

// parseInput, tail'e yazılan satırı çözer.
//
//	merhaba              → mesaj gönder
//	/older               → eski sayfayı yükle
//	/react 12 👍         → tepki ekle/kaldır
//	/scope dm:9          → konuşma değiştir
//	/quit
//
// "//" ile başlayan satır, başındaki "/" atılarak düz mesaj olarak gider.
func parseInput(line string) (inputCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return inputCommand{kind: inputNone}, nil
	}
	if strings.HasPrefix(line, "//") {
		return inputCommand{kind: inputSend, text: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return inputCommand{kind: inputSend, text: line}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/older":
		return inputCommand{kind: inputOlder}, nil
	case "/quit", "/exit":
		return inputCommand{kind: inputQuit}, nil
	case "/react":
		if len(fields) != 3 {
			return inputCommand{}, fmt.Errorf("usage: /react <message-id> <emoji>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || id <= 0 {
			return inputCommand{}, fmt.Errorf("invalid message id %q", fields[1])
		}
		return inputCommand{kind: inputReact, messageID: id, emoji: fields[2]}, nil
	case "/scope":
		if len(fields) != 2 {
			return inputCommand{}, fmt.Errorf("usage: /scope <channel:ID|dm:ID>")
		}
		scope, err := models.ParseScope(fields[1])
		if err != nil {
			return inputCommand{}, err
		}
		return inputCommand{kind: inputScope, scope: scope}, nil
	default:
		return inputCommand{}, fmt.Errorf("unknown command %s", fields[0])
	}
}
