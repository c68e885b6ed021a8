package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/services"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail [channel:ID|dm:ID]",
		Short: "Follow a conversation live",
		Long: "Loads the latest history of a channel or direct-message chat and prints new,\n" +
			"edited and deleted messages, reactions and typing as they happen.\n" +
			"Without an argument the last selected chat is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.svcs.Auth.Restore(ctx)
			if err != nil {
				return err
			}
			scope, err := resolveScope(ctx, a, user.Username, args)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			session, done := a.newSession(runCtx, *user)

			if err := session.SelectScope(runCtx, scope); err != nil {
				return err
			}

			withInput, _ := cmd.Flags().GetBool("input")
			inputErr := make(chan error, 1)
			if withInput {
				go func() { inputErr <- readInput(runCtx, cmd, session) }()
			}

			err = followNotices(runCtx, cmd, session, inputErr)
			cancel()
			<-done
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Bool("input", false, "read messages and /commands from stdin")
	return cmd
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <channel:ID|dm:ID> [text...]",
		Short: "Send one message and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := models.ParseScope(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
			}
			content := strings.Join(args[1:], " ")

			paths, _ := cmd.Flags().GetStringArray("file")
			replyTo, _ := cmd.Flags().GetInt64("reply")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.svcs.Auth.Restore(ctx)
			if err != nil {
				return err
			}

			files, closeFiles, err := openUploads(paths)
			if err != nil {
				return err
			}
			defer closeFiles()

			runCtx, stop := context.WithCancel(ctx)
			defer stop()
			session, done := a.newSession(runCtx, *user)
			defer func() {
				stop()
				<-done
			}()

			if err := session.SelectScope(runCtx, scope); err != nil {
				return err
			}
			if err := waitConnected(runCtx, session); err != nil {
				return err
			}

			req := models.SendMessageRequest{Scope: scope, Content: content, Files: files}
			if replyTo > 0 {
				req.ParentMessageID = &replyTo
			}

			before := knownIDs(session.Messages())
			if err := session.SendMessage(runCtx, req); err != nil {
				return err
			}

			// Dosyasız mesaj push kanalından gider; sunucunun yayını gelene kadar bekle.
			if len(files) == 0 {
				if err := waitForEcho(runCtx, session, user.ID, strings.TrimSpace(content), before); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().StringArrayP("file", "f", nil, "attach a file (repeatable)")
	cmd.Flags().Int64("reply", 0, "reply to message id")
	cmd.Flags().Duration("timeout", 20*time.Second, "give up after this long")
	return cmd
}

// resolveScope, argüman yoksa kullanıcının son konuşmasını kullanır.
func resolveScope(ctx context.Context, a *app, username string, args []string) (models.ChatScope, error) {
	if len(args) == 1 {
		scope, err := models.ParseScope(args[0])
		if err != nil {
			return models.ChatScope{}, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
		}
		return scope, nil
	}
	if scope, ok := a.svcs.Auth.LastScope(ctx, username); ok {
		return scope, nil
	}
	return models.ChatScope{}, fmt.Errorf("%w: no chat given and none remembered", pkg.ErrNoActiveScope)
}

// followNotices, session bildirimlerini terminale basar.
func followNotices(ctx context.Context, cmd *cobra.Command, session *services.Session, inputErr <-chan error) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	view := newMessageView()
	active := session.ActiveScope()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-inputErr:
			return err

		case n := <-session.Notices():
			switch n.Kind {
			case services.NoticeStateChanged:
				if scope := session.ActiveScope(); scope != active {
					active = scope
					view.Reset()
				}
				if n.Err != nil {
					fmt.Fprintf(errOut, "-- %s: %s (%v)\n", n.Scope, n.State, n.Err)
				} else {
					fmt.Fprintf(errOut, "-- %s: %s\n", n.Scope, n.State)
				}

			case services.NoticeMessagesChanged:
				changed, removed := view.Diff(session.Messages())
				now := time.Now()
				for _, rec := range changed {
					fmt.Fprint(out, formatMessage(rec, now))
				}
				for _, id := range removed {
					fmt.Fprintf(out, "#%d deleted\n", id)
				}

			case services.NoticeReactionsChanged:
				fmt.Fprintf(out, "#%d reactions: %s\n", n.MessageID, formatReactions(session.Reactions(n.MessageID)))

			case services.NoticeTypingChanged:
				if n.Text != "" {
					fmt.Fprintf(errOut, "-- %s\n", n.Text)
				}

			case services.NoticeProfileChanged:
				fmt.Fprintf(errOut, "-- profile updated: %s\n", n.Text)

			case services.NoticeServerError, services.NoticeError:
				fmt.Fprintf(errOut, "!! %s\n", n.Text)

			case services.NoticeLoginRequired:
				return n.Err
			}
		}
	}
}

// inputTarget, readInput'un kullandığı intent'ler. *services.Session karşılar.
type inputTarget interface {
	SendMessage(ctx context.Context, req models.SendMessageRequest) error
	LoadOlder(ctx context.Context) (int, error)
	ToggleReaction(ctx context.Context, messageID int64, emoji string, fromPicker bool) error
	SelectScope(ctx context.Context, scope models.ChatScope) error
}

// readInput, stdin satırlarını intent'lere çevirir. EOF'ta veya /quit'te döner.
//
// Satır tabanlı girişte tuş vuruşu görülmez; bu yüzden typing sinyali
// gönderilmez (satır geldiğinde mesaj zaten gidiyordur).
func readInput(ctx context.Context, cmd *cobra.Command, session inputTarget) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	errOut := cmd.ErrOrStderr()

	for scanner.Scan() {
		in, err := parseInput(scanner.Text())
		if err != nil {
			fmt.Fprintf(errOut, "!! %v\n", err)
			continue
		}

		switch in.kind {
		case inputQuit:
			return context.Canceled
		case inputSend:
			err = session.SendMessage(ctx, models.SendMessageRequest{Content: in.text})
		case inputOlder:
			var added int
			added, err = session.LoadOlder(ctx)
			if err == nil && added == 0 {
				fmt.Fprintln(errOut, "-- no older messages")
			}
		case inputReact:
			err = session.ToggleReaction(ctx, in.messageID, in.emoji, false)
		case inputScope:
			err = session.SelectScope(ctx, in.scope)
		}

		if err != nil {
			if errors.Is(err, pkg.ErrUnauthenticated) {
				return err
			}
			fmt.Fprintf(errOut, "!! %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return context.Canceled
}

// waitConnected, bağlantı kurulana veya kurulamadığı anlaşılana kadar bekler.
func waitConnected(ctx context.Context, session *services.Session) error {
	for {
		if session.ConnectionState() == models.StateConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: timed out waiting for connection", pkg.ErrTransport)
		case n := <-session.Notices():
			switch {
			case n.Kind == services.NoticeLoginRequired:
				return n.Err
			case n.Kind == services.NoticeError:
				return n.Err
			case n.Kind == services.NoticeStateChanged && n.Err != nil:
				return n.Err
			}
		}
	}
}

// waitForEcho, gönderilen mesajın sunucu yayınıyla cache'e düşmesini bekler.
func waitForEcho(ctx context.Context, session *services.Session, selfID int64, content string, before map[int64]struct{}) error {
	for {
		for _, rec := range session.Messages() {
			if _, seen := before[rec.ID]; !seen && rec.SenderID == selfID && rec.Content == content {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: message was sent but no confirmation arrived", pkg.ErrTransport)
		case n := <-session.Notices():
			if n.Kind == services.NoticeServerError {
				return fmt.Errorf("%w: %s", pkg.ErrRequestFailed, n.Text)
			}
			if n.Kind == services.NoticeLoginRequired {
				return n.Err
			}
		}
	}
}

func knownIDs(records []*models.MessageRecord) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		ids[rec.ID] = struct{}{}
	}
	return ids
}

// openUploads, dosyaları açar. Dönen closer hepsini kapatır.
func openUploads(paths []string) ([]models.Upload, func(), error) {
	var (
		uploads []models.Upload
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open attachment: %w", err)
		}
		closers = append(closers, f)

		info, err := f.Stat()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to stat attachment: %w", err)
		}
		uploads = append(uploads, models.Upload{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Size:        info.Size(),
			Reader:      f,
		})
	}
	return uploads, closeAll, nil
}
