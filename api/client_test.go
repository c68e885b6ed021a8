package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	c.SetTokenSource(staticToken("tok-1"))
	return c
}

func TestLogin_ReturnsPlainTextToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body.Username)
		assert.Equal(t, "secret", body.Password)

		_, _ = io.WriteString(w, "header.payload.sig\n")
	})

	token, err := c.Login(context.Background(), " alice ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "header.payload.sig", token)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestLogin_ValidatesInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})

	_, err := c.Login(context.Background(), "", "x")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestRefresh_UsesGivenBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer old-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "new-token")
	})

	token, err := c.Refresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
}

func TestMe_ParsesUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id":42,"username":"alice","avatarUrl":"/a.png","bio":"hi"}`)
	})

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.User{ID: 42, Username: "alice", AvatarURL: "/a.png", Bio: "hi"}, *user)
}

func TestMe_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"username":"no id"}`)
	})

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, pkg.ErrMalformedPayload)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
		msg    string
	}{
		{"unauthorized", http.StatusUnauthorized, "", pkg.ErrUnauthenticated, ""},
		{"redirect to login", http.StatusFound, "", pkg.ErrUnauthenticated, ""},
		{"bare forbidden", http.StatusForbidden, "", pkg.ErrUnauthenticated, ""},
		{"server message", http.StatusBadRequest, `{"message":"content too long"}`, pkg.ErrRequestFailed, "content too long"},
		{"server error field", http.StatusConflict, `{"error":"duplicate"}`, pkg.ErrRequestFailed, "duplicate"},
		{"unparseable", http.StatusInternalServerError, `<html>oops</html>`, pkg.ErrRequestFailed, "status 500"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.status == http.StatusFound {
					w.Header().Set("Location", "/login.html")
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := c.Me(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			if tc.msg != "" {
				assert.Contains(t, err.Error(), tc.msg)
			}

			var reqErr *pkg.RequestError
			if errors.Is(tc.want, pkg.ErrRequestFailed) {
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, tc.status, reqErr.Status)
			}
		})
	}
}

func TestNoCredential(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})
	c.SetTokenSource(staticToken(""))

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, pkg.ErrUnauthenticated)
}

func TestFetchHistory_ParsesPageAndDropsBadRecords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/channels/5/messages", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("size"))
		_, _ = io.WriteString(w, `{
			"content": [
				{"id": 1, "sender": {"id": 7, "username": "bob"}, "content": "hi", "createdAt": "2025-01-02T10:00:00", "channelId": 5},
				{"id": 2, "sender": {"id": 7, "username": "bob"}, "content": "no scope", "createdAt": "2025-01-02T10:00:01"},
				{"id": 3, "sender": {"id": 7, "username": "bob"}, "content": "other", "createdAt": "2025-01-02T10:00:02", "channelId": 6},
				"garbage"
			],
			"last": false,
			"number": 0
		}`)
	})

	page, err := c.FetchHistory(context.Background(), models.ChannelScope(5), 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(1), page.Records[0].ID)
	assert.Equal(t, "bob", page.Records[0].SenderDisplay)
	assert.True(t, page.HasMore)
}

func TestFetchHistory_DirectMessagePath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dm-chats/9/messages", r.URL.Path)
		_, _ = io.WriteString(w, `{"content": [], "last": true}`)
	})

	page, err := c.FetchHistory(context.Background(), models.DirectMessageScope(9), 0, 50)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.False(t, page.HasMore)
}

func TestFetchHistory_MissingContentIsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items": []}`)
	})

	_, err := c.FetchHistory(context.Background(), models.ChannelScope(5), 0, 50)
	assert.ErrorIs(t, err, pkg.ErrMalformedPayload)
}

func TestSendWithAttachments_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		payloadFile, _, err := r.FormFile("sendMessageDTO")
		require.NoError(t, err)
		payload, _ := io.ReadAll(payloadFile)
		assert.JSONEq(t, `{"content":"look","parentMessageId":3,"directMessageChatId":9}`, string(payload))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.txt", files[0].Filename)

		_, _ = io.WriteString(w, `{"id": 11, "sender": {"id": 1, "username": "me"}, "content": "look",
			"createdAt": "2025-01-02T10:00:00Z", "directMessageChatId": 9}`)
	})

	parent := int64(3)
	rec, err := c.SendWithAttachments(context.Background(), models.SendMessageRequest{
		Scope:           models.DirectMessageScope(9),
		Content:         "look",
		ParentMessageID: &parent,
		Files: []models.Upload{
			{Name: "a.txt", ContentType: "text/plain", Reader: strings.NewReader("aaa")},
			{Name: "b.bin", Reader: strings.NewReader("bbb")},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(11), rec.ID)
	assert.Equal(t, models.DirectMessageScope(9), rec.Scope)
}

func TestNormalizeBaseURL(t *testing.T) {
	got, err := NormalizeBaseURL(" http://localhost:8082/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8082", got)

	_, err = NormalizeBaseURL("localhost:8082")
	assert.Error(t, err)
	_, err = NormalizeBaseURL("")
	assert.Error(t, err)
}
