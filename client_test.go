package gigboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithToken("tok"))
}

func TestClientHistory(t *testing.T) {
	client := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages/u2", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`[
			{"_id":"m1","senderId":"u2","receiverId":"me","message":"a","createdAt":"2026-01-01T00:00:00Z"},
			{"id":"m2","senderId":{"_id":"me","name":"Me"},"receiverId":"u2","message":"b","timestamp":1767225600000},
			{"senderId":"u2","message":"c","sentAt":"yesterday"}
		]`))
	})

	msgs, err := client.Messages.History(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, Message{ID: "m1", SenderID: "u2", ReceiverID: "me", Message: "a", SentAt: "2026-01-01T00:00:00Z"}, msgs[0])
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "me", msgs[1].SenderID)
	assert.Equal(t, "1767225600000", msgs[1].SentAt)
	assert.Equal(t, "yesterday", msgs[2].SentAt)
}

func TestClientErrors(t *testing.T) {
	t.Run("server message is kept", func(t *testing.T) {
		client := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"not a party to this dispute"}`))
		})

		_, err := client.Disputes.Get(context.Background(), "d1")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.Status)
		assert.Equal(t, "not a party to this dispute", apiErr.Message)
	})

	t.Run("non-json body falls back to status text", func(t *testing.T) {
		client := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("oops"))
		})

		_, err := client.Users.Get(context.Background(), "u2")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 500, apiErr.Status)
		assert.Equal(t, "Internal Server Error", apiErr.Message)
	})
}

func TestClientUsers(t *testing.T) {
	client := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/u2":
			w.Write([]byte(`{"id":"u2","username":"dana","role":"freelancer"}`))
		case "/api/auth/me":
			w.Write([]byte(`{"_id":"me","name":"Sam"}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	name, err := client.Users.DisplayName(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "dana", name)

	me, err := client.Users.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "me", me.ID)
}

func TestClientDisputes(t *testing.T) {
	client := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/disputes/d1":
			w.Write([]byte(`{"_id":"d1","status":"under_review","messages":[
				{"sender":{"_id":"u1","name":"Ada"},"senderRole":"client","message":"hello","sentAt":"T1"}
			]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/disputes/d1/messages":
			body, _ := io.ReadAll(r.Body)
			var req map[string]string
			require.NoError(t, json.Unmarshal(body, &req))
			w.Write([]byte(`{"_id":"d1","messages":[
				{"sender":"u1","message":"hello","sentAt":"T1"},
				{"sender":"me","message":"` + req["message"] + `","sentAt":"T2"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	d, err := client.Disputes.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, DisputeUnderReview, d.Status)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, "u1", d.Messages[0].Sender)
	assert.Equal(t, "Ada", d.Messages[0].SenderName)

	msg, err := client.Disputes.SendMessage(ctx, "d1", "evidence attached")
	require.NoError(t, err)
	assert.Equal(t, "evidence attached", msg.Message)
	assert.Equal(t, "T2", msg.SentAt)
}

func TestClientRealtimeInheritsBaseURL(t *testing.T) {
	client := NewClient("https://api.gigboard.dev")
	tr := client.Realtime(nil)
	assert.Equal(t, "wss://api.gigboard.dev/socket?userId=u1", tr.SocketURL(Session{UserID: "u1"}))
}

func TestClientNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		w.Write([]byte(`[{"_id":"n1","title":"Contract signed","message":"c1","read":false}]`))
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL+"/"))
	list, err := client.Notifications.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Contract signed", list[0].Title)
	assert.False(t, list[0].Read)
}
