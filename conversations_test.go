package gigboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationStore(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch replaces the list", func(t *testing.T) {
		h := &stubHistory{pages: [][]Message{
			{{SenderID: "u2", Message: "one"}, {SenderID: "u2", Message: "two"}},
			{{SenderID: "u2", Message: "only"}},
		}}
		s := NewConversationStore(h, nil)

		require.NoError(t, s.FetchHistory(ctx, "u2"))
		require.Len(t, s.Messages("u2"), 2)
		require.NoError(t, s.FetchHistory(ctx, "u2"))

		msgs := s.Messages("u2")
		require.Len(t, msgs, 1)
		assert.Equal(t, "only", msgs[0].Message)
	})

	t.Run("append keeps arrival order", func(t *testing.T) {
		s := NewConversationStore(nil, nil)
		s.AppendIncoming("u2", Message{SenderID: "u2", Message: "first", SentAt: "2"})
		s.AppendIncoming("u2", Message{SenderID: "u2", Message: "second", SentAt: "1"})

		msgs := s.Messages("u2")
		require.Len(t, msgs, 2)
		assert.Equal(t, "first", msgs[0].Message)
		assert.Equal(t, "second", msgs[1].Message)
	})

	t.Run("append creates the conversation", func(t *testing.T) {
		s := NewConversationStore(nil, nil)
		assert.False(t, s.Has("u3"))
		s.AppendIncoming("u3", Message{SenderID: "u3", Message: "hi"})
		assert.True(t, s.Has("u3"))
		assert.Equal(t, []string{"u3"}, s.Counterparts())
	})

	t.Run("failed fetch keeps the stale list", func(t *testing.T) {
		h := &stubHistory{err: errors.New("offline")}
		s := NewConversationStore(h, nil)
		s.Replace("u2", []Message{{SenderID: "u2", Message: "cached"}})

		err := s.FetchHistory(ctx, "u2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "offline")
		assert.Len(t, s.Messages("u2"), 1)
	})

	t.Run("fetch without fetcher", func(t *testing.T) {
		s := NewConversationStore(nil, nil)
		assert.Error(t, s.FetchHistory(ctx, "u2"))
	})

	t.Run("returned lists are copies", func(t *testing.T) {
		s := NewConversationStore(nil, nil)
		s.AppendIncoming("u2", Message{Message: "a"})
		msgs := s.Messages("u2")
		msgs[0].Message = "changed"
		assert.Equal(t, "a", s.Messages("u2")[0].Message)
	})

	t.Run("change hook", func(t *testing.T) {
		s := NewConversationStore(nil, nil)
		var keys []string
		s.OnChange(func(id string) { keys = append(keys, id) })
		s.AppendIncoming("u2", Message{Message: "a"})
		s.Replace("u3", nil)
		assert.Equal(t, []string{"u2", "u3"}, keys)
	})
}
