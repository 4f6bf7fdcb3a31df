package gigboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationSurface(t *testing.T) {
	t.Run("toasts dismiss themselves", func(t *testing.T) {
		s := NewNotificationSurface(&SurfaceOptions{TTL: 20 * time.Millisecond})
		dismissed := make(chan Toast, 1)
		s.OnDismiss(func(t Toast) { dismissed <- t })

		shown := s.Push(Toast{Kind: ToastNotification, Title: "Payment released"})
		require.NotEmpty(t, shown.ID)
		assert.Len(t, s.Active(), 1)

		select {
		case got := <-dismissed:
			assert.Equal(t, shown.ID, got.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("toast was not dismissed")
		}
		assert.Empty(t, s.Active())
	})

	t.Run("bursts are not coalesced", func(t *testing.T) {
		s := NewNotificationSurface(&SurfaceOptions{TTL: time.Minute})
		defer s.Close()
		for i := 0; i < 5; i++ {
			s.Push(Toast{Kind: ToastMessage, Title: DefaultMessageTitle, Body: "same"})
		}
		assert.Equal(t, 5, s.Shown())
		assert.Len(t, s.Active(), 5)
	})

	t.Run("manual dismiss", func(t *testing.T) {
		s := NewNotificationSurface(nil)
		defer s.Close()
		a := s.Push(Toast{Title: "a"})
		b := s.Push(Toast{Title: "b"})

		assert.True(t, s.Dismiss(a.ID))
		assert.False(t, s.Dismiss(a.ID))
		active := s.Active()
		require.Len(t, active, 1)
		assert.Equal(t, b.ID, active[0].ID)
	})

	t.Run("show hook sees every toast", func(t *testing.T) {
		s := NewNotificationSurface(nil)
		defer s.Close()
		var titles []string
		s.OnShow(func(t Toast) { titles = append(titles, t.Title) })
		s.Push(Toast{Title: "x"})
		s.Push(Toast{Title: "y"})
		assert.Equal(t, []string{"x", "y"}, titles)
	})
}

func TestNotificationSurfaceReplaceAndClose(t *testing.T) {
	t.Run("pushing an active id replaces it", func(t *testing.T) {
		s := NewNotificationSurface(&SurfaceOptions{TTL: 200 * time.Millisecond})
		defer s.Close()

		s.Push(Toast{ID: "contract-7", Title: "Milestone funded"})
		time.Sleep(120 * time.Millisecond)
		s.Push(Toast{ID: "contract-7", Title: "Milestone released"})

		active := s.Active()
		require.Len(t, active, 1)
		assert.Equal(t, "Milestone released", active[0].Title)

		time.Sleep(120 * time.Millisecond)
		assert.Len(t, s.Active(), 1, "first timer must not dismiss the replacement")

		require.Eventually(t, func() bool { return len(s.Active()) == 0 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("push after close is dropped", func(t *testing.T) {
		s := NewNotificationSurface(nil)
		s.Close()
		s.Push(Toast{Title: "late"})
		assert.Equal(t, 0, s.Shown())
		assert.Empty(t, s.Active())
	})
}
