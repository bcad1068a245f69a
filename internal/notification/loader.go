// Package notification loads per-user channel settings and fans a
// submission out to every channel sender.
package notification

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/exedis/omnicore-back/internal/models"
)

// SettingsReader reads settings and templates. Absent rows are returned as nil.
type SettingsReader interface {
	GetSettings(ctx context.Context, userID string, channel models.ChannelType) (*models.NotificationSettings, error)
	GetTemplate(ctx context.Context, userID string, t models.TemplateType) (*models.MessageTemplate, error)
}

// Bundle is what a sender needs for one channel. Either field may be nil.
type Bundle struct {
	Settings *models.NotificationSettings
	Template *models.MessageTemplate
}

// Bundles maps every channel to its bundle.
type Bundles map[models.ChannelType]Bundle

// Loader reads all channel settings and templates of a user at once.
type Loader struct {
	store    SettingsReader
	channels []models.ChannelType
}

func NewLoader(store SettingsReader) *Loader {
	return &Loader{store: store, channels: models.Channels}
}

// LoadAll issues every read concurrently. Every channel is present in the
// result, with nil fields for missing rows.
func (l *Loader) LoadAll(ctx context.Context, userID string) (Bundles, error) {
	var mu sync.Mutex
	out := make(Bundles, len(l.channels))
	for _, ch := range l.channels {
		out[ch] = Bundle{}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range l.channels {
		ch := ch
		g.Go(func() error {
			s, err := l.store.GetSettings(gctx, userID, ch)
			if err != nil {
				return fmt.Errorf("load %s settings: %w", ch, err)
			}
			mu.Lock()
			b := out[ch]
			b.Settings = s
			out[ch] = b
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			t, err := l.store.GetTemplate(gctx, userID, models.TemplateType(ch))
			if err != nil {
				return fmt.Errorf("load %s template: %w", ch, err)
			}
			mu.Lock()
			b := out[ch]
			b.Template = t
			out[ch] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
