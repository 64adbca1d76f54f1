package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lyrebird/internal/config"

	"github.com/sirupsen/logrus"
)

// Manager tries each provider in order until one answers.
type Manager struct {
	providers []Provider
	logger    *logrus.Logger
}

// NewManager creates a failover manager over providers
func NewManager(logger *logrus.Logger, providers ...Provider) *Manager {
	if len(providers) == 0 {
		logger.Warn("No remote providers configured")
	}
	return &Manager{providers: providers, logger: logger}
}

// FromConfig builds the provider chain named in cfg.Providers.
func FromConfig(cfg config.RemoteConfig, logger *logrus.Logger) *Manager {
	opts := DefaultOptions()
	opts.Timeout = cfg.Timeout()
	opts.MaxRetries = cfg.MaxRetries
	opts.UserAgent = cfg.UserAgent

	var providers []Provider
	for _, name := range cfg.Providers {
		switch name {
		case "netease":
			neteaseOpts := opts
			neteaseOpts.Cookie = cfg.NetEaseCookie
			providers = append(providers, NewNetEaseClient(cfg.NetEaseAPI, neteaseOpts, logger))
		case "lrclib":
			providers = append(providers, NewLRCLibClient(cfg.LRCLibURL, opts, logger))
		}
	}

	logger.WithField("providers", cfg.Providers).Info("Remote providers initialized")
	return NewManager(logger, providers...)
}

// Name lists the providers in failover order
func (m *Manager) Name() string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (m *Manager) SearchLyrics(ctx context.Context, title, artist string) (string, error) {
	var text string
	err := m.each(ctx, "lyrics", title, artist, func(p Provider) error {
		var err error
		text, err = p.SearchLyrics(ctx, title, artist)
		if err == nil && text == "" {
			err = ErrNotFound
		}
		return err
	})
	return text, err
}

func (m *Manager) SearchCover(ctx context.Context, title, artist string) ([]byte, error) {
	var data []byte
	err := m.each(ctx, "cover", title, artist, func(p Provider) error {
		var err error
		data, err = p.SearchCover(ctx, title, artist)
		if err == nil && len(data) == 0 {
			err = ErrNotFound
		}
		return err
	})
	return data, err
}

// each returns ErrNotFound only when every provider that was asked
// answered without a result. If any provider failed to answer, the last
// such failure is returned instead so callers can tell the two apart.
func (m *Manager) each(ctx context.Context, kind, title, artist string, try func(Provider) error) error {
	var failed error

	for i, p := range m.providers {
		err := try(p)
		if err == nil {
			m.logger.WithFields(logrus.Fields{
				"provider": p.Name(),
				"kind":     kind,
				"title":    title,
			}).Info("Remote lookup succeeded")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnsupported) {
			continue
		}

		entry := m.logger.WithFields(logrus.Fields{
			"provider": p.Name(),
			"kind":     kind,
			"title":    title,
			"artist":   artist,
			"attempt":  i + 1,
		})
		if errors.Is(err, ErrNotFound) {
			entry.Debug("Provider had no result")
			continue
		}
		entry.WithError(err).Warn("Provider failed")
		failed = err
	}

	if failed != nil {
		return fmt.Errorf("%s lookup failed: %w", kind, failed)
	}
	return ErrNotFound
}
