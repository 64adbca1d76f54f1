package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/player"

	"github.com/hugolgst/rich-go/client"
	"github.com/sirupsen/logrus"
)

// Discord drops presence updates sent faster than this. Track and status
// changes go out immediately; lyric-only changes wait.
const minLyricInterval = 4 * time.Second

// A drift of the computed start time beyond this means the user seeked.
const seekDrift = 2 * time.Second

// Client is the part of the Discord IPC client the service drives
type Client interface {
	Login(applicationID string) error
	Logout()
	SetActivity(activity client.Activity) error
}

type ipcClient struct{}

func (ipcClient) Login(id string) error               { return client.Login(id) }
func (ipcClient) Logout()                             { client.Logout() }
func (ipcClient) SetActivity(a client.Activity) error { return client.SetActivity(a) }

// RPCService mirrors the player state into Discord Rich Presence: the
// current track, its progress bar and optionally the active lyric line.
type RPCService struct {
	config config.DiscordConfig
	client Client
	logger *logrus.Logger

	mu        sync.Mutex
	connected bool
	lastKey   string
	lastText  string
	lastStart time.Time
	lastSent  time.Time
}

// NewRPCService creates a new Discord RPC service
func NewRPCService(cfg config.DiscordConfig, logger *logrus.Logger) *RPCService {
	return newRPCService(cfg, ipcClient{}, logger)
}

func newRPCService(cfg config.DiscordConfig, c Client, logger *logrus.Logger) *RPCService {
	return &RPCService{
		config: cfg,
		client: c,
		logger: logger,
	}
}

// Connect initializes the Discord RPC connection
func (d *RPCService) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.config.Enabled || d.connected {
		return nil
	}

	if err := d.client.Login(d.config.ApplicationID); err != nil {
		return fmt.Errorf("failed to connect to Discord: %w", err)
	}

	d.connected = true
	d.logger.Info("Connected to Discord RPC")
	return nil
}

// Disconnect closes the Discord RPC connection
func (d *RPCService) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return
	}

	d.client.Logout()
	d.connected = false
	d.lastKey = ""
	d.logger.Info("Disconnected from Discord RPC")
}

// IsConnected returns whether Discord RPC is connected
func (d *RPCService) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Run publishes every state change until ctx ends. A Discord client that
// isn't running is not an error; presence just stays off.
func (d *RPCService) Run(ctx context.Context, states *player.StateManager) error {
	if !d.config.Enabled {
		return nil
	}

	if err := d.Connect(); err != nil {
		d.logger.WithError(err).Warn("Discord presence disabled")
		return nil
	}
	defer d.Disconnect()

	ch := states.Subscribe()
	defer states.Unsubscribe(ch)

	if err := d.Update(*states.GetState(), time.Now()); err != nil {
		d.logger.WithError(err).Debug("Presence update failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-ch:
			if !ok {
				return nil
			}
			if err := d.Update(*st, time.Now()); err != nil {
				d.logger.WithError(err).Debug("Presence update failed")
			}
		}
	}
}

// Update sends the activity for st if it differs enough from what Discord
// is already showing.
func (d *RPCService) Update(st player.State, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	activity, key := d.activityFor(st, now)

	var start time.Time
	if activity.Timestamps != nil {
		start = *activity.Timestamps.Start
	}

	switch {
	case key != d.lastKey:
	case absDuration(start.Sub(d.lastStart)) > seekDrift:
	case activity.State != d.lastText && now.Sub(d.lastSent) >= minLyricInterval:
	default:
		return nil
	}

	if err := d.client.SetActivity(activity); err != nil {
		return fmt.Errorf("failed to update Discord activity: %w", err)
	}

	d.lastKey = key
	d.lastText = activity.State
	d.lastStart = start
	d.lastSent = now
	return nil
}

// activityFor builds the presence for st. The key identifies changes that
// must be shown right away.
func (d *RPCService) activityFor(st player.State, now time.Time) (client.Activity, string) {
	if st.Track == nil || st.Status == player.StatusIdle {
		return client.Activity{
			Details:    "Not playing",
			State:      "Idle",
			LargeImage: d.config.LargeImageKey,
			LargeText:  "Lyrebird",
			SmallImage: "idle",
			SmallText:  "Idle",
		}, string(player.StatusIdle)
	}

	byline := "by " + st.Track.Artist
	if st.Track.Album != "" {
		byline = fmt.Sprintf("by %s • %s", st.Track.Artist, st.Track.Album)
	}

	activity := client.Activity{
		Details:    st.Track.Title,
		State:      byline,
		LargeImage: d.config.LargeImageKey,
		LargeText:  byline,
		SmallImage: "pause",
		SmallText:  "Paused",
	}

	if st.Status == player.StatusPlaying {
		activity.SmallImage = "play"
		activity.SmallText = "Playing"

		if d.config.ShowLyrics && st.ActiveLine >= 0 && st.ActiveText != "" {
			activity.State = st.ActiveText
		}

		if st.Duration > 0 {
			start := now.Add(-time.Duration(st.Position * float64(time.Second)))
			end := start.Add(time.Duration(st.Duration * float64(time.Second)))
			activity.Timestamps = &client.Timestamps{
				Start: &start,
				End:   &end,
			}
		}
	}

	return activity, string(st.Status) + "|" + st.Track.EntryID
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
