package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"lyrebird/internal/audio"
	"lyrebird/internal/discord"
	"lyrebird/internal/metadata"
	"lyrebird/internal/player"
	"lyrebird/internal/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	playQuiet    bool
	playNoServer bool
)

var playCmd = &cobra.Command{
	Use:   "play [files or directories...]",
	Short: "Play files and print lyrics as they come up",
	Long: `Queue the given audio files (directories are searched recursively)
and start playing the first one. The renderer API is served alongside
unless disabled, so tracks can also be queued over HTTP.`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().BoolVarP(&playQuiet, "quiet", "q", false, "don't print lyrics to the terminal")
	playCmd.Flags().BoolVar(&playNoServer, "no-server", false, "don't start the renderer API")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer svc.Close()

	logger := svc.logger
	cfg := svc.cfg

	paths, err := collectTracks(args, cfg.Player.SupportedFormats)
	if err != nil {
		return err
	}
	if len(paths) == 0 && (playNoServer || !cfg.Server.Enabled) {
		return fmt.Errorf("no playable files given (supported: %v)", cfg.Player.SupportedFormats)
	}

	if !audio.Available {
		logger.Warn("Audio output is not available in this build; tracks will resolve but not play")
	}

	engine := audio.NewEngine(logger)
	transport := player.NewTransport(engine, svc.resolver, player.OptionsFromConfig(cfg.Player), logger)
	defer func() {
		if err := transport.Close(); err != nil {
			logger.WithError(err).Warn("Error closing player")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return transport.Run(ctx)
	})

	if cfg.Server.Enabled && !playNoServer {
		api := server.NewPlayerServer(cfg, transport, svc.db, svc.cache, logger)
		g.Go(func() error {
			return api.Start(ctx)
		})
	}

	presence := discord.NewRPCService(cfg.Discord, logger)
	g.Go(func() error {
		return presence.Run(ctx, transport.States())
	})

	if !playQuiet {
		g.Go(func() error {
			renderLyrics(ctx, transport, cmd.OutOrStdout())
			return nil
		})
	}

	if len(paths) > 0 {
		added, err := transport.Add(paths...)
		logger.WithField("tracks", added).Info("Playlist ready")
		if err != nil {
			logger.WithError(err).Warn("First track could not be started")
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Received shutdown signal")
	return nil
}

// collectTracks expands directories and keeps files with a supported
// extension, in a stable order.
func collectTracks(args []string, formats []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot open %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", arg, err)
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return metadata.FilterAudioFiles(paths, formats), nil
}

// renderLyrics prints the track header on every load and each lyric line
// as it becomes active.
func renderLyrics(ctx context.Context, transport *player.Transport, out io.Writer) {
	states := transport.States()
	ch := states.Subscribe()
	defer states.Unsubscribe(ch)

	lastEntry := ""
	lastLine := -1
	lastStatus := player.StatusIdle

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}

			if st.Track != nil && st.Track.EntryID != lastEntry && st.Status != player.StatusLoading {
				lastEntry = st.Track.EntryID
				lastLine = -1
				fmt.Fprintf(out, "\n▶ %s · %s [%d/%d] %s\n", st.Track.Title, st.Track.Artist,
					st.Index+1, st.Length, formatClock(st.Duration))
				if st.DecodeError != "" {
					fmt.Fprintf(out, "  cannot play: %s\n", st.DecodeError)
				}
			}

			if st.Status != lastStatus {
				switch st.Status {
				case player.StatusPaused:
					fmt.Fprintln(out, "  (paused)")
				case player.StatusIdle:
					if lastStatus == player.StatusPlaying {
						fmt.Fprintln(out, "  (stopped)")
					}
				}
				lastStatus = st.Status
			}

			if st.ActiveLine != lastLine && st.ActiveLine >= 0 {
				lastLine = st.ActiveLine
				fmt.Fprintf(out, "  %s  %s\n", formatClock(st.Position), st.ActiveText)
			}
		}
	}
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
