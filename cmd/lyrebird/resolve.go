package main

import (
	"fmt"
	"time"

	"lyrebird/internal/resolver"

	"github.com/spf13/cobra"
)

var (
	resolveWait bool
	resolveLRC  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file>",
	Short: "Show the metadata, lyrics and cover a track resolves to",
	Long: `Run the metadata fallback chain for one file: embedded tags, sidecar
lyric file, fallback cache and, with --wait, the remote providers. Remote
results are written to the fallback cache like during playback.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVarP(&resolveWait, "wait", "w", false, "also query remote providers for missing lyrics or cover")
	resolveCmd.Flags().BoolVar(&resolveLRC, "lrc", false, "print the lyric index in LRC form")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	rec := svc.resolver.Resolve(ctx, args[0])

	if resolveWait {
		req, needed := rec.RemoteRequest()
		switch {
		case !needed:
		case !svc.resolver.RemoteEnabled():
			svc.logger.Warn("Remote lookups are disabled in the configuration")
		default:
			start := time.Now()
			res := svc.resolver.FetchRemote(ctx, req)
			svc.logger.WithField("duration", time.Since(start).Round(time.Millisecond)).Debug("Remote lookup finished")
			if res.Lyrics != nil {
				rec.Lyrics = res.Lyrics
				rec.LyricsSource = resolver.SourceRemote
			}
			if len(res.Cover) > 0 {
				rec.SetCover(res.Cover, resolver.SourceRemote)
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title:    %s\n", rec.Title)
	fmt.Fprintf(out, "Artist:   %s\n", rec.Artist)
	if rec.Album != "" {
		fmt.Fprintf(out, "Album:    %s\n", rec.Album)
	}
	fmt.Fprintf(out, "Duration: %s\n", formatClock(rec.Duration))
	fmt.Fprintf(out, "Lyrics:   %d lines (%s)\n", rec.Lyrics.Len(), rec.LyricsSource)
	fmt.Fprintf(out, "Cover:    %s, %d bytes (%s), tint %s\n", rec.CoverMIME, len(rec.Cover), rec.CoverSource, rec.Tint)

	if resolveLRC && rec.Lyrics.Len() > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, rec.Lyrics.LRC())
	}
	return nil
}
