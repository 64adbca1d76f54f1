package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// UnknownArtist is used when a file carries no artist tag
const UnknownArtist = "Unknown"

// DefaultFormats is the audio extension allow-list
var DefaultFormats = []string{".mp3", ".wav", ".flac", ".m4a"}

// Tags is what could be read from the audio file itself.
type Tags struct {
	Title     string
	Artist    string
	Album     string
	Duration  float64 // seconds
	Cover     []byte
	CoverMIME string
	Lyrics    string // embedded lyric frame, raw text
	FileSize  int64
}

// Heuristics corrects durations that containers misreport: a file shorter
// than ShortDuration seconds but larger than LargeFileBytes is assumed to
// be mis-tagged and its duration re-estimated as size / BytesPerSecond.
type Heuristics struct {
	ShortDuration  float64
	LargeFileBytes int64
	BytesPerSecond int64
}

// DefaultHeuristics returns the 15s / 1MiB / 16KiB-per-second defaults
func DefaultHeuristics() Heuristics {
	return Heuristics{
		ShortDuration:  15,
		LargeFileBytes: 1024 * 1024,
		BytesPerSecond: 16 * 1024,
	}
}

// Correct applies the heuristic to a reported duration
func (h Heuristics) Correct(duration float64, size int64) float64 {
	if h.BytesPerSecond <= 0 {
		return duration
	}
	if duration < h.ShortDuration && size > h.LargeFileBytes {
		return float64(size) / float64(h.BytesPerSecond)
	}
	return duration
}

// Extractor handles metadata extraction from audio files
type Extractor struct {
	supportedFormats []string
	heuristics       Heuristics
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, heuristics Heuristics, logger *logrus.Logger) *Extractor {
	if len(supportedFormats) == 0 {
		supportedFormats = DefaultFormats
	}
	return &Extractor{
		supportedFormats: supportedFormats,
		heuristics:       heuristics,
		logger:           logger,
	}
}

// Extract reads tags and duration from an audio file. The returned Tags
// always carry a usable title and artist, even alongside an error.
func (e *Extractor) Extract(filePath string) (Tags, error) {
	startTime := time.Now()

	tags := Tags{
		Title:  titleFromPath(filePath),
		Artist: UnknownArtist,
	}

	file, err := os.Open(filePath)
	if err != nil {
		return tags, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return tags, fmt.Errorf("failed to stat audio file: %w", err)
	}
	tags.FileSize = stat.Size()

	duration, err := e.calculateDuration(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Debug("Failed to calculate duration, setting to 0")
		duration = 0
	}
	tags.Duration = e.heuristics.Correct(duration, tags.FileSize)

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		// Untagged files keep the filename defaults
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Debug("No readable tags, using filename")
		return tags, nil
	}

	if title := strings.TrimSpace(metadata.Title()); title != "" {
		tags.Title = title
	}
	if artist := strings.TrimSpace(metadata.Artist()); artist != "" {
		tags.Artist = artist
	}
	tags.Album = strings.TrimSpace(metadata.Album())
	tags.Lyrics = metadata.Lyrics()

	if picture := metadata.Picture(); picture != nil && len(picture.Data) > 0 {
		tags.Cover = picture.Data
		tags.CoverMIME = CoverMIME(picture.Data)
	}

	e.logger.WithFields(logrus.Fields{
		"filePath":       filePath,
		"title":          tags.Title,
		"artist":         tags.Artist,
		"duration":       tags.Duration,
		"hasCover":       tags.Cover != nil,
		"hasLyrics":      tags.Lyrics != "",
		"processingTime": time.Since(startTime),
	}).Debug("Successfully extracted metadata")

	return tags, nil
}

func titleFromPath(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// calculateDuration calculates the duration of an audio file in seconds
func (e *Extractor) calculateDuration(filePath string) (float64, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".wav":
		return e.durationWAV(filePath)
	case ".m4a":
		return e.durationM4A(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// MP3 duration using frame decoding; fall back to a bitrate estimate only
// if no frame decodes at all.
func (e *Extractor) durationMP3(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return e.estimateFromFileSize(path, 192000)
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		frames++
	}
	return total.Seconds(), nil
}

// FLAC duration via STREAMINFO metadata block
func (e *Extractor) durationFLAC(path string) (float64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return float64(si.NSamples) / float64(si.SampleRate), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration from the header and the PCM payload size
func (e *Extractor) durationWAV(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	pcmBytes := st.Size() - 44
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	return float64(sampleFrames) / float64(dec.SampleRate), nil
}

// M4A duration from the moov/mvhd atom. Best-effort atom scan.
func (e *Extractor) durationM4A(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}

		if string(head[4:8]) != "moov" {
			if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		limit := int64(size) - 8
		for read := int64(0); read < limit; {
			if _, err := io.ReadFull(f, head); err != nil {
				return 0, err
			}
			subSize := binary.BigEndian.Uint32(head[0:4])
			if string(head[4:8]) == "mvhd" {
				return readMVHD(f)
			}
			if subSize < 8 {
				return 0, fmt.Errorf("invalid sub-atom size")
			}
			if _, err := f.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += int64(subSize)
		}
		return 0, fmt.Errorf("mvhd atom not found")
	}
}

func readMVHD(r io.ReadSeeker) (float64, error) {
	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		return 0, err
	}

	// flags + creation + modification times
	skip := int64(3 + 4 + 4)
	if version[0] == 1 {
		skip = 3 + 8 + 8
	}
	if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
		return 0, err
	}

	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	timescale := binary.BigEndian.Uint32(buf)
	if timescale == 0 {
		return 0, fmt.Errorf("invalid timescale")
	}

	var units uint64
	if version[0] == 1 {
		buf = make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		units = binary.BigEndian.Uint64(buf)
	} else {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		units = uint64(binary.BigEndian.Uint32(buf))
	}
	return float64(units) / float64(timescale), nil
}

// estimateFromFileSize is the last resort when frames can't be parsed.
func (e *Extractor) estimateFromFileSize(path string, bitrate int) (float64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return float64(st.Size()*8) / float64(bitrate), nil
}

// IsAudioFile checks if a file is on the audio allow-list
func (e *Extractor) IsAudioFile(filePath string) bool {
	return IsAudioFile(filePath, e.supportedFormats)
}

// FilterAudioFiles keeps only allow-listed paths, preserving order
func (e *Extractor) FilterAudioFiles(paths []string) []string {
	return FilterAudioFiles(paths, e.supportedFormats)
}

// IsAudioFile checks filePath's extension against formats
func IsAudioFile(filePath string, formats []string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range formats {
		if ext == strings.ToLower(format) {
			return true
		}
	}
	return false
}

// FilterAudioFiles keeps only paths whose extension is in formats
func FilterAudioFiles(paths []string, formats []string) []string {
	var out []string
	for _, p := range paths {
		if IsAudioFile(p, formats) {
			out = append(out, p)
		}
	}
	return out
}

// CoverMIME guesses the MIME type of image data
func CoverMIME(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	if data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 {
		return "image/gif"
	}

	return "application/octet-stream"
}
