package metadata

import (
	"os"
	"path/filepath"
	"strings"
)

// sidecarExtensions are tried in order next to the audio file
var sidecarExtensions = []string{".lrc", ".LRC"}

// SidecarPaths lists the candidate lyric files for an audio file
func SidecarPaths(audioPath string) []string {
	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	paths := make([]string, len(sidecarExtensions))
	for i, ext := range sidecarExtensions {
		paths[i] = base + ext
	}
	return paths
}

// IsSidecarFor reports whether candidate is a sidecar lyric file of audioPath
func IsSidecarFor(audioPath, candidate string) bool {
	candidate = filepath.Clean(candidate)
	for _, p := range SidecarPaths(audioPath) {
		if filepath.Clean(p) == candidate {
			return true
		}
	}
	return false
}

// ReadSidecar returns the text of the first readable, non-empty sidecar
// file and its path. Read failures count as "no sidecar".
func ReadSidecar(audioPath string) (string, string, bool) {
	for _, p := range SidecarPaths(audioPath) {
		data, err := os.ReadFile(p)
		if err != nil || len(data) == 0 {
			continue
		}
		return string(data), p, true
	}
	return "", "", false
}
