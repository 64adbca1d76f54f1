package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"lyrebird/internal/metadata"

	"github.com/sirupsen/logrus"
)

const maxPathsPerRequest = 500

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as the response body
func (ps *PlayerServer) respondJSON(w http.ResponseWriter, v interface{}) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ps.logger.WithError(err).Debug("Failed to encode response")
	}
}

// respondWithValidationError sends a structured validation error response
func (ps *PlayerServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	ps.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	result := ValidationResult{
		Valid:  false,
		Errors: errors,
	}

	ps.respondJSON(w, result)
}

// respondWithError sends a structured error response
func (ps *PlayerServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ps.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	}

	ps.respondJSON(w, response)
}

// validateIndex parses a playlist index and checks it against length
func (ps *PlayerServer) validateIndex(raw string, length int) (int, *ValidationError) {
	if raw == "" {
		return 0, &ValidationError{
			Field:   "index",
			Message: "Playlist index is required",
			Code:    "MISSING_INDEX",
		}
	}

	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{
			Field:   "index",
			Message: "Playlist index must be a valid integer",
			Code:    "INVALID_INDEX_FORMAT",
		}
	}

	if index < 0 || index >= length {
		return 0, &ValidationError{
			Field:   "index",
			Message: fmt.Sprintf("Playlist index must be between 0 and %d", length-1),
			Code:    "INDEX_OUT_OF_RANGE",
		}
	}

	return index, nil
}

// validateSeekPosition rejects positions that can't be clamped meaningfully.
// Out-of-range finite values are clamped by the transport.
func (ps *PlayerServer) validateSeekPosition(position *float64) *ValidationError {
	if position == nil {
		return &ValidationError{
			Field:   "position",
			Message: "Seek position is required",
			Code:    "MISSING_POSITION",
		}
	}

	if math.IsNaN(*position) || math.IsInf(*position, 0) {
		return &ValidationError{
			Field:   "position",
			Message: "Seek position must be a finite number",
			Code:    "INVALID_POSITION",
		}
	}

	return nil
}

// validateFilePath ensures a path names an existing regular file. The path
// is checked exactly as given; file names may legitimately carry spaces.
func (ps *PlayerServer) validateFilePath(filePath string) *ValidationError {
	if filePath == "" || strings.Contains(filePath, "\x00") {
		return &ValidationError{
			Field:   "paths",
			Message: "Invalid file path",
			Code:    "INVALID_FILE_PATH",
		}
	}

	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return &ValidationError{
			Field:   "paths",
			Message: "Invalid file path",
			Code:    "INVALID_FILE_PATH",
		}
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return &ValidationError{
			Field:   "paths",
			Message: fmt.Sprintf("File not found: %s", filePath),
			Code:    "FILE_NOT_FOUND",
		}
	}
	if info.IsDir() {
		return &ValidationError{
			Field:   "paths",
			Message: fmt.Sprintf("Not a file: %s", filePath),
			Code:    "NOT_A_FILE",
		}
	}

	return nil
}

// validateContentType checks the extension against the allow-list
func (ps *PlayerServer) validateContentType(filePath string) *ValidationError {
	ext := strings.ToLower(filepath.Ext(filePath))

	if !metadata.IsAudioFile(filePath, ps.config.Player.SupportedFormats) {
		return &ValidationError{
			Field:   "paths",
			Message: fmt.Sprintf("Unsupported file type: %s", ext),
			Code:    "UNSUPPORTED_FILE_TYPE",
		}
	}

	return nil
}

// validatePaths checks a batch of paths for the playlist. Unsupported
// extensions are reported but not fatal; the transport filters them.
func (ps *PlayerServer) validatePaths(paths []string) []ValidationError {
	if len(paths) == 0 {
		return []ValidationError{{
			Field:   "paths",
			Message: "At least one path is required",
			Code:    "MISSING_PATHS",
		}}
	}
	if len(paths) > maxPathsPerRequest {
		return []ValidationError{{
			Field:   "paths",
			Message: fmt.Sprintf("Too many paths (max %d)", maxPathsPerRequest),
			Code:    "TOO_MANY_PATHS",
		}}
	}

	var errs []ValidationError
	for _, p := range paths {
		if verr := ps.validateFilePath(p); verr != nil {
			errs = append(errs, *verr)
		}
	}
	return errs
}

// sanitizeInput cleans free-text input such as renderer names. It must
// not be applied to file paths.
func sanitizeInput(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}
