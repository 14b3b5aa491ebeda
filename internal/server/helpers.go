package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/cwbudde/tampercheck/internal/errs"
	"github.com/cwbudde/tampercheck/internal/imageio"
)

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrImageMissing), errors.Is(err, ErrAlignRunning), errors.Is(err, ErrNoSuggestion):
		return http.StatusConflict
	}

	switch errs.KindOf(err) {
	case errs.InvalidTransform, errs.DimensionMismatch, errs.EmptyRegion:
		return http.StatusBadRequest
	case errs.OutOfBounds:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// uploadStatus maps an image decoding failure to 413 when a size limit was
// hit and 400 otherwise.
func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || errors.Is(err, imageio.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// writeError reports err with the status statusFor picks.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// readUploadedImage decodes an image sent either as the "image" field of a
// multipart form or as the raw request body. It returns the file name when
// one was given. Images above maxPixels fail with imageio.ErrTooLarge.
func readUploadedImage(r *http.Request, maxPixels int64) (*image.NRGBA, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, "", fmt.Errorf("missing image field: %w", err)
		}
		defer file.Close()

		img, err := imageio.DecodeMax(file, maxPixels)
		if err != nil {
			return nil, "", err
		}
		return img, header.Filename, nil
	}

	img, err := imageio.DecodeMax(r.Body, maxPixels)
	if err != nil {
		return nil, "", err
	}
	return img, "", nil
}

// sortSessions orders sessions by creation time.
func sortSessions(list []Session) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
