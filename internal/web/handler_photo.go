package web

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/roofmanager/fieldsync/internal/geo"
	"github.com/roofmanager/fieldsync/internal/service"
)

const maxPhotoSize = 50 * 1024 * 1024 // 50 MB

const maxCaptionLen = 500

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniffing algorithm (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// parsePosition reads optional latitude/longitude form fields. Both or
// neither must be present.
func parsePosition(r *http.Request) (*geo.Position, error) {
	latStr := strings.TrimSpace(r.FormValue("latitude"))
	lngStr := strings.TrimSpace(r.FormValue("longitude"))
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, badRequest("invalid latitude")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, badRequest("invalid longitude")
	}
	return &geo.Position{Latitude: lat, Longitude: lng}, nil
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize+1<<20)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		s.writeError(w, r, badRequest("failed to parse form"))
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, r, badRequest("image file required"))
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("read upload failed", "job_id", jobID, "error", err)
		s.writeError(w, r, err)
		return
	}

	mimeType, ok := allowedImageMIME(imageData)
	if !ok {
		s.writeError(w, r, badRequest("unsupported image format"))
		return
	}

	caption := strings.TrimSpace(r.FormValue("caption"))
	if len(caption) > maxCaptionLen {
		s.writeError(w, r, badRequest("caption too long"))
		return
	}
	pos, err := parsePosition(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	photo, err := s.service.CapturePhoto(r.Context(), service.PhotoCapture{
		JobID:    jobID,
		MimeType: mimeType,
		Caption:  caption,
		Position: pos,
		Data:     bytes.NewReader(imageData),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

// handleListPhotos lists queued photos, optionally filtered by ?jobId=.
func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	photos := s.service.ListPhotos()
	if jobID := r.URL.Query().Get("jobId"); jobID != "" {
		filtered := photos[:0]
		for _, p := range photos {
			if p.JobID == jobID {
				filtered = append(filtered, p)
			}
		}
		photos = filtered
	}
	writeJSON(w, http.StatusOK, photos)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reader, mimeType, err := s.service.OpenPhoto(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "photo_id", id, "error", err)
	}
}

func (s *Server) handleMarkPhotoSynced(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkPhotoSynced(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemovePhoto(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
