package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/dto"
	"camwatch/internal/logger"
	"camwatch/internal/service/relay"
)

// bodyOverhead leaves room for the JSON envelope around the image data.
const bodyOverhead = 4 << 10

// PostFrameHandler stores the uploaded frame as the latest one for its camera.
func PostFrameHandler(frames *relay.RelayService, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxFrameBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxFrameBytes+bodyOverhead)
		}

		var upload dto.FrameUpload
		if err := json.NewDecoder(r.Body).Decode(&upload); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "Frame too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		var capturedAt time.Time
		if upload.Timestamp > 0 {
			capturedAt = time.UnixMilli(upload.Timestamp)
		}

		if err := frames.Put(upload.CameraID, upload.ImageData, capturedAt); err != nil {
			switch {
			case errors.Is(err, relay.ErrMissingPayload):
				writeError(w, http.StatusBadRequest, "No image data provided")
			case errors.Is(err, relay.ErrPayloadTooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "Frame too large")
			default:
				logger.Error("Error storing frame: %v", err)
				writeError(w, http.StatusInternalServerError, "Failed to store frame")
			}
			return
		}

		writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
	}
}

// GetFrameHandler returns the live frame for ?cameraId= or {"frame": null}.
func GetFrameHandler(frames *relay.RelayService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame, ok := frames.Get(r.URL.Query().Get("cameraId"))
		if !ok {
			writeJSON(w, http.StatusOK, dto.FrameResponse{})
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, dto.FrameResponse{Frame: &dto.FrameData{
			ImageData: frame.Payload,
			Timestamp: frame.CapturedAt.UnixMilli(),
		}})
	}
}

// SnapshotHandler serves the live frame of ?cameraId= as raw image bytes.
func SnapshotHandler(frames *relay.RelayService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cameraID := r.URL.Query().Get("cameraId")
		contentType, data, found, err := frames.Snapshot(cameraID)
		if !found {
			writeError(w, http.StatusNotFound, "No frame available")
			return
		}
		if err != nil {
			logger.Warning("Snapshot for camera %q is not an image: %v", frames.CameraID(cameraID), err)
			writeError(w, http.StatusNotFound, "No frame available")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
