package relay

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/metrics"
	"camwatch/internal/model"
	"camwatch/internal/service/storage"
)

var (
	ErrMissingPayload  = errors.New("no image data provided")
	ErrPayloadTooLarge = errors.New("image data exceeds size limit")
	ErrNotDataURL      = errors.New("payload is not a base64 data URL")
	ErrNotImage        = errors.New("payload is not an image")
)

// RelayService is the producer/consumer face of the frame store.
type RelayService struct {
	store           *storage.FrameStore
	defaultCameraID string
	maxPayloadBytes int64
	logger          *logger.Logger
}

func NewRelayService(store *storage.FrameStore, config *config.Config, logger *logger.Logger) *RelayService {
	defaultID := model.DefaultCameraID
	var maxBytes int64
	if config != nil {
		if config.DefaultCameraID != "" {
			defaultID = config.DefaultCameraID
		}
		maxBytes = config.MaxFrameBytes
	}

	return &RelayService{
		store:           store,
		defaultCameraID: defaultID,
		maxPayloadBytes: maxBytes,
		logger:          logger,
	}
}

// Put stores payload as the latest frame of cameraID. It never returns the previous frame.
func (s *RelayService) Put(cameraID, payload string, capturedAt time.Time) error {
	if payload == "" {
		return ErrMissingPayload
	}
	if s.maxPayloadBytes > 0 && int64(len(payload)) > s.maxPayloadBytes {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	s.store.Put(s.CameraID(cameraID), payload, capturedAt)
	return nil
}

// Get returns the live frame of cameraID; a miss is not an error.
func (s *RelayService) Get(cameraID string) (model.Frame, bool) {
	frame, ok := s.store.Get(s.CameraID(cameraID))
	if ok {
		metrics.FrameReadsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.FrameReadsTotal.WithLabelValues("miss").Inc()
	}
	return frame, ok
}

// Snapshot decodes the live frame of cameraID into raw image bytes and their content type.
// Payloads that are not raster images are refused with ErrNotImage.
func (s *RelayService) Snapshot(cameraID string) (string, []byte, bool, error) {
	frame, ok := s.Get(cameraID)
	if !ok {
		return "", nil, false, nil
	}

	contentType, data, err := DecodeDataURL(frame.Payload)
	if err != nil {
		return "", nil, true, err
	}
	if !isImageType(contentType) {
		return "", nil, true, fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}
	return contentType, data, true, nil
}

// isImageType accepts raster image types only; SVG can carry script.
func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

// CameraID maps an empty id onto the default camera.
func (s *RelayService) CameraID(cameraID string) string {
	if cameraID = strings.TrimSpace(cameraID); cameraID == "" {
		return s.defaultCameraID
	}
	return cameraID
}

// LiveCameras lists cameras with an unexpired frame.
func (s *RelayService) LiveCameras() []string {
	return s.store.Cameras()
}

// EncodeDataURL wraps raw bytes the way browser clients send frames.
func EncodeDataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL parses "data:<type>;base64,<payload>".
func DecodeDataURL(payload string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(payload, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return contentType, data, nil
}
