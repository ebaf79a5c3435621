package dto

// FrameUpload is the body of POST /api/camera/frame and /api/camera/upload.
// Timestamp is epoch milliseconds; 0 means "now".
type FrameUpload struct {
	CameraID  string `json:"cameraId"`
	ImageData string `json:"imageData"`
	Timestamp int64  `json:"timestamp"`
}

type FrameData struct {
	ImageData string `json:"imageData"`
	Timestamp int64  `json:"timestamp"`
}

// FrameResponse carries a nil Frame when nothing live is stored.
type FrameResponse struct {
	Frame *FrameData `json:"frame"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
