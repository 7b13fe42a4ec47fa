package dto

// ProcessedEvent reports that an asset reached a terminal processing state.
type ProcessedEvent struct {
	FileID    string   `json:"file_id"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
	FaceCount int      `json:"face_count"`
	Labels    []string `json:"labels,omitempty"`
	SceneType string   `json:"scene_type,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type    string         `json:"type"` // asset_processed
	OwnerID string         `json:"owner_id"`
	Data    ProcessedEvent `json:"data"`
}
