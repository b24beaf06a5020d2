package models

// APIResponse is the envelope returned by the collection API.
type APIResponse[T any] struct {
	Result  T      `json:"result" validate:"required"`
	Message string `json:"message,omitempty"`
}

// SubmitResult is what the collection API answers for an accepted task.
type SubmitResult struct {
	TaskID     string `json:"task_id"`
	ReceivedAt int64  `json:"received_at"`
}

// AssetResult is what the collection API answers for an uploaded asset.
type AssetResult struct {
	AssetID string `json:"asset_id"`
	URL     string `json:"url"`
}
