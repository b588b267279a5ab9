package model

// GenerateImageRequest is the body accepted by POST /generate_image.
type GenerateImageRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateImageResponse is returned on a successful generation. RemainingCalls
// is the quota reported by the verification made before the upstream call, so
// it can be one unit stale when the backend decrements after generation.
type GenerateImageResponse struct {
	ImageURL       string `json:"image_url"`
	RemainingCalls *int   `json:"remaining_calls"`
}
