package service

import (
	"context"
	"fmt"

	"github.com/faucetdb/quotagate/internal/config"
)

const imagesUpstream = "images"

// ImageService generates images through an OpenAI-compatible images API.
// It holds no state between calls and never retries.
type ImageService struct {
	client *jsonClient
	cfg    config.ImagesConfig
}

// NewImageService returns a client for the image backend described by cfg.
func NewImageService(cfg config.ImagesConfig, opts ...Option) *ImageService {
	return &ImageService{
		client: newJSONClient(imagesUpstream, cfg.BaseURL, cfg.APIKey, cfg.Timeout, opts),
		cfg:    cfg,
	}
}

type imageRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate requests exactly one image for prompt and returns its URL.
func (s *ImageService) Generate(ctx context.Context, prompt string) (string, error) {
	size := s.cfg.Size
	if size == "" {
		size = "1024x1024"
	}
	req := imageRequest{
		Model:          s.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           size,
		ResponseFormat: "url",
	}

	var resp imageResponse
	if err := s.client.postJSON(ctx, "/v1/images/generations", req, &resp); err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("generate image: %w", ErrUpstreamEmpty)
	}
	return resp.Data[0].URL, nil
}
