// Package media provides flat-priced services: image generation and web
// search.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

const imageModel = "dall-e-3"

// Supported sizes and qualities.
const (
	SizeSquare    = "1024x1024"
	SizeLandscape = "1792x1024"
	SizePortrait  = "1024x1792"

	QualityStandard = "standard"
	QualityHD       = "hd"
)

// ImageRequest describes one image to generate.
type ImageRequest struct {
	Prompt  string `json:"prompt" validate:"required,max=4000"`
	Size    string `json:"size,omitempty" validate:"omitempty,oneof=1024x1024 1792x1024 1024x1792"`
	Quality string `json:"quality,omitempty" validate:"omitempty,oneof=standard hd"`
}

// GeneratedImage is one image returned by the provider.
type GeneratedImage struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageResult is the outcome of Generate.
type ImageResult struct {
	Created time.Time           `json:"created"`
	Images  []GeneratedImage    `json:"data"`
	Usage   pricing.UsageRecord `json:"usage"`
}

// ImageService generates images with the OpenAI Images API.
type ImageService struct {
	client   openai.Client
	registry *registry.Registry
	logger   *zap.Logger
}

// NewImageService creates an image service billed against reg.
func NewImageService(apiKey string, reg *registry.Registry, logger *zap.Logger, opts ...option.RequestOption) (*ImageService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if reg == nil {
		reg = registry.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &ImageService{
		client:   openai.NewClient(reqOpts...),
		registry: reg,
		logger:   logger,
	}, nil
}

// Normalize fills in the default size and quality.
func (r ImageRequest) Normalize() ImageRequest {
	if r.Size == "" {
		r.Size = SizeSquare
	}
	if r.Quality == "" {
		r.Quality = QualityStandard
	}
	return r
}

// Cost returns the flat usage of generating req without calling upstream.
func (s *ImageService) Cost(req ImageRequest) (pricing.UsageRecord, error) {
	credits, err := pricing.ComputeFlat(s.registry, registry.UnitImage, req.Normalize().Quality)
	if err != nil {
		return pricing.UsageRecord{}, err
	}
	return pricing.FlatUsage(credits), nil
}

// Generate creates one image. Usage is only produced on success.
func (s *ImageService) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	req = req.Normalize()
	if err := adapter.ValidateStruct(req); err != nil {
		return nil, err
	}
	usage, err := s.Cost(req)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(imageModel),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(req.Size),
		Quality:        openai.ImageGenerateParamsQuality(req.Quality),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat("url"),
	})
	if err != nil {
		return nil, adapter.ClassifyOpenAI(err)
	}

	out := &ImageResult{
		Created: time.Unix(resp.Created, 0).UTC(),
		Images:  make([]GeneratedImage, 0, len(resp.Data)),
		Usage:   usage,
	}
	for _, img := range resp.Data {
		out.Images = append(out.Images, GeneratedImage{URL: img.URL, RevisedPrompt: img.RevisedPrompt})
	}

	s.logger.Info("image generated",
		zap.String("size", req.Size),
		zap.String("quality", req.Quality),
		zap.Int64("cost_credits", usage.CostCredits))
	return out, nil
}
