package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cloodei/apt-attendance/internal/vision"
)

const defaultModelServerURL = "http://localhost:8000"

// Client is an HTTP client for the model server. It implements FaceLocator,
// SpoofClassifier and FaceEmbedder over a single shared connection pool, so
// the underlying models are loaded exactly once for the process lifetime.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a model server client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultModelServerURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// detectResponse represents the response from the face detection endpoint.
type detectResponse struct {
	FacesCount int `json:"faces_count"`
	Faces      []struct {
		BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
		DetScore float64   `json:"det_score"`
	} `json:"faces"`
}

// spoofResponse represents the response from the liveness endpoint.
type spoofResponse struct {
	Probs []float32 `json:"probs"`
}

// embedResponse represents the response from the face embedding endpoint.
type embedResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and posts
// it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectFaces localizes faces in the frame. Zero detections is not an error;
// it returns an empty slice.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/detect/faces", imageData)
	if err != nil {
		return nil, err
	}

	var detResp detectResponse
	if err := json.Unmarshal(body, &detResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detections := make([]Detection, 0, len(detResp.Faces))
	for _, f := range detResp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		detections = append(detections, Detection{
			Box: vision.Box{
				X1: int(f.BBox[0]),
				Y1: int(f.BBox[1]),
				X2: int(f.BBox[2]),
				Y2: int(f.BBox[3]),
			},
			Score: f.DetScore,
		})
	}
	return detections, nil
}

// ClassifySpoof runs the anti-spoofing model on an 80x80 face patch.
func (c *Client) ClassifySpoof(ctx context.Context, patchData []byte) (SpoofVerdict, error) {
	var verdict SpoofVerdict

	body, err := c.postMultipartImage(ctx, "/classify/spoof", patchData)
	if err != nil {
		return verdict, err
	}

	var spResp spoofResponse
	if err := json.Unmarshal(body, &spResp); err != nil {
		return verdict, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(spResp.Probs) != len(verdict) {
		return verdict, fmt.Errorf("expected %d class probabilities, got %d", len(verdict), len(spResp.Probs))
	}

	copy(verdict[:], spResp.Probs)
	return verdict, nil
}

// EmbedFace computes the identity embedding of a 160x160 face crop.
func (c *Client) EmbedFace(ctx context.Context, cropData []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", cropData)
	if err != nil {
		return nil, err
	}

	var embResp embedResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	return embResp.Embedding, nil
}
