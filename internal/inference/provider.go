// Package inference talks to the model server hosting the face detector, the
// anti-spoofing classifier and the identity embedding network. The models are
// loaded once by the server and shared read-only across all streams; clients
// are safe for concurrent use.
package inference

import (
	"context"

	"github.com/cloodei/apt-attendance/internal/vision"
)

// LiveClassIndex is the class the anti-spoofing model assigns to a live
// subject. The model outputs three classes (print spoof, live, replay spoof)
// in a model-specific order; argmax at this index means live.
const LiveClassIndex = 1

// Detection is one localized face with its detector confidence in [0, 1].
type Detection struct {
	Box   vision.Box
	Score float64
}

// SpoofVerdict is the 3-class probability vector of the liveness model.
type SpoofVerdict [3]float32

// Live reports whether the argmax class is the live one.
func (v SpoofVerdict) Live() bool {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best == LiveClassIndex
}

// FaceLocator detects faces in an encoded frame.
type FaceLocator interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error)
}

// SpoofClassifier decides real-vs-spoof for a fixed-size face patch.
type SpoofClassifier interface {
	ClassifySpoof(ctx context.Context, patchData []byte) (SpoofVerdict, error)
}

// FaceEmbedder converts a fixed-size face crop into an identity embedding.
type FaceEmbedder interface {
	EmbedFace(ctx context.Context, cropData []byte) ([]float32, error)
}
