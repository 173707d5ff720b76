// Package pipeline runs the per-frame recognition chain: detect faces on a
// downscaled frame, filter spoofed ones, embed the live crops, resolve each
// embedding against the gallery and smooth the matches through a vote window.
// One Pipeline instance serves exactly one stream; the only shared state it
// touches (model clients, gallery) is read-only.
package pipeline

import (
	"context"
	"log"

	"github.com/cloodei/apt-attendance/internal/config"
	"github.com/cloodei/apt-attendance/internal/gallery"
	"github.com/cloodei/apt-attendance/internal/inference"
	"github.com/cloodei/apt-attendance/internal/vision"
)

// Sighting is a vote-confirmed identity observation, ready to be fed to the
// attendance tracker.
type Sighting struct {
	StudentID  int64
	Similarity float64
	FrameSeq   uint64
}

type Pipeline struct {
	locator  inference.FaceLocator
	spoof    inference.SpoofClassifier
	embedder inference.FaceEmbedder
	resolver gallery.Resolver
	votes    *VoteBuffer
	cfg      config.PipelineConfig
	logger   *log.Logger
}

func New(
	locator inference.FaceLocator,
	spoof inference.SpoofClassifier,
	embedder inference.FaceEmbedder,
	resolver gallery.Resolver,
	cfg config.PipelineConfig,
	logger *log.Logger,
) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		locator:  locator,
		spoof:    spoof,
		embedder: embedder,
		resolver: resolver,
		votes:    NewVoteBuffer(cfg.Vote.Window),
		cfg:      cfg,
		logger:   logger,
	}
}

// ProcessFrame runs one frame through the full chain and returns any
// sightings confirmed by the vote window. Failures of a single face (bad
// crop, model error) are logged and skipped so one face never blocks the
// rest of the frame; only a failed detection call aborts the frame.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame *vision.Frame) ([]Sighting, error) {
	small := vision.Downscale(frame, p.cfg.Detection.Downscale)

	encoded, err := vision.EncodeJPEG(small.Image)
	if err != nil {
		return nil, err
	}

	detections, err := p.locator.DetectFaces(ctx, encoded)
	if err != nil {
		return nil, err
	}

	// Detection ran on the downscaled frame; everything after works at the
	// original resolution.
	scale := 1.0
	if small.Width > 0 && small.Width != frame.Width {
		scale = float64(frame.Width) / float64(small.Width)
	}

	var sightings []Sighting
	for _, det := range detections {
		if det.Score < p.cfg.Detection.MinConfidence {
			continue
		}

		box := det.Box.Clip(small.Width, small.Height)
		if box.Empty() {
			continue
		}
		faceBox := box.Rescale(scale).Clip(frame.Width, frame.Height)
		if faceBox.Empty() {
			continue
		}

		live, err := p.checkLiveness(ctx, frame, faceBox)
		if err != nil {
			p.logger.Printf("frame %d: liveness check failed: %v", frame.Seq, err)
			continue
		}
		if !live {
			continue
		}

		match, err := p.resolveFace(ctx, frame, faceBox)
		if err != nil {
			p.logger.Printf("frame %d: face resolution failed: %v", frame.Seq, err)
			continue
		}
		if !match.Known() {
			// Unknown faces never enter the vote window.
			continue
		}

		if winner, ok := p.votes.Push(match.StudentID); ok {
			sightings = append(sightings, Sighting{
				StudentID:  winner,
				Similarity: match.Similarity,
				FrameSeq:   frame.Seq,
			})
		}
	}

	return sightings, nil
}

// checkLiveness classifies an enlarged context patch around the face. The
// anti-spoofing model wants to see the face plus surroundings, hence the
// crop scale well above 1.
func (p *Pipeline) checkLiveness(ctx context.Context, frame *vision.Frame, faceBox vision.Box) (bool, error) {
	patchBox := faceBox.ScaleAround(p.cfg.Liveness.CropScale)
	patch, err := vision.Crop(frame, patchBox)
	if err != nil {
		return false, err
	}

	size := p.cfg.Liveness.PatchSize
	data, err := vision.EncodeJPEG(vision.ResizeTo(patch, size, size))
	if err != nil {
		return false, err
	}

	verdict, err := p.spoof.ClassifySpoof(ctx, data)
	if err != nil {
		return false, err
	}
	return verdict.Live(), nil
}

// resolveFace embeds the tight face crop and matches it against the gallery.
func (p *Pipeline) resolveFace(ctx context.Context, frame *vision.Frame, faceBox vision.Box) (gallery.Match, error) {
	crop, err := vision.Crop(frame, faceBox)
	if err != nil {
		return gallery.Unknown, err
	}

	size := p.cfg.Embedding.InputSize
	data, err := vision.EncodeJPEG(vision.ResizeTo(crop, size, size))
	if err != nil {
		return gallery.Unknown, err
	}

	embedding, err := p.embedder.EmbedFace(ctx, data)
	if err != nil {
		return gallery.Unknown, err
	}

	return p.resolver.Resolve(ctx, embedding)
}

// VoteFill exposes the current vote window fill, used by stream status
// reporting.
func (p *Pipeline) VoteFill() int { return p.votes.Len() }
