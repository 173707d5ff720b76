package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/cloodei/apt-attendance/internal/config"
	"github.com/cloodei/apt-attendance/internal/gallery"
	"github.com/cloodei/apt-attendance/internal/inference"
	"github.com/cloodei/apt-attendance/internal/vision"
)

type fakeLocator struct {
	detections []inference.Detection
	err        error
	calls      int
}

func (f *fakeLocator) DetectFaces(_ context.Context, _ []byte) ([]inference.Detection, error) {
	f.calls++
	return f.detections, f.err
}

type fakeSpoof struct {
	verdict inference.SpoofVerdict
	err     error
	calls   int
}

func (f *fakeSpoof) ClassifySpoof(_ context.Context, _ []byte) (inference.SpoofVerdict, error) {
	f.calls++
	return f.verdict, f.err
}

type fakeEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) EmbedFace(_ context.Context, _ []byte) ([]float32, error) {
	f.calls++
	return f.embedding, f.err
}

type fakeResolver struct {
	matches []gallery.Match
	err     error
	calls   int
}

func (f *fakeResolver) Resolve(_ context.Context, _ []float32) (gallery.Match, error) {
	call := f.calls
	f.calls++
	if f.err != nil {
		return gallery.Unknown, f.err
	}
	if call < len(f.matches) {
		return f.matches[call], nil
	}
	return f.matches[len(f.matches)-1], nil
}

var liveVerdict = inference.SpoofVerdict{0.1, 0.8, 0.1}

// faceAt builds a detection in downscaled-frame coordinates.
func faceAt(x1, y1, x2, y2 int, score float64) inference.Detection {
	return inference.Detection{
		Box:   vision.Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Score: score,
	}
}

func newTestPipeline(loc *fakeLocator, sp *fakeSpoof, emb *fakeEmbedder, res *fakeResolver) *Pipeline {
	cfg := config.Load().Pipeline
	return New(loc, sp, emb, res, cfg, log.New(io.Discard, "", 0))
}

func TestProcessFrameFiltersLowConfidence(t *testing.T) {
	loc := &fakeLocator{detections: []inference.Detection{
		faceAt(10, 10, 40, 40, 0.5),
		faceAt(50, 50, 80, 80, 0.89),
	}}
	sp := &fakeSpoof{verdict: liveVerdict}
	emb := &fakeEmbedder{embedding: []float32{1, 0}}
	res := &fakeResolver{matches: []gallery.Match{{StudentID: 1, Similarity: 0.9}}}

	p := newTestPipeline(loc, sp, emb, res)
	frame := vision.Placeholder(200, 200, 1)

	if _, err := p.ProcessFrame(context.Background(), frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.calls != 0 {
		t.Errorf("expected no liveness checks for low-confidence faces, got %d", sp.calls)
	}
	if emb.calls != 0 {
		t.Errorf("expected no embeddings for low-confidence faces, got %d", emb.calls)
	}
}

func TestProcessFrameSkipsDegenerateBoxes(t *testing.T) {
	loc := &fakeLocator{detections: []inference.Detection{
		faceAt(40, 40, 40, 80, 0.99),   // zero width
		faceAt(-50, -50, -10, -10, 0.99), // fully outside the frame
	}}
	sp := &fakeSpoof{verdict: liveVerdict}
	emb := &fakeEmbedder{embedding: []float32{1, 0}}
	res := &fakeResolver{matches: []gallery.Match{{StudentID: 1, Similarity: 0.9}}}

	p := newTestPipeline(loc, sp, emb, res)

	if _, err := p.ProcessFrame(context.Background(), vision.Placeholder(200, 200, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.calls != 0 {
		t.Errorf("expected degenerate boxes to be discarded, got %d liveness checks", sp.calls)
	}
}

func TestProcessFrameSpoofedFaceNeverVotes(t *testing.T) {
	loc := &fakeLocator{detections: []inference.Detection{faceAt(10, 10, 40, 40, 0.99)}}
	sp := &fakeSpoof{verdict: inference.SpoofVerdict{0.8, 0.1, 0.1}}
	emb := &fakeEmbedder{embedding: []float32{1, 0}}
	res := &fakeResolver{matches: []gallery.Match{{StudentID: 1, Similarity: 0.9}}}

	p := newTestPipeline(loc, sp, emb, res)

	for i := 0; i < 10; i++ {
		sightings, err := p.ProcessFrame(context.Background(), vision.Placeholder(200, 200, uint64(i)))
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if len(sightings) != 0 {
			t.Fatalf("frame %d: spoofed face produced sighting %+v", i, sightings)
		}
	}
	if emb.calls != 0 {
		t.Errorf("expected no embeddings for spoofed faces, got %d", emb.calls)
	}
}

func TestProcessFrameUnknownMatchNeverVotes(t *testing.T) {
	loc := &fakeLocator{detections: []inference.Detection{faceAt(10, 10, 40, 40, 0.99)}}
	sp := &fakeSpoof{verdict: liveVerdict}
	emb := &fakeEmbedder{embedding: []float32{1, 0}}
	res := &fakeResolver{matches: []gallery.Match{gallery.Unknown}}

	p := newTestPipeline(loc, sp, emb, res)

	for i := 0; i < 10; i++ {
		sightings, err := p.ProcessFrame(context.Background(), vision.Placeholder(200, 200, uint64(i)))
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if len(sightings) != 0 {
			t.Fatalf("frame %d: unknown match produced sighting %+v", i, sightings)
		}
	}
	if p.VoteFill() != 0 {
		t.Errorf("expected empty vote window, got fill %d", p.VoteFill())
	}
}

func TestProcessFrameEmitsAfterVoteWindow(t *testing.T) {
	loc := &fakeLocator{detections: []inference.Detection{faceAt(10, 10, 40, 40, 0.99)}}
	sp := &fakeSpoof{verdict: liveVerdict}
	emb := &fakeEmbedder{embedding: []float32{1, 0}}
	res := &fakeResolver{matches: []gallery.Match{
		{StudentID: 42, Similarity: 0.9},
		{StudentID: 7, Similarity: 0.7},
		{StudentID: 42, Similarity: 0.88},
		{StudentID: 42, Similarity: 0.91},
		{StudentID: 9, Similarity: 0.66},
	}}

	p := newTestPipeline(loc, sp, emb, res)

	var all []Sighting
	for i := 0; i < 5; i++ {
		sightings, err := p.ProcessFrame(context.Background(), vision.Placeholder(200, 200, uint64(i)))
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		all = append(all, sightings...)
		if i < 4 && len(all) != 0 {
			t.Fatalf("frame %d: emitted before the vote window filled", i)
		}
	}

	if len(all) != 1 {
		t.Fatalf("expected exactly one sighting, got %d", len(all))
	}
	if all[0].StudentID != 42 {
		t.Errorf("expected majority identity 42, got %d", all[0].StudentID)
	}
	if all[0].FrameSeq != 4 {
		t.Errorf("expected sighting on frame 4, got %d", all[0].FrameSeq)
	}
	if p.VoteFill() != 0 {
		t.Errorf("expected vote window cleared after emit, got fill %d", p.VoteFill())
	}
}

func TestProcessFramePropagatesDetectionError(t *testing.T) {
	loc := &fakeLocator{err: errors.New("model server unavailable")}
	p := newTestPipeline(loc, &fakeSpoof{}, &fakeEmbedder{}, &fakeResolver{matches: []gallery.Match{gallery.Unknown}})

	if _, err := p.ProcessFrame(context.Background(), vision.Placeholder(200, 200, 1)); err == nil {
		t.Fatal("expected detection error to abort the frame")
	}
}

func TestProcessFrameToleratesPerFaceErrors(t *testing.T) {
	loc := &fakeLocator{detections: []inference.Detection{
		faceAt(10, 10, 40, 40, 0.99),
		faceAt(50, 50, 80, 80, 0.99),
	}}
	sp := &fakeSpoof{verdict: liveVerdict}
	emb := &fakeEmbedder{err: errors.New("embedding failed")}
	res := &fakeResolver{matches: []gallery.Match{{StudentID: 1, Similarity: 0.9}}}

	p := newTestPipeline(loc, sp, emb, res)

	sightings, err := p.ProcessFrame(context.Background(), vision.Placeholder(200, 200, 1))
	if err != nil {
		t.Fatalf("expected per-face errors to be swallowed, got %v", err)
	}
	if len(sightings) != 0 {
		t.Fatalf("expected no sightings, got %+v", sightings)
	}
	if emb.calls != 2 {
		t.Errorf("expected both faces attempted, got %d embed calls", emb.calls)
	}
	if res.calls != 0 {
		t.Errorf("expected no gallery lookups after failed embeddings, got %d", res.calls)
	}
}
