// Package pipeline runs every analysis stage for one asset and merges the
// results into a single asset update.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/pixelmind/internal/faces"
	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/labels"
	"github.com/your-org/pixelmind/internal/metadata"
	"github.com/your-org/pixelmind/internal/models"
	"github.com/your-org/pixelmind/internal/observability"
	"github.com/your-org/pixelmind/internal/palette"
	"github.com/your-org/pixelmind/internal/phash"
	"github.com/your-org/pixelmind/internal/quality"
)

const (
	StageMetadata  = "metadata"
	StageLabels    = "labels"
	StageFaces     = "faces"
	StageHash      = "hash"
	StageQuality   = "quality"
	StageColors    = "colors"
	StageThumbnail = "thumbnail"
)

// Stages lists every fan-out stage. An asset is complete only when all of
// them produced a result.
var Stages = []string{StageMetadata, StageLabels, StageFaces, StageHash, StageQuality, StageColors, StageThumbnail}

// BlobStore holds originals and generated thumbnails.
type BlobStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// AssetRepository applies partial updates; only supplied fields change.
type AssetRepository interface {
	UpdateAsset(ctx context.Context, id string, u models.AssetUpdate) error
}

// Clusterer folds detected faces into the owner's person registry.
type Clusterer interface {
	Assign(ctx context.Context, ownerID, assetID string, obs []models.FaceObservation) ([]faces.Match, error)
}

// FrameExtractor reduces a video to one still frame.
type FrameExtractor interface {
	Extract(ctx context.Context, video []byte) ([]byte, error)
}

// Deps are the collaborators a Pipeline needs. Labeler, Faces and Clusterer
// may be built over disabled backends; their stages then report no result.
type Deps struct {
	Blobs     BlobStore
	Assets    AssetRepository
	Labeler   *labels.Labeler
	Faces     *faces.Analyzer
	Clusterer Clusterer
	Palette   *palette.Extractor
	Frames    FrameExtractor
	// Metadata defaults to metadata.Extract.
	Metadata func([]byte) metadata.Metadata
}

type Options struct {
	Thumbnail        imaging.ThumbnailOptions
	MaxOriginalBytes int64
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Metadata == nil {
		deps.Metadata = metadata.Extract
	}
	if deps.Palette == nil {
		deps.Palette = palette.New()
	}
	if deps.Labeler == nil {
		deps.Labeler = labels.NewLabeler(nil)
	}
	if deps.Faces == nil {
		deps.Faces = faces.NewAnalyzer(nil)
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Outcome summarises one run. Err is set only when the final state could not
// be persisted, in which case the task should be redelivered.
type Outcome struct {
	Status    models.ProcessingStatus
	Failure   error
	Completed []string
	Failed    []*StageError
	Labels    []string
	SceneType string
	FaceCount int
	Matches   []faces.Match
	Duration  time.Duration
	Err       error
}

// ProcessAsset runs the whole pipeline for task. It always returns; the
// Outcome status says how far the run got. Cancellation of ctx is not
// propagated into an in-flight run.
func (p *Pipeline) ProcessAsset(ctx context.Context, task models.AssetTask) Outcome {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	log := slog.With("file_id", task.FileID, "owner_id", task.OwnerID)

	observability.ActiveWorkers.Inc()
	defer observability.ActiveWorkers.Dec()

	// 1. Mark processing
	processing := models.StatusProcessing
	if err := p.deps.Assets.UpdateAsset(ctx, task.FileID, models.AssetUpdate{ProcessingStatus: &processing}); err != nil {
		return Outcome{Status: models.StatusPending, Err: fmt.Errorf("mark processing: %w", err), Duration: time.Since(start)}
	}

	// 2. Download and decode once
	original, buf, aerr := p.load(ctx, task)
	if aerr != nil {
		log.Error("asset failed", "step", aerr.Step, "error", aerr.Err)
		out := Outcome{Status: models.StatusFailed, Failure: aerr}
		out.Err = p.markFailed(ctx, task.FileID, aerr)
		out.Duration = time.Since(start)
		observability.AssetsProcessed.WithLabelValues(string(out.Status)).Inc()
		return out
	}

	// 3. Fan out every stage against the shared read-only buffer
	res := p.runStages(ctx, task, original, buf)

	// 4. Merge into one update
	out := Outcome{
		Completed: res.completed(),
		Failed:    res.failures(),
		Labels:    res.labels.Labels,
		SceneType: res.labels.SceneType,
		FaceCount: len(res.faces),
	}
	out.Status = models.StatusComplete
	if len(out.Completed) < len(Stages) {
		out.Status = models.StatusPartial
	}
	for _, se := range out.Failed {
		log.Warn("stage produced no result", "stage", se.Stage, "error", se.Err)
	}

	update := res.update(buf)
	update.ProcessingStatus = &out.Status
	empty := ""
	update.ProcessingError = &empty

	if err := p.deps.Assets.UpdateAsset(ctx, task.FileID, update); err != nil {
		out.Err = fmt.Errorf("persist results: %w", err)
		out.Duration = time.Since(start)
		return out
	}

	// 5. Person clustering, scoped to this owner
	if len(res.faces) > 0 && p.deps.Clusterer != nil {
		cstart := time.Now()
		matches, err := p.deps.Clusterer.Assign(ctx, task.OwnerID, task.FileID, res.faces)
		observability.StageDuration.WithLabelValues("clustering").Observe(time.Since(cstart).Seconds())
		if err != nil {
			observability.StageFailures.WithLabelValues("clustering", "error").Inc()
			log.Error("face clustering", "error", err)
		}
		out.Matches = matches
	}

	out.Duration = time.Since(start)
	observability.AssetsProcessed.WithLabelValues(string(out.Status)).Inc()
	log.Info("asset processed",
		"status", out.Status,
		"completed", len(out.Completed),
		"faces", out.FaceCount,
		"duration", out.Duration,
	)
	return out
}

func (p *Pipeline) load(ctx context.Context, task models.AssetTask) ([]byte, *imaging.PixelBuffer, *AssetError) {
	original, err := p.deps.Blobs.GetObject(ctx, task.BlobKey)
	if err != nil {
		return nil, nil, &AssetError{Step: "download", Err: err}
	}
	if p.opts.MaxOriginalBytes > 0 && int64(len(original)) > p.opts.MaxOriginalBytes {
		return nil, nil, &AssetError{Step: "download", Err: fmt.Errorf("original is %d bytes, limit %d", len(original), p.opts.MaxOriginalBytes)}
	}

	raster := original
	mime := task.MimeType
	if mime == "" {
		mime = http.DetectContentType(original)
	}
	if imaging.IsVideo(mime) {
		if p.deps.Frames == nil {
			return nil, nil, &AssetError{Step: "decode", Err: errors.New("video input without frame extractor")}
		}
		raster, err = p.deps.Frames.Extract(ctx, original)
		if err != nil {
			return nil, nil, &AssetError{Step: "decode", Err: fmt.Errorf("extract keyframe: %w", err)}
		}
	}

	buf, err := imaging.Decode(raster)
	if err != nil {
		return nil, nil, &AssetError{Step: "decode", Err: err}
	}
	return original, buf, nil
}

func (p *Pipeline) markFailed(ctx context.Context, fileID string, aerr *AssetError) error {
	status := models.StatusFailed
	msg := aerr.Error()
	if err := p.deps.Assets.UpdateAsset(ctx, fileID, models.AssetUpdate{
		ProcessingStatus: &status,
		ProcessingError:  &msg,
	}); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// stageResults holds one slot per stage. Each stage goroutine writes only its
// own slot; errgroup.Wait orders those writes before the merge reads them.
type stageResults struct {
	ok   map[string]bool
	errs map[string]*StageError

	metadata  metadata.Metadata
	labels    labels.Result
	faces     []models.FaceObservation
	facesRan  bool
	hashes    phash.Set
	quality   int
	colors    []string
	thumbnail string
}

func (p *Pipeline) runStages(ctx context.Context, task models.AssetTask, original []byte, buf *imaging.PixelBuffer) *stageResults {
	res := &stageResults{}
	outcomes := make([]stageOutcome, len(Stages))

	stageFns := map[string]func() (bool, error){
		StageMetadata: func() (bool, error) {
			res.metadata = p.deps.Metadata(original)
			return !res.metadata.Empty(), nil
		},
		StageLabels: func() (bool, error) {
			r, err := p.deps.Labeler.Label(ctx, buf)
			if err != nil {
				return false, err
			}
			res.labels = r
			return true, nil
		},
		StageFaces: func() (bool, error) {
			obs, err := p.deps.Faces.Detect(ctx, buf)
			if err != nil {
				return false, err
			}
			res.faces = obs
			res.facesRan = true
			return len(obs) > 0, nil
		},
		StageHash: func() (bool, error) {
			set, err := phash.Compute(buf)
			if err != nil {
				return false, err
			}
			res.hashes = set
			return true, nil
		},
		StageQuality: func() (bool, error) {
			res.quality = quality.Score(buf)
			return true, nil
		},
		StageColors: func() (bool, error) {
			res.colors = p.deps.Palette.Extract(buf)
			return len(res.colors) > 0, nil
		},
		StageThumbnail: func() (bool, error) {
			data, err := imaging.Thumbnail(buf, p.opts.Thumbnail)
			if err != nil {
				return false, err
			}
			key := imaging.ThumbnailKey(task.OwnerID, task.FileID)
			if err := p.deps.Blobs.PutObject(ctx, key, data, imaging.ThumbnailContentType); err != nil {
				return false, fmt.Errorf("store thumbnail: %w", err)
			}
			res.thumbnail = key
			return true, nil
		},
	}

	var g errgroup.Group
	for i, name := range Stages {
		fn := stageFns[name]
		g.Go(func() error {
			outcomes[i] = runStage(name, fn)
			return nil
		})
	}
	_ = g.Wait()

	res.ok = make(map[string]bool, len(Stages))
	res.errs = make(map[string]*StageError)
	for i, name := range Stages {
		res.ok[name] = outcomes[i].ok
		if outcomes[i].err != nil {
			res.errs[name] = outcomes[i].err
		}
	}
	return res
}

type stageOutcome struct {
	ok  bool
	err *StageError
}

// runStage converts a stage's error or panic into "no result".
func runStage(name string, fn func() (bool, error)) (out stageOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			observability.StageFailures.WithLabelValues(name, "panic").Inc()
			out = stageOutcome{err: &StageError{Stage: name, Err: fmt.Errorf("panic: %v", r)}}
		}
		observability.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	ok, err := fn()
	if err != nil {
		observability.StageFailures.WithLabelValues(name, "error").Inc()
		return stageOutcome{err: &StageError{Stage: name, Err: err}}
	}
	if !ok {
		observability.StageFailures.WithLabelValues(name, "empty").Inc()
	}
	return stageOutcome{ok: ok}
}

func (r *stageResults) completed() []string {
	var out []string
	for _, name := range Stages {
		if r.ok[name] {
			out = append(out, name)
		}
	}
	return out
}

func (r *stageResults) failures() []*StageError {
	var out []*StageError
	for _, name := range Stages {
		if se, ok := r.errs[name]; ok {
			out = append(out, se)
		}
	}
	return out
}

// update builds the merge from every stage that produced a result.
func (r *stageResults) update(buf *imaging.PixelBuffer) models.AssetUpdate {
	u := models.AssetUpdate{
		Width:  &buf.Width,
		Height: &buf.Height,
	}

	if r.ok[StageMetadata] {
		md := r.metadata
		u.TakenAt = md.TakenAt
		u.Location = md.Location
		u.Flash = md.Flash
		u.Camera = nonEmpty(md.Camera)
		u.Lens = nonEmpty(md.Lens)
		u.FocalLength = nonEmpty(md.FocalLength)
		u.Aperture = nonEmpty(md.Aperture)
		u.ExposureTime = nonEmpty(md.ExposureTime)
		if md.ISO > 0 {
			u.ISO = &md.ISO
		}
		if md.Orientation > 0 {
			u.Orientation = &md.Orientation
		}
	}

	if r.ok[StageLabels] {
		u.Labels = append([]string{}, r.labels.Labels...)
		u.SceneType = &r.labels.SceneType
	}

	// A clean run with zero faces is still a fact worth recording.
	if r.facesRan {
		n := len(r.faces)
		u.FaceCount = &n
		u.Faces = append([]models.FaceObservation{}, r.faces...)
	}

	if r.ok[StageHash] {
		ph, ah, dh := string(r.hashes.PHash), string(r.hashes.AHash), string(r.hashes.DHash)
		u.PerceptualHash, u.AverageHash, u.DifferenceHash = &ph, &ah, &dh
	}

	if r.ok[StageQuality] {
		q := r.quality
		u.QualityScore = &q
	}

	if r.ok[StageColors] {
		u.DominantColors = r.colors
	}

	if r.ok[StageThumbnail] {
		u.ThumbnailKey = &r.thumbnail
	}
	return u
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
