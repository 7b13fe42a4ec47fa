package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/models"
	"github.com/your-org/pixelmind/internal/phash"
	"github.com/your-org/pixelmind/internal/storage"
	"github.com/your-org/pixelmind/pkg/dto"
)

type AssetHandler struct {
	assets   AssetStore
	blobs    BlobStore
	producer TaskPublisher
}

func NewAssetHandler(assets AssetStore, blobs BlobStore, producer TaskPublisher) *AssetHandler {
	return &AssetHandler{assets: assets, blobs: blobs, producer: producer}
}

// Register records an uploaded original as pending and enqueues it.
func (h *AssetHandler) Register(c *gin.Context) {
	var req dto.RegisterAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FileID == "" {
		req.FileID = uuid.NewString()
	}

	ctx := c.Request.Context()
	_, contentType, err := h.blobs.StatObject(ctx, req.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "original not found in blob store"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if req.MimeType == "" {
		req.MimeType = contentType
	}

	asset := &models.MediaAsset{
		ID:       req.FileID,
		OwnerID:  req.OwnerID,
		BlobKey:  req.BlobKey,
		MimeType: req.MimeType,
	}
	if err := h.assets.CreateAsset(ctx, asset); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if !h.enqueue(c, asset) {
		return
	}
	c.JSON(http.StatusAccepted, toAssetResponse(asset))
}

// Process re-enqueues an existing asset. Assets already processing are refused.
func (h *AssetHandler) Process(c *gin.Context) {
	ctx := c.Request.Context()
	asset, ok := h.load(c, c.Param("id"))
	if !ok {
		return
	}
	if asset.ProcessingStatus == models.StatusProcessing {
		c.JSON(http.StatusConflict, gin.H{"error": "asset is already processing"})
		return
	}

	pending, empty := models.StatusPending, ""
	if err := h.assets.UpdateAsset(ctx, asset.ID, models.AssetUpdate{
		ProcessingStatus: &pending,
		ProcessingError:  &empty,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	asset.ProcessingStatus = pending
	asset.ProcessingError = ""

	if !h.enqueue(c, asset) {
		return
	}
	c.JSON(http.StatusAccepted, toAssetResponse(asset))
}

func (h *AssetHandler) enqueue(c *gin.Context, asset *models.MediaAsset) bool {
	task := models.AssetTask{
		FileID:     asset.ID,
		OwnerID:    asset.OwnerID,
		BlobKey:    asset.BlobKey,
		MimeType:   asset.MimeType,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.producer.PublishTask(c.Request.Context(), task); err != nil {
		slog.Error("enqueue asset", "file_id", asset.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue asset"})
		return false
	}
	return true
}

func (h *AssetHandler) List(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	assets, total, err := h.assets.ListAssets(c.Request.Context(), q.OwnerID, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.AssetListResponse{
		Assets: make([]dto.AssetResponse, 0, len(assets)),
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for i := range assets {
		resp.Assets = append(resp.Assets, toAssetResponse(&assets[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AssetHandler) Get(c *gin.Context) {
	asset, ok := h.load(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toAssetResponse(asset))
}

func (h *AssetHandler) Thumbnail(c *gin.Context) {
	asset, ok := h.load(c, c.Param("id"))
	if !ok {
		return
	}
	if asset.ThumbnailKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "thumbnail not generated"})
		return
	}

	data, err := h.blobs.GetObject(c.Request.Context(), asset.ThumbnailKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thumbnail not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, imaging.ThumbnailContentType, data)
}

// Compare returns the fused fingerprint similarity of two processed assets.
func (h *AssetHandler) Compare(c *gin.Context) {
	a, ok := h.load(c, c.Param("id"))
	if !ok {
		return
	}
	b, ok := h.load(c, c.Param("otherId"))
	if !ok {
		return
	}
	for _, asset := range []*models.MediaAsset{a, b} {
		if !asset.Trusted() || asset.PerceptualHash == "" {
			c.JSON(http.StatusConflict, gin.H{"error": "asset has no fingerprints yet", "asset_id": asset.ID})
			return
		}
	}

	cmp, err := phash.Compare(hashSet(a), hashSet(b))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.CompareResponse{
		AssetID:         a.ID,
		OtherID:         b.ID,
		PHashDistance:   cmp.PHashDistance,
		PHashSimilarity: cmp.PHash,
		AHashSimilarity: cmp.AHash,
		DHashSimilarity: cmp.DHash,
		Average:         cmp.Average,
		IsDuplicate:     cmp.IsDuplicate,
	})
}

func hashSet(a *models.MediaAsset) phash.Set {
	return phash.Set{
		PHash: phash.Hash(a.PerceptualHash),
		AHash: phash.Hash(a.AverageHash),
		DHash: phash.Hash(a.DifferenceHash),
	}
}

// load fetches an asset, writing a 404 or 500 when it cannot be returned.
func (h *AssetHandler) load(c *gin.Context, id string) (*models.MediaAsset, bool) {
	asset, err := h.assets.GetAsset(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found", "asset_id": id})
		return nil, false
	}
	return asset, true
}
