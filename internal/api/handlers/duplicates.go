package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pixelmind/internal/phash"
	"github.com/your-org/pixelmind/pkg/dto"
)

type DuplicateHandler struct {
	assets    AssetStore
	threshold int
}

// NewDuplicateHandler groups with threshold unless a request overrides it.
func NewDuplicateHandler(assets AssetStore, threshold int) *DuplicateHandler {
	return &DuplicateHandler{assets: assets, threshold: threshold}
}

// List groups an owner's processed assets by perceptual-hash distance.
func (h *DuplicateHandler) List(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}

	threshold := h.threshold
	if v := c.Query("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > phash.Bits {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be an integer between 0 and 64"})
			return
		}
		threshold = n
	}

	hashes, err := h.assets.ListHashes(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]phash.Item, 0, len(hashes))
	for _, ah := range hashes {
		items = append(items, phash.Item{ID: ah.ID, Hash: phash.Hash(ah.PHash)})
	}

	groups := phash.GroupDuplicates(items, threshold)
	resp := dto.DuplicatesResponse{
		Groups:    make([]dto.DuplicateGroup, 0, len(groups)),
		Threshold: threshold,
		Scanned:   len(items),
	}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, dto.DuplicateGroup{AnchorID: g.Anchor, AssetIDs: g.Members})
	}
	c.JSON(http.StatusOK, resp)
}
