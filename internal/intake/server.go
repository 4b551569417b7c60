package intake

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"postline-bot/internal/posting"
)

// Handler exposes the intake and editorial operations over HTTP. The
// generation loop pushes payloads here; editors approve and reject through
// the same surface.
type Handler struct {
	intake  *Intake
	service *posting.Service
}

func NewHandler(intake *Intake, service *posting.Service) *Handler {
	return &Handler{intake: intake, service: service}
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
	}
	api.GET("/intake/needs", handler.GetNeeds)
	api.POST("/channels/:id/drafts", handler.CreateDraft)
	api.POST("/posts/:id/approve", handler.ApprovePost)
	api.POST("/posts/:id/reject", handler.RejectPost)
	api.POST("/posts/:id/rewrite", handler.RequestRewrite)
	api.POST("/posts/:id/rewrite/complete", handler.CompleteRewrite)

	return r
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetNeeds reports the per-channel draft deficit for the generation loop.
func (h *Handler) GetNeeds(c *gin.Context) {
	missing, err := h.intake.MissingDraftCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	needs := make(map[string]int, len(missing))
	for channelID, deficit := range missing {
		needs[channelID.Hex()] = deficit
	}
	c.JSON(http.StatusOK, gin.H{"needs": needs})
}

// CreateDraft accepts one raw generation payload (JSON, possibly wrapped in a
// markdown fence) and stores it as a draft for the channel.
func (h *Handler) CreateDraft(c *gin.Context) {
	channelID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	payload, err := ParsePayload(string(body))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	post, err := h.intake.CreateDraft(c.Request.Context(), channelID, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"post_id": post.ID.Hex(),
		"status":  string(post.Status),
	})
}

// ApprovePost moves a draft into the schedule.
func (h *Handler) ApprovePost(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	post, err := h.service.Approve(c.Request.Context(), postID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"status": string(post.Status)}
	if post.ScheduledAt != nil {
		resp["scheduled_at"] = post.ScheduledAt
	}
	if post.DupeScore != nil {
		resp["dupe_score"] = *post.DupeScore
	}
	c.JSON(http.StatusOK, resp)
}

// RejectPost marks a post rejected.
func (h *Handler) RejectPost(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	if err := h.service.Reject(c.Request.Context(), postID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "REJECTED"})
}

// RequestRewrite records a rewrite prompt for the post.
func (h *Handler) RequestRewrite(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.service.RequestRewrite(c.Request.Context(), postID, req.Prompt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

// CompleteRewrite applies the rewritten text delivered by the generation
// service.
func (h *Handler) CompleteRewrite(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.service.CompleteRewrite(c.Request.Context(), postID, req.Text); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
