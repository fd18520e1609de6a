package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/campaignboard/internal/campaigns"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 15 * time.Second
	// isoMillisLayout matches the millisecond UTC timestamps browsers emit.
	isoMillisLayout = "2006-01-02T15:04:05.000Z07:00"
	paramCampaignID = "id"
	paramPostID     = "postId"
)

var errMissingCampaignService = errors.New("campaign service dependency required")

type Dependencies struct {
	CampaignService   *campaigns.Service
	Realtime          *RealtimeDispatcher
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.CampaignService == nil {
		return nil, errMissingCampaignService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	handler := &httpHandler{
		campaigns:         deps.CampaignService,
		realtime:          deps.Realtime,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/campaigns", handler.handleListCampaigns)
	router.POST("/campaigns", handler.handleCreateCampaign)
	router.GET("/campaigns/:id", handler.handleGetCampaign)
	router.DELETE("/campaigns/:id", handler.handleDeleteCampaign)
	router.GET("/campaigns/:id/posts", handler.handleListPosts)
	router.POST("/campaigns/:id/posts", handler.handleCreatePost)
	router.DELETE("/campaigns/:id/posts/:postId", handler.handleDeletePost)
	router.GET("/activities", handler.handleListActivities)
	router.GET("/state", handler.handleSnapshot)
	if deps.Realtime != nil {
		router.GET("/events", handler.handleEventStream)
	}

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Cache-Control", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

type httpHandler struct {
	campaigns         *campaigns.Service
	realtime          *RealtimeDispatcher
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

type campaignRequestPayload struct {
	Name      string `json:"name"`
	Goal      string `json:"goal"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type campaignPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Goal      string `json:"goal"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	CreatedAt string `json:"createdAt"`
}

type postRequestPayload struct {
	Platform     string `json:"platform"`
	Caption      string `json:"caption"`
	ScheduleDate string `json:"scheduleDate"`
}

type postPayload struct {
	ID           string `json:"id"`
	CampaignID   string `json:"campaignId"`
	Platform     string `json:"platform"`
	Caption      string `json:"caption"`
	ScheduleDate string `json:"scheduleDate"`
}

type activityPayload struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	CampaignID   string `json:"campaignId"`
	CampaignName string `json:"campaignName,omitempty"`
	PostID       string `json:"postId,omitempty"`
	Platform     string `json:"platform,omitempty"`
	Timestamp    string `json:"timestamp"`
}

type deleteResponsePayload struct {
	Success bool `json:"success"`
}

type snapshotPayload struct {
	Campaigns  []campaignPayload        `json:"campaigns"`
	Posts      map[string][]postPayload `json:"posts"`
	Activities []activityPayload        `json:"activities"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleListCampaigns(c *gin.Context) {
	list, err := h.campaigns.ListCampaigns(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err, "list_campaigns_failed")
		return
	}
	c.JSON(http.StatusOK, newCampaignPayloads(list))
}

func (h *httpHandler) handleCreateCampaign(c *gin.Context) {
	var request campaignRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	campaign, err := h.campaigns.CreateCampaign(c.Request.Context(), campaigns.CampaignFields{
		Name:      request.Name,
		Goal:      request.Goal,
		StartDate: request.StartDate,
		EndDate:   request.EndDate,
	})
	if err != nil {
		h.writeServiceError(c, err, "create_campaign_failed")
		return
	}
	c.JSON(http.StatusOK, newCampaignPayload(campaign))
}

func (h *httpHandler) handleGetCampaign(c *gin.Context) {
	campaign, err := h.campaigns.GetCampaign(c.Request.Context(), c.Param(paramCampaignID))
	if err != nil {
		h.writeServiceError(c, err, "get_campaign_failed")
		return
	}
	c.JSON(http.StatusOK, newCampaignPayload(campaign))
}

func (h *httpHandler) handleDeleteCampaign(c *gin.Context) {
	deleted, err := h.campaigns.DeleteCampaign(c.Request.Context(), c.Param(paramCampaignID))
	if err != nil {
		h.writeServiceError(c, err, "delete_campaign_failed")
		return
	}
	c.JSON(http.StatusOK, deleteResponsePayload{Success: deleted})
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	posts, err := h.campaigns.ListPosts(c.Request.Context(), c.Param(paramCampaignID))
	if err != nil {
		h.writeServiceError(c, err, "list_posts_failed")
		return
	}
	c.JSON(http.StatusOK, newPostPayloads(posts))
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request postRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	post, err := h.campaigns.CreatePost(c.Request.Context(), c.Param(paramCampaignID), campaigns.PostFields{
		Platform:     request.Platform,
		Caption:      request.Caption,
		ScheduleDate: request.ScheduleDate,
	})
	if err != nil {
		h.writeServiceError(c, err, "create_post_failed")
		return
	}
	c.JSON(http.StatusOK, newPostPayload(post))
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	deleted, err := h.campaigns.DeletePost(c.Request.Context(), c.Param(paramCampaignID), c.Param(paramPostID))
	if err != nil {
		h.writeServiceError(c, err, "delete_post_failed")
		return
	}
	c.JSON(http.StatusOK, deleteResponsePayload{Success: deleted})
}

func (h *httpHandler) handleListActivities(c *gin.Context) {
	activities, err := h.campaigns.ListActivities(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err, "list_activities_failed")
		return
	}
	c.JSON(http.StatusOK, newActivityPayloads(activities))
}

func (h *httpHandler) handleSnapshot(c *gin.Context) {
	snapshot, err := h.campaigns.Snapshot(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err, "snapshot_failed")
		return
	}
	response := snapshotPayload{
		Campaigns:  newCampaignPayloads(snapshot.Campaigns),
		Posts:      make(map[string][]postPayload, len(snapshot.Posts)),
		Activities: newActivityPayloads(snapshot.Activities),
	}
	for campaignID, posts := range snapshot.Posts {
		response.Posts[campaignID] = newPostPayloads(posts)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) writeServiceError(c *gin.Context, err error, fallback string) {
	body := gin.H{"error": fallback}
	var serviceErr *campaigns.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if errors.Is(err, campaigns.ErrCampaignNotFound) {
		body["error"] = "not_found"
		c.JSON(http.StatusNotFound, body)
		return
	}
	h.logger.Error("campaign request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, body)
}

func newCampaignPayload(campaign campaigns.Campaign) campaignPayload {
	return campaignPayload{
		ID:        campaign.ID,
		Name:      campaign.Name,
		Goal:      campaign.Goal,
		StartDate: campaign.StartDate,
		EndDate:   campaign.EndDate,
		CreatedAt: formatTimestamp(campaign.CreatedAt),
	}
}

func newCampaignPayloads(list []campaigns.Campaign) []campaignPayload {
	result := make([]campaignPayload, 0, len(list))
	for _, campaign := range list {
		result = append(result, newCampaignPayload(campaign))
	}
	return result
}

func newPostPayload(post campaigns.Post) postPayload {
	return postPayload{
		ID:           post.ID,
		CampaignID:   post.CampaignID,
		Platform:     post.Platform,
		Caption:      post.Caption,
		ScheduleDate: post.ScheduleDate,
	}
}

func newPostPayloads(posts []campaigns.Post) []postPayload {
	result := make([]postPayload, 0, len(posts))
	for _, post := range posts {
		result = append(result, newPostPayload(post))
	}
	return result
}

func newActivityPayload(activity campaigns.Activity) activityPayload {
	return activityPayload{
		ID:           activity.ID,
		Type:         string(activity.Type),
		CampaignID:   activity.CampaignID,
		CampaignName: activity.CampaignName,
		PostID:       activity.PostID,
		Platform:     activity.Platform,
		Timestamp:    formatTimestamp(activity.Timestamp),
	}
}

func newActivityPayloads(activities []campaigns.Activity) []activityPayload {
	result := make([]activityPayload, 0, len(activities))
	for _, activity := range activities {
		result = append(result, newActivityPayload(activity))
	}
	return result
}

func formatTimestamp(value time.Time) string {
	return value.UTC().Format(isoMillisLayout)
}
