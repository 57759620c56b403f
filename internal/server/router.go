package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/directory"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/fault"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/participation"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/points"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/review"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/submissions"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const identityContextKey = "momentum_identity"

const defaultLeaderboardLimit = 10

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingDirectory      = errors.New("directory service dependency required")
	errMissingParticipations = errors.New("participation tracker dependency required")
	errMissingSubmissions    = errors.New("submission store dependency required")
	errMissingReviews        = errors.New("review service dependency required")
	errMissingLedger         = errors.New("points ledger dependency required")
	errMissingNotifications  = errors.New("notification service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns the identity it carries.
type TokenValidator interface {
	ValidateToken(token string) (auth.Identity, error)
}

// Dependencies wires the domain services into the HTTP surface.
type Dependencies struct {
	Tokens         TokenValidator
	Directory      *directory.Service
	Participations *participation.Tracker
	Submissions    *submissions.Store
	Reviews        *review.Service
	Ledger         *points.Ledger
	Notifications  *notifications.Service
	Realtime       *notifications.Dispatcher
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Directory == nil {
		return nil, errMissingDirectory
	}
	if deps.Participations == nil {
		return nil, errMissingParticipations
	}
	if deps.Submissions == nil {
		return nil, errMissingSubmissions
	}
	if deps.Reviews == nil {
		return nil, errMissingReviews
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:         deps.Tokens,
		directory:      deps.Directory,
		participations: deps.Participations,
		submissions:    deps.Submissions,
		reviews:        deps.Reviews,
		ledger:         deps.Ledger,
		notifications:  deps.Notifications,
		realtime:       deps.Realtime,
		logger:         logger,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	moderated := protected.Group("/")
	moderated.Use(handler.requireModerator)
	moderated.POST("/tenants", handler.handleCreateTenant)
	moderated.GET("/tenants", handler.handleListTenants)
	moderated.GET("/tenants/:tenantID/members", handler.handleListMembers)
	moderated.POST("/tenants/:tenantID/members", handler.handleCreateMember)
	moderated.POST("/tenants/:tenantID/circles", handler.handleCreateCircle)
	moderated.POST("/circles/:circleID/challenges", handler.handleCreateChallenge)
	moderated.POST("/submissions/:submissionID/review", handler.handleReviewSubmission)

	protected.GET("/tenants/:tenantID/circles", handler.handleListCircles)
	protected.GET("/tenants/:tenantID/leaderboard", handler.handleLeaderboard)
	protected.GET("/circles/:circleID/challenges", handler.handleListChallenges)
	protected.POST("/circles/:circleID/members", handler.handleJoinCircle)
	protected.POST("/challenges/:challengeID/participants", handler.handleJoinChallenge)
	protected.DELETE("/participations/:participationID", handler.handleLeaveChallenge)
	protected.GET("/me/participations", handler.handleMyParticipations)
	protected.PUT("/challenges/:challengeID/submission", handler.handleSubmit)
	protected.GET("/me/submissions", handler.handleMySubmissions)
	protected.GET("/me/points", handler.handleMyPoints)
	protected.GET("/me/notifications", handler.handleListNotifications)
	protected.POST("/me/notifications/:notificationID/read", handler.handleMarkRead)
	protected.POST("/me/notifications/read-all", handler.handleMarkAllRead)
	protected.DELETE("/me/notifications/:notificationID", handler.handleDeleteNotification)
	protected.DELETE("/me/notifications", handler.handleClearNotifications)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens         TokenValidator
	directory      *directory.Service
	participations *participation.Tracker
	submissions    *submissions.Store
	reviews        *review.Service
	ledger         *points.Ledger
	notifications  *notifications.Service
	realtime       *notifications.Dispatcher
	logger         *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func (h *httpHandler) requireModerator(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok || !identity.IsModerator() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "moderator_required"})
		return
	}
	c.Next()
}

func (h *httpHandler) identity(c *gin.Context) (auth.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	code := fault.Code(err)
	switch {
	case errors.Is(err, fault.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, fault.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, fault.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument"})
	default:
		h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable"})
	}
}

type createTenantPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateTenant(c *gin.Context) {
	var request createTenantPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tenant, err := h.directory.CreateTenant(c.Request.Context(), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

type createMemberPayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (h *httpHandler) handleCreateMember(c *gin.Context) {
	var request createMemberPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	member, err := h.directory.CreateMember(c.Request.Context(), c.Param("tenantID"), request.Email, request.DisplayName, request.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

type createCirclePayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleCreateCircle(c *gin.Context) {
	identity, _ := h.identity(c)
	var request createCirclePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	circle, err := h.directory.CreateCircle(c.Request.Context(), c.Param("tenantID"), request.Name, identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, circle)
}

type createChallengePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Points      int64  `json:"points"`
}

func (h *httpHandler) handleCreateChallenge(c *gin.Context) {
	identity, _ := h.identity(c)
	var request createChallengePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	challenge, err := h.directory.CreateChallenge(c.Request.Context(), c.Param("circleID"), request.Title, request.Description, request.Points, identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, challenge)
}

func (h *httpHandler) handleListTenants(c *gin.Context) {
	tenants, err := h.directory.ListTenants(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	members, err := h.directory.ListMembers(c.Request.Context(), c.Param("tenantID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *httpHandler) handleListCircles(c *gin.Context) {
	circles, err := h.directory.ListCircles(c.Request.Context(), c.Param("tenantID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"circles": circles})
}

func (h *httpHandler) handleListChallenges(c *gin.Context) {
	challenges, err := h.directory.ListChallenges(c.Request.Context(), c.Param("circleID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenges": challenges})
}

func (h *httpHandler) handleJoinCircle(c *gin.Context) {
	identity, _ := h.identity(c)
	if err := h.directory.AddCircleMember(c.Request.Context(), c.Param("circleID"), identity.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type participationPayload struct {
	ParticipationID string `json:"participation_id"`
	ChallengeID     string `json:"challenge_id"`
	Status          string `json:"status"`
	EarnedPoints    int64  `json:"earned_points"`
}

func (h *httpHandler) handleJoinChallenge(c *gin.Context) {
	identity, _ := h.identity(c)
	record, err := h.participations.Join(c.Request.Context(), identity.UserID, c.Param("challengeID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, participationPayload{
		ParticipationID: record.ParticipationID,
		ChallengeID:     record.ChallengeID,
		Status:          string(record.Status),
		EarnedPoints:    record.EarnedPoints,
	})
}

func (h *httpHandler) handleLeaveChallenge(c *gin.Context) {
	identity, _ := h.identity(c)
	if err := h.participations.Leave(c.Request.Context(), c.Param("participationID"), identity.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type participationSummaryPayload struct {
	ChallengeID  string `json:"challenge_id"`
	Status       string `json:"status"`
	EarnedPoints int64  `json:"earned_points"`
}

func (h *httpHandler) handleMyParticipations(c *gin.Context) {
	identity, _ := h.identity(c)
	summaries := make([]participationSummaryPayload, 0)
	for summary, err := range h.participations.StatusForUser(c.Request.Context(), identity.UserID) {
		if err != nil {
			h.respondError(c, err)
			return
		}
		summaries = append(summaries, participationSummaryPayload{
			ChallengeID:  summary.ChallengeID,
			Status:       string(summary.Status),
			EarnedPoints: summary.EarnedPoints,
		})
	}
	c.JSON(http.StatusOK, gin.H{"participations": summaries})
}

type submitPayload struct {
	ArtifactURL string `json:"artifact_url"`
}

type submissionPayload struct {
	SubmissionID string `json:"submission_id"`
	ChallengeID  string `json:"challenge_id"`
	ArtifactURL  string `json:"artifact_url"`
	Status       string `json:"status"`
	Feedback     string `json:"feedback"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	identity, _ := h.identity(c)
	var request submitPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	submission, err := h.submissions.Submit(c.Request.Context(), identity.UserID, c.Param("challengeID"), request.ArtifactURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, submissionPayload{
		SubmissionID: submission.SubmissionID,
		ChallengeID:  submission.ChallengeID,
		ArtifactURL:  submission.ArtifactURL,
		Status:       string(submission.Status),
		Feedback:     submission.Feedback,
	})
}

func (h *httpHandler) handleMySubmissions(c *gin.Context) {
	identity, _ := h.identity(c)
	rows, err := h.submissions.ForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]submissionPayload, 0, len(rows))
	for _, submission := range rows {
		payloads = append(payloads, submissionPayload{
			SubmissionID: submission.SubmissionID,
			ChallengeID:  submission.ChallengeID,
			ArtifactURL:  submission.ArtifactURL,
			Status:       string(submission.Status),
			Feedback:     submission.Feedback,
		})
	}
	c.JSON(http.StatusOK, gin.H{"submissions": payloads})
}

type reviewPayload struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`
}

type reviewResponsePayload struct {
	Submission    submissionPayload    `json:"submission"`
	Participation participationPayload `json:"participation"`
}

func (h *httpHandler) handleReviewSubmission(c *gin.Context) {
	var request reviewPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	decision, err := review.ParseDecision(request.Decision)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_decision"})
		return
	}
	outcome, err := h.reviews.Review(c.Request.Context(), c.Param("submissionID"), decision, request.Feedback)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResponsePayload{
		Submission: submissionPayload{
			SubmissionID: outcome.Submission.SubmissionID,
			ChallengeID:  outcome.Submission.ChallengeID,
			ArtifactURL:  outcome.Submission.ArtifactURL,
			Status:       string(outcome.Submission.Status),
			Feedback:     outcome.Submission.Feedback,
		},
		Participation: participationPayload{
			ParticipationID: outcome.Participation.ParticipationID,
			ChallengeID:     outcome.Participation.ChallengeID,
			Status:          string(outcome.Participation.Status),
			EarnedPoints:    outcome.Participation.EarnedPoints,
		},
	})
}

func (h *httpHandler) handleMyPoints(c *gin.Context) {
	identity, _ := h.identity(c)
	total, err := h.ledger.GetTotal(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_points": total})
}

type standingPayload struct {
	AccountID   string `json:"account_id"`
	UserID      string `json:"user_id"`
	TotalPoints int64  `json:"total_points"`
}

func (h *httpHandler) handleLeaderboard(c *gin.Context) {
	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}
	standings, err := h.ledger.TopN(c.Request.Context(), c.Param("tenantID"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]standingPayload, 0, len(standings))
	for _, standing := range standings {
		payloads = append(payloads, standingPayload{
			AccountID:   standing.AccountID,
			UserID:      standing.UserID,
			TotalPoints: standing.TotalPoints,
		})
	}
	c.JSON(http.StatusOK, gin.H{"standings": payloads})
}

type notificationPayload struct {
	NotificationID string `json:"notification_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      int64  `json:"created_at_s"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	identity, _ := h.identity(c)
	rows, err := h.notifications.List(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]notificationPayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, notificationPayload{
			NotificationID: row.NotificationID,
			Title:          row.Title,
			Message:        row.Message,
			IsRead:         row.IsRead,
			CreatedAt:      row.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": payloads})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	identity, _ := h.identity(c)
	if err := h.notifications.MarkRead(c.Request.Context(), identity.UserID, c.Param("notificationID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	identity, _ := h.identity(c)
	if err := h.notifications.MarkAllRead(c.Request.Context(), identity.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteNotification(c *gin.Context) {
	identity, _ := h.identity(c)
	if err := h.notifications.Delete(c.Request.Context(), identity.UserID, c.Param("notificationID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleClearNotifications(c *gin.Context) {
	identity, _ := h.identity(c)
	if err := h.notifications.ClearAll(c.Request.Context(), identity.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type eventPayload struct {
	NotificationID string `json:"notification_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	CreatedAt      int64  `json:"created_at_s"`
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable"})
		return
	}
	identity, _ := h.identity(c)
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), identity.UserID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent("notification", eventPayload{
				NotificationID: event.NotificationID,
				Title:          event.Title,
				Message:        event.Message,
				CreatedAt:      event.CreatedAt.Unix(),
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
