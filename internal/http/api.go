package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"notekeeper/internal/auth"
	"notekeeper/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth   service.AuthService
	notes  service.NoteService
	logger *logrus.Logger
}

func NewHandler(authSvc service.AuthService, notes service.NoteService, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		auth:   authSvc,
		notes:  notes,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "OK", "message": "Notes API is running"})
		})

		authGroup := api.Group("/auth")
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.GET("/me", h.requireAuth(), h.me)

		notes := api.Group("/notes", h.requireAuth())
		notes.GET("", h.listNotes)
		notes.POST("", h.createNote)
		notes.GET("/:id", h.getNote)
		notes.PUT("/:id", h.updateNote)
		notes.DELETE("/:id", h.deleteNote)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, authToResponse(result))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authToResponse(result))
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.auth.CurrentUser(c.Request.Context(), identityFrom(c))
	if err != nil {
		// a valid token for an account that no longer exists
		if errors.Is(err, service.ErrNotFound) {
			err = auth.ErrInvalidToken
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userToResponse(user)})
}

func (h *Handler) listNotes(c *gin.Context) {
	notes, err := h.notes.List(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]NoteResponse, len(notes))
	for i := range notes {
		resp[i] = noteToResponse(&notes[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createNote(c *gin.Context) {
	var req noteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	note, err := h.notes.Create(c.Request.Context(), identityFrom(c).UserID, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, noteToResponse(note))
}

func (h *Handler) getNote(c *gin.Context) {
	id, ok := h.noteID(c)
	if !ok {
		return
	}

	note, err := h.notes.Get(c.Request.Context(), identityFrom(c).UserID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, noteToResponse(note))
}

func (h *Handler) updateNote(c *gin.Context) {
	id, ok := h.noteID(c)
	if !ok {
		return
	}
	var req noteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	note, err := h.notes.Update(c.Request.Context(), identityFrom(c).UserID, id, req.Title, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, noteToResponse(note))
}

func (h *Handler) deleteNote(c *gin.Context) {
	id, ok := h.noteID(c)
	if !ok {
		return
	}

	if err := h.notes.Delete(c.Request.Context(), identityFrom(c).UserID, id); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Note deleted successfully"})
}

// noteID parses the :id path parameter. Ids that are not positive integers
// cannot name any note, so they are reported as not found.
func (h *Handler) noteID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, service.ErrNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.writeError(c, &service.ValidationError{Field: "body", Message: "request body must be a JSON object"})
		return false
	}
	return true
}
