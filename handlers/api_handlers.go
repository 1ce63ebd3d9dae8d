package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"lottery-server-go/draw"
	"lottery-server-go/lottery"
	"lottery-server-go/models"
	"lottery-server-go/web"
)

// APIHandler holds the dependencies for API handlers
type APIHandler struct {
	Lottery *lottery.Lottery
	Hub     *web.Hub
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(l *lottery.Lottery, hub *web.Hub) *APIHandler {
	return &APIHandler{
		Lottery: l,
		Hub:     hub,
	}
}

// Register mounts every route under /api.
func (h *APIHandler) Register(router gin.IRouter) {
	api := router.Group("/api")
	{
		// Selection
		api.POST("/stage", h.SelectStage)
		api.POST("/grade", h.SelectGrade)

		// Draw triggers
		api.POST("/draw", h.Draw)
		api.POST("/draw/paired", h.DrawPaired)
		api.POST("/draw/per-class", h.DrawPerClass)
		api.POST("/draw/class-then-number/:step", h.DrawClassThenNumber)
		api.POST("/replacement", h.DrawReplacement)
		api.POST("/backup", h.RunBackupBatch)

		// Ledger
		api.GET("/winners", h.GetWinners)
		api.DELETE("/winners/:id", h.DeleteWinner)
		api.POST("/reset", h.ResetAll)

		// Queries
		api.GET("/grades/:grade/pool", h.GetPool)
		api.GET("/stages", h.GetStages)
		api.GET("/state", h.GetState)
		api.GET("/classes", h.GetAllClasses)

		api.POST("/import/students", h.ImportStudents)

		if h.Hub != nil {
			api.GET("/ws", gin.WrapF(h.Hub.ServeWS))
		}
		api.GET("/ping", PingHandler)
	}
}

// statusFor maps an error code from lottery.Classify to an HTTP status.
func statusFor(code string) int {
	switch code {
	case lottery.CodeMissingSelection, lottery.CodeUnknownStage,
		lottery.CodeInvalidGrade, lottery.CodeInvalidStep:
		return http.StatusBadRequest
	case lottery.CodeUnknownWinner:
		return http.StatusNotFound
	case lottery.CodeInsufficientPool, lottery.CodeNoDistinctClass, lottery.CodeDrawInProgress:
		return http.StatusConflict
	case lottery.CodeImportFormat:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code, msg := lottery.Classify(err)
	status := statusFor(code)
	body := gin.H{"error": msg, "code": code}
	if ip, ok := draw.IsInsufficientPool(err); ok {
		body["available"] = ip.Available
		body["required"] = ip.Required
	}
	if status == http.StatusInternalServerError {
		log.Printf("Error in %s %s handler: %v", c.Request.Method, c.FullPath(), err)
		body["error"] = "Internal server error"
	}
	c.JSON(status, body)
}

// --- Selection Handlers ---

type stageRequest struct {
	Stage models.StageID `json:"stage"`
}

type gradeRequest struct {
	Grade int `json:"grade"`
}

type replacementRequest struct {
	Stage models.StageID `json:"stage"`
	Grade int            `json:"grade"`
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// SelectStage handles POST /api/stage
func (h *APIHandler) SelectStage(c *gin.Context) {
	var req stageRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Lottery.SelectStage(c.Request.Context(), req.Stage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// SelectGrade handles POST /api/grade
func (h *APIHandler) SelectGrade(c *gin.Context) {
	var req gradeRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Lottery.SelectGrade(req.Grade); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Lottery.State())
}

// --- Draw Handlers ---

// Draw handles POST /api/draw
func (h *APIHandler) Draw(c *gin.Context) {
	res, err := h.Lottery.Draw(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DrawPaired handles POST /api/draw/paired
func (h *APIHandler) DrawPaired(c *gin.Context) {
	res, err := h.Lottery.DrawPaired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DrawPerClass handles POST /api/draw/per-class
func (h *APIHandler) DrawPerClass(c *gin.Context) {
	res, err := h.Lottery.DrawPerClass(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DrawClassThenNumber handles POST /api/draw/class-then-number/:step
func (h *APIHandler) DrawClassThenNumber(c *gin.Context) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Step must be 1 or 2", "code": lottery.CodeInvalidStep})
		return
	}
	res, err := h.Lottery.DrawClassThenNumber(c.Request.Context(), step)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DrawReplacement handles POST /api/replacement
func (h *APIHandler) DrawReplacement(c *gin.Context) {
	var req replacementRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Lottery.DrawReplacement(c.Request.Context(), req.Stage, req.Grade)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RunBackupBatch handles POST /api/backup
func (h *APIHandler) RunBackupBatch(c *gin.Context) {
	var req stageRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Lottery.RunBackupBatch(c.Request.Context(), req.Stage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Ledger Handlers ---

// GetWinners handles GET /api/winners
func (h *APIHandler) GetWinners(c *gin.Context) {
	c.JSON(http.StatusOK, h.Lottery.Winners())
}

// DeleteWinner handles DELETE /api/winners/:id
func (h *APIHandler) DeleteWinner(c *gin.Context) {
	id, err := models.ParseStudentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Lottery.DeleteWinner(id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetAll handles POST /api/reset
func (h *APIHandler) ResetAll(c *gin.Context) {
	if err := h.Lottery.ResetAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Lottery.State())
}

// --- Query Handlers ---

// GetPool handles GET /api/grades/:grade/pool
func (h *APIHandler) GetPool(c *gin.Context) {
	grade, err := strconv.Atoi(c.Param("grade"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Grade must be a number", "code": lottery.CodeInvalidGrade})
		return
	}
	pool, err := h.Lottery.Pool(grade)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

// GetStages handles GET /api/stages
func (h *APIHandler) GetStages(c *gin.Context) {
	p := h.Lottery.Policy()
	c.JSON(http.StatusOK, gin.H{
		"policy":  p.Name(),
		"current": h.Lottery.CurrentStage(),
		"stages":  p.Stages(),
	})
}

// GetState handles GET /api/state
func (h *APIHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Lottery.State())
}

// GetAllClasses handles GET /api/classes
func (h *APIHandler) GetAllClasses(c *gin.Context) {
	c.JSON(http.StatusOK, h.Lottery.Classes())
}

// --- Import Handler ---

// ImportStudents handles POST /api/import/students
func (h *APIHandler) ImportStudents(c *gin.Context) {
	file, header, err := c.Request.FormFile("file") // "file" is the name attribute in the form
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received roster upload: %s", header.Filename)

	res, err := h.Lottery.ImportRoster(c.Request.Context(), file)
	if err != nil {
		log.Printf("Error importing roster from file %s: %v", header.Filename, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": res.Students,
		"classes":       res.Classes,
	})
}

// --- Ping Handler ---
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
