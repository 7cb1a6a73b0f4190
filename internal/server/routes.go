package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/buildyard/internal/diff"
	"github.com/zulandar/buildyard/internal/dispatch"
	"github.com/zulandar/buildyard/internal/revision"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

type handlers struct {
	db        *gorm.DB
	submitter Submitter
	log       *slog.Logger
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.POST("/builds", h.createBuilds)
	api.GET("/builds", h.listBuilds)
	api.GET("/collections/:id", h.collection)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createBuilds accepts the form fields sha, project, repository,
// repository[callsign], author, label, target, message, tag, cause,
// patch[data] and an optional "patch" file.
func (h *handlers) createBuilds(c *gin.Context) {
	req, problems := requestFromForm(c)
	if len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields", "problems": problems})
		return
	}

	if fh, err := c.FormFile("patch"); err == nil {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable patch", "problems": []string{"patch"}})
			return
		}
		req.Patch, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable patch", "problems": []string{"patch"}})
			return
		}
	}

	builds, err := h.submitter.Submit(c.Request.Context(), req)
	if len(builds) == 0 {
		status, body := submitError(err)
		if status == http.StatusInternalServerError {
			h.log.Error("build submission failed", "target", req.Target.String(), "error", err)
		}
		c.JSON(status, body)
		return
	}

	resp := gin.H{"builds": buildViews(builds)}
	if err != nil {
		h.log.Warn("build submission partially failed", "target", req.Target.String(), "error", err)
		resp["errors"] = []string{err.Error()}
	}
	c.JSON(http.StatusOK, resp)
}

func requestFromForm(c *gin.Context) (dispatch.Request, []string) {
	req := dispatch.Request{
		Ref:         c.PostForm("sha"),
		Author:      c.PostForm("author"),
		Label:       c.PostForm("label"),
		BuildTarget: c.PostForm("target"),
		Tag:         c.PostForm("tag"),
		Cause:       c.PostForm("cause"),
	}
	if msg, ok := c.GetPostForm("message"); ok {
		req.Message = &msg
	}
	if data := c.PostForm("patch[data]"); data != "" {
		req.PatchData = []byte(data)
	}

	switch {
	case c.PostForm("project") != "":
		req.Target = dispatch.ProjectTarget(c.PostForm("project"))
	case c.PostForm("repository") != "":
		req.Target = dispatch.RepositoryTarget(c.PostForm("repository"))
	case c.PostForm("repository[callsign]") != "":
		req.Target = dispatch.CallsignTarget(c.PostForm("repository[callsign]"))
	}

	var problems []string
	if req.Ref == "" {
		problems = append(problems, "sha")
	}
	if req.Target.IsZero() {
		problems = append(problems, "project", "repository", "repository[callsign]")
	}
	return req, problems
}

// submitError maps a failed submission to a status and response body.
func submitError(err error) (int, gin.H) {
	var problems []string
	switch {
	case errors.Is(err, dispatch.ErrInvalidPatchData):
		problems = []string{"patch[data]"}
	case errors.Is(err, diff.ErrMalformed):
		problems = []string{"patch"}
	case errors.Is(err, revision.ErrNotFound):
		problems = []string{"sha", "repository"}
	case errors.Is(err, dispatch.ErrNoTarget), errors.Is(err, dispatch.ErrNoProjects):
		problems = []string{"project", "repository", "repository[callsign]"}
	case errors.Is(err, dispatch.ErrNoEligibleProjects):
	case err == nil:
		err = dispatch.ErrNoEligibleProjects
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
	body := gin.H{"error": err.Error()}
	if len(problems) > 0 {
		body["problems"] = problems
	}
	return http.StatusBadRequest, body
}

func (h *handlers) listBuilds(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	builds, err := RecentBuilds(h.db.WithContext(c.Request.Context()), limit)
	if err != nil {
		h.log.Error("list builds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": buildViews(builds)})
}

func (h *handlers) collection(c *gin.Context) {
	id := c.Param("id")
	builds, err := CollectionBuilds(h.db.WithContext(c.Request.Context()), id)
	if err != nil {
		h.log.Error("collection builds", "collection", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if len(builds) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection_id": id, "builds": buildViews(builds)})
}
