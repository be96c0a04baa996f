package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/http/response"
	"github.com/yungbote/neurobridge-studygen/internal/modules/studypack/steps"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/services"
)

type StudyPackHandler struct {
	log   *logger.Logger
	packs services.StudyPackService
}

func NewStudyPackHandler(log *logger.Logger, packs services.StudyPackService) *StudyPackHandler {
	return &StudyPackHandler{
		log:   log.With("handler", "StudyPackHandler"),
		packs: packs,
	}
}

type createPackRequest struct {
	Title string `json:"title"`
}

// POST /api/packs
func (h *StudyPackHandler) CreatePack(c *gin.Context) {
	var req createPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	pack, err := h.packs.CreatePack(c.Request.Context(), req.Title)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"pack": pack})
}

// GET /api/packs?limit=
func (h *StudyPackHandler) ListPacks(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	packs, err := h.packs.ListPacks(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"packs": packs})
}

// GET /api/packs/:id
func (h *StudyPackHandler) GetPack(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}
	view, err := h.packs.GetPack(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

type ingestRequest struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	SourceURI string `json:"source_uri"`
	// ObjectKey reads the text from the configured bucket instead of Text.
	ObjectKey string `json:"object_key"`
}

// POST /api/packs/:id/documents
func (h *StudyPackHandler) IngestDocument(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	var (
		out steps.IngestWindowsOutput
		err error
	)
	if strings.TrimSpace(req.ObjectKey) != "" {
		out, err = h.packs.IngestObject(c.Request.Context(), id, req.Title, req.ObjectKey)
	} else {
		out, err = h.packs.IngestDocument(c.Request.Context(), id, req.Title, req.Text, req.SourceURI)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	status := http.StatusCreated
	if out.Reused {
		status = http.StatusOK
	}
	c.JSON(status, out)
}

type buildRequest struct {
	Target int `json:"target"`
}

// POST /api/packs/:id/artifacts/:kind
func (h *StudyPackHandler) BuildArtifact(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}
	kind, ok := artifactKind(c)
	if !ok {
		return
	}
	var req buildRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	out, err := h.packs.Build(c.Request.Context(), id, kind, req.Target)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, artifactResponse(out))
}

type extendRequest struct {
	Count int `json:"count"`
}

// POST /api/packs/:id/artifacts/:kind/extend
func (h *StudyPackHandler) ExtendArtifact(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}
	kind, ok := artifactKind(c)
	if !ok {
		return
	}
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.packs.Extend(c.Request.Context(), id, kind, req.Count)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, artifactResponse(out))
}

type buildAllRequest struct {
	Kinds   []string       `json:"kinds"`
	Targets map[string]int `json:"targets"`
}

type kindResultResponse struct {
	Output *artifactOutputResponse `json:"output,omitempty"`
	Error  *response.APIError      `json:"error,omitempty"`
}

// POST /api/packs/:id/artifacts
//
// Always 200 once the request is valid; per-kind failures are reported inline.
func (h *StudyPackHandler) BuildAll(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}
	var req buildAllRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	in := steps.BuildAllInput{StudyPackID: id, Targets: map[types.ArtifactKind]int{}}
	for _, raw := range req.Kinds {
		kind, err := types.ParseKind(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_kind", err)
			return
		}
		in.Kinds = append(in.Kinds, kind)
	}
	for raw, target := range req.Targets {
		kind, err := types.ParseKind(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_kind", err)
			return
		}
		in.Targets[kind] = target
	}

	out, _ := h.packs.BuildAll(c.Request.Context(), in)
	results := make(map[types.ArtifactKind]kindResultResponse, len(out.Results))
	for kind, res := range out.Results {
		if res.Err != nil {
			_, code := statusFor(res.Err)
			results[kind] = kindResultResponse{Error: &response.APIError{Message: res.Err.Error(), Code: code}}
			continue
		}
		r := artifactResponse(res.Output)
		results[kind] = kindResultResponse{Output: &r}
	}
	response.RespondOK(c, gin.H{"results": results})
}

// GET /api/packs/:id/artifacts/:kind
func (h *StudyPackHandler) GetArtifact(c *gin.Context) {
	id, ok := packID(c)
	if !ok {
		return
	}
	kind, ok := artifactKind(c)
	if !ok {
		return
	}
	view, err := h.packs.GetArtifact(c.Request.Context(), id, kind)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

type artifactOutputResponse struct {
	steps.ArtifactOutput
	Coverage float64 `json:"coverage"`
	Degraded bool    `json:"degraded"`
}

func artifactResponse(out steps.ArtifactOutput) artifactOutputResponse {
	return artifactOutputResponse{
		ArtifactOutput: out,
		Coverage:       out.Outcome.Coverage(),
		Degraded:       out.Outcome.Degraded(),
	}
}

func packID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_pack_id", err)
		return uuid.Nil, false
	}
	return id, true
}

func artifactKind(c *gin.Context) (types.ArtifactKind, bool) {
	kind, err := types.ParseKind(c.Param("kind"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_kind", err)
		return "", false
	}
	return kind, true
}
