package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/disclosure"
	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/store"
)

// statusFor maps an errs.Kind to the HTTP status a REST caller expects.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.InvalidInput:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict, errs.PolicyHold:
		return http.StatusConflict
	case errs.Cancelled:
		return http.StatusRequestTimeout
	case errs.Dependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func handleEngineError(c *gin.Context, err error) {
	ErrorResponse(c, statusFor(err), err.Error())
}

// --- sessions ---

type sessionStartRequest struct {
	SessionID        string `json:"session_id"`
	WorkingDirectory string `json:"working_directory"`
}

func (s *Server) sessionStart(c *gin.Context) {
	var req sessionStartRequest
	_ = c.ShouldBindJSON(&req) // empty body is fine: session id is auto-detected
	sess, err := s.engine.SessionStart(req.SessionID, req.WorkingDirectory)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "session started", sess)
}

type sessionEndRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

func (s *Server) sessionEnd(c *gin.Context) {
	var req sessionEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	if err := s.engine.SessionEnd(req.SessionID); err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "session ended", nil)
}

// --- ingest / checkpoint ---

type ingestAPIRequest struct {
	SessionID     string         `json:"session_id" binding:"required"`
	Content       string         `json:"content" binding:"required"`
	Type          store.EventType `json:"type" binding:"required"`
	ToolName      string         `json:"tool_name"`
	FilePath      string         `json:"file_path"`
	ExitCode      *int           `json:"exit_code"`
	SkipEmbedding bool           `json:"skip_embedding"`
	Async         bool           `json:"async"`
}

func (s *Server) ingest(c *gin.Context) {
	var req ingestAPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	if !store.IsValidEventType(req.Type) {
		BadRequestError(c, "unrecognized event type: "+string(req.Type))
		return
	}

	engReq := engine.IngestRequest{
		SessionID:     req.SessionID,
		Content:       req.Content,
		Type:          req.Type,
		ToolName:      req.ToolName,
		FilePath:      req.FilePath,
		ExitCode:      req.ExitCode,
		SkipEmbedding: req.SkipEmbedding,
	}
	if req.Async {
		receipt, err := s.engine.IngestAsync(engReq)
		if err != nil {
			handleEngineError(c, err)
			return
		}
		CreatedResponse(c, "ingest queued", gin.H{"receipt_id": receipt})
		return
	}

	res, err := s.engine.Ingest(engReq)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	CreatedResponse(c, "event ingested", res)
}

type checkpointRequest struct {
	SessionID     string `json:"session_id" binding:"required"`
	SkipEmbedding bool   `json:"skip_embedding"`
}

func (s *Server) checkpoint(c *gin.Context) {
	var req checkpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	res, err := s.engine.Checkpoint(req.SessionID, req.SkipEmbedding)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "checkpoint complete", res)
}

// --- search / pack / disclose ---

func (s *Server) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		BadRequestError(c, "q is required")
		return
	}
	limit := clampLimit(atoiDefault(c.Query("limit"), DefaultLimit))
	skipReinforce := c.Query("skip_reinforcement") == "true"

	filter := store.ObjectFilter{
		Status:     store.Status(c.Query("status")),
		ObjectType: store.ObjectType(c.Query("type")),
	}

	results, err := s.engine.Search(c.Request.Context(), c.Query("session_id"), query, filter, limit, skipReinforce)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "search complete", results)
}

type packRequest struct {
	SessionID   string                `json:"session_id" binding:"required"`
	Level       store.DisclosureLevel `json:"level"`
	Query       string                `json:"query"`
	File        string                `json:"file"`
	PriorityIDs []string              `json:"priority_ids"`
}

func (s *Server) pack(c *gin.Context) {
	var req packRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	if req.Level == "" {
		req.Level = store.DisclosureMinimal
	}

	pack, err := s.engine.Pack(c.Request.Context(), req.SessionID, disclosure.Request{
		Level:       req.Level,
		Query:       req.Query,
		File:        req.File,
		PriorityIDs: req.PriorityIDs,
	})
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "pack built", pack)
}

type discloseCheckRequest struct {
	SessionID        string `json:"session_id" binding:"required"`
	TurnText         string `json:"turn_text"`
	WorkingDirectory string `json:"working_directory"`
}

func (s *Server) disclose(c *gin.Context) {
	var req discloseCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	signal, level, needed, err := s.engine.DiscloseCheck(req.TurnText, req.SessionID, req.WorkingDirectory)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "disclose check complete", gin.H{
		"signal":              signal,
		"recommended_level":   level,
		"escalation_needed":   needed,
	})
}

// --- objects ---

type addObjectRequest struct {
	ObjectType store.ObjectType  `json:"object_type" binding:"required"`
	Content    string            `json:"content" binding:"required"`
	Confidence store.Confidence  `json:"confidence"`
	Scope      store.Scope       `json:"scope"`
}

func (s *Server) addObject(c *gin.Context) {
	var req addObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	created, err := s.engine.Add(&store.MemoryObject{
		ObjectType: req.ObjectType,
		Content:    req.Content,
		Confidence: req.Confidence,
		Scope:      req.Scope,
	})
	if err != nil {
		handleEngineError(c, err)
		return
	}
	CreatedResponse(c, "object created", created)
}

func (s *Server) verifyObject(c *gin.Context) {
	obj, err := s.engine.Verify(c.Param("id"))
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "object verified", obj)
}

func (s *Server) retireObject(c *gin.Context) {
	if err := s.engine.Retire(c.Param("id")); err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "object retired", nil)
}

type supersedeRequest struct {
	ObjectType store.ObjectType `json:"object_type" binding:"required"`
	Content    string           `json:"content" binding:"required"`
	Confidence store.Confidence `json:"confidence"`
	Scope      store.Scope      `json:"scope"`
}

func (s *Server) supersedeObject(c *gin.Context) {
	var req supersedeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	next, err := s.engine.Supersede(c.Param("id"), &store.MemoryObject{
		ObjectType: req.ObjectType,
		Content:    req.Content,
		Confidence: req.Confidence,
		Scope:      req.Scope,
	})
	if err != nil {
		handleEngineError(c, err)
		return
	}
	CreatedResponse(c, "object superseded", next)
}

// --- stats ---

func (s *Server) stats(c *gin.Context) {
	stats, err := s.engine.Stats()
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "stats", stats)
}

func (s *Server) contextUsage(c *gin.Context) {
	total := atoiDefault(c.Query("total_tokens"), 0)
	usage := s.engine.EvaluateContextUsage(total)
	SuccessResponse(c, "context usage", usage)
}

func (s *Server) heatmap(c *gin.Context) {
	n := atoiDefault(c.Query("n"), DefaultLimit)
	objs, err := s.engine.Heatmap(n)
	if err != nil {
		handleEngineError(c, err)
		return
	}
	SuccessResponse(c, "heatmap", objs)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
