// Package api exposes the trust chain over HTTP: the submission ledger's
// operation surface, the admin surface for trust-registry mutation, and
// service metrics.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/physver/trustchain/internal/ledger"
)

// SubmissionHandler serves the submission ledger's HTTP surface.
type SubmissionHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewSubmissionHandler creates a SubmissionHandler.
func NewSubmissionHandler(svc *ledger.Service, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, logger: logger}
}

// Register mounts the submission routes on the given router group.
func (h *SubmissionHandler) Register(rg *gin.RouterGroup) {
	subs := rg.Group("/submissions")
	{
		subs.POST("", h.Submit)
		subs.GET("", h.History)
		subs.GET("/stats", h.Stats)
		subs.GET("/:hash", h.Get)
		subs.GET("/:hash/details", h.Details)
		subs.POST("/:hash/integrity", h.Integrity)
	}
	rg.GET("/devices/:id/submissions", h.ByDevice)
	rg.GET("/verifiers/:addr/submissions", h.ByVerifier)
}

// Submit handles POST /submissions.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var req ledger.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sub, err := h.svc.SubmitData(c.Request.Context(), req)
	if err != nil {
		RecordSubmissionRejected(rejectionReason(err))
		fail(c, err)
		return
	}

	RecordSubmissionAccepted()
	c.JSON(http.StatusCreated, sub)
}

// Get handles GET /submissions/:hash — the verifySubmission query.
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.svc.VerifySubmission(c.Request.Context(), c.Param("hash"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Details handles GET /submissions/:hash/details — joins the ledger record
// with the current registry snapshot of device and verifier.
func (h *SubmissionHandler) Details(c *gin.Context) {
	details, err := h.svc.GetSubmissionDetails(c.Request.Context(), c.Param("hash"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// integrityRequest carries the payload to check against a recorded hash.
// Data may be absent: the empty payload has a well-defined content address.
type integrityRequest struct {
	Data []byte `json:"data"`
}

// Integrity handles POST /submissions/:hash/integrity.
func (h *SubmissionHandler) Integrity(c *gin.Context) {
	var req integrityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	valid, err := h.svc.VerifyDataIntegrity(c.Request.Context(), c.Param("hash"), req.Data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// History handles GET /submissions?start=N&count=M — the paginated audit log.
func (h *SubmissionHandler) History(c *gin.Context) {
	start, err := strconv.ParseUint(c.DefaultQuery("start", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be a non-negative integer"})
		return
	}
	count, err := strconv.ParseUint(c.DefaultQuery("count", "50"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
		return
	}

	hashes, err := h.svc.GetSubmissionHistory(c.Request.Context(), start, count)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"start":  start,
		"count":  len(hashes),
		"hashes": hashes,
	})
}

// Stats handles GET /submissions/stats.
func (h *SubmissionHandler) Stats(c *gin.Context) {
	total, err := h.svc.TotalSubmissions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_submissions": total})
}

// ByDevice handles GET /devices/:id/submissions.
func (h *SubmissionHandler) ByDevice(c *gin.Context) {
	hashes, err := h.svc.GetDeviceSubmissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if hashes == nil {
		hashes = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"hashes": hashes})
}

// ByVerifier handles GET /verifiers/:addr/submissions.
func (h *SubmissionHandler) ByVerifier(c *gin.Context) {
	hashes, err := h.svc.GetVerifierSubmissions(c.Request.Context(), c.Param("addr"))
	if err != nil {
		fail(c, err)
		return
	}
	if hashes == nil {
		hashes = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"hashes": hashes})
}
