// Package api exposes the bridge over HTTP: upload, discovery, and
// retrieval endpoints that map the orchestration layer's results and
// error taxonomy onto JSON responses.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helioscan/pacsbridge/dicom"
	"github.com/helioscan/pacsbridge/dicomerr"
	"github.com/helioscan/pacsbridge/metadata"
	"github.com/helioscan/pacsbridge/qr"
)

// maxUploadBytes caps a single upload request body.
const maxUploadBytes = 512 << 20

// Handler holds the API's dependencies.
type Handler struct {
	orchestrator *qr.Orchestrator
	reconciler   *metadata.Reconciler
	logger       *slog.Logger
}

// NewHandler creates a handler over the given orchestrator.
func NewHandler(orchestrator *qr.Orchestrator, reconciler *metadata.Reconciler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		logger:       logger,
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Echo verifies connectivity to the remote archive.
func (h *Handler) Echo(c *gin.Context) {
	if err := h.orchestrator.Verify(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "verification succeeded"})
}

// Upload accepts one DICOM file (multipart field "file" or raw body),
// extracts and validates its metadata, and stores it on the archive.
func (h *Handler) Upload(c *gin.Context) {
	data, err := h.readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fileMeta, dataset, err := dicom.ParsePart10(data)
	if err != nil {
		h.logger.Warn("Upload rejected: unparseable file", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a valid DICOM file: " + err.Error()})
		return
	}

	extractor := metadata.NewExtractor(fileMeta, dataset, h.logger)
	canonical, err := h.reconciler.Reconcile(extractor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Storing uploaded instance",
		"study", canonical.StudyInstanceUID,
		"series", canonical.SeriesInstanceUID,
		"instance", canonical.InstanceUID,
		"modality", canonical.Modality)

	if err := h.orchestrator.Store(c.Request.Context(), fileMeta, dataset); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "DICOM file uploaded successfully",
		"metadata": canonical,
	})
}

// ListStudies runs a discovery query built from the request's query
// parameters. Parameters present with an empty value act as wildcard
// return keys.
func (h *Handler) ListStudies(c *gin.Context) {
	filters := queryFilters(c)

	outcome, err := h.orchestrator.Find(c.Request.Context(), filters)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"studies":   outcome.Results,
		"completed": outcome.Completed,
		"failed":    outcome.Failed,
		"warnings":  outcome.Warning,
	})
}

// GetStudy retrieves a full study using the two-phase workflow.
func (h *Handler) GetStudy(c *gin.Context) {
	studyUID := c.Param("uid")
	if studyUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "study instance UID is required"})
		return
	}

	result, err := h.orchestrator.RetrieveStudy(c.Request.Context(), map[string]string{
		"StudyInstanceUID": studyUID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetInstances runs a single-phase retrieval scoped by the request's
// query parameters.
func (h *Handler) GetInstances(c *gin.Context) {
	filters := queryFilters(c)
	if len(filters) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one identifying filter is required"})
		return
	}

	result, err := h.orchestrator.Retrieve(c.Request.Context(), filters)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	return io.ReadAll(c.Request.Body)
}

// queryFilters converts request query parameters to a filter map,
// keeping blank values so they stay wildcard matchers.
func queryFilters(c *gin.Context) map[string]string {
	filters := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			filters[key] = values[0]
		} else {
			filters[key] = ""
		}
	}
	return filters
}

// writeError maps the error taxonomy to HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var validationErr *dicomerr.ValidationError
	var associationErr *dicomerr.AssociationError
	var operationErr *dicomerr.OperationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         validationErr.Error(),
			"missingFields": validationErr.MissingFields,
		})
	case errors.As(err, &associationErr):
		h.logger.Error("Association failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": associationErr.Error()})
	case errors.As(err, &operationErr):
		h.logger.Error("Operation failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  operationErr.Error(),
			"status": operationErr.Status,
		})
	default:
		h.logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
