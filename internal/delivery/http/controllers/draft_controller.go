package controllers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"maildraft/internal/delivery/http/helpers"
	"maildraft/internal/delivery/http/middleware"
	"maildraft/internal/domain"
	"maildraft/internal/services"
)

// maxMultipartMemory is the in-memory buffer for multipart parsing; larger
// file parts spill to disk.
const maxMultipartMemory = 32 << 20

// SaveDraftRequest is the JSON request body for PUT /drafts/me.
// Nil fields are left unchanged; to attach a file use multipart/form-data.
type SaveDraftRequest struct {
	Recipients *[]string `json:"recipients"`
	Subject    *string   `json:"subject"`
	Body       *string   `json:"body"`
}

// DraftController handles the per-user draft slot and submission.
type DraftController struct {
	Logger  *slog.Logger
	Service domain.DraftService
}

// NewDraftController creates a DraftController with the given logger and service.
func NewDraftController(logger *slog.Logger, svc domain.DraftService) *DraftController {
	return &DraftController{Logger: logger, Service: svc}
}

// Get godoc
// @Summary Get the stored draft
// @Description Returns the authenticated user's draft. A missing or unreadable draft is returned as an empty one, never an error. The attachment is reported by name only.
// @Tags drafts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the draft"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /drafts/me [get]
func (c *DraftController) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	draft, err := c.Service.Load(r.Context(), userID)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, draft)
}

// Save godoc
// @Summary Save the draft
// @Description Persists a draft mutation. Accepts application/json, or multipart/form-data with recipients/subject/body fields and an optional "file" part for a new attachment. The file is encoded before anything is persisted.
// @Tags drafts
// @Accept json
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the saved draft"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /drafts/me [put]
func (c *DraftController) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	change, ok := c.decodeChange(w, r)
	if !ok {
		return
	}
	defer closeUpload(change)
	draft, err := c.Service.Save(r.Context(), userID, change)
	if err != nil {
		c.writeDraftError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, draft)
}

// Clear godoc
// @Summary Clear the draft
// @Description Deletes the stored draft and its attachment. This is the only operation that discards a stored attachment.
// @Tags drafts
// @Security BearerAuth
// @Success 204 "no content"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /drafts/me [delete]
func (c *DraftController) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	if err := c.Service.Clear(r.Context(), userID); err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Send godoc
// @Summary Send the draft
// @Description Validates the draft (with this request's values applied) and sends it. A "file" part in this request takes precedence over the stored attachment; otherwise the stored one is decoded and attached; otherwise the mail goes out without an attachment. The stored draft is not cleared by a send.
// @Tags drafts
// @Accept json
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the message id"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 409 {object} helpers.APIResponse "error.code: submit_in_flight"
// @Failure 502 {object} helpers.APIResponse "error.code: send_failed"
// @Router /drafts/me/send [post]
func (c *DraftController) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	change, ok := c.decodeChange(w, r)
	if !ok {
		return
	}
	defer closeUpload(change)
	result, err := c.Service.Submit(r.Context(), userID, change)
	if err != nil {
		c.writeDraftError(w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// decodeChange builds a DraftChange from either a JSON body or a multipart
// form. On failure it writes a 400 and returns false.
func (c *DraftController) decodeChange(w http.ResponseWriter, r *http.Request) (domain.DraftChange, bool) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		return c.decodeMultipart(w, r)
	}

	var change domain.DraftChange
	if r.ContentLength == 0 {
		return change, true
	}
	var req SaveDraftRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return change, false
	}
	change.Recipients = req.Recipients
	change.Subject = req.Subject
	change.Body = req.Body
	return change, true
}

func (c *DraftController) decodeMultipart(w http.ResponseWriter, r *http.Request) (domain.DraftChange, bool) {
	var change domain.DraftChange
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
		return change, false
	}
	form := r.MultipartForm
	if values, present := form.Value["recipients"]; present {
		// The field holds free text; tokenize it the same way a paste is.
		recipients := []string(domain.ParseRecipients(strings.Join(values, " ")))
		change.Recipients = &recipients
	}
	if values, present := form.Value["subject"]; present && len(values) > 0 {
		change.Subject = &values[0]
	}
	if values, present := form.Value["body"]; present && len(values) > 0 {
		change.Body = &values[0]
	}
	if files := form.File["file"]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
			return change, false
		}
		change.File = f
		change.FileName = files[0].Filename
	}
	return change, true
}

// closeUpload releases the uploaded file once the service is done with it.
// Disk-spilled multipart uploads keep a descriptor open until closed.
func closeUpload(change domain.DraftChange) {
	if closer, ok := change.File.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (c *DraftController) writeDraftError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, verr.Error())
	case errors.Is(err, domain.ErrSubmitInFlight):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeSubmitInFlight, "a send is already in progress")
	case errors.Is(err, domain.ErrAttachmentRead), errors.Is(err, domain.ErrAttachmentSize):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrSendFailed):
		helpers.WriteJSONError(w, http.StatusBadGateway, helpers.ErrCodeSendFailed, err.Error())
	default:
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
	}
}
