package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/baharkarakas/user-accounts/internal/api/httpx"
	"github.com/baharkarakas/user-accounts/internal/middleware"
	"github.com/baharkarakas/user-accounts/internal/services"
	"github.com/baharkarakas/user-accounts/internal/storage"
)

const (
	imageField      = "imageFile"
	multipartMemory = 1 << 20
	formOverhead    = 1 << 20
	msgRegistered   = "Registered successfully"
	msgBodyTooLarge = "Request body is too large"
)

type UserHandler struct {
	Svc            *services.UserService
	MaxUploadBytes int64
}

func NewUserHandler(svc *services.UserService, maxUploadBytes int64) *UserHandler {
	return &UserHandler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// userFields is the JSON shape of a user payload. Absent keys stay nil.
type userFields struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Password  *string `json:"password"`
}

func (f userFields) input() services.UserInput {
	return services.UserInput{
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Email:     f.Email,
		Password:  f.Password,
	}
}

type listReq struct {
	Params struct {
		Page    httpx.Param `json:"page"`
		PerPage httpx.Param `json:"per_page"`
	} `json:"params"`
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.List(r.Context(), req.Params.Page.Int(0), req.Params.PerPage.Int(0))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var (
		in   services.UserInput
		file *storage.Upload
	)
	if isMultipart(r) {
		form, ok := h.parseForm(w, r)
		if !ok {
			return
		}
		in = formInput(form)
		var closeFile func()
		if file, closeFile, ok = formFile(w, r, form); !ok {
			return
		}
		defer closeFile()
	} else {
		var req userFields
		if !decode(w, r, &req) {
			return
		}
		in = req.input()
	}

	if err := h.Svc.Register(r.Context(), in, file); err != nil {
		writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Status: http.StatusOK, Data: msgRegistered})
}

type editReq struct {
	Params struct {
		UserID httpx.Param `json:"user_id"`
	} `json:"params"`
}

type editResp struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (h *UserHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editReq
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.EditUser(r.Context(), req.Params.UserID.String())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := editResp{Status: res.Status, Message: res.Message, Data: ""}
	if res.User != nil {
		resp.Data = res.User
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type updateReq struct {
	Params struct {
		ID httpx.Param `json:"id"`
		userFields
	} `json:"params"`
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var (
		id   string
		in   services.UserInput
		file *storage.Upload
	)
	if isMultipart(r) {
		form, ok := h.parseForm(w, r)
		if !ok {
			return
		}
		id = firstValue(form, "id")
		in = formInput(form)
		var closeFile func()
		if file, closeFile, ok = formFile(w, r, form); !ok {
			return
		}
		defer closeFile()
	} else {
		var req updateReq
		if !decode(w, r, &req) {
			return
		}
		id = req.Params.ID.String()
		in = req.Params.input()
	}

	res, err := h.Svc.UpdateUser(r.Context(), id, in, file)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpx.WriteEnvelope(w, res.Status, res.Message)
}

type verifyReq struct {
	Password string `json:"password"`
}

func (h *UserHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if !decode(w, r, &req) {
		return
	}
	uid, _ := middleware.UserID(r.Context())
	user, err := h.Svc.SessionUser(r.Context(), uid)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := h.Svc.VerifyPassword(r.Context(), user, req.Password)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httpx.WriteEnvelope(w, res.Status, res.Message)
}

// ----------------- helpers -----------------

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	httpx.WriteEnvelope(w, http.StatusBadRequest, err.Error())
	return false
}

// writeErr renders client failures in-band and hides everything else.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var he *services.HTTPError
	if errors.As(err, &he) {
		httpx.WriteEnvelope(w, he.Status, he.Message)
		return
	}
	slog.ErrorContext(r.Context(), "request failed",
		"path", r.URL.Path,
		"request_id", middleware.RequestIDFrom(r.Context()),
		"err", err,
	)
	httpx.WriteInternal(w)
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func (h *UserHandler) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			httpx.WriteEnvelope(w, http.StatusBadRequest, msgBodyTooLarge)
			return nil, false
		}
		httpx.WriteEnvelope(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return r.MultipartForm, true
}

func formInput(form *multipart.Form) services.UserInput {
	field := func(name string) *string {
		vs, ok := form.Value[name]
		if !ok || len(vs) == 0 {
			return nil
		}
		return &vs[0]
	}
	return services.UserInput{
		FirstName: field("firstName"),
		LastName:  field("lastName"),
		Email:     field("email"),
		Password:  field("password"),
	}
}

func firstValue(form *multipart.Form, name string) string {
	if vs := form.Value[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// formFile opens the optional avatar part. The returned func closes it.
func formFile(w http.ResponseWriter, r *http.Request, form *multipart.Form) (*storage.Upload, func(), bool) {
	noop := func() {}
	fhs := form.File[imageField]
	if len(fhs) == 0 {
		return nil, noop, true
	}
	f, err := fhs[0].Open()
	if err != nil {
		writeErr(w, r, err)
		return nil, noop, false
	}
	return &storage.Upload{Filename: fhs[0].Filename, Content: f}, func() { _ = f.Close() }, true
}
