package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound      = NewErr("NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrPasteExpired       = NewErr("EXPIRED", "link expired", http.StatusGone)
	ErrPasswordRequired   = NewErr("PASSWORD_REQUIRED", "password required", http.StatusForbidden)
	ErrInvalidPassword    = NewErr("UNAUTHORIZED", "wrong password", http.StatusUnauthorized)
	ErrUploadNotFound     = NewErr("NOT_FOUND", "file not found", http.StatusNotFound)
	ErrUploadExpired      = NewErr("EXPIRED", "file expired", http.StatusGone)
	ErrUnsupportedType    = NewErr("UNSUPPORTED_TYPE", "only text files are allowed", http.StatusUnsupportedMediaType)
	ErrStorageUnavailable = NewErr("STORAGE_UNAVAILABLE", "storage unavailable, try again later", http.StatusInternalServerError)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrIDGenerationFailed = NewErr("ID_GENERATION_FAILED", "id generation failed", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Field  string `json:"field,omitempty"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// Invalid builds an INVALID_INPUT error naming the offending field.
func Invalid(field, msg string) *Err {
	return &Err{Code: "INVALID_INPUT", Msg: msg, Field: field, Status: http.StatusBadRequest}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}

type ErrDetail struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"message"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func ToResp(err error) ErrResp {
	if e, ok := err.(*Err); ok {
		return respFor(e)
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return respFor(e)
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}

func respFor(e *Err) ErrResp {
	d := ErrDetail{Code: e.Code, Msg: e.Msg}
	if e.Field != "" {
		d.Meta = map[string]interface{}{"field": e.Field}
	}
	return ErrResp{Error: d}
}

func Status(err error) int {
	if e, ok := err.(*Err); ok {
		return e.Status
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
