package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/FocuswithJustin/delimcodec/core/codec"
	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/sink"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
)

// Request asks for one field to be serialized. Value may be a JSON string,
// number or boolean; numbers keep their textual form.
type Request struct {
	ID       string          `json:"id,omitempty"`
	Field    string          `json:"field"`
	Value    json.RawMessage `json:"value,omitempty"`
	Nil      bool            `json:"nil,omitempty"`
	Capacity int64           `json:"capacity,omitempty"` // sink capacity in characters, 0 for unbounded
}

// Response carries the serialized field, or what was written before a
// failure together with the error.
type Response struct {
	ID      string     `json:"id,omitempty"`
	Field   string     `json:"field"`
	Encoded string     `json:"encoded"`
	Hex     string     `json:"hex"`
	Chars   int64      `json:"chars"`
	Bits    int64      `json:"bits"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is a classified failure.
type ErrorBody struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Stage    string `json:"stage,omitempty"`
	Char     string `json:"char,omitempty"`
	Expected *int   `json:"expected,omitempty"`
	Actual   *int   `json:"actual,omitempty"`
}

func errorBody(err error) *ErrorBody {
	body := &ErrorBody{Kind: errors.KindOf(err).String(), Message: err.Error()}
	if errors.Is(err, errors.ErrNotFound) {
		body.Kind = "NotFound"
	}
	var ue *errors.UnrepresentableError
	if errors.As(err, &ue) {
		body.Stage = string(ue.Stage)
		if ue.Reason == "" {
			body.Char = string(ue.Char)
		}
	}
	var se *errors.InsufficientSpaceError
	if errors.As(err, &se) {
		body.Expected, body.Actual = &se.Expected, &se.Actual
	}
	return body
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, errors.NewValidation("value", "a value or nil is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.NewValidation("value", err.Error())
	}
	switch x := v.(type) {
	case json.Number:
		return x.String(), nil
	case string, bool, nil:
		return x, nil
	}
	return nil, errors.NewValidation("value", "must be a string, number, boolean or null")
}

// Unparse serializes one request. Failures are reported in the response
// and, when the server has a journal, recorded there.
func (s *Server) Unparse(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Field: req.Field}
	f, err := s.fields.Get(req.Field)
	if err != nil {
		resp.Error = errorBody(err)
		return resp
	}
	capacity := req.Capacity
	if s.cfg.MaxCapacity > 0 && (capacity <= 0 || capacity > s.cfg.MaxCapacity) {
		capacity = s.cfg.MaxCapacity
	}
	var opts []sink.Option
	if capacity > 0 {
		opts = append(opts, sink.WithCharLimit(capacity))
	}
	buf := f.NewBuffer(opts...)

	cctx := codec.NewContext(logging.LoggerFromContext(ctx))
	if req.Nil {
		err = f.UnparseNil(cctx, buf)
	} else {
		var v any
		if v, err = decodeValue(req.Value); err == nil {
			err = f.UnparseValue(cctx, v, buf)
		}
	}
	index := int(s.index.Add(1) - 1)

	resp.Encoded = buf.String()
	resp.Hex = hex.EncodeToString(buf.Bytes())
	pos := buf.Position()
	resp.Chars, resp.Bits = pos.Chars, pos.Bits
	if err != nil {
		resp.Error = errorBody(err)
		if s.journal != nil {
			if jerr := s.journal.RecordDiagnostics(ctx, s.runID, index, cctx.Diagnostics()); jerr != nil {
				logging.ErrorContext(ctx, "journal write failed", "error", jerr)
			}
		}
	}
	return resp
}

// apiResponse is the envelope for non-codec endpoints.
type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    *apiMeta  `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// FieldInfo describes a served field.
type FieldInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Charset     string `json:"charset"`
	Description string `json:"description"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	var infos []FieldInfo
	for _, f := range s.fields.All() {
		infos = append(infos, FieldInfo{
			Name:        f.Name(),
			Type:        f.Type().Name(),
			Charset:     f.Charset().Name(),
			Description: f.String(),
		})
	}
	respond(w, http.StatusOK, infos)
}

func (s *Server) handleUnparse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	var req Request
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	resp := s.Unparse(r.Context(), req)
	status := http.StatusOK
	if resp.Error != nil {
		switch resp.Error.Kind {
		case "NotFound":
			status = http.StatusNotFound
		case errors.KindInvalidInput.String():
			status = http.StatusBadRequest
		default:
			status = http.StatusUnprocessableEntity
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func respond(w http.ResponseWriter, status int, data any) {
	response := apiResponse{
		Success: true,
		Data:    data,
		Meta:    &apiMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	}
	if list, ok := data.([]FieldInfo); ok {
		response.Meta.Total = len(list)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	response := apiResponse{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
		Meta:    &apiMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
