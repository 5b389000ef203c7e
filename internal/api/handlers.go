package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"wagate/internal/delivery"
	"wagate/internal/notice"
)

// envelope is the response body shared by every send endpoint.
type envelope struct {
	Status   bool `json:"status"`
	Response any  `json:"response,omitempty"`
	Message  any  `json:"message,omitempty"`
}

func (s *Server) handleSendMessage(rw http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(rw, r)
	if err != nil {
		s.badRequest(rw, err)
		return
	}
	s.writeResult(rw, "send-message", s.delivery.SendText(r.Context(), req.get("number"), req.get("message")))
}

func (s *Server) handleSendMedia(rw http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(rw, r)
	if err != nil {
		s.badRequest(rw, err)
		return
	}
	src := delivery.MediaSource{URL: req.get("file"), Upload: req.upload}
	s.writeResult(rw, "send-media", s.delivery.SendMedia(r.Context(), req.get("number"), src, req.get("caption")))
}

func (s *Server) handleClearMessage(rw http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(rw, r)
	if err != nil {
		s.badRequest(rw, err)
		return
	}
	s.writeResult(rw, "clear-message", s.delivery.ClearChatHistory(r.Context(), req.get("number")))
}

// writeResult maps a delivery result onto the response envelope. The
// transmission failure path exposes the raw error text.
func (s *Server) writeResult(rw http.ResponseWriter, route string, res delivery.Result) {
	switch res.Kind {
	case delivery.Success:
		writeJSON(rw, http.StatusOK, envelope{Status: true, Response: res.Payload})
	case delivery.ValidationFailure:
		writeJSON(rw, http.StatusUnprocessableEntity, envelope{Message: res.FieldErrors})
	case delivery.RecipientUnregistered:
		writeJSON(rw, http.StatusUnprocessableEntity, envelope{Message: s.notices.Get(notice.APINotRegistered)})
	default:
		cause := "unknown error"
		if res.Cause != nil {
			cause = res.Cause.Error()
		}
		s.logger.Error("delivery failed", "route", route, "err", res.Cause)
		writeJSON(rw, http.StatusInternalServerError, envelope{Response: cause})
	}
}

func (s *Server) badRequest(rw http.ResponseWriter, err error) {
	s.logger.Debug("bad request body", "err", err)
	writeJSON(rw, http.StatusBadRequest, envelope{Message: err.Error()})
}

// request is a decoded body: flat string fields plus an optional upload.
type request struct {
	fields map[string]string
	upload *delivery.Upload
}

func (r *request) get(name string) string { return r.fields[name] }

// parseRequest accepts JSON, urlencoded and multipart bodies.
func (s *Server) parseRequest(rw http.ResponseWriter, r *http.Request) (*request, error) {
	r.Body = http.MaxBytesReader(rw, r.Body, s.maxBodySize)
	req := &request{fields: make(map[string]string)}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return req, nil
			}
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				req.fields[k] = v
			case nil:
			default:
				req.fields[k] = fmt.Sprint(v)
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.maxBodySize); err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
		for k := range r.MultipartForm.Value {
			req.fields[k] = r.FormValue(k)
		}
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return nil, fmt.Errorf("read upload: %w", err)
			}
			req.upload = &delivery.Upload{
				Filename: header.Filename,
				MimeType: header.Header.Get("Content-Type"),
				Data:     data,
			}
		} else if !errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("read upload: %w", err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		for k := range r.PostForm {
			req.fields[k] = r.PostForm.Get(k)
		}
	}
	return req, nil
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
