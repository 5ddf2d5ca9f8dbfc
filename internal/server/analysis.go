package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/document"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/inference"
	"github.com/careerlens/careerlens/internal/metrics"
	servermw "github.com/careerlens/careerlens/internal/server/middleware"
)

// maxMultipartMemory is held in memory before multipart parts spill to disk.
const maxMultipartMemory = 8 << 20

// analysisHandler decodes the request, runs one operation and writes its
// value. A degraded outcome is still a 200; only the header tells them apart.
func analysisHandler[In, Out any](
	decode func(*http.Request) (In, error),
	run func(context.Context, In, string) (inference.Outcome[Out], error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		in, err := decode(r)
		if err != nil {
			HandleError(w, r, err)
			return
		}

		outcome, err := run(ctx, in, servermw.GetRequestID(ctx))
		if err != nil {
			if analysis.IsInputError(err) {
				HandleError(w, r, inputError(ctx, err))
				return
			}
			HandleError(w, r, apperrors.WrapInternal(ctx, err, "analysis could not be started"))
			return
		}

		w.Header().Set(servermw.OutcomeHeader, string(outcome.Status))
		writeJSON(w, http.StatusOK, outcome.Value)
	}
}

// parseCVRequest is the JSON form of parse-cv. ObjectKey names an uploaded
// document in object storage and is used when Text is empty.
type parseCVRequest struct {
	analysis.ParseCVInput
	ObjectKey string `json:"object_key,omitempty"`
}

// decodeParseCV accepts JSON text, a JSON object key, or a multipart upload
// in the "file" field.
func (s *Server) decodeParseCV(r *http.Request) (analysis.ParseCVInput, error) {
	if mediaType(r) == "multipart/form-data" {
		return s.decodeParseCVUpload(r)
	}

	req, err := decodeJSON[parseCVRequest](r)
	if err != nil {
		return analysis.ParseCVInput{}, err
	}
	if strings.TrimSpace(req.Text) != "" || strings.TrimSpace(req.ObjectKey) == "" {
		return req.ParseCVInput, nil
	}

	data, err := s.deps.Objects.Fetch(r.Context(), req.ObjectKey)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrNotConfigured),
			errors.Is(err, document.ErrInvalidKey),
			errors.Is(err, document.ErrTooLarge):
			return analysis.ParseCVInput{}, apperrors.WrapInvalidInput(r.Context(), err, err.Error())
		default:
			return analysis.ParseCVInput{}, apperrors.WrapExternalService(r.Context(), err, "document could not be fetched")
		}
	}

	text, err := s.extract(r, req.ObjectKey, data)
	if err != nil {
		return analysis.ParseCVInput{}, err
	}
	return analysis.ParseCVInput{Text: text, Language: req.Language}, nil
}

func (s *Server) decodeParseCVUpload(r *http.Request) (analysis.ParseCVInput, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return analysis.ParseCVInput{}, bodyError(r, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return analysis.ParseCVInput{}, apperrors.WrapInvalidInput(r.Context(), err, "file: a CV document is required")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return analysis.ParseCVInput{}, bodyError(r, err)
	}

	text, err := s.extract(r, header.Filename, data)
	if err != nil {
		return analysis.ParseCVInput{}, err
	}
	return analysis.ParseCVInput{Text: text, Language: r.FormValue("language")}, nil
}

// extract reads document text. Any failure is the caller's document.
func (s *Server) extract(r *http.Request, name string, data []byte) (string, error) {
	kind := string(document.Detect(name, data))
	if kind == "" {
		kind = "unknown"
	}

	text, err := s.deps.Extractor.Extract(name, data)
	metrics.RecordDocument(kind, err == nil)
	if err != nil {
		return "", apperrors.WrapInvalidInput(r.Context(), err, "file: "+err.Error())
	}
	return text, nil
}

// decodeJSON reads a single JSON object from the body.
func decodeJSON[T any](r *http.Request) (T, error) {
	var in T
	if mt := mediaType(r); mt != "" && mt != "application/json" {
		return in, apperrors.New(apperrors.CodeUnsupportedMedia, "Content-Type must be application/json")
	}

	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, bodyError(r, err)
	}
	return in, nil
}

func bodyError(r *http.Request, err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return apperrors.New(apperrors.CodePayloadTooLarge, "request body is too large")
	case errors.Is(err, io.EOF):
		return apperrors.NewInvalidInputError("request body is required")
	default:
		return apperrors.WrapInvalidInput(r.Context(), err, "request body is not valid")
	}
}

// inputError converts an analysis.InputError into an INVALID_INPUT envelope
// naming the offending field.
func inputError(ctx context.Context, err error) error {
	envelope := apperrors.WrapInvalidInput(ctx, err, err.Error())
	var inErr *analysis.InputError
	if errors.As(err, &inErr) {
		envelope = envelope.WithDetails(map[string]interface{}{"field": inErr.Field})
	}
	return envelope
}

func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
