package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/platform/otel"
	"github.com/zenite-os/zenite/internal/platform/requestctx"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/realtime"
	"github.com/zenite-os/zenite/internal/services/netlink/service"
)

const (
	maxRequestBodyBytes = 1 << 20

	codeInvalidRequest = "INVALID_REQUEST"
)

var tracer = otel.Tracer("netlink.http")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps a route with a span, a completion log line and panic recovery.
func (a *apiHandler) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), pattern, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("panic: %v", recovered)
				a.logger.Error("handler panic", err, logging.Fields{"route": pattern})
				span.RecordError(err)
				writeJSON(rec, http.StatusInternalServerError, errorBody(string(apperrors.CodeUnknown), "internal error"))
			}
			span.SetAttributes(
				attribute.String("http.route", pattern),
				attribute.Int("http.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			a.logger.Debug("request", logging.Fields{
				"route":       pattern,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"user_id":     requestctx.UserIDFromContext(r.Context()),
			})
		}()
		next(rec, r.WithContext(ctx))
	}
}

// requireAuth resolves the bearer token into a request identity.
func (a *apiHandler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := realtime.TokenFromRequest(r)
		if token == "" {
			a.writeError(w, r, apperrors.New(apperrors.CodeAuthRequired, "authentication required"))
			return
		}
		claims, err := a.auth.Verify(token)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		ctx := requestctx.WithIdentity(r.Context(), requestctx.Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
			Guest:    claims.Guest,
		})
		next(w, r.WithContext(ctx))
	}
}

func callerFrom(r *http.Request) service.Caller {
	identity, _ := requestctx.IdentityFromContext(r.Context())
	return service.Caller{UserID: identity.UserID, Username: identity.Username, Guest: identity.Guest}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func readRawJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("request body is required")
	}
	return data, nil
}

func errorBody(code, message string) contract.ErrorResponse {
	return contract.ErrorResponse{Error: contract.ErrorBody{Code: code, Message: message}}
}

func (a *apiHandler) writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidRequest, err.Error()))
}

// writeError maps err to a status and a localized message.
func (a *apiHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError && !apperrors.IsCode(err, apperrors.CodeArchiveDisabled) {
		a.logger.Error("request failed", err, logging.Fields{"path": r.URL.Path, "method": r.Method})
		trace.SpanFromContext(r.Context()).RecordError(err)
	}
	locale := r.Header.Get("Accept-Language")
	writeJSON(w, status, errorBody(string(apperrors.GetCode(err)), apperrors.UserMessage(err, locale)))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
