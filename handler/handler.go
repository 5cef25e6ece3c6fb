package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"lex-bot-deploy/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// maxBodyBytes bounds an inline schema document.
const maxBodyBytes = 1 << 20

var newCorrelationID = func() string { return uuid.NewString() }

// DeployUseCase is satisfied by *usecase.DeployService.
type DeployUseCase interface {
	Deploy(ctx context.Context, in usecase.DeployInput) (usecase.DeployOutput, error)
}

type Handler struct {
	uc      DeployUseCase
	log     *slog.Logger
	timeout time.Duration
}

type Option func(*Handler)

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithTimeout bounds each deployment. A run cut short answers 504 and can be
// retried; zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

func NewHandler(uc DeployUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: deploy use case must not be nil")
	}
	h := &Handler{uc: uc, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type deployRequest struct {
	Schema         json.RawMessage `json:"schema,omitempty"`
	FileName       string          `json:"fileName,omitempty"`
	Example        string          `json:"example,omitempty"`
	Alias          string          `json:"alias,omitempty"`
	LambdaEndpoint string          `json:"lambdaEndpoint,omitempty"`
}

type intentVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type permissionSummary struct {
	Granted  []string `json:"granted,omitempty"`
	Existing []string `json:"existing,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Skipped  bool     `json:"skipped,omitempty"`
}

type deployResponse struct {
	DeploymentID   string            `json:"deploymentId"`
	BotName        string            `json:"botName"`
	Alias          string            `json:"alias"`
	BotVersion     string            `json:"botVersion"`
	Outcome        string            `json:"outcome"`
	AliasWritten   bool              `json:"aliasWritten"`
	IntentVersions []intentVersion   `json:"intentVersions"`
	Replacements   int               `json:"endpointReplacements"`
	Permissions    permissionSummary `json:"permissions"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handle runs one deployment for a POST /deploy proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	log := h.log.With(slog.String("correlation_id", correlationID))

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respondError(http.StatusMethodNotAllowed, correlationID, usecase.ErrorInvalidInput, "method_not_allowed", ""), nil
	}
	if len(req.Body) > maxBodyBytes {
		return respondError(http.StatusRequestEntityTooLarge, correlationID, usecase.ErrorInvalidInput, "body_too_large", ""), nil
	}

	var body deployRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		log.WarnContext(ctx, "invalid request body", slog.Any("err", err))
		return respondError(http.StatusBadRequest, correlationID, usecase.ErrorInvalidInput, "invalid_body", ""), nil
	}

	in := usecase.DeployInput{
		Example:        strings.TrimSpace(body.Example),
		FileName:       strings.TrimSpace(body.FileName),
		Alias:          strings.TrimSpace(body.Alias),
		LambdaEndpoint: strings.TrimSpace(body.LambdaEndpoint),
	}
	if len(body.Schema) > 0 && string(body.Schema) != "null" {
		in.Schema = body.Schema
	}

	deployCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		deployCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	out, err := h.uc.Deploy(deployCtx, in)
	if err != nil {
		code := usecase.CodeOf(err)
		status := statusFor(code)
		var ue *usecase.Error
		reason, message := "", ""
		if errors.As(err, &ue) {
			reason, message = ue.Reason, ue.Hint
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			code, status = usecase.ErrorStillPending, http.StatusGatewayTimeout
			message = "deployment did not finish in time; it is safe to send the request again"
		}
		if status >= http.StatusInternalServerError {
			log.ErrorContext(ctx, "deploy failed", slog.String("code", string(code)), slog.Any("err", err))
		} else {
			log.WarnContext(ctx, "deploy rejected", slog.String("code", string(code)), slog.Any("err", err))
		}
		return respondError(status, correlationID, code, reason, message), nil
	}

	return respondJSON(http.StatusOK, correlationID, toResponse(out)), nil
}

func toResponse(out usecase.DeployOutput) deployResponse {
	intents := make([]intentVersion, 0, len(out.IntentVersions))
	for _, iv := range out.IntentVersions {
		intents = append(intents, intentVersion{Name: iv.IntentName, Version: iv.IntentVersion})
	}
	return deployResponse{
		DeploymentID:   out.DeploymentID,
		BotName:        out.BotName,
		Alias:          out.Alias,
		BotVersion:     out.BotVersion,
		Outcome:        out.Outcome,
		AliasWritten:   out.AliasWritten,
		IntentVersions: intents,
		Replacements:   len(out.Replacements),
		Permissions: permissionSummary{
			Granted:  out.Permissions.Granted,
			Existing: out.Permissions.Existing,
			Failed:   out.Permissions.Failed,
			Skipped:  out.Permissions.Skipped,
		},
	}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorRemoteFailed:
		return http.StatusUnprocessableEntity
	case usecase.ErrorStillPending:
		return http.StatusGatewayTimeout
	case usecase.ErrorEndpointUnreachable, usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func respondError(status int, correlationID string, code usecase.ErrorCode, reason, message string) events.APIGatewayProxyResponse {
	return respondJSON(status, correlationID, errorResponse{Error: string(code), Reason: reason, Message: message})
}

func respondJSON(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"` + string(usecase.ErrorInternal) + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}
