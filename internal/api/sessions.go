package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nlquery/nlquery/internal/assistant"
	"github.com/nlquery/nlquery/internal/auth"
	"github.com/nlquery/nlquery/internal/connector"
	"github.com/nlquery/nlquery/internal/generator"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/session"
	"github.com/nlquery/nlquery/internal/source"
)

type sourceRequest struct {
	Kind       string                   `json:"kind"`
	Relational *source.RelationalConfig `json:"relational"`
	Tabular    *source.TabularConfig    `json:"tabular"`
}

type askRequest struct {
	Question string `json:"question"`
}

type executeRequest struct {
	Artifact string `json:"artifact"`
}

type askResponse struct {
	assistant.Answer
	DurationMs int64 `json:"duration_ms"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireSessions(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleAnalyst, auth.RoleOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	s := deps.Sessions.CreateFor(ownerFromRequest(r))
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if err := deps.Sessions.Delete(s.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleConnectSource(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	var request sourceRequest
	if !decodeBody(w, r, &request) {
		return
	}
	cfg, err := request.config()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if deps.Sources != nil {
		if err := deps.Sources.Check(r.Context(), cfg); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	release, err := s.Acquire()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer release()
	if _, err := deps.Sessions.Connect(s.ID, cfg); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "session source connected",
			slog.String("session_id", s.ID),
			slog.String("kind", string(cfg.Kind)),
			slog.String("source", observability.Mask(cfg.DisplayName())),
		)
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REFRESH", "refresh must be a boolean", false, map[string]any{"refresh": raw})
			return
		}
		refresh = parsed
	}
	withSession(deps, w, r, func(ctx context.Context, s *session.Session) {
		value, err := deps.Assistant.Schema(ctx, s, refresh)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": s.ID, "schema": value})
	})
}

func handleDescribeSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	withSession(deps, w, r, func(ctx context.Context, s *session.Session) {
		description, err := deps.Assistant.DescribeSchema(ctx, s)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": s.ID, "description": description})
	})
}

func handleFreshness(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	withSession(deps, w, r, func(ctx context.Context, s *session.Session) {
		report, err := deps.Assistant.CheckFreshness(ctx, s)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request askRequest
	if !decodeBody(w, r, &request) {
		return
	}
	withSession(deps, w, r, func(ctx context.Context, s *session.Session) {
		answer := deps.Assistant.Ask(ctx, s, request.Question)
		writeJSON(w, http.StatusOK, askResponse{Answer: answer, DurationMs: answer.Duration.Milliseconds()})
	})
}

func handleExecute(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var request executeRequest
	if !decodeBody(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Artifact) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "ARTIFACT_REQUIRED", "artifact is required", false, nil)
		return
	}
	withSession(deps, w, r, func(ctx context.Context, s *session.Session) {
		result := deps.Assistant.Execute(ctx, s, request.Artifact)
		writeJSON(w, http.StatusOK, map[string]any{"session_id": s.ID, "result": result})
	})
}

// withSession resolves the session, checks it is connected and holds its busy
// lock while fn runs.
func withSession(deps Dependencies, w http.ResponseWriter, r *http.Request, fn func(context.Context, *session.Session)) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	s, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if _, err := s.Source(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	release, err := s.Acquire()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer release()
	fn(observability.ContextWithSessionID(r.Context(), s.ID), s)
}

func lookupSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if !requireSessions(deps, w, r) {
		return nil, false
	}
	if err := requireRole(r, auth.RoleAnalyst, auth.RoleOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return nil, false
	}
	s, err := deps.Sessions.Get(r.PathValue("id"))
	if err == nil && s.Owner != ownerFromRequest(r) {
		err = session.ErrNotFound
	}
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return s, true
}

func requireSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func ownerFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.KeyID
	}
	return ""
}

// requireRole passes when auth is off or the caller holds any of roles.
func requireRole(r *http.Request, roles ...string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	for _, role := range roles {
		if identity.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("missing required role %q", roles[0])
}

func (req sourceRequest) config() (source.Config, error) {
	kind, err := source.ParseKind(req.Kind)
	if err != nil {
		return source.Config{}, err
	}
	cfg := source.Config{Kind: kind, Relational: req.Relational, Tabular: req.Tabular}
	if cfg.Relational != nil && cfg.Relational.Driver == "" && strings.EqualFold(strings.TrimSpace(req.Kind), source.DriverPostgres) {
		relational := *cfg.Relational
		relational.Driver = source.DriverPostgres
		cfg.Relational = &relational
	}
	return cfg, cfg.Validate()
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var genErr *generator.Error
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), false, map[string]any{"session_id": r.PathValue("id")})
	case errors.Is(err, session.ErrBusy):
		writeError(ctx, w, http.StatusConflict, "SESSION_BUSY", err.Error(), true, nil)
	case errors.Is(err, session.ErrNotConnected):
		writeError(ctx, w, http.StatusConflict, "SOURCE_NOT_CONNECTED", err.Error(), false, nil)
	case errors.Is(err, connector.ErrUnreachable), errors.Is(err, connector.ErrConnectionFailed):
		writeError(ctx, w, http.StatusBadGateway, "SOURCE_UNREACHABLE", observability.Mask(err.Error()), true, nil)
	case errors.Is(err, connector.ErrAuthentication):
		writeError(ctx, w, http.StatusUnprocessableEntity, "SOURCE_AUTH_FAILED", observability.Mask(err.Error()), false, nil)
	case errors.Is(err, connector.ErrDatabaseNotFound):
		writeError(ctx, w, http.StatusUnprocessableEntity, "DATABASE_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, connector.ErrInvalidConfig),
		errors.Is(err, connector.ErrMissingPath),
		errors.Is(err, connector.ErrPathNotFound),
		errors.Is(err, connector.ErrPathIsDirectory),
		errors.Is(err, connector.ErrUnsupportedFormat),
		errors.Is(err, connector.ErrUnreadableContent):
		writeError(ctx, w, http.StatusUnprocessableEntity, "INVALID_SOURCE", err.Error(), false, nil)
	case errors.Is(err, assistant.ErrNoSchema):
		writeError(ctx, w, http.StatusUnprocessableEntity, "EMPTY_SCHEMA", err.Error(), false, nil)
	case errors.Is(err, assistant.ErrNoConnector):
		writeError(ctx, w, http.StatusNotImplemented, "FRESHNESS_NOT_CONFIGURED", err.Error(), false, nil)
	case errors.As(err, &genErr):
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", observability.Mask(err.Error()), true, map[string]any{"provider": genErr.Provider})
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", observability.Mask(err.Error()), false, nil)
	}
}
