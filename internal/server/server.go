package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"studyline/internal/config"
	"studyline/internal/domain"
	"studyline/internal/engine"
	"studyline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"quota_exceeded"`
	Message string         `json:"message" example:"free daily quota of 3 reached"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Studyline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Studyline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerJourneys(group, cfg.Engine)
	registerEdital(group, cfg.Engine)
	registerStudy(group, cfg.Engine)
	registerReviews(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerAI(group, cfg.Engine)
	registerGroups(group, cfg.Engine)
	registerKeys(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerBilling(group, cfg.Engine, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pe engine.PaywallError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusPaymentRequired, "quota_exceeded", err.Error(), map[string]any{"limit": pe.Limit})
	}
	var fe engine.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusPaymentRequired:
		return "quota_exceeded"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		ensureSlash(path.Join(basePath, "health")):          true,
		ensureSlash(path.Join(basePath, "billing/webhook")): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func ensureSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Studyline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerJourneys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-journey",
		Method:        http.MethodPost,
		Path:          "/journeys",
		Summary:       "Create journey",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateJourneyRequest `json:"body"`
	}) (*struct {
		Body JourneyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.CreateJourney(ctx, engine.JourneyCreateOptions{
			Name:    input.Body.Name,
			Exam:    stringOrEmpty(input.Body.Exam),
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JourneyResponse `json:"body"`
		}{Body: journeyResponse(j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-journeys",
		Method:      http.MethodGet,
		Path:        "/journeys",
		Summary:     "List journeys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []JourneyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListJourneys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []JourneyResponse `json:"body"`
		}{Body: mapJourneys(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-journey",
		Method:      http.MethodGet,
		Path:        "/journeys/{journey_id}",
		Summary:     "Get journey",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
	}) (*struct {
		Body JourneyResponse `json:"body"`
	}, error) {
		j, err := e.Repo.GetJourney(ctx, input.JourneyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JourneyResponse `json:"body"`
		}{Body: journeyResponse(j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-journey",
		Method:      http.MethodPost,
		Path:        "/journeys/{journey_id}/archive",
		Summary:     "Archive journey",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
	}) (*struct {
		Body JourneyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ArchiveJourney(ctx, input.JourneyID, actorID); err != nil {
			return nil, handleError(err)
		}
		j, err := e.Repo.GetJourney(ctx, input.JourneyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JourneyResponse `json:"body"`
		}{Body: journeyResponse(j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-journey",
		Method:      http.MethodDelete,
		Path:        "/journeys/{journey_id}",
		Summary:     "Delete journey and all its data",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteJourney(ctx, input.JourneyID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-journey-config",
		Method:      http.MethodGet,
		Path:        "/journeys/{journey_id}/config",
		Summary:     "Get journey config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
	}) (*struct {
		Body config.Config `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetJourneyConfig(ctx, input.JourneyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body config.Config `json:"body"`
		}{Body: *cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-journey-config",
		Method:      http.MethodPut,
		Path:        "/journeys/{journey_id}/config",
		Summary:     "Replace journey config",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string        `path:"journey_id"`
		Body      config.Config `json:"body"`
	}) (*struct {
		Body config.Config `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := e.Repo.GetJourney(ctx, input.JourneyID); err != nil {
			return nil, handleError(err)
		}
		cfg := input.Body
		if err := e.Repo.UpsertJourneyConfig(ctx, input.JourneyID, &cfg); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body config.Config `json:"body"`
		}{Body: cfg}, nil
	})
}

func registerEdital(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-edital",
		Method:      http.MethodGet,
		Path:        "/journeys/{journey_id}/edital",
		Summary:     "Get edital with topic status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
	}) (*struct {
		Body []DisciplineResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetJourney(ctx, input.JourneyID); err != nil {
			return nil, handleError(err)
		}
		disciplines, err := e.Repo.ListEdital(ctx, input.JourneyID)
		if err != nil {
			return nil, handleError(err)
		}
		statuses, err := e.Repo.ListTopicStatus(ctx, input.JourneyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DisciplineResponse `json:"body"`
		}{Body: editalResponse(disciplines, statuses)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-edital",
		Method:      http.MethodPost,
		Path:        "/journeys/{journey_id}/edital/import",
		Summary:     "Import edital, structured or via AI extraction",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		JourneyID string              `path:"journey_id"`
		Body      ImportEditalRequest `json:"body"`
	}) (*struct {
		Body []DisciplineResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.Disciplines) > 0 && input.Body.Text != "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "provide disciplines or text, not both", nil)
		}
		var disciplines []DisciplineResponse
		if input.Body.Text != "" {
			imported, err := e.ImportEditalText(ctx, input.JourneyID, input.Body.Text, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			disciplines = editalResponse(imported, nil)
		} else {
			imported, err := e.ImportEdital(ctx, engine.EditalImportOptions{
				JourneyID:   input.JourneyID,
				Disciplines: input.Body.Disciplines,
				ActorID:     actorID,
			})
			if err != nil {
				return nil, handleError(err)
			}
			disciplines = editalResponse(imported, nil)
		}
		return &struct {
			Body []DisciplineResponse `json:"body"`
		}{Body: disciplines}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-discipline",
		Method:        http.MethodPost,
		Path:          "/journeys/{journey_id}/disciplines",
		Summary:       "Add discipline",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string               `path:"journey_id"`
		Body      AddDisciplineRequest `json:"body"`
	}) (*struct {
		Body DisciplineResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.AddDiscipline(ctx, input.JourneyID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisciplineResponse `json:"body"`
		}{Body: DisciplineResponse{ID: d.ID, Name: d.Name, Position: d.Position, Topics: []TopicResponse{}}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-topic",
		Method:        http.MethodPost,
		Path:          "/disciplines/{discipline_id}/topics",
		Summary:       "Add topic",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DisciplineID string          `path:"discipline_id"`
		Body         AddTopicRequest `json:"body"`
	}) (*struct {
		Body TopicResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddTopic(ctx, input.DisciplineID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TopicResponse `json:"body"`
		}{Body: TopicResponse{ID: t.ID, Name: t.Name, Position: t.Position}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-discipline",
		Method:      http.MethodPatch,
		Path:        "/disciplines/{discipline_id}",
		Summary:     "Rename discipline",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DisciplineID string        `path:"discipline_id"`
		Body         RenameRequest `json:"body"`
	}) (*struct {
		Body DisciplineResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.RenameDiscipline(ctx, input.DisciplineID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisciplineResponse `json:"body"`
		}{Body: DisciplineResponse{ID: d.ID, Name: d.Name, Position: d.Position, Topics: []TopicResponse{}}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-topic",
		Method:      http.MethodPatch,
		Path:        "/topics/{topic_id}",
		Summary:     "Rename topic",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TopicID string        `path:"topic_id"`
		Body    RenameRequest `json:"body"`
	}) (*struct {
		Body TopicResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RenameTopic(ctx, input.TopicID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TopicResponse `json:"body"`
		}{Body: TopicResponse{ID: t.ID, Name: t.Name, Position: t.Position}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-topic",
		Method:      http.MethodDelete,
		Path:        "/topics/{topic_id}",
		Summary:     "Delete topic",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TopicID string `path:"topic_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTopic(ctx, input.TopicID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-discipline",
		Method:      http.MethodDelete,
		Path:        "/disciplines/{discipline_id}",
		Summary:     "Delete discipline",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DisciplineID string `path:"discipline_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteDiscipline(ctx, input.DisciplineID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStudy(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-session",
		Method:        http.MethodPost,
		Path:          "/journeys/{journey_id}/sessions",
		Summary:       "Record study session",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		JourneyID string               `path:"journey_id"`
		Body      RecordSessionRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.TopicID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "topic_id is required", nil)
		}
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is required", nil)
		}
		s, revisions, err := e.RecordStudySession(ctx, engine.StudySessionOptions{
			JourneyID:       input.JourneyID,
			DisciplineID:    stringOrEmpty(input.Body.DisciplineID),
			TopicID:         input.Body.TopicID,
			DurationSeconds: input.Body.DurationSeconds,
			Date:            stringOrEmpty(input.Body.Date),
			Type:            input.Body.Type,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if revisions == nil {
			revisions = []domain.Revision{}
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Session: s, Revisions: revisions}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-questions",
		Method:        http.MethodPost,
		Path:          "/journeys/{journey_id}/questions",
		Summary:       "Log question batch",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string              `path:"journey_id"`
		Body      LogQuestionsRequest `json:"body"`
	}) (*struct {
		Body domain.QuestionLog `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.LogQuestions(ctx, engine.QuestionLogOptions{
			JourneyID:    input.JourneyID,
			DisciplineID: stringOrEmpty(input.Body.DisciplineID),
			TopicID:      input.Body.TopicID,
			Total:        input.Body.Total,
			Correct:      input.Body.Correct,
			Date:         stringOrEmpty(input.Body.Date),
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.QuestionLog `json:"body"`
		}{Body: q}, nil
	})
}

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "review-agenda",
		Method:      http.MethodGet,
		Path:        "/journeys/{journey_id}/reviews",
		Summary:     "Review agenda",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
	}) (*struct {
		Body domain.ReviewAgenda `json:"body"`
	}, error) {
		if _, err := e.Repo.GetJourney(ctx, input.JourneyID); err != nil {
			return nil, handleError(err)
		}
		agenda, err := e.Agenda(ctx, input.JourneyID)
		if err != nil {
			return nil, handleError(err)
		}
		if agenda.Overdue == nil {
			agenda.Overdue = []domain.Revision{}
		}
		if agenda.DueToday == nil {
			agenda.DueToday = []domain.Revision{}
		}
		if agenda.Upcoming == nil {
			agenda.Upcoming = []domain.Revision{}
		}
		return &struct {
			Body domain.ReviewAgenda `json:"body"`
		}{Body: agenda}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-review",
		Method:      http.MethodPost,
		Path:        "/journeys/{journey_id}/reviews/{revision_id}/complete",
		Summary:     "Complete review",
	}, func(ctx context.Context, input *struct {
		JourneyID  string `path:"journey_id"`
		RevisionID string `path:"revision_id"`
	}) (*struct {
		Body domain.Revision `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rev, err := e.CompleteRevision(ctx, input.JourneyID, input.RevisionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Revision `json:"body"`
		}{Body: rev}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "journey-stats",
		Method:      http.MethodGet,
		Path:        "/journeys/{journey_id}/stats",
		Summary:     "Performance and progress stats",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
	}) (*struct {
		Body engine.StatsReport `json:"body"`
	}, error) {
		report, err := e.Stats(ctx, input.JourneyID)
		if err != nil {
			return nil, handleError(err)
		}
		if report.ByDiscipline == nil {
			report.ByDiscipline = []domain.DisciplineStats{}
		}
		if report.ByTopic == nil {
			report.ByTopic = []domain.TopicStats{}
		}
		return &struct {
			Body engine.StatsReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerAI(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-quiz",
		Method:      http.MethodPost,
		Path:        "/journeys/{journey_id}/quiz",
		Summary:     "Generate quiz for a topic",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusPaymentRequired,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		JourneyID string      `path:"journey_id"`
		Body      QuizRequest `json:"body"`
	}) (*struct {
		Body engine.QuizResult `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.TopicID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "topic_id is required", nil)
		}
		result, err := e.GenerateQuiz(ctx, engine.QuizOptions{
			JourneyID: input.JourneyID,
			TopicID:   input.Body.TopicID,
			Count:     input.Body.Count,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.QuizResult `json:"body"`
		}{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "summarize-topic",
		Method:      http.MethodPost,
		Path:        "/journeys/{journey_id}/topics/{topic_id}/summary",
		Summary:     "AI summary for a topic",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		JourneyID string `path:"journey_id"`
		TopicID   string `path:"topic_id"`
	}) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		summary, err := e.SummarizeTopic(ctx, input.JourneyID, input.TopicID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: SummaryResponse{TopicID: input.TopicID, Summary: summary}}, nil
	})
}

func registerGroups(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-group",
		Method:        http.MethodPost,
		Path:          "/groups",
		Summary:       "Create study group",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateGroupRequest `json:"body"`
	}) (*struct {
		Body GroupResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.CreateGroup(ctx, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GroupResponse `json:"body"`
		}{Body: groupResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-groups",
		Method:      http.MethodGet,
		Path:        "/groups",
		Summary:     "List my groups",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []GroupResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListGroupsForActor(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]GroupResponse, 0, len(items))
		for _, g := range items {
			res = append(res, groupResponse(g))
		}
		return &struct {
			Body []GroupResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-group",
		Method:      http.MethodGet,
		Path:        "/groups/{group_id}",
		Summary:     "Get group with members",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*struct {
		Body GroupDetailResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.Repo.GetGroup(ctx, input.GroupID)
		if err != nil {
			return nil, handleError(err)
		}
		member, err := e.Repo.IsGroupMember(ctx, input.GroupID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if !member {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only group members can view the group", nil)
		}
		members, err := e.Repo.ListGroupMembers(ctx, input.GroupID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GroupDetailResponse `json:"body"`
		}{Body: GroupDetailResponse{GroupResponse: groupResponse(g), Members: members}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-group",
		Method:      http.MethodPost,
		Path:        "/groups/join",
		Summary:     "Join group by invite code",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body JoinGroupRequest `json:"body"`
	}) (*struct {
		Body GroupResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.InviteCode == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invite_code is required", nil)
		}
		g, err := e.JoinGroup(ctx, input.Body.InviteCode, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GroupResponse `json:"body"`
		}{Body: groupResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rotate-invite-code",
		Method:      http.MethodPost,
		Path:        "/groups/{group_id}/invite",
		Summary:     "Rotate group invite code",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*struct {
		Body GroupResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.RotateInviteCode(ctx, input.GroupID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GroupResponse `json:"body"`
		}{Body: groupResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-group",
		Method:      http.MethodDelete,
		Path:        "/groups/{group_id}",
		Summary:     "Delete group",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteGroup(ctx, input.GroupID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-group",
		Method:      http.MethodPost,
		Path:        "/groups/{group_id}/leave",
		Summary:     "Leave group",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.LeaveGroup(ctx, input.GroupID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "group-leaderboard",
		Method:      http.MethodGet,
		Path:        "/groups/{group_id}/leaderboard",
		Summary:     "Group leaderboard",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*struct {
		Body []domain.LeaderboardEntry `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entries, err := e.Leaderboard(ctx, input.GroupID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []domain.LeaderboardEntry{}
		}
		return &struct {
			Body []domain.LeaderboardEntry `json:"body"`
		}{Body: entries}, nil
	})
}

func registerKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, raw, err := e.Repo.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: apiKeyResponse(key, raw)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			res = append(res, apiKeyResponse(k, ""))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/keys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		JourneyID  string `query:"journey_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		var cursor int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursor = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursor, input.JourneyID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: items}
		if len(items) > limit {
			resp.Items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		if resp.Items == nil {
			resp.Items = []domain.Event{}
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
