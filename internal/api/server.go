// Package api exposes the back-office HTTP surface: batch submission and
// tracking, partner callbacks, credentials and reports.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nexcred/backoffice/internal/batch"
	"github.com/nexcred/backoffice/internal/gateway"
	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/report"
	"github.com/nexcred/backoffice/internal/store"
	"github.com/nexcred/backoffice/internal/webhook"
)

// Server bundles the HTTP handlers and their collaborators.
type Server struct {
	store     store.Store
	runner    *batch.Runner
	receiver  *webhook.Receiver
	assembler *report.Assembler
	registry  *gateway.Registry
}

// NewServer creates the HTTP server facade.
func NewServer(st store.Store, runner *batch.Runner, receiver *webhook.Receiver, assembler *report.Assembler, registry *gateway.Registry) *Server {
	return &Server{store: st, runner: runner, receiver: receiver, assembler: assembler, registry: registry}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID", "X-User-Email"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/batches", s.handleSubmitBatch)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Get("/batches/{id}/report", s.handleBatchReport)
		r.Get("/activity", s.handleListActivity)
		r.Put("/credentials/{provider}", s.handlePutCredentials)
		r.Get("/offers/{provider}", s.handleListOffers)
		r.Post("/authorizations/{provider}", s.handleAuthorizationLink)
		r.Get("/authorizations/{provider}/status", s.handleAuthorizationStatus)
	})

	r.Post("/webhooks/{provider}", s.handleWebhook)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "armazenamento indisponível")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitBatchRequest struct {
	Provider    string   `json:"provider"`
	FileName    string   `json:"file_name"`
	Identifiers []string `json:"identifiers"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}

	provider, err := model.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, "provedor desconhecido: "+req.Provider)
		return
	}

	job, err := s.runner.Submit(r.Context(), batch.SubmitRequest{
		Provider:    provider,
		FileName:    req.FileName,
		Identifiers: req.Identifiers,
		OwnerID:     userID(r),
		OwnerEmail:  r.Header.Get("X-User-Email"),
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   queryInt(r, "limit"),
		Offset:  queryInt(r, "offset"),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = model.JobStatus(v)
	}
	if v := r.URL.Query().Get("provider"); v != "" {
		p, err := model.ParseProvider(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "provedor desconhecido: "+v)
			return
		}
		filter.Provider = p
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "falha ao listar lotes")
		return
	}
	if jobs == nil {
		jobs = []model.BatchJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "lote não encontrado")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleBatchReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.assembler.Generate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "lote não encontrado")
		return
	}

	if r.URL.Query().Get("format") == "uri" {
		writeJSON(w, http.StatusOK, map[string]string{
			"file_name": rep.FileName,
			"data_uri":  rep.DataURI(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(rep.Content) //nolint:errcheck
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListActivity(r.Context(), queryInt(r, "limit"))
	if err != nil {
		zap.L().Error("api: list activity failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "falha ao listar atividades")
		return
	}
	if entries == nil {
		entries = []model.ActivityLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "provedor desconhecido")
		return
	}

	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}

	creds := &model.PartnerCredentials{
		OwnerID:   userID(r),
		Provider:  provider,
		Fields:    fields,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.PutCredentials(r.Context(), creds); err != nil {
		zap.L().Error("api: put credentials failed",
			zap.String("provider", string(provider)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "falha ao salvar credenciais")
		return
	}

	if err := s.store.AppendActivity(r.Context(), &model.ActivityLogEntry{
		ID:        uuid.New().String(),
		UserID:    creds.OwnerID,
		UserEmail: r.Header.Get("X-User-Email"),
		Action:    model.ActionCredentialsSaved,
		Provider:  provider,
		CreatedAt: creds.UpdatedAt,
	}); err != nil {
		zap.L().Warn("api: append activity failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "salvo"})
}

// handleWebhook always answers quickly: bad bodies get a 400, storage
// problems a 500, and anything persisted a 200 so the partner stops
// redelivering.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "provedor desconhecido")
		return
	}

	body, err := readBody(r, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição ilegível")
		return
	}

	rec, err := s.receiver.Process(r.Context(), provider, body)
	if err != nil {
		if errors.Is(err, webhook.ErrBadPayload) {
			writeError(w, http.StatusBadRequest, "payload inválido")
			return
		}
		zap.L().Error("api: webhook processing failed",
			zap.String("provider", string(provider)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "falha ao processar callback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "recebido",
		"correlation_key": rec.CorrelationKey,
	})
}

// authenticatedGateway resolves the provider's gateway and opens a fresh
// partner session with the caller's stored credentials.
func (s *Server) authenticatedGateway(r *http.Request) (gateway.Gateway, gateway.Session, int, error) {
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return nil, gateway.Session{}, http.StatusNotFound, err
	}
	gw, err := s.registry.Lookup(provider)
	if err != nil {
		return nil, gateway.Session{}, http.StatusNotFound, err
	}

	creds, err := s.store.GetCredentials(r.Context(), userID(r), provider)
	if err != nil {
		return nil, gateway.Session{}, http.StatusInternalServerError, err
	}
	if creds == nil {
		return nil, gateway.Session{}, http.StatusUnprocessableEntity,
			eris.Errorf("credenciais %s não cadastradas", provider)
	}

	session, err := gw.Authenticate(r.Context(), creds)
	if err != nil {
		var cfgErr *gateway.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, gateway.Session{}, http.StatusUnprocessableEntity, err
		}
		return nil, gateway.Session{}, http.StatusBadGateway, err
	}
	return gw, session, http.StatusOK, nil
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	gw, session, status, err := s.authenticatedGateway(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	og, ok := gw.(gateway.OfferGateway)
	if !ok {
		writeError(w, http.StatusNotFound, "provedor não expõe ofertas")
		return
	}

	document := model.DigitsOnly(r.URL.Query().Get("document"))
	if document == "" {
		writeError(w, http.StatusBadRequest, "parâmetro document obrigatório")
		return
	}

	offers, err := og.ListOffers(r.Context(), session, document)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if offers == nil {
		offers = []model.Offer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

func (s *Server) handleAuthorizationLink(w http.ResponseWriter, r *http.Request) {
	var person model.PersonalData
	if err := json.NewDecoder(r.Body).Decode(&person); err != nil || model.DigitsOnly(person.CPF) == "" {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return
	}

	gw, session, status, err := s.authenticatedGateway(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	ag, ok := gw.(gateway.AuthorizationGateway)
	if !ok {
		writeError(w, http.StatusNotFound, "provedor não expõe link de autorização")
		return
	}

	link, err := ag.GenerateAuthorizationLink(r.Context(), session, person)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *Server) handleAuthorizationStatus(w http.ResponseWriter, r *http.Request) {
	gw, session, status, err := s.authenticatedGateway(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	ag, ok := gw.(gateway.AuthorizationGateway)
	if !ok {
		writeError(w, http.StatusNotFound, "provedor não expõe status de autorização")
		return
	}

	document := model.DigitsOnly(r.URL.Query().Get("document"))
	if document == "" {
		writeError(w, http.StatusBadRequest, "parâmetro document obrigatório")
		return
	}

	authorized, msg, err := ag.CheckAuthorizationStatus(r.Context(), session, document)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authorized": authorized, "message": msg})
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close() //nolint:errcheck
	return io.ReadAll(io.LimitReader(r.Body, limit))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
