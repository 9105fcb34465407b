package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/evidence-vault/internal/config"
	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
	"github.com/kirillkom/evidence-vault/internal/observability/metrics"
)

const (
	serviceName          = "api"
	multipartMemoryBytes = 32 << 20
)

// Services are the use cases behind the HTTP surface.
type Services struct {
	Uploader   ports.EvidenceUploader
	Reconciler ports.EvidenceReconciler
	Query      ports.EvidenceQueryService
	Evidence   ports.EvidenceService
	Vaults     ports.VaultService
	Exporter   ports.EvidenceExporter
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewRouter(cfg config.Config, services Services, httpMetrics *metrics.HTTPServerMetrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		services: services,
		metrics:  httpMetrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware, middleware.Recoverer)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, next)
		})
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.json", rt.openAPIDocument)
	if rt.metrics != nil {
		r.Handle("/metrics", rt.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if rt.cfg.APIRateLimitRPS > 0 {
			r.Use(func(next http.Handler) http.Handler {
				return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
			})
		}
		if rt.cfg.APIBackpressureMaxInFlight > 0 {
			r.Use(func(next http.Handler) http.Handler {
				return backpressureMiddleware(next, rt.cfg.APIBackpressureMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
			})
		}

		r.Get("/vaults", rt.listVaults)
		r.Post("/vaults", rt.createVault)
		r.Route("/vaults/{cid}", func(r chi.Router) {
			r.Get("/evidence", rt.listEvidence)
			r.Post("/evidence", rt.uploadEvidence)
			r.Get("/evidence/export", rt.exportEvidence)
			r.Post("/evidence/tags/bulk", rt.bulkEditTags)
			r.Get("/evidence/{id}", rt.getEvidence)
			r.Delete("/evidence/{id}", rt.deleteEvidence)
			r.Post("/evidence/{id}/classify", rt.classifyEvidence)
			r.Put("/evidence/{id}/tags", rt.replaceTags)
			r.Post("/evidence/{id}/tags", rt.addTag)
			r.Delete("/evidence/{id}/tags", rt.removeTag)
			r.Post("/search", rt.search)
		})
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := rt.services.Vaults.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if vaults == nil {
		vaults = []domain.Vault{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vaults": vaults})
}

func (rt *Router) createVault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	vault, err := rt.services.Vaults.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vault)
}

func (rt *Router) listEvidence(w http.ResponseWriter, r *http.Request) {
	vaultID := chi.URLParam(r, "cid")
	sync := queryBool(r, "sync")
	listing, err := rt.services.Query.List(r.Context(), vaultID, filterFromQuery(r), sync)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordList(serviceName, sync, listing.Total)
	}
	writeJSON(w, http.StatusOK, listing)
}

func (rt *Router) uploadEvidence(w http.ResponseWriter, r *http.Request) {
	vaultID := chi.URLParam(r, "cid")
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form with field 'files' is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	files := make([]domain.UploadFile, 0, len(headers))
	for _, header := range headers {
		body, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read uploaded file " + header.Filename})
			closeAll(files)
			return
		}
		files = append(files, domain.UploadFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        body,
		})
	}
	defer closeAll(files)

	outcomes := rt.services.Uploader.Upload(r.Context(), vaultID, files)
	uploaded, failed := 0, 0
	for _, outcome := range outcomes {
		if outcome.Status == domain.UploadSucceeded {
			uploaded++
		} else {
			failed++
		}
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, uploaded, failed)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uploaded": uploaded,
		"failed":   failed,
		"results":  outcomes,
	})
}

func closeAll(files []domain.UploadFile) {
	for _, f := range files {
		if closer, ok := f.Body.(multipart.File); ok {
			_ = closer.Close()
		}
	}
}

func (rt *Router) classifyEvidence(w http.ResponseWriter, r *http.Request) {
	start := rt.now()
	result, err := rt.services.Reconciler.Reconcile(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "id"))
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordClassify(serviceName, classifyOutcome(err), "", rt.now().Sub(start))
		}
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordClassify(serviceName, "classified", string(result.Source), rt.now().Sub(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func classifyOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrStillProcessing):
		return "still_processing"
	case domain.IsKind(err, domain.ErrEvidenceNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (rt *Router) getEvidence(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.services.Evidence.Get(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) deleteEvidence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := rt.services.Evidence.Delete(r.Context(), chi.URLParam(r, "cid"), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (rt *Router) replaceTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags json.RawMessage `json:"tags"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	var tags []string
	if len(req.Tags) == 0 || req.Tags[0] != '[' || json.Unmarshal(req.Tags, &tags) != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tags must be an array of strings"})
		return
	}
	if tags == nil {
		tags = []string{}
	}
	rec, err := rt.services.Evidence.ReplaceTags(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "id"), tags)
	rt.respondTagEdit(w, "replace", rec, err)
}

func (rt *Router) addTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := rt.services.Evidence.AddTag(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "id"), req.Tag)
	rt.respondTagEdit(w, "add", rec, err)
}

func (rt *Router) removeTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if strings.TrimSpace(tag) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'tag' is required"})
		return
	}
	rec, err := rt.services.Evidence.RemoveTag(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "id"), tag)
	rt.respondTagEdit(w, "remove", rec, err)
}

func (rt *Router) respondTagEdit(w http.ResponseWriter, operation string, rec *domain.Evidence, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordTagEdit(serviceName, operation)
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) bulkEditTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs        []string `json:"ids"`
		AddTags    []string `json:"addTags"`
		RemoveTags []string `json:"removeTags"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := rt.services.Evidence.BulkEditTags(r.Context(), chi.URLParam(r, "cid"), req.IDs, req.AddTags, req.RemoveTags)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordTagEdit(serviceName, "bulk")
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (rt *Router) exportEvidence(w http.ResponseWriter, r *http.Request) {
	if rt.services.Exporter == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "export is not configured"})
		return
	}
	vaultID := chi.URLParam(r, "cid")
	listing, err := rt.services.Query.List(r.Context(), vaultID, filterFromQuery(r), queryBool(r, "sync"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", rt.services.Exporter.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+rt.services.Exporter.Filename(vaultID, rt.now())+`"`)
	if err := rt.services.Exporter.Export(w, listing.Evidence); err != nil {
		rt.logger.Error("evidence_export_failed", "vault_id", vaultID, "error", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport(serviceName, "xlsx", len(listing.Evidence))
	}
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"topK"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK <= 0 {
		req.TopK = rt.cfg.SearchTopK
	}
	result, err := rt.services.Query.Search(r.Context(), chi.URLParam(r, "cid"), req.Query, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Evidence == nil {
		result.Evidence = []domain.ScoredEvidence{}
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, string(result.Mode), len(result.Evidence))
	}
	writeJSON(w, http.StatusOK, result)
}

func filterFromQuery(r *http.Request) domain.EvidenceFilter {
	q := r.URL.Query()
	filter := domain.EvidenceFilter{
		Tags:      listParam(q["tags"]),
		DateStart: strings.TrimSpace(q.Get("dateStart")),
		DateEnd:   strings.TrimSpace(q.Get("dateEnd")),
		Query:     strings.TrimSpace(q.Get("q")),
		SortBy:    domain.ParseSortKey(q.Get("sortBy")),
		SortOrder: domain.ParseSortOrder(q.Get("sortOrder")),
	}
	for _, c := range listParam(q["categories"]) {
		filter.Categories = append(filter.Categories, domain.Category(strings.ToLower(c)))
	}
	return filter
}

// listParam accepts both repeated parameters and comma-separated values.
func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryBool(r *http.Request, key string) bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		_, present := r.URL.Query()[key]
		return present
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
