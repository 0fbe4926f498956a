package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openpricing/kestrel/internal/domain"
	"github.com/openpricing/kestrel/internal/pricing"
	"github.com/openpricing/kestrel/internal/quote"
)

// GlobalTenantID is used for catalog entries that apply to all tenants.
const GlobalTenantID = "*"

// quoteCacheTTL bounds how long a computed quote is served for unchanged
// answers before a recompute.
const quoteCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *pricing.Engine
	composer *quote.Composer
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *pricing.Engine, composer *quote.Composer, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		composer: composer,
		version:  version,
	}
}

// QuoteRequest is the request body for POST /quote.
type QuoteRequest struct {
	Answers map[string]interface{} `json:"answers"`
}

// Quote handles POST /quote requests: one full evaluation pass over the
// submitted answers, returning the composed quote with its trace.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Answers == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "answers is required",
		})
		return
	}

	// Identical answers always produce identical quotes, so the answer
	// digest is a safe cache key until the catalogs change.
	digest := answerDigest(req.Answers)
	if h.cache != nil {
		cached, err := h.cache.GetQuote(ctx, tenantID, digest)
		if err != nil {
			slog.Warn("quote cache lookup failed", "error", err)
		} else if cached != nil {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	q := h.composer.Compose(ctx, &quote.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Answers:   domain.AnswerSet(req.Answers),
		StartTime: start,
	})

	// Persist the quote; computation wins over persistence failures.
	if h.repo != nil {
		if err := h.repo.SaveQuote(ctx, tenantID, q); err != nil {
			slog.Error("failed to save quote", "quote_id", q.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetQuote(ctx, tenantID, digest, q, quoteCacheTTL); err != nil {
			slog.Warn("failed to cache quote", "quote_id", q.ID, "error", err)
		}
	}

	// Notify downstream consumers (submission worker, audit).
	if h.bus != nil {
		if err := h.bus.Publish(ctx, domain.NewQuoteComputedEvent(tenantID, q)); err != nil {
			slog.Error("failed to publish quote", "quote_id", q.ID, "error", err)
		}
	}

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, q)
}

// GetQuote retrieves a stored quote by ID.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	quoteID := chi.URLParam(r, "id")

	if quoteID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "quote id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	q, err := h.repo.GetQuote(ctx, tenantID, quoteID)
	if err != nil {
		slog.Error("failed to get quote", "id", quoteID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "quote not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, q)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns the rule catalog currently loaded in the engine.
// Rules are loaded from the database at startup and can be hot-reloaded
// via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.Rules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine catalog.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.Rules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a pricing rule.
type CreateRuleRequest struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Expression       string   `json:"expression"`
	MinimumValue     *float64 `json:"minimumValue,omitempty"`
	MaximumValue     *float64 `json:"maximumValue,omitempty"`
	ServiceID        string   `json:"serviceId,omitempty"`
	PricingType      string   `json:"pricingType,omitempty"`
	BillingFrequency string   `json:"billingFrequency,omitempty"`
	Position         int      `json:"position"`
	Enabled          bool     `json:"enabled"`
}

// CreateRule creates a new pricing rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	// Reject broken expressions before they reach the catalog
	if err := pricing.ValidateExpression(req.Expression); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid expression: " + err.Error(),
		})
		return
	}

	rule := &domain.PricingRule{
		ID:               req.ID,
		TenantID:         GlobalTenantID,
		Name:             req.Name,
		Description:      req.Description,
		Expression:       req.Expression,
		MinimumValue:     req.MinimumValue,
		MaximumValue:     req.MaximumValue,
		ServiceID:        req.ServiceID,
		PricingType:      req.PricingType,
		BillingFrequency: req.BillingFrequency,
		Position:         req.Position,
		Enabled:          req.Enabled,
	}

	if h.repo != nil {
		if err := h.repo.SavePricingRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save pricing rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("pricing rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads the rule catalog from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListPricingRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	h.engine.ReloadRules(dbRules)
	h.publishCatalogReloaded(ctx, "rules", len(dbRules))

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// ListServices returns the service endpoint catalog loaded in the engine.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	endpoints := h.engine.Endpoints()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": endpoints,
		"count":    len(endpoints),
		"source":   "database",
	})
}

// GetService retrieves a service endpoint by ID from the loaded catalog.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "id")

	if serviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "service id is required",
		})
		return
	}

	for _, ep := range h.engine.Endpoints() {
		if ep.ServiceID == serviceID {
			writeJSON(w, http.StatusOK, ep)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "service not found",
	})
}

// CreateServiceRequest is the request body for creating a service endpoint.
type CreateServiceRequest struct {
	ServiceID        string             `json:"serviceId"`
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	TotalVariable    string             `json:"totalVariable"`
	BillingFrequency string             `json:"billingFrequency,omitempty"`
	Aggregation      *domain.FilterSpec `json:"aggregation,omitempty"`
	Position         int                `json:"position"`
	Enabled          bool               `json:"enabled"`
}

// CreateService creates a new service endpoint and saves it to the database.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ServiceID == "" || req.Name == "" || req.TotalVariable == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "serviceId, name, and totalVariable are required",
		})
		return
	}

	if req.Aggregation != nil && req.Aggregation.MinimumFee < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "aggregation.minimumFee must not be negative",
		})
		return
	}

	ep := &domain.ServiceEndpoint{
		ServiceID:        req.ServiceID,
		TenantID:         GlobalTenantID,
		Name:             req.Name,
		Description:      req.Description,
		TotalVariable:    req.TotalVariable,
		BillingFrequency: req.BillingFrequency,
		Aggregation:      req.Aggregation,
		Position:         req.Position,
		Enabled:          req.Enabled,
	}

	if h.repo != nil {
		if err := h.repo.SaveServiceEndpoint(ctx, GlobalTenantID, ep); err != nil {
			slog.Error("failed to save service endpoint", "id", ep.ServiceID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save service",
			})
			return
		}
	}

	slog.Info("service endpoint created", "id", ep.ServiceID, "name", ep.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"service": ep,
		"message": "Service created. Call POST /services/reload to apply changes.",
	})
}

// UpdateService updates an existing service endpoint.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID := chi.URLParam(r, "id")

	if serviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "service id is required",
		})
		return
	}

	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.TotalVariable == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and totalVariable are required",
		})
		return
	}

	ep := &domain.ServiceEndpoint{
		ServiceID:        serviceID,
		TenantID:         GlobalTenantID,
		Name:             req.Name,
		Description:      req.Description,
		TotalVariable:    req.TotalVariable,
		BillingFrequency: req.BillingFrequency,
		Aggregation:      req.Aggregation,
		Position:         req.Position,
		Enabled:          req.Enabled,
	}

	if h.repo != nil {
		if err := h.repo.SaveServiceEndpoint(ctx, GlobalTenantID, ep); err != nil {
			slog.Error("failed to update service endpoint", "id", serviceID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to update service",
			})
			return
		}
	}

	slog.Info("service endpoint updated", "id", serviceID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": ep,
		"message": "Service updated. Call POST /services/reload to apply changes.",
	})
}

// DeleteService deletes a service endpoint and auto-reloads the engine.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID := chi.URLParam(r, "id")

	if serviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "service id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteServiceEndpoint(ctx, GlobalTenantID, serviceID); err != nil {
			slog.Error("failed to delete service endpoint", "id", serviceID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "service not found",
			})
			return
		}

		// Auto-reload endpoints after delete
		dbEndpoints, err := h.repo.ListServiceEndpoints(ctx, GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload services after delete", "error", err)
		} else {
			h.engine.ReloadEndpoints(dbEndpoints)
			slog.Info("services auto-reloaded after delete", "count", len(dbEndpoints))
		}
	}

	slog.Info("service endpoint deleted", "id", serviceID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Service deleted and engine reloaded.",
	})
}

// ReloadServices reloads the service endpoint catalog from the database.
func (h *Handler) ReloadServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbEndpoints, err := h.repo.ListServiceEndpoints(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list services from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load services from database",
		})
		return
	}

	h.engine.ReloadEndpoints(dbEndpoints)
	h.publishCatalogReloaded(ctx, "services", len(dbEndpoints))

	slog.Info("services reloaded from database", "count", len(dbEndpoints))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "services reloaded successfully",
		"count":   len(dbEndpoints),
	})
}

// publishCatalogReloaded notifies subscribers that a catalog changed, so
// remote caches can drop quotes computed against the old catalog.
func (h *Handler) publishCatalogReloaded(ctx context.Context, catalog string, count int) {
	if h.bus == nil {
		return
	}
	evt := domain.NewCatalogReloadedEvent(GlobalTenantID, catalog, count)
	if err := h.bus.Publish(ctx, evt); err != nil {
		slog.Warn("failed to publish catalog reload", "catalog", catalog, "error", err)
	}
}

// answerDigest returns a stable hash of an answer set. encoding/json sorts
// map keys, so equal answer sets always marshal to the same bytes.
func answerDigest(answers map[string]interface{}) string {
	data, err := json.Marshal(answers)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
