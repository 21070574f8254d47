package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"foodlog/searchservice/internal/app"
	"foodlog/searchservice/internal/domain"
	"foodlog/searchservice/internal/metrics"
	"foodlog/searchservice/internal/search"
)

const (
	maxStreamPages   = 5
	historyTopLimit  = 50
	shutdownDeadline = 10 * time.Second
)

// Server exposes the search orchestrator over HTTP: one-shot JSON search,
// SSE streaming with progressive deltas, barcode lookup, provider
// diagnostics and the selection history.
type Server struct {
	httpServer *http.Server
	orch       *search.Orchestrator
	history    search.HistoryStore
	logger     *slog.Logger
	cfg        app.Config
}

func NewServer(cfg app.Config, orch *search.Orchestrator, history search.HistoryStore, registry *prometheus.Registry, logger *slog.Logger) *Server {
	s := &Server{
		orch:    orch,
		history: history,
		logger:  logger,
		cfg:     cfg,
	}

	limiter := rate.NewLimiter(rate.Limit(20), 40)
	mux := http.NewServeMux()

	route := func(path string, handler http.HandlerFunc) {
		mux.Handle(path, withObservability(logger, path, withRecovery(logger, withRateLimit(limiter, handler))))
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	route("/search", s.handleSearch)
	route("/search/stream", s.handleSearchStream)
	route("/search/barcode", s.handleBarcode)
	route("/search/providers", s.handleProviders)
	route("/search/providers/health", s.handleProviderHealth)
	route("/history", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(mux, "foodsearch-http"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownDeadline)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query().Get("q")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := s.orch.SearchOnce(r.Context(), query, page)
	if err != nil {
		s.writeSearchError(w, err, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSearchStream pushes progressive snapshots over SSE. Each admitted
// provider delta produces a "results" event with the accumulated items so
// far; every page closes with a "page" event and the stream ends with
// "complete". Closing the connection cancels the whole fan-out.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query().Get("q")
	pages, _ := strconv.Atoi(r.URL.Query().Get("pages"))
	if pages < 1 {
		pages = 1
	}
	if pages > maxStreamPages {
		pages = maxStreamPages
	}

	sess, err := s.orch.NewSession(r.Context(), query)
	if err != nil {
		s.writeSearchError(w, err, domain.SearchPage{Query: query})
		return
	}
	defer sess.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for i := 0; i < pages; i++ {
		result, err := sess.FetchPage(func([]domain.NutritionRecord) {
			items, hasMore := sess.Results()
			writeSSEEvent(w, flusher, "results", domain.SearchPage{
				Query:   sess.Query(),
				Items:   items,
				HasMore: hasMore,
			})
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			writeSSEEvent(w, flusher, "error", map[string]string{"error": err.Error()})
			break
		}
		writeSSEEvent(w, flusher, "page", result)
		if !result.HasMore {
			break
		}
	}

	items, hasMore := sess.Results()
	writeSSEEvent(w, flusher, "complete", domain.SearchPage{
		Query:   sess.Query(),
		Items:   items,
		HasMore: hasMore,
		Final:   true,
	})
}

func (s *Server) handleBarcode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		http.Error(w, "missing code parameter", http.StatusBadRequest)
		return
	}
	record, err := s.orch.LookupBarcode(r.Context(), code)
	if err != nil {
		if errors.Is(err, search.ErrBarcodeNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		s.logger.Error("barcode lookup failed", "code", code, "error", err)
		http.Error(w, "barcode lookup failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Providers())
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.ProviderHealth())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > historyTopLimit {
			limit = historyTopLimit
		}
		entries, err := s.history.Top(r.Context(), limit)
		if err != nil {
			s.logger.Error("history read failed", "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		var record domain.NutritionRecord
		if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
			http.Error(w, "invalid record payload", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(record.Name) == "" {
			http.Error(w, "record name required", http.StatusBadRequest)
			return
		}
		if err := s.history.RecordSelection(r.Context(), record); err != nil {
			s.logger.Error("history write failed", "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		metrics.HistorySelectionsTotal.Inc()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error, page domain.SearchPage) {
	switch {
	case errors.Is(err, search.ErrQueryTooShort):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, search.ErrNoProviders):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, search.ErrAllProvidersFailed):
		// Partial payload still carries per-provider errors for the client.
		writeJSON(w, http.StatusBadGateway, page)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing to write.
	default:
		s.logger.Error("search failed", "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
