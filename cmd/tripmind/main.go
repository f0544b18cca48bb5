// Command tripmind runs the orchestration service. It exposes a small
// HTTP API that routes free-text restaurant requests through intent
// analysis, workflow execution, and the staged-migration middleware.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tripmind/tripmind/core"
	"github.com/tripmind/tripmind/intent"
	"github.com/tripmind/tripmind/middleware"
	"github.com/tripmind/tripmind/orchestration"
	"github.com/tripmind/tripmind/resilience"
	"github.com/tripmind/tripmind/telemetry"
)

func main() {
	var (
		addr        = flag.String("addr", envOr("TRIPMIND_ADDR", ":8080"), "listen address")
		toolsURL    = flag.String("tools-url", envOr("TRIPMIND_TOOLS_URL", "http://localhost:9000"), "base URL of the tool service")
		redisURL    = flag.String("redis-url", os.Getenv("TRIPMIND_REDIS_URL"), "redis URL for profile storage (empty uses in-memory)")
		catalogPath = flag.String("catalog", os.Getenv("TRIPMIND_CATALOG"), "path to the tool catalog YAML")
		routerPath  = flag.String("router-config", os.Getenv("TRIPMIND_ROUTER_CONFIG"), "path to the router config YAML")
		otlpTarget  = flag.String("otlp-endpoint", "", "OTLP gRPC endpoint (empty falls back to env, then stdout)")
	)
	flag.Parse()

	logger := core.NewProductionLogger(core.LoggerOptions{Component: "tripmind"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Init(ctx, "tripmind", *otlpTarget, logger)
	if err != nil {
		logger.Error("Telemetry initialization failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			logger.Warn("Telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	metrics := telemetry.NewOTelSink("tripmind", logger)

	var store intent.ProfileStore = intent.NewInMemoryProfileStore(intent.DefaultMaxProfiles)
	if *redisURL != "" {
		rs, err := intent.NewRedisProfileStore(ctx, intent.RedisProfileStoreConfig{
			RedisURL: *redisURL,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("Redis profile store unavailable, using in-memory", map[string]interface{}{"error": err.Error()})
		} else {
			store = rs
		}
	}
	analyzer := intent.NewContextAnalyzer(intent.NewAnalyzer(logger), store, logger, metrics)

	catalog, err := loadCatalog(*catalogPath)
	if err != nil {
		logger.Error("Failed to load tool catalog", map[string]interface{}{"path": *catalogPath, "error": err.Error()})
		os.Exit(1)
	}

	invoker := orchestration.NewHTTPToolInvoker(*toolsURL, logger)
	handler := resilience.NewWorkflowErrorHandler(invoker, nil, logger, metrics)
	engine := orchestration.NewWorkflowEngine(invoker, handler, orchestration.EngineConfig{}, logger, metrics)
	pipeline := orchestration.NewPipeline(analyzer, catalog, orchestration.NewTemplateManager(logger), engine,
		orchestration.DefaultTemplateConfig(), logger)

	routerCfg := middleware.DefaultRouterConfig()
	if *routerPath != "" {
		routerCfg, err = middleware.LoadRouterConfig(*routerPath)
		if err != nil {
			logger.Error("Failed to load router config", map[string]interface{}{"path": *routerPath, "error": err.Error()})
			os.Exit(1)
		}
	}
	router := middleware.NewOrchestrationRouter(pipeline, routerCfg, logger, metrics)
	compat := middleware.NewCompatibilityManager(router, middleware.DefaultCompatConfig(), logger, metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/v1/requests", handleRequest(router, logger))
	mux.HandleFunc("/v1/migration/report", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, compat.Report())
	})
	mux.HandleFunc("/v1/tools/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"breakers": handler.Breakers().Snapshot(),
			"errors":   handler.GetErrorStatistics(),
		})
	})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Info("Server listening", map[string]interface{}{"addr": *addr, "tools_url": *toolsURL})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", nil)
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("Shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

type requestBody struct {
	Text            string   `json:"text"`
	UserID          string   `json:"user_id"`
	SessionID       string   `json:"session_id"`
	MBTIType        string   `json:"mbti_type"`
	History         []string `json:"conversation_history"`
	LocationContext string   `json:"location_context"`
}

func handleRequest(router *middleware.OrchestrationRouter, logger core.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body requestBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if body.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}

		userCtx := &core.UserContext{
			UserID:              body.UserID,
			SessionID:           body.SessionID,
			MBTIType:            body.MBTIType,
			ConversationHistory: body.History,
			LocationContext:     body.LocationContext,
		}
		resp := router.RouteRequest(r.Context(), body.Text, userCtx, r.Header.Get("X-Correlation-ID"), nil)

		status := http.StatusOK
		if !resp.Success {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, resp)
	}
}

func loadCatalog(path string) (*orchestration.ToolCatalog, error) {
	catalog := orchestration.NewToolCatalog()
	if path == "" {
		for _, d := range defaultTools() {
			catalog.Register(d)
		}
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var descriptors []orchestration.ToolDescriptor
	if err := yaml.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	for _, d := range descriptors {
		catalog.Register(d)
	}
	return catalog, nil
}

func defaultTools() []orchestration.ToolDescriptor {
	return []orchestration.ToolDescriptor{
		{
			ToolID:   "restaurant-search",
			ToolName: "restaurant_search",
			Capabilities: []string{
				"search_restaurants_combined",
				"search_restaurants_by_district",
				"search_restaurants_by_meal_type",
				"filter_by_cuisine",
				"filter_by_price",
			},
		},
		{
			ToolID:   "restaurant-recommend",
			ToolName: "restaurant_recommend",
			Capabilities: []string{
				"recommend_restaurants",
				"personalize_by_mbti",
			},
		},
		{
			ToolID:   "review-sentiment",
			ToolName: "review_sentiment",
			Capabilities: []string{
				"analyze_restaurant_sentiment",
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
