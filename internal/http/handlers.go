package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/dispatch-engine/internal/assign"
	"github.com/example/dispatch-engine/internal/config"
	"github.com/example/dispatch-engine/internal/eligibility"
	"github.com/example/dispatch-engine/internal/engine"
	"github.com/example/dispatch-engine/internal/errs"
	"github.com/example/dispatch-engine/internal/eta"
	"github.com/example/dispatch-engine/internal/geo"
	"github.com/example/dispatch-engine/internal/ingest"
	"github.com/example/dispatch-engine/internal/logging"
	"github.com/example/dispatch-engine/internal/models"
	"github.com/example/dispatch-engine/internal/notify"
	"github.com/example/dispatch-engine/internal/observability"
	"github.com/example/dispatch-engine/internal/search"
	"github.com/example/dispatch-engine/internal/storage"
	"github.com/example/dispatch-engine/internal/sweep"
	"github.com/example/dispatch-engine/internal/wallet"
)

type Server struct {
	Engine   *engine.Engine
	Assigner *assign.Coordinator
	Sweeper  *sweep.Monitor
	Geo      geo.DriverIndex
	Kafka    *ingest.HeartbeatProducer
	WSReg    *notify.WSRegistry

	logger *slog.Logger
	mux    *mux.Router

	// set on the in-memory wiring so location intake also feeds the
	// reservation store; the redis wiring shares one hash for both
	registrar interface{ Put(models.DriverAvailability) }
}

// NewServer wires the dispatch engine from config. Redis, Kafka, Postgres
// and Stripe are all optional: absent backends fall back to in-memory
// implementations so the binary runs locally without setup.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	var gidx geo.DriverIndex
	var reserver storage.DriverReserver
	var trust storage.TrustSource
	var balances wallet.BalanceSource
	var memDrivers *storage.MemoryDriverStore
	if rc != nil {
		gidx = geo.NewRedisIndex(rc, cfg.RedisGeoKey)
		reserver = storage.NewRedisDriverStore(rc)
		trust = storage.NewRedisTrustSource(rc)
		balances = wallet.NewRedisLedger(rc)
	} else {
		gidx = geo.NewIndex()
		memDrivers = storage.NewMemoryDriverStore()
		reserver = memDrivers
		trust = storage.NewMemoryTrustSource()
		balances = wallet.NewMemoryLedger()
	}

	var store interface {
		storage.OrderStore
		storage.CancellationStore
	}
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		store = ps
	} else {
		store = storage.NewMemoryOrderStore()
	}

	var queue notify.AlertQueue
	var kp *ingest.HeartbeatProducer
	if len(cfg.KafkaBrokers) > 0 {
		queue = notify.NewKafkaQueue(cfg.KafkaBrokers, cfg.AlertsTopic)
		kp = ingest.NewHeartbeatProducer(cfg.KafkaBrokers, cfg.LocationsTopic)
	} else {
		queue = nopQueue{}
	}

	wsreg := notify.NewWSRegistry()
	dispatcher := &notify.Dispatcher{Queue: queue, Push: wsreg, Logger: logging.For(logger, "notify")}

	var gateway *wallet.StripeGateway
	if cfg.StripeAPIKey != "" {
		gateway = wallet.NewStripeGateway(cfg.StripeAPIKey)
		if cfg.RedisAddr == "" {
			balances = gateway
		}
	}

	locator := geo.NewLocator(gidx)
	locator.Freshness = cfg.HeartbeatFreshness

	filter := &eligibility.Filter{
		Trust:      trust,
		Wallet:     balances,
		Reminders:  dispatcher,
		Logger:     logging.For(logger, "eligibility"),
		MinBalance: cfg.WalletMinBalance,
		MaxUnpaid:  cfg.MaxUnpaid,
	}

	coordinator := &assign.Coordinator{
		Drivers: reserver,
		Orders:  store,
		Logger:  logging.For(logger, "assign"),
	}
	if gateway != nil {
		coordinator.Holds = gateway
	}

	estimator := &eta.Estimator{AvgSpeedKmh: cfg.AvgSpeedKmh, Cache: eta.NewCache(time.Minute)}
	if cfg.OSRMEndpoint != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	eng := &engine.Engine{
		Orders: store,
		Search: &search.Controller{
			Locator: locator,
			Filter:  filter,
			RadiiKm: cfg.RadiiKm,
			Logger:  logging.For(logger, "search"),
		},
		Assigner: coordinator,
		Notify:   dispatcher,
		ETA:      estimator,
		Logger:   logging.For(logger, "engine"),

		MaxCandidates: cfg.MaxCandidates,
	}

	monitor := &sweep.Monitor{
		Orders:   store,
		Cancels:  store,
		Notifier: dispatcher,
		Logger:   logging.For(logger, "sweep"),
		MaxAge: map[models.OrderType]time.Duration{
			models.OrderTransport:   cfg.SweepMaxAgeTransport,
			models.OrderDelivery:    cfg.SweepMaxAgeDelivery,
			models.OrderMarketplace: cfg.SweepMaxAgeMarketplace,
		},
	}
	if gateway != nil {
		monitor.Refunds = gateway
	}

	s := &Server{
		Engine:   eng,
		Assigner: coordinator,
		Sweeper:  monitor,
		Geo:      gidx,
		Kafka:    kp,
		WSReg:    wsreg,
		logger:   logging.For(logger, "http"),
		mux:      mux.NewRouter(),
	}
	if memDrivers != nil {
		s.registrar = memDrivers
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/dispatch", s.handleDispatch).Methods("POST")
	s.mux.HandleFunc("/api/v1/assign", s.handleAssign).Methods("POST")
	s.mux.HandleFunc("/internal/sweep", s.handleSweep).Methods("POST")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var in engine.DispatchInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, errs.Invalid("body", err.Error()))
		return
	}
	res, err := s.Engine.Dispatch(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type assignRequest struct {
	OrderID  string `json:"order_id"`
	DriverID string `json:"driver_id"`
}

type assignResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"order_id"`
	DriverID string `json:"driver_id"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var in assignRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, errs.Invalid("body", err.Error()))
		return
	}
	if _, err := s.Assigner.Assign(r.Context(), in.OrderID, in.DriverID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignResponse{Success: true, OrderID: in.OrderID, DriverID: in.DriverID})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Sweeper.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	observability.SweepCancellations.WithLabelValues("transport").Add(float64(rep.Cancelled.Transport))
	observability.SweepCancellations.WithLabelValues("delivery").Add(float64(rep.Cancelled.Delivery))
	observability.SweepCancellations.WithLabelValues("marketplace").Add(float64(rep.Cancelled.Marketplace))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.DriverAvailability
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, errs.Invalid("body", err.Error()))
		return
	}
	if d.DriverID == "" || !d.Loc.Valid() {
		writeError(w, errs.Invalid("driver_id/loc", "must be set"))
		return
	}
	d.Online = true
	if d.LastHeartbeat.IsZero() {
		d.LastHeartbeat = time.Now()
	}
	// durable path first, then the live index
	if s.Kafka != nil {
		if err := s.Kafka.PublishHeartbeat(d); err != nil {
			s.logger.Warn("heartbeat publish failed", "driver_id", d.DriverID, "error", err)
		}
	}
	if err := s.Geo.Upsert(r.Context(), d); err != nil {
		writeError(w, errs.Persistence("upsert driver", err))
		return
	}
	if s.registrar != nil {
		s.registrar.Put(d)
	}
	observability.DriversOnline.Inc()
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Warn("ws upgrade failed", "driver_id", id, "error", err)
		return
	}
	s.WSReg.Add(id, conn)
	// drain inbound frames so a dropped connection is noticed and the
	// session removed; drivers only receive on this socket
	go func() {
		defer func() {
			s.WSReg.Remove(id)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// writeError maps the error taxonomy onto HTTP statuses. Exhausted
// searches surface as a plain retry-later message per the user-facing
// contract.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "order not found"})
	case errors.Is(err, errs.ErrNoEligibleDrivers):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "no drivers available, please retry later", Retryable: true})
	case errors.Is(err, errs.ErrAssignmentConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "driver no longer available", Retryable: true})
	case errors.Is(err, errs.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, errs.ErrPersistence):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "storage unavailable", Retryable: true})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type nopQueue struct{}

func (nopQueue) EnqueueBatch(_ context.Context, _ []models.NotificationAlert) error { return nil }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
