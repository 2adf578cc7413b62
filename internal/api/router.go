package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erazemk/inventura/internal/accountability"
	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/metrics"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/replica"
)

// Deps are the collaborators the API is built on.
type Deps struct {
	DB        *db.DB // login accounts
	JWTSecret string
	Data      *data.Access
	Protocol  *mutation.Protocol
	Engine    *accountability.Engine
	Conn      *connectivity.Controller
	Replica   *replica.Manager
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	metrics.Register()
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB}
	equipmentHandler := &EquipmentHandler{Data: d.Data, Protocol: d.Protocol, Engine: d.Engine}
	holdersHandler := &HoldersHandler{Data: d.Data, Protocol: d.Protocol}
	sessionsHandler := &SessionsHandler{Engine: d.Engine, Data: d.Data}
	claimsHandler := &ClaimsHandler{Engine: d.Engine}
	connectivityHandler := &ConnectivityHandler{Conn: d.Conn, Replica: d.Replica}
	reconcileHandler := &ReconcileHandler{Data: d.Data, Protocol: d.Protocol}

	authMW := AuthMiddleware(d.JWTSecret)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireSupervisor := RequireRole(model.RoleSupervisor)

	// Public: login and metrics.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Equipment and holders: read (all roles), write (supervisor+).
	mux.Handle("GET /api/equipment", authMW(http.HandlerFunc(equipmentHandler.List)))
	mux.Handle("POST /api/equipment", authMW(requireSupervisor(http.HandlerFunc(equipmentHandler.Create))))
	mux.Handle("GET /api/equipment/{id}", authMW(http.HandlerFunc(equipmentHandler.Get)))
	mux.Handle("PUT /api/equipment/{id}/holder", authMW(requireSupervisor(http.HandlerFunc(equipmentHandler.AssignHolder))))
	mux.Handle("GET /api/holders", authMW(http.HandlerFunc(holdersHandler.List)))
	mux.Handle("POST /api/holders", authMW(requireSupervisor(http.HandlerFunc(holdersHandler.Create))))

	// Sessions. The engine checks roles itself; claims are open to every role.
	mux.Handle("GET /api/sessions", authMW(http.HandlerFunc(sessionsHandler.List)))
	mux.Handle("POST /api/sessions", authMW(http.HandlerFunc(sessionsHandler.Start)))
	mux.Handle("GET /api/sessions/{id}", authMW(http.HandlerFunc(sessionsHandler.Get)))
	mux.Handle("POST /api/sessions/{id}/complete", authMW(http.HandlerFunc(sessionsHandler.Complete)))
	mux.Handle("GET /api/sessions/{id}/events", authMW(http.HandlerFunc(sessionsHandler.Events)))
	mux.Handle("POST /api/items/{id}/account", authMW(http.HandlerFunc(sessionsHandler.MarkAccountedFor)))
	mux.Handle("POST /api/items/{id}/confirm", authMW(http.HandlerFunc(claimsHandler.Confirm)))
	mux.Handle("POST /api/claims", authMW(http.HandlerFunc(claimsHandler.Submit)))

	// Connectivity (supervisor+ to change).
	mux.Handle("GET /api/connectivity", authMW(http.HandlerFunc(connectivityHandler.Get)))
	mux.Handle("PUT /api/connectivity", authMW(requireSupervisor(http.HandlerFunc(connectivityHandler.Set))))
	mux.Handle("POST /api/replica/resync", authMW(requireSupervisor(http.HandlerFunc(connectivityHandler.Resync))))

	// Reconciliation (admin only).
	mux.Handle("POST /api/reconcile/duplicates", authMW(requireAdmin(http.HandlerFunc(reconcileHandler.Duplicates))))
	mux.Handle("POST /api/reconcile/orphans", authMW(requireAdmin(http.HandlerFunc(reconcileHandler.Orphans))))

	return LoggingMiddleware(mux)
}
