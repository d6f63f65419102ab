package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keymart/internal/auth"
	"keymart/internal/httpserver/handlers"
	"keymart/internal/mailer"
	"keymart/internal/services/account"
	"keymart/internal/services/rbac"
)

type Deps struct {
	DB       *gorm.DB
	Accounts *account.Service
	RBAC     *rbac.Service
	Tokens   *auth.TokenIssuer
	Hasher   *auth.Hasher
	Mail     mailer.Mailer
	Origins  []string
	Logger   *zap.SugaredLogger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	lg := d.Logger

	r.Route("/api/account", func(acct chi.Router) {
		acct.Post("/send-otp", handlers.SendOtp(d.Accounts, lg))
		acct.Post("/verify-otp", handlers.VerifyOtp(d.Accounts, lg))
		acct.Post("/register", handlers.Register(d.Accounts, lg))
		acct.Post("/login", handlers.Login(d.Accounts, lg))
		acct.Post("/refresh", handlers.RefreshToken(d.Accounts, lg))
		acct.Post("/logout", handlers.Logout(d.Accounts, lg))
		acct.Group(func(protected chi.Router) {
			protected.Use(auth.JWTAuth(d.Tokens))
			protected.Post("/change-password", handlers.ChangePassword(d.Accounts, lg))
		})
	})

	r.Group(func(protected chi.Router) {
		protected.Use(auth.JWTAuth(d.Tokens))

		protected.Route("/api/roles", func(roles chi.Router) {
			roles.Get("/", handlers.ListRoles(d.RBAC, lg))
			roles.Get("/list", handlers.ListAllRoles(d.RBAC, lg))
			roles.Get("/active", handlers.ListActiveRoles(d.RBAC, lg))
			roles.Post("/", handlers.CreateRole(d.RBAC, lg))
			roles.Get("/{id}", handlers.GetRole(d.RBAC, lg))
			roles.Put("/{id}", handlers.UpdateRole(d.RBAC, lg))
			roles.Delete("/{id}", handlers.DeleteRole(d.RBAC, lg))
			roles.Get("/{id}/permissions", handlers.GetRolePermissions(d.RBAC, lg))
			roles.Put("/{id}/permissions", handlers.UpdateRolePermissions(d.RBAC, lg))
		})

		protected.Route("/api/modules", func(modules chi.Router) {
			modules.Get("/", handlers.ListModules(d.RBAC, lg))
			modules.Post("/", handlers.CreateModule(d.RBAC, lg))
			modules.Get("/{id}", handlers.GetModule(d.RBAC, lg))
			modules.Put("/{id}", handlers.UpdateModule(d.RBAC, lg))
			modules.Delete("/{id}", handlers.DeleteModule(d.RBAC, lg))
		})

		protected.Route("/api/permissions", func(permissions chi.Router) {
			permissions.Get("/", handlers.ListPermissions(d.RBAC, lg))
			permissions.Post("/", handlers.CreatePermission(d.RBAC, lg))
			permissions.Get("/{id}", handlers.GetPermission(d.RBAC, lg))
			permissions.Put("/{id}", handlers.UpdatePermission(d.RBAC, lg))
			permissions.Delete("/{id}", handlers.DeletePermission(d.RBAC, lg))
		})

		protected.Route("/api/users", func(users chi.Router) {
			users.Get("/", handlers.ListUsers(d.DB, lg))
			users.Post("/", handlers.CreateUser(d.DB, d.Hasher, lg))
			users.Get("/{id}", handlers.GetUser(d.DB, lg))
			users.Put("/{id}", handlers.UpdateUser(d.DB, lg))
			users.Delete("/{id}", handlers.DeleteUser(d.DB, lg))
			users.Post("/{id}/reset-password", handlers.ResetUserPassword(d.DB, d.Hasher, d.Mail, lg))
		})

		protected.Get("/api/audit-logs", handlers.ListAuditLogs(d.RBAC, lg))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
