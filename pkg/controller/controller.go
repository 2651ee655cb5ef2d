package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tgdrive/filebox/internal/auth"
	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/middleware"
	"github.com/tgdrive/filebox/internal/storage"
	"github.com/tgdrive/filebox/pkg/services"
)

const APIPrefix = "/api/v1"

type Controller struct {
	Entries *services.EntryService
	Shares  *services.ShareService
	Auth    *services.AuthService
	Users   *services.UserService

	cnf     *config.ServerCmdConfig
	blobs   storage.Opener
	now     services.Clock
	started time.Time
}

// New builds the controller. blobs may be nil when the object store serves
// files from its own public URL.
func New(srv *services.Services, cnf *config.ServerCmdConfig, blobs storage.Opener, now services.Clock) *Controller {
	if now == nil {
		now = services.UTCNow
	}
	return &Controller{
		Entries: srv.Entries,
		Shares:  srv.Shares,
		Auth:    srv.Auth,
		Users:   srv.Users,
		cnf:     cnf,
		blobs:   blobs,
		now:     now,
		started: now(),
	}
}

// Router returns the API routes and, when a local blob opener is set, the
// blob download route.
func (c *Controller) Router() chi.Router {
	r := chi.NewRouter()
	requireUser := auth.Middleware(c.cnf.JWT.Secret)
	limiter := middleware.NewIPLimiter(c.cnf.Server.AuthRate, c.cnf.Server.AuthBurst)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", c.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter))
			r.Post("/register", c.Register)
			r.Post("/resend-otp", c.ResendOTP)
			r.Post("/resend-registration-otp", c.ResendOTP)
			r.Post("/confirm-registration", c.ConfirmRegistration)
			r.Post("/login", c.Login)
			r.Post("/refresh-token", c.RefreshToken)
			r.Post("/logout", c.Logout)
			r.Post("/forgot-password", c.ForgotPassword)
			r.Post("/verify-otp", c.VerifyOTP)
			r.Post("/reset-password", c.ResetPassword)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/share/{id}/{token}", c.AccessShareLink)

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/", c.ListFiles)
				r.Post("/upload-file", c.UploadFile)
				r.Post("/create-folder", c.CreateFolder)
				r.Get("/search", c.SearchFiles)
				r.Get("/recent", c.RecentFiles)
				r.Get("/folder-details/{id}", c.FolderDetails)
				r.Post("/share/email", c.ShareWithEmail)
				r.Post("/share/link", c.GenerateShareLink)
				r.Delete("/share/link/{id}", c.RevokeShareLink)
				r.Patch("/{id}", c.UpdateEntry)
				r.Delete("/{id}", c.DeleteEntry)
			})
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/profile", c.Profile)
			r.Get("/my-profile", c.Profile)
			r.Put("/profile", c.UpdateProfile)
			r.Put("/change-password", c.ChangePassword)
			r.Delete("/delete-account", c.DeleteAccount)
		})
	})

	if c.blobs != nil {
		r.Get(storage.BlobsPath+"*", c.ServeBlob)
	}
	return r
}

func userID(r *http.Request) string {
	return auth.GetUser(r.Context()).ID
}
