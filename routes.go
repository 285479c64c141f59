package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/CodedInternet/rcdrive/comms"
	"github.com/CodedInternet/rcdrive/onboard"
	"github.com/CodedInternet/rcdrive/onboard/ota"
)

type StatusPayload struct {
	onboard.Snapshot
	Applied  onboard.Speeds `json:"applied"`
	Enabled  bool           `json:"bridgeEnabled"`
	Clients  int            `json:"clients"`
	Hostname string         `json:"hostname"`
	Firmware string         `json:"firmware"`
}

type Vehicle struct {
	Controller *onboard.Controller
	Hub        *comms.Hub
	Updates    *ota.Listener
	Hostname   string
	Firmware   string
}

// Status reports the current state of the vehicle. It only reads, the
// control loop remains the only writer.
func (v *Vehicle) Status(w http.ResponseWriter, r *http.Request) {
	motors := v.Controller.Motors()
	render.JSON(w, r, StatusPayload{
		Snapshot: v.Controller.State.Snapshot(),
		Applied:  motors.Applied(),
		Enabled:  motors.Enabled(),
		Clients:  v.Hub.Count(),
		Hostname: v.Hostname,
		Firmware: v.Firmware,
	})
}

func NewRouter(v *Vehicle) chi.Router {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			render.Render(w, r, ErrNotFound)
		})

		r.Post("/login", Login)
		r.Get("/status", v.Status)

		// the listener checks the token itself so failures reach its hooks
		r.Post("/ota", v.Updates.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(ValidateJWT)
			r.Get("/refresh_token", JWTRefresh)
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if ENV.PRODUCTION && !ENV.DEBUG {
			// Enable JWT validation in production
			r.Use(ValidateJWT)
		}

		r.Get("/control", v.Hub.ServeHTTP)
	})

	// add static base routes
	FileServer(r, "/", http.Dir(ENV.HTMLDIR))

	return r
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, fs.ServeHTTP)
}
