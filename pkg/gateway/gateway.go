// Package gateway is the per-request front end of the server. It
// classifies every inbound request into a target product and either a
// static resource (GET) or a versioned RPC service (POST), enforces
// the authentication gate before dispatch, repairs product connections
// on access and maps every failure to a protocol-appropriate status.
// Nothing below this boundary is allowed to crash a request worker.
package gateway

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/txn2/report-gateway/pkg/api"
	"github.com/txn2/report-gateway/pkg/configstore"
	"github.com/txn2/report-gateway/pkg/product"
	"github.com/txn2/report-gateway/pkg/routing"
	"github.com/txn2/report-gateway/pkg/rpc"
	"github.com/txn2/report-gateway/pkg/session"
)

const (
	authenticationService = "Authentication"
	productsService       = "Products"
	reportsService        = "CodeCheckerService"
)

// Config configures the gateway.
type Config struct {
	// WebRoot is the directory static web assets are served from.
	WebRoot string
}

// Gateway handles one request at a time per worker; it keeps no
// per-connection state, so a single instance is shared by all workers.
type Gateway struct {
	cfg      Config
	gate     *session.Manager
	products *product.Manager
	store    *configstore.Store
}

// New builds the request gateway.
func New(cfg Config, gate *session.Manager, products *product.Manager, store *configstore.Store) *Gateway {
	return &Gateway{cfg: cfg, gate: gate, products: products, store: store}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("request handling panicked",
				"path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			http.Error(w, "Request failed.", http.StatusNotFound)
		}
	}()

	switch r.Method {
	case http.MethodGet:
		g.handleGET(w, r)
	case http.MethodPost:
		g.handlePOST(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// resolveSession authenticates one request: the session cookie is
// consulted first, then the Basic authorization header. A valid cookie
// wins over credentials.
func (g *Gateway) resolveSession(r *http.Request) *session.Session {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if sess := g.gate.Validate(cookie.Value); sess != nil {
			return sess
		}
	}
	if user, password, ok := r.BasicAuth(); ok {
		return g.gate.CreateOrGet(user + ":" + password)
	}
	return nil
}

// refreshCookie reissues the session cookie so sessions slide without
// a separate renewal call. Must run before headers are written.
func refreshCookie(w http.ResponseWriter, sess *session.Session) {
	if sess == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:  session.CookieName,
		Value: sess.Token,
		Path:  "/",
	})
}

func logRequest(r *http.Request, sess *session.Session) {
	user := "Anonymous"
	if sess != nil {
		user = sess.User
	}
	slog.Info("request", "addr", r.RemoteAddr, "user", user,
		"method", r.Method, "path", r.URL.Path)
}

func (g *Gateway) handleGET(w http.ResponseWriter, r *http.Request) {
	sess := g.resolveSession(r)
	logRequest(r, sess)

	if g.gate.Enabled() && sess == nil {
		slog.Info("credentials not found, session refused", "addr", r.RemoteAddr)
		realm := g.gate.Realm()
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm.Realm))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(realm.Error)))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, realm.Error)
		return
	}
	refreshCookie(w, sess)

	endpoint, remainder := routing.SplitGETRequest(r.URL.Path)
	if endpoint != "" {
		p := g.products.Get(endpoint)
		if p == nil {
			slog.Info("product endpoint does not exist", "endpoint", endpoint)
			http.Error(w, fmt.Sprintf("The product %s does not exist.", endpoint),
				http.StatusNotFound)
			return
		}

		if remainder == "" && !strings.HasSuffix(r.URL.Path, "/") {
			// /prod must route through /prod/ so relative asset
			// references inside the index resolve under the product
			// prefix. Browsers cache 308 replies.
			w.Header().Set("Location", r.URL.Path+"/")
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}

		// Serve the resource with the product prefix stripped:
		// /prod/styles/x.css -> styles/x.css under the web root.
		if remainder == "" {
			remainder = "index.html"
		}
		g.serveStatic(w, r, remainder)
		return
	}

	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		if sole := g.products.SoleProduct(); sole != nil {
			slog.Debug("redirecting site root to sole product",
				"endpoint", sole.Endpoint())
			w.Header().Set("Location", "/"+sole.Endpoint())
			w.WriteHeader(http.StatusTemporaryRedirect)
			return
		}
		g.serveStatic(w, r, "products.html")
		return
	}

	g.serveStatic(w, r, strings.TrimPrefix(r.URL.Path, "/"))
}

func (g *Gateway) handlePOST(w http.ResponseWriter, r *http.Request) {
	sess := g.resolveSession(r)
	logRequest(r, sess)

	if g.gate.Enabled() && sess == nil &&
		!strings.HasSuffix(r.URL.Path, "/"+authenticationService) {
		slog.Info("credentials not found, session refused", "addr", r.RemoteAddr)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	refreshCookie(w, sess)

	endpoint, version, serviceName, err := routing.SplitPOSTRequest(r.URL.Path)
	if err != nil {
		http.Error(w, "No such API endpoint.", http.StatusNotFound)
		return
	}

	var prod *product.Product
	if endpoint != "" {
		prod = g.products.Get(endpoint)
		if prod == nil {
			http.Error(w, fmt.Sprintf("The product %s does not exist.", endpoint),
				http.StatusNotFound)
			return
		}
		if !prod.Connected() {
			// Administrators may restart a backing database without
			// restarting the gateway: repair on access.
			slog.Debug("product is not connected, attempting reconnect",
				"endpoint", endpoint)
			prod.Connect(r.Context())
			if !prod.Connected() {
				http.Error(w,
					fmt.Sprintf("Product '%s' database connection failed!", endpoint),
					http.StatusInternalServerError)
				return
			}
		}
	}

	var handler rpc.Handler
	if _, _, supported := routing.SupportedVersion(version); !supported {
		if serviceName != authenticationService {
			slog.Debug("unsupported API version", "version", version)
			http.Error(w,
				fmt.Sprintf("This API version 'v%s' is not supported.", version),
				http.StatusBadRequest)
			return
		}
		// Version discovery must stay possible: answer on the
		// Authentication service with an in-band mismatch fault.
		handler = rpc.MismatchHandler{Requested: version}
	} else {
		switch serviceName {
		case authenticationService:
			handler = api.NewAuthentication(g.gate, sess)
		case productsService:
			handler = api.NewProducts(g.store, g.products, prod)
		case reportsService:
			if prod == nil {
				http.Error(w, "The report service requires a product endpoint.",
					http.StatusNotFound)
				return
			}
			handler = api.NewReports(prod.SessionFactory())
		default:
			http.Error(w, fmt.Sprintf("No API endpoint named '%s'.", serviceName),
				http.StatusNotFound)
			return
		}
	}

	reply, err := rpc.Process(r.Context(), handler, r.Body, r.ContentLength)
	if err != nil {
		slog.Error("request dispatch failed",
			"path", r.URL.Path, "error", err, "stack", string(debug.Stack()))
		http.Error(w, "Request failed.", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", rpc.WireContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(reply)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}
