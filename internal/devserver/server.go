// Package devserver is an in-memory stand-in for the VEX Market backend.
// It speaks the same REST and websocket contract as production and keeps
// nothing on disk.
package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/logging"
)

// Server holds all backend state behind one lock.
type Server struct {
	Key       string
	StartTime time.Time
	Logger    *slog.Logger
	Gateway   *http.ServeMux

	hashCost int
	tokenTTL time.Duration
	limiter  *RateLimiter
	hub      *hub

	mu       sync.RWMutex
	nextID   int64
	users    map[int64]*User
	byEmail  map[string]int64
	sessions map[string]int64
	verify   map[string]int64
	resets   map[string]int64
	listings map[int64]*listing
	chats    map[int64]*chat
	images   map[string][]byte
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.Logger = l }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Server) { s.hashCost = cost }
}

// WithRateLimit enables per-IP request limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(rps, burst) }
}

// WithTokenTTL sets the lifetime of socket tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

func NewServer(key string, opts ...Option) *Server {
	s := &Server{
		Key:       key,
		StartTime: time.Now(),
		Gateway:   http.NewServeMux(),
		hashCost:  bcrypt.DefaultCost,
		tokenTTL:  time.Hour,
		users:     make(map[int64]*User),
		byEmail:   make(map[string]int64),
		sessions:  make(map[string]int64),
		verify:    make(map[string]int64),
		resets:    make(map[string]int64),
		listings:  make(map[int64]*listing),
		chats:     make(map[int64]*chat),
		images:    make(map[string][]byte),
	}
	for _, o := range opts {
		o(s)
	}
	s.Logger = logging.OrDiscard(s.Logger)
	s.hub = newHub(key, s.Logger)
	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.Gateway

	g.HandleFunc("GET /auth/user", s.requireUser(s.handleUser))
	g.HandleFunc("GET /auth/user/notifications", s.requireUser(s.handleNotifications))
	g.HandleFunc("POST /auth/login", s.handleLogin)
	g.HandleFunc("POST /auth/logout", s.handleLogout)
	g.HandleFunc("POST /auth/register", s.handleRegister)
	g.HandleFunc("POST /auth/verify", s.handleVerify)
	g.HandleFunc("POST /auth/reset", s.handleResetRequest)
	g.HandleFunc("GET /auth/reset/{token}", s.handleResetCheck)
	g.HandleFunc("POST /auth/reset/{token}", s.handleReset)
	g.HandleFunc("POST /auth/password", s.requireUser(s.handlePassword))

	g.HandleFunc("POST /listings", s.requireUser(s.handleCreateListing))
	g.HandleFunc("POST /listings/search", s.handleSearch)
	g.HandleFunc("GET /listings/user", s.requireUser(s.handleMyListings))
	g.HandleFunc("GET /listings/{id}", s.handleGetListing)
	g.HandleFunc("PUT /listings/{id}", s.requireUser(s.handleUpdateListing))
	g.HandleFunc("DELETE /listings/{id}", s.requireUser(s.handleDeleteListing))
	g.HandleFunc("POST /listings/{id}/archive", s.requireUser(s.handleArchive))
	g.HandleFunc("POST /listings/{id}/images", s.requireUser(s.handleAddImage))
	g.HandleFunc("DELETE /listings/{id}/images", s.requireUser(s.handleRemoveImages))
	g.HandleFunc("GET /images/{name}", s.handleImage)

	g.HandleFunc("POST /location/check", s.handleZipCheck)
	g.HandleFunc("POST /location/zip", s.handleZipLookup)

	g.HandleFunc("GET /messages", s.requireUser(s.handleChats))
	g.HandleFunc("POST /messages", s.requireUser(s.handleStartChat))
	g.HandleFunc("POST /messages/token", s.requireUser(s.handleToken))
	g.HandleFunc("GET /messages/{id}", s.requireUser(s.handleHistory))
	g.HandleFunc("POST /messages/{id}", s.requireUser(s.handleSend))
	g.HandleFunc("POST /messages/{id}/image", s.requireUser(s.handleSendImage))
	g.HandleFunc("POST /messages/{id}/read", s.requireUser(s.handleRead))

	g.HandleFunc("GET /ws", s.hub.serveWS)
}

// Handler is the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Gateway
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return s.logRequests(h)
}

// DropSockets closes every websocket connection, as a backend restart
// would.
func (s *Server) DropSockets() {
	s.hub.dropAll()
}

// Sockets is the number of open websocket connections.
func (s *Server) Sockets() int {
	return s.hub.count()
}

// SocketsFor is the number of sockets authenticated as uid.
func (s *Server) SocketsFor(uid int64) int {
	return s.hub.countFor(uid)
}

func (s *Server) Close() {
	s.hub.dropAll()
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// id hands out the next identifier. Callers hold mu.
func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

var errEmailTaken = errors.New("An account with that email already exists")

// AddUser creates a verified account, for seeding and tests.
func (s *Server) AddUser(email, password, first, last string) (int64, error) {
	email = strings.ToLower(email)
	u := &User{Email: email, FirstName: first, LastName: last, Verified: true, Created: time.Now()}
	if err := u.SetPassword(password, s.hashCost); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return 0, errEmailTaken
	}
	u.ID = s.id()
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u.ID, nil
}

// AddListing creates a listing for authorID, for seeding and tests.
func (s *Server) AddListing(authorID int64, l internal.Listing, zip string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	l.AuthorID = authorID
	s.listings[l.ID] = &listing{Listing: l, Zip: zip, Created: time.Now()}
	return l.ID
}
