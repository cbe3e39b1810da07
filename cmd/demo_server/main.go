package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"ipsguard/logger"

	json "github.com/goccy/go-json"
)

type credentials struct {
	Name     string `json:"Name"`
	Password string `json:"password"`
}

type session struct {
	user    string
	admin   bool
	expires time.Time
}

type demoApp struct {
	users    map[string]credentials
	admins   map[string]bool
	mu       sync.RWMutex
	sessions map[string]session
}

func newDemoApp() *demoApp {
	return &demoApp{
		users: map[string]credentials{
			"admin": {Name: "admin", Password: "S3cure!Admin"},
			"alice": {Name: "alice", Password: "wonderland"},
		},
		admins:   map[string]bool{"admin": true},
		sessions: make(map[string]session),
	}
}

func (a *demoApp) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "--- ipsguard demo upstream ---\n")
		fmt.Fprintf(w, "Time: %s\n", time.Now().Format(time.RFC1123))
		fmt.Fprintf(w, "RemoteAddr: %s\n", r.RemoteAddr)
		fmt.Fprintf(w, "User-Agent: %s\n", r.UserAgent())
	})
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("GET /admin", a.requireToken(true, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "This is the admin area.")
	}))
	mux.HandleFunc("GET /api/data/{id}", handleData)
	mux.HandleFunc("GET /api/protected", a.requireToken(false, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "protected resource"})
	}))
	return mux
}

func (a *demoApp) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Name == "" {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	u, ok := a.users[c.Name]
	if !ok || u.Password != c.Password {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}
	token := hex.EncodeToString(buf)
	exp := time.Now().Add(10 * time.Minute)

	a.mu.Lock()
	a.sessions[token] = session{user: c.Name, admin: a.admins[c.Name], expires: exp}
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expiration": exp})
}

func (a *demoApp) requireToken(admin bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		a.mu.RLock()
		s, found := a.sessions[token]
		a.mu.RUnlock()
		if !found || time.Now().After(s.expires) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if admin && !s.admin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func handleData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Bad id", http.StatusBadRequest)
		return
	}
	if id < 1 || id > 5 {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "name": fmt.Sprintf("Product %d", id)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:3000", "listen address")
	flag.Parse()

	logger.Init(logger.Options{Level: "info", Pretty: true, Service: "demo_server"})

	logger.Info("Demo upstream starting", "addr", *addr)
	if err := http.ListenAndServe(*addr, newDemoApp().routes()); err != nil {
		logger.Error("Demo upstream stopped", "err", err)
	}
}
