// Command mock-endpoints serves an in-memory provisioning backend and an
// ipapi-style geolocation service for local development.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const pageSize = 2

var requestCount atomic.Int64

type database struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

type backend struct {
	mu        sync.Mutex
	databases map[string]database
	slowUntil time.Time
}

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	b := &backend{databases: map[string]database{}}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/organizations/{org}/databases", b.list)
	mux.HandleFunc("POST /v1/organizations/{org}/databases", b.create)
	mux.HandleFunc("DELETE /v1/organizations/{org}/databases/{name}", b.remove)

	// Make list calls stall for the given number of seconds, to exercise timeouts.
	mux.HandleFunc("POST /admin/slow", func(w http.ResponseWriter, r *http.Request) {
		secs, _ := strconv.Atoi(r.URL.Query().Get("seconds"))
		b.mu.Lock()
		b.slowUntil = time.Now().Add(time.Duration(secs) * time.Second)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /geo/{ip}/json", geolocate)

	// Request and database counts
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		n := len(b.databases)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]int64{
			"total_requests": requestCount.Load(),
			"databases":      int64(n),
		})
	})

	log.Printf("Mock backend starting on :%s", port)
	log.Printf("  GET    /v1/organizations/{org}/databases  -> paginated list (%d per page)", pageSize)
	log.Printf("  POST   /v1/organizations/{org}/databases  -> 201, or 409 on duplicate name")
	log.Printf("  DELETE /v1/organizations/{org}/databases/{name}")
	log.Printf("  POST   /admin/slow?seconds=N              -> stall list calls")
	log.Printf("  GET    /geo/{ip}/json                     -> continent_code")
	log.Printf("  GET    /stats                             -> request count")

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func (b *backend) list(w http.ResponseWriter, r *http.Request) {
	count := requestCount.Add(1)

	b.mu.Lock()
	stall := time.Until(b.slowUntil)
	names := make([]string, 0, len(b.databases))
	for name := range b.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	b.mu.Unlock()

	if stall > 0 {
		select {
		case <-time.After(stall):
		case <-r.Context().Done():
			return
		}
	}

	start, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	if start < 0 || start > len(names) {
		start = len(names)
	}
	end := min(start+pageSize, len(names))

	page := make([]database, 0, end-start)
	b.mu.Lock()
	for _, name := range names[start:end] {
		page = append(page, b.databases[name])
	}
	b.mu.Unlock()

	next := ""
	if end < len(names) {
		next = strconv.Itoa(end)
	}

	logRequest(r, count, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]any{"databases": page, "next_cursor": next})
}

func (b *backend) create(w http.ResponseWriter, r *http.Request) {
	count := requestCount.Add(1)

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		logRequest(r, count, http.StatusUnauthorized)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
		return
	}

	var req database
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		logRequest(r, count, http.StatusBadRequest)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.databases[req.Name]; ok {
		logRequest(r, count, http.StatusConflict)
		writeJSON(w, http.StatusConflict, map[string]string{"error": "database already exists"})
		return
	}
	b.databases[req.Name] = req

	logRequest(r, count, http.StatusCreated)
	writeJSON(w, http.StatusCreated, map[string]database{"database": req})
}

func (b *backend) remove(w http.ResponseWriter, r *http.Request) {
	count := requestCount.Add(1)
	name := r.PathValue("name")

	b.mu.Lock()
	_, ok := b.databases[name]
	delete(b.databases, name)
	b.mu.Unlock()

	if !ok {
		logRequest(r, count, http.StatusNotFound)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "database not found"})
		return
	}
	logRequest(r, count, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"database": name})
}

// geolocate maps documentation address ranges to continents.
func geolocate(w http.ResponseWriter, r *http.Request) {
	count := requestCount.Add(1)
	ip := r.PathValue("ip")

	code := "NA"
	switch {
	case strings.HasPrefix(ip, "203.0.113."):
		code = "EU"
	case strings.HasPrefix(ip, "198.51.100."):
		code = "OC"
	case strings.HasPrefix(ip, "192.0.2."):
		logRequest(r, count, http.StatusOK)
		writeJSON(w, http.StatusOK, map[string]any{"error": true, "reason": "Reserved IP Address"})
		return
	}

	logRequest(r, count, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"ip": ip, "continent_code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func logRequest(r *http.Request, count int64, status int) {
	fmt.Printf("[#%d] %s %s -> %d | auth=%s\n",
		count,
		r.Method,
		r.URL.RequestURI(),
		status,
		truncate(r.Header.Get("Authorization"), 12),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
