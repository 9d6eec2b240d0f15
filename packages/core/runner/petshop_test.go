package runner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// petshop is a mock pet store that records which endpoints were consumed.
type petshop struct {
	mu   sync.Mutex
	hits map[string]int
	pets map[int]map[string]any
	next int

	createStatus int
	getStatus    int
	photoUrls    []string
	delay        time.Duration
}

func newPetshop(t *testing.T) (*petshop, *httptest.Server) {
	t.Helper()
	p := &petshop{
		hits:         make(map[string]int),
		pets:         make(map[int]map[string]any),
		next:         1017,
		createStatus: http.StatusCreated,
		getStatus:    http.StatusOK,
		photoUrls:    []string{"url1", "url2"},
	}

	r := chi.NewRouter()
	r.Post("/pet", p.create)
	r.Get("/pet/{id}", p.get)
	r.Put("/pet", p.update)
	r.Delete("/pet/{id}", p.remove)
	r.Post("/login", p.login)
	r.Get("/slow", p.slow)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *petshop) hit(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits[key]++
}

// Hits returns how often an endpoint such as "GET /pet/{id}" was consumed.
func (p *petshop) Hits(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[key]
}

func (p *petshop) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.hits {
		n += v
	}
	return n
}

func (p *petshop) set(fn func(p *petshop)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *petshop) create(w http.ResponseWriter, r *http.Request) {
	p.hit("POST /pet")
	p.mu.Lock()
	status := p.createStatus
	p.mu.Unlock()
	if status >= 300 {
		writeJSON(w, status, map[string]any{"message": "unavailable"})
		return
	}

	var pet map[string]any
	if err := json.NewDecoder(r.Body).Decode(&pet); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	p.mu.Lock()
	id := p.next
	p.next++
	pet["id"] = id
	p.pets[id] = pet
	p.mu.Unlock()
	writeJSON(w, status, pet)
}

func (p *petshop) get(w http.ResponseWriter, r *http.Request) {
	p.hit("GET /pet/{id}")
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	p.mu.Lock()
	defer p.mu.Unlock()
	pet, ok := p.pets[id]
	if !ok {
		pet = map[string]any{"id": id, "name": "doggie", "status": "available"}
	}
	out := map[string]any{"photoUrls": p.photoUrls}
	for k, v := range pet {
		out[k] = v
	}
	writeJSON(w, p.getStatus, out)
}

func (p *petshop) update(w http.ResponseWriter, r *http.Request) {
	p.hit("PUT /pet")
	var pet map[string]any
	_ = json.NewDecoder(r.Body).Decode(&pet)
	writeJSON(w, http.StatusOK, pet)
}

func (p *petshop) remove(w http.ResponseWriter, r *http.Request) {
	p.hit("DELETE /pet/{id}")
	w.WriteHeader(http.StatusNoContent)
}

func (p *petshop) login(w http.ResponseWriter, r *http.Request) {
	p.hit("POST /login")
	writeJSON(w, http.StatusOK, map[string]any{"token": "s3cret"})
}

func (p *petshop) slow(w http.ResponseWriter, r *http.Request) {
	p.hit("GET /slow")
	p.mu.Lock()
	d := p.delay
	p.mu.Unlock()
	time.Sleep(d)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writeSuite stores a YAML descriptor in a temporary directory.
func writeSuite(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const petSchema = `
- schema: Pet
  type: object
  required: [id, name]
  properties:
    id: {type: integer}
    name: {type: string}
    photoUrls:
      type: array
      items: {type: string}
`
