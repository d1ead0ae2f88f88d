// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Row is one table row in the fake database.
type Row map[string]any

// FakeRemote is an in-memory stand-in for the hosted backend's rest, storage and auth APIs.
type FakeRemote struct {
	Server *httptest.Server

	mu      sync.Mutex
	tables  map[string][]Row
	nextID  map[string]int64
	objects map[string][]byte
	calls   map[string]int
	failing map[string]string
	delay   map[string]time.Duration

	// Users maps access tokens to the user object returned by /auth/v1/user.
	Users map[string]map[string]any
	// Codes maps OAuth codes to the session returned by the pkce grant.
	Codes map[string]map[string]any
	// Refresh maps refresh tokens to the session returned by the refresh grant.
	Refresh map[string]map[string]any

	requests atomic.Int64
	clock    int64
}

// NewFakeRemote starts a fake backend. Call Close when done.
func NewFakeRemote() *FakeRemote {
	f := &FakeRemote{
		tables:  map[string][]Row{},
		nextID:  map[string]int64{},
		objects: map[string][]byte{},
		calls:   map[string]int{},
		failing: map[string]string{},
		delay:   map[string]time.Duration{},
		Users:   map[string]map[string]any{},
		Codes:   map[string]map[string]any{},
		Refresh: map[string]map[string]any{},
		clock:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// URL is the base URL to configure the remote client with.
func (f *FakeRemote) URL() string { return f.Server.URL }

// Close shuts the server down.
func (f *FakeRemote) Close() { f.Server.Close() }

// Fail makes every call of op ("select posts", "insert posts", "upload", "remove", "rpc get_posts_with_counts", "logout", ...)
// answer 400 with message until cleared with an empty message.
func (f *FakeRemote) Fail(op, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if message == "" {
		delete(f.failing, op)
		return
	}
	f.failing[op] = message
}

// Delay makes op sleep before answering.
func (f *FakeRemote) Delay(op string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay[op] = d
}

// Calls returns how many times op was requested.
func (f *FakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Requests returns the total number of requests served.
func (f *FakeRemote) Requests() int64 { return f.requests.Load() }

// Seed inserts a row and returns its id.
func (f *FakeRemote) Seed(table string, row Row) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(table, row)["id"].(int64)
}

// Rows returns a copy of the rows in table.
func (f *FakeRemote) Rows(table string) []Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Row, 0, len(f.tables[table]))
	for _, r := range f.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Objects returns the stored object paths as "<bucket>/<path>".
func (f *FakeRemote) Objects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyRow(r Row) Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func (f *FakeRemote) insertLocked(table string, row Row) Row {
	r := copyRow(row)
	f.nextID[table]++
	if _, ok := r["id"]; !ok {
		r["id"] = f.nextID[table]
	} else {
		r["id"] = toInt64(r["id"])
	}
	if _, ok := r["created_at"]; !ok {
		f.clock++
		r["created_at"] = time.Unix(f.clock, 0).UTC().Format(time.RFC3339)
	}
	f.tables[table] = append(f.tables[table], r)
	return r
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeRemote) begin(op string) (string, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.failing[op], f.delay[op]
}

func (f *FakeRemote) serve(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if r.Header.Get("apikey") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "No API key found in request"})
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/rest/v1/rpc/"):
		f.serveRPC(w, r, strings.TrimPrefix(r.URL.Path, "/rest/v1/rpc/"))
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		f.serveTable(w, r, strings.TrimPrefix(r.URL.Path, "/rest/v1/"))
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/"):
		f.serveStorage(w, r, strings.TrimPrefix(r.URL.Path, "/storage/v1/object/"))
	case strings.HasPrefix(r.URL.Path, "/auth/v1/"):
		f.serveAuth(w, r, strings.TrimPrefix(r.URL.Path, "/auth/v1/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	}
}

func tableOp(method, table string) string {
	switch method {
	case http.MethodPost:
		return "insert " + table
	case http.MethodDelete:
		return "delete " + table
	default:
		return "select " + table
	}
}

func matches(row Row, filters map[string]string) bool {
	for col, expr := range filters {
		v := row[col]
		switch {
		case expr == "is.null":
			if v != nil {
				return false
			}
		case strings.HasPrefix(expr, "eq."):
			if v == nil || fmt.Sprint(v) != strings.TrimPrefix(expr, "eq.") {
				return false
			}
		}
	}
	return true
}

func (f *FakeRemote) serveTable(w http.ResponseWriter, r *http.Request, table string) {
	op := tableOp(r.Method, table)
	failMsg, delay := f.begin(op)
	if delay > 0 {
		time.Sleep(delay)
	}
	if failMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "P0001", "message": failMsg})
		return
	}

	q := r.URL.Query()
	filters := map[string]string{}
	for k := range q {
		if k != "select" && k != "order" {
			filters[k] = q.Get(k)
		}
	}
	single := r.Header.Get("Accept") == "application/vnd.pgrst.object+json"

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var row Row
		if err := dec.Decode(&row); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		for k, v := range row {
			if n, ok := v.(json.Number); ok {
				row[k] = toInt64(n)
			}
		}
		if table == "likes" {
			for _, existing := range f.tables[table] {
				if fmt.Sprint(existing["post_id"]) == fmt.Sprint(row["post_id"]) && existing["user_id"] == row["user_id"] {
					writeJSON(w, http.StatusConflict, map[string]string{"code": "23505", "message": "duplicate key value violates unique constraint \"likes_post_id_user_id_key\""})
					return
				}
			}
		}
		inserted := f.insertLocked(table, row)
		if single {
			writeJSON(w, http.StatusCreated, inserted)
		} else {
			writeJSON(w, http.StatusCreated, []Row{inserted})
		}
	case http.MethodDelete:
		kept := f.tables[table][:0]
		for _, row := range f.tables[table] {
			if !matches(row, filters) {
				kept = append(kept, row)
			}
		}
		f.tables[table] = kept
		w.WriteHeader(http.StatusNoContent)
	default:
		out := []Row{}
		for _, row := range f.tables[table] {
			if matches(row, filters) {
				out = append(out, f.embedLocked(table, q.Get("select"), row))
			}
		}
		if order := q.Get("order"); order != "" {
			sortRows(out, order)
		}
		if single {
			if len(out) != 1 {
				writeJSON(w, http.StatusNotAcceptable, map[string]string{
					"code":    "PGRST116",
					"message": "JSON object requested, multiple (or no) rows returned",
				})
				return
			}
			writeJSON(w, http.StatusOK, out[0])
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (f *FakeRemote) embedLocked(table, sel string, row Row) Row {
	r := copyRow(row)
	if table == "posts" && strings.Contains(sel, "communities(") {
		r["communities"] = nil
		for _, c := range f.tables["communities"] {
			if r["community_id"] != nil && toInt64(c["id"]) == toInt64(r["community_id"]) {
				r["communities"] = Row{"name": c["name"]}
			}
		}
	}
	return r
}

func sortRows(rows []Row, order string) {
	parts := strings.SplitN(order, ".", 2)
	col := parts[0]
	desc := len(parts) == 2 && parts[1] == "desc"
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := fmt.Sprint(rows[i][col]), fmt.Sprint(rows[j][col])
		if desc {
			return a > b
		}
		return a < b
	})
}

func (f *FakeRemote) serveRPC(w http.ResponseWriter, _ *http.Request, fn string) {
	failMsg, delay := f.begin("rpc " + fn)
	if delay > 0 {
		time.Sleep(delay)
	}
	if failMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": failMsg})
		return
	}
	if fn != "get_posts_with_counts" {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "PGRST202", "message": "Could not find the function public." + fn})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Row{}
	for _, p := range f.tables["posts"] {
		r := copyRow(p)
		var likes, comments int
		for _, l := range f.tables["likes"] {
			if toInt64(l["post_id"]) == toInt64(p["id"]) {
				likes++
			}
		}
		for _, c := range f.tables["comments"] {
			if toInt64(c["post_id"]) == toInt64(p["id"]) {
				comments++
			}
		}
		r["like_count"] = likes
		r["comment_count"] = comments
		out = append(out, r)
	}
	sortRows(out, "created_at.desc")
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeRemote) serveStorage(w http.ResponseWriter, r *http.Request, rest string) {
	if strings.HasPrefix(rest, "public/") {
		f.mu.Lock()
		data, ok := f.objects[strings.TrimPrefix(rest, "public/")]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "Object not found"})
			return
		}
		_, _ = w.Write(data)
		return
	}

	switch r.Method {
	case http.MethodPost:
		failMsg, delay := f.begin("upload")
		if delay > 0 {
			time.Sleep(delay)
		}
		if failMsg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"statusCode": "400", "error": "upload_failed", "message": failMsg})
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, exists := f.objects[rest]; exists {
			writeJSON(w, http.StatusConflict, map[string]string{"statusCode": "409", "error": "Duplicate", "message": "The resource already exists"})
			return
		}
		f.objects[rest] = data
		writeJSON(w, http.StatusOK, map[string]string{"Key": rest})
	case http.MethodDelete:
		failMsg, _ := f.begin("remove")
		if failMsg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": failMsg})
			return
		}
		var body struct {
			Prefixes []string `json:"prefixes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		removed := []Row{}
		for _, p := range body.Prefixes {
			key := rest + "/" + p
			if _, ok := f.objects[key]; ok {
				delete(f.objects, key)
				removed = append(removed, Row{"name": p})
			}
		}
		writeJSON(w, http.StatusOK, removed)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *FakeRemote) serveAuth(w http.ResponseWriter, r *http.Request, rest string) {
	switch rest {
	case "token":
		grant := r.URL.Query().Get("grant_type")
		failMsg, _ := f.begin("token " + grant)
		if failMsg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": failMsg})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		var sess map[string]any
		var ok bool
		switch grant {
		case "pkce":
			sess, ok = f.Codes[body["auth_code"]]
		case "refresh_token":
			sess, ok = f.Refresh[body["refresh_token"]]
		}
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid grant"})
			return
		}
		writeJSON(w, http.StatusOK, sess)
	case "user":
		failMsg, _ := f.begin("user")
		if failMsg != "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": failMsg})
			return
		}
		f.mu.Lock()
		u, ok := f.Users[bearer(r)]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, u)
	case "logout":
		failMsg, _ := f.begin("logout")
		if failMsg != "" {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"msg": failMsg})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"msg": "not found"})
	}
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
