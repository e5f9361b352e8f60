package admin

import (
	"net/http"
	"time"

	"github.com/getmockd/wshub/pkg/httputil"
)

// handleGetGlobal handles GET /global/{key}.
func (a *API) handleGetGlobal(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, ok := a.global.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "key_not_found", ErrMsgKeyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Key: key, Value: value})
}

// handleSetGlobal handles PUT /global/{key}?ttl=. The body is the value; ttl
// is in seconds or a duration, and a missing ttl stores it without expiry.
func (a *API) handleSetGlobal(w http.ResponseWriter, r *http.Request) {
	ttl, ok := parseDuration(r.URL.Query().Get("ttl"), time.Second)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_ttl", "ttl must be a non-negative duration or number of seconds")
		return
	}
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	a.global.Set(r.PathValue("key"), string(body), ttl)
	httputil.WriteNoContent(w)
}

// handleGlobalExists handles GET /global/{key}/exists.
func (a *API) handleGlobalExists(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	writeJSON(w, http.StatusOK, ExistsResponse{Key: key, Exists: a.global.Has(key)})
}

// handleDeleteGlobal handles DELETE /global/{key}.
func (a *API) handleDeleteGlobal(w http.ResponseWriter, r *http.Request) {
	if !a.global.Delete(r.PathValue("key")) {
		writeError(w, http.StatusNotFound, "key_not_found", ErrMsgKeyNotFound)
		return
	}
	httputil.WriteNoContent(w)
}
