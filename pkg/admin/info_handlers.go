package admin

import (
	"net/http"

	"github.com/getmockd/wshub/pkg/httputil"
)

// handleGetAllInfo handles GET /clients/{id}/info.
func (a *API) handleGetAllInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireConn(w, id) {
		return
	}
	info := a.reg.AllInfo(id)
	if info == nil {
		info = map[string]string{}
	}
	writeJSON(w, http.StatusOK, info)
}

// handleClearInfo handles DELETE /clients/{id}/info.
func (a *API) handleClearInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.reg.ClearInfo(id); err != nil {
		writeRegistryError(w, err, a.log, "clear info", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleInfoKeys handles GET /clients/{id}/info/keys.
func (a *API) handleInfoKeys(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireConn(w, id) {
		return
	}
	keys := a.reg.InfoKeys(id)
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, KeyListResponse{Keys: keys, Count: len(keys)})
}

// handleGetInfo handles GET /clients/{id}/info/{key}.
func (a *API) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	id, key := r.PathValue("id"), r.PathValue("key")
	if !a.requireConn(w, id) {
		return
	}
	value, ok := a.reg.GetInfo(id, key)
	if !ok {
		writeError(w, http.StatusNotFound, "key_not_found", ErrMsgKeyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Key: key, Value: value})
}

// handleSetInfo handles PUT /clients/{id}/info/{key}. The body is the value.
func (a *API) handleSetInfo(w http.ResponseWriter, r *http.Request) {
	id, key := r.PathValue("id"), r.PathValue("key")
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	if err := a.reg.SetInfo(id, key, string(body)); err != nil {
		writeRegistryError(w, err, a.log, "set info", "id", id, "key", key)
		return
	}
	httputil.WriteNoContent(w)
}

// handleDeleteInfo handles DELETE /clients/{id}/info/{key}.
func (a *API) handleDeleteInfo(w http.ResponseWriter, r *http.Request) {
	id, key := r.PathValue("id"), r.PathValue("key")
	if !a.requireConn(w, id) {
		return
	}
	if !a.reg.DeleteInfo(id, key) {
		writeError(w, http.StatusNotFound, "key_not_found", ErrMsgKeyNotFound)
		return
	}
	httputil.WriteNoContent(w)
}

// handleSearchInfo handles GET /info/search.
func (a *API) handleSearchInfo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	op := q.Get("op")
	if op == "" {
		op = "eq"
	}
	ids, err := a.reg.SearchInfo(q.Get("key"), op, q.Get("value"), q.Get("route"))
	if err != nil {
		writeRegistryError(w, err, a.log, "search info", "key", q.Get("key"), "op", op)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ClientListResponse{Clients: ids, Count: len(ids)})
}
