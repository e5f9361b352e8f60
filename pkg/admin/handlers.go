package admin

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/getmockd/wshub/pkg/httputil"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, errCode, message string) {
	httputil.WriteError(w, status, errCode, message)
}

// readBody reads the request body up to the configured limit.
func (a *API) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodySize))
	if err != nil {
		writeBodyError(w, err, a.log)
		return nil, false
	}
	return body, true
}

// requireConn writes 404 and returns false when id is not live.
func (a *API) requireConn(w http.ResponseWriter, id string) bool {
	if _, ok := a.reg.Lookup(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrMsgNotFound)
		return false
	}
	return true
}

// handleHealth handles GET /health.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: a.Uptime(),
	})
}

// handleGetStatus handles GET /status.
func (a *API) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:    a.version,
		Uptime:     a.Uptime(),
		StartedAt:  a.startTime.UTC().Truncate(time.Second),
		Registry:   a.reg.Stats(),
		GlobalKeys: a.global.Len(),
	})
}

// handleMetrics handles GET /metrics.
func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.metricsRegistry == nil {
		writeError(w, http.StatusNotFound, "metrics_disabled", ErrMsgMetricsDisabled)
		return
	}
	a.hub.CollectRuntime()
	a.metricsRegistry.Handler().ServeHTTP(w, r)
}

// handleListClients handles GET /clients.
func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	ids := a.reg.ListClients(r.URL.Query().Get("route"))
	writeJSON(w, http.StatusOK, ClientListResponse{Clients: ids, Count: len(ids)})
}

// handleCountClients handles GET /clients/count.
func (a *API) handleCountClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CountResponse{Count: a.reg.ClientsCount(r.URL.Query().Get("route"))})
}

// handleDescribeClient handles GET /clients/{id}.
func (a *API) handleDescribeClient(w http.ResponseWriter, r *http.Request) {
	info, err := a.reg.Describe(r.PathValue("id"))
	if err != nil {
		writeRegistryError(w, err, a.log, "describe connection", "id", r.PathValue("id"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleCloseClient handles DELETE /clients/{id}.
func (a *API) handleCloseClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reason := r.URL.Query().Get("reason")
	// A client hanging up must not cut the beforeClose wait short.
	if !a.reg.Close(context.WithoutCancel(r.Context()), id, reason) {
		writeError(w, http.StatusNotFound, "not_found", ErrMsgNotFound)
		return
	}
	httputil.WriteNoContent(w)
}

// handleSend handles POST /clients/{id}/send.
func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	payload, ok := a.readBody(w, r)
	if !ok {
		return
	}
	if err := a.reg.Send(r.Context(), id, payload, r.URL.Query().Get("route")); err != nil {
		writeRegistryError(w, err, a.log, "send", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, SendResponse{Sent: 1})
}

// handleBroadcast handles POST /broadcast.
func (a *API) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.readBody(w, r)
	if !ok {
		return
	}
	n := a.reg.SendAll(r.Context(), payload, r.URL.Query().Get("route"))
	writeJSON(w, http.StatusOK, SendResponse{Sent: n})
}

// handleRename handles POST /clients/{id}/rename/{newId}.
func (a *API) handleRename(w http.ResponseWriter, r *http.Request) {
	from, to := r.PathValue("id"), r.PathValue("newId")
	if err := a.reg.Rename(from, to); err != nil {
		writeRegistryError(w, err, a.log, "rename", "from", from, "to", to)
		return
	}
	writeJSON(w, http.StatusOK, RenameResponse{From: from, To: to})
}

// handleListRoutes handles GET /routes.
func (a *API) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := a.reg.ListRoutes()
	writeJSON(w, http.StatusOK, RouteListResponse{Routes: routes, Count: len(routes)})
}
