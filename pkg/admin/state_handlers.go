package admin

import (
	"net/http"
	"time"

	"github.com/getmockd/wshub/pkg/httputil"
	"github.com/getmockd/wshub/pkg/registry"
)

// handleEnablePing handles POST /clients/{id}/ping?interval=, in
// milliseconds or a duration. Without an interval a single probe is sent.
func (a *API) handleEnablePing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	interval, ok := parseDuration(r.URL.Query().Get("interval"), time.Millisecond)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_interval", "interval must be a non-negative duration or number of milliseconds")
		return
	}
	if err := a.reg.EnablePing(id, interval); err != nil {
		writeRegistryError(w, err, a.log, "enable ping", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleDisablePing handles DELETE /clients/{id}/ping.
func (a *API) handleDisablePing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.reg.DisablePing(id); err != nil {
		writeRegistryError(w, err, a.log, "disable ping", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleGetPing handles GET /clients/{id}/ping.
func (a *API) handleGetPing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireConn(w, id) {
		return
	}
	rtt := a.reg.PingTime(id)
	writeJSON(w, http.StatusOK, PingResponse{
		Latency:   rtt.String(),
		LatencyMs: float64(rtt) / float64(time.Millisecond),
	})
}

// handleEnableQueue handles POST /clients/{id}/queue?maxEntries=&maxAge=.
// maxAge is in seconds or a duration.
func (a *API) handleEnableQueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	maxEntries := 0
	if v := q.Get("maxEntries"); v != "" {
		n, ok := parseNonNegativeInt(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_max_entries", "maxEntries must be a non-negative integer")
			return
		}
		maxEntries = n
	}
	maxAge, ok := parseDuration(q.Get("maxAge"), time.Second)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_max_age", "maxAge must be a non-negative duration or number of seconds")
		return
	}

	if err := a.reg.EnableQueueCounter(id, maxEntries, maxAge); err != nil {
		writeRegistryError(w, err, a.log, "enable queue counter", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleDisableQueue handles DELETE /clients/{id}/queue.
func (a *API) handleDisableQueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.reg.DisableQueueCounter(id); err != nil {
		writeRegistryError(w, err, a.log, "disable queue counter", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleGetQueue handles GET /clients/{id}/queue.
func (a *API) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireConn(w, id) {
		return
	}
	msgs := a.reg.MessageQueue(id)
	if msgs == nil {
		msgs = []registry.QueuedMessage{}
	}
	writeJSON(w, http.StatusOK, QueueResponse{Messages: msgs, Count: len(msgs)})
}

// handleGetQueueCounter handles GET /clients/{id}/queue/counter.
func (a *API) handleGetQueueCounter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireConn(w, id) {
		return
	}
	writeJSON(w, http.StatusOK, CounterResponse{Counter: a.reg.MessageCounter(id)})
}

// handleClearQueue handles DELETE /clients/{id}/queue/messages.
func (a *API) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.reg.ClearMessageQueue(id); err != nil {
		writeRegistryError(w, err, a.log, "clear message queue", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleActivateGhost handles POST /clients/{id}/ghost.
func (a *API) handleActivateGhost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.reg.ActivateGhost(id); err != nil {
		writeRegistryError(w, err, a.log, "activate ghost", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleReleaseGhost handles DELETE /clients/{id}/ghost.
func (a *API) handleReleaseGhost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.reg.ReleaseGhost(r.Context(), id); err != nil {
		writeRegistryError(w, err, a.log, "release ghost", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleGetGhost handles GET /clients/{id}/ghost.
func (a *API) handleGetGhost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireConn(w, id) {
		return
	}
	writeJSON(w, http.StatusOK, GhostResponse{Ghost: a.reg.IsGhost(id)})
}
