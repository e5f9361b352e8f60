package admin

import (
	"net/http"

	"github.com/getmockd/wshub/pkg/httputil"
)

// handleGetClientTags handles GET /clients/{id}/tags.
func (a *API) handleGetClientTags(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireConn(w, id) {
		return
	}
	tags := a.reg.TagsOf(id)
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags, Count: len(tags)})
}

// handleClearClientTags handles DELETE /clients/{id}/tags.
func (a *API) handleClearClientTags(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.reg.ClearTags(id); err != nil {
		writeRegistryError(w, err, a.log, "clear tags", "id", id)
		return
	}
	httputil.WriteNoContent(w)
}

// handleAddTag handles POST /clients/{id}/tags/{tag}.
func (a *API) handleAddTag(w http.ResponseWriter, r *http.Request) {
	id, tag := r.PathValue("id"), r.PathValue("tag")
	if err := a.reg.Tag(id, tag); err != nil {
		writeRegistryError(w, err, a.log, "tag", "id", id, "tag", tag)
		return
	}
	httputil.WriteNoContent(w)
}

// handleRemoveTag handles DELETE /clients/{id}/tags/{tag}.
func (a *API) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	id, tag := r.PathValue("id"), r.PathValue("tag")
	if err := a.reg.Untag(id, tag); err != nil {
		writeRegistryError(w, err, a.log, "untag", "id", id, "tag", tag)
		return
	}
	httputil.WriteNoContent(w)
}

// handleListTags handles GET /tags.
func (a *API) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags := a.reg.AllTags()
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags, Count: len(tags)})
}

// handleTagClients handles GET /tags/{tag}/clients.
func (a *API) handleTagClients(w http.ResponseWriter, r *http.Request) {
	ids := a.reg.ClientsWithTag(r.PathValue("tag"))
	writeJSON(w, http.StatusOK, ClientListResponse{Clients: ids, Count: len(ids)})
}

// handleTagCount handles GET /tags/{tag}/count.
func (a *API) handleTagCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CountResponse{Count: a.reg.TagCount(r.PathValue("tag"))})
}

// handleSendToTag handles POST /tags/{tag}/send.
func (a *API) handleSendToTag(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.readBody(w, r)
	if !ok {
		return
	}
	n := a.reg.SendToTag(r.Context(), r.PathValue("tag"), payload, r.URL.Query().Get("route"))
	writeJSON(w, http.StatusOK, SendResponse{Sent: n})
}

// handleExpressionClients handles GET /expression/clients.
func (a *API) handleExpressionClients(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("expr")
	ids, err := a.reg.ClientsByTagExpression(expr)
	if err != nil {
		writeRegistryError(w, err, a.log, "tag expression", "expr", expr)
		return
	}
	writeJSON(w, http.StatusOK, ClientListResponse{Clients: ids, Count: len(ids)})
}

// handleSendToExpression handles POST /expression/send.
func (a *API) handleSendToExpression(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.readBody(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	n, err := a.reg.SendToTagExpression(r.Context(), q.Get("expr"), payload, q.Get("route"))
	if err != nil {
		writeRegistryError(w, err, a.log, "send to tag expression", "expr", q.Get("expr"))
		return
	}
	writeJSON(w, http.StatusOK, SendResponse{Sent: n})
}
