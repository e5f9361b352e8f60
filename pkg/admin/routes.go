// Route registration for the Admin API.

package admin

import (
	"net/http"
)

// registerRoutes sets up all API routes.
func (a *API) registerRoutes(mux *http.ServeMux) {
	// Health check, status and metrics
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /status", a.handleGetStatus)
	mux.HandleFunc("GET /metrics", a.handleMetrics)

	// Connections
	mux.HandleFunc("GET /clients", a.handleListClients)
	mux.HandleFunc("GET /clients/count", a.handleCountClients)
	mux.HandleFunc("GET /clients/{id}", a.handleDescribeClient)
	mux.HandleFunc("DELETE /clients/{id}", a.handleCloseClient)
	mux.HandleFunc("POST /clients/{id}/send", a.handleSend)
	mux.HandleFunc("POST /clients/{id}/rename/{newId}", a.handleRename)
	mux.HandleFunc("GET /routes", a.handleListRoutes)
	mux.HandleFunc("POST /broadcast", a.handleBroadcast)

	// Tags
	mux.HandleFunc("GET /clients/{id}/tags", a.handleGetClientTags)
	mux.HandleFunc("DELETE /clients/{id}/tags", a.handleClearClientTags)
	mux.HandleFunc("POST /clients/{id}/tags/{tag}", a.handleAddTag)
	mux.HandleFunc("DELETE /clients/{id}/tags/{tag}", a.handleRemoveTag)
	mux.HandleFunc("GET /tags", a.handleListTags)
	mux.HandleFunc("GET /tags/{tag}/clients", a.handleTagClients)
	mux.HandleFunc("GET /tags/{tag}/count", a.handleTagCount)
	mux.HandleFunc("POST /tags/{tag}/send", a.handleSendToTag)
	mux.HandleFunc("GET /expression/clients", a.handleExpressionClients)
	mux.HandleFunc("POST /expression/send", a.handleSendToExpression)

	// Per-connection stored information
	mux.HandleFunc("GET /clients/{id}/info", a.handleGetAllInfo)
	mux.HandleFunc("DELETE /clients/{id}/info", a.handleClearInfo)
	mux.HandleFunc("GET /clients/{id}/info/keys", a.handleInfoKeys)
	mux.HandleFunc("GET /clients/{id}/info/{key}", a.handleGetInfo)
	mux.HandleFunc("PUT /clients/{id}/info/{key}", a.handleSetInfo)
	mux.HandleFunc("DELETE /clients/{id}/info/{key}", a.handleDeleteInfo)
	mux.HandleFunc("GET /info/search", a.handleSearchInfo)

	// Global key/value store
	mux.HandleFunc("GET /global/{key}", a.handleGetGlobal)
	mux.HandleFunc("PUT /global/{key}", a.handleSetGlobal)
	mux.HandleFunc("GET /global/{key}/exists", a.handleGlobalExists)
	mux.HandleFunc("DELETE /global/{key}", a.handleDeleteGlobal)

	// Keep-alive probes
	mux.HandleFunc("POST /clients/{id}/ping", a.handleEnablePing)
	mux.HandleFunc("DELETE /clients/{id}/ping", a.handleDisablePing)
	mux.HandleFunc("GET /clients/{id}/ping", a.handleGetPing)

	// Queue counter
	mux.HandleFunc("POST /clients/{id}/queue", a.handleEnableQueue)
	mux.HandleFunc("DELETE /clients/{id}/queue", a.handleDisableQueue)
	mux.HandleFunc("GET /clients/{id}/queue", a.handleGetQueue)
	mux.HandleFunc("GET /clients/{id}/queue/counter", a.handleGetQueueCounter)
	mux.HandleFunc("DELETE /clients/{id}/queue/messages", a.handleClearQueue)

	// Ghost mode
	mux.HandleFunc("POST /clients/{id}/ghost", a.handleActivateGhost)
	mux.HandleFunc("DELETE /clients/{id}/ghost", a.handleReleaseGhost)
	mux.HandleFunc("GET /clients/{id}/ghost", a.handleGetGhost)
}
