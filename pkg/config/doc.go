// Package config defines the wshub configuration file and loads it.
//
// Files are YAML (.yaml, .yml) or JSON (anything else). Values are decoded
// on top of Default(), so a file only needs the keys it changes:
//
//	websocket:
//	  listen: ":5000"
//	  routes: ["/chat/**"]
//	registry:
//	  pingTimeout: 5s
//
// Durations are written as Go duration strings ("5s", "1m30s").
package config
