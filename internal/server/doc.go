// Package server hosts the Fiber HTTP service: request ID and method guards,
// Host and /<hub>/ prefix routing against the HubRegistry built from config,
// and the shared upstream http.Client. Proxy handlers and diagnostics routes
// are injected by the caller so this package stays free of cache internals.
package server
