// Package admin serves a small JSON API for inspecting a delayed job table.
//
// Mount it anywhere:
//
//	mux.Handle("/delayed/", http.StripPrefix("/delayed", admin.NewHandler(store)))
//
// Routes:
//
//	GET  /health
//	GET  /jobs/stats
//	GET  /jobs/failed?limit=N
//	GET  /jobs/{id}
//	POST /jobs/{id}/retry
//
// The API does not authenticate requests; use WithMiddleware.
package admin
