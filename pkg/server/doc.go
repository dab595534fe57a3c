// Package server runs the wsrooms listener.
//
// Each accepted socket gets one goroutine that performs the upgrade
// handshake, registers the connection, and then reads frames until the
// client closes, breaks a framing rule, or the server shuts down. Frames
// from one connection are handled strictly in order; different
// connections run concurrently and share the registry and room manager.
//
// Example usage:
//
//	srv := server.New(cfg, logger)
//	go srv.ListenAndServe(ctx)
//	...
//	srv.Shutdown(shutdownCtx)
package server
