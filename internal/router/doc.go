// Package router provides HTTP request routing for mug.
//
// Routes are stored in a PathTrie keyed by path segment. A segment that
// starts with ':' is a parameter; an optional bracketed suffix constrains
// it with a regular expression that must match the whole segment:
//
//	/users/:id            any non-empty segment
//	/dev/:key[^\d+$]      digits only
//
// # Features
//
//   - Literal segments take precedence over parameters
//   - Parameter patterns compiled once and shared through PatternCache
//   - Per-route middleware composed as an onion, first registered outermost
//   - Replaceable not-found and method-not-allowed handlers
//   - Trailing and repeated slashes are ignored
//
// # Usage
//
//	r := router.New(router.WithLogger(logger))
//	if err := r.Get("/users/:id", showUser, authenticated); err != nil {
//	    return err
//	}
//	http.ListenAndServe(":8080", r)
//
// A Router is built once and then only read. Registering routes while the
// router is serving requests is not supported.
package router
