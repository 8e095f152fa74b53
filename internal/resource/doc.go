// Package resource serves the JSON resource API on a router.
//
// Every response uses the envelope {"ok": bool, "data": any}.
//
//	GET    /api/resource?id=ID
//	POST   /api/resource
//	GET    /api/resource/:id[^[A-Za-z0-9_-]+$]
//	DELETE /api/resource/:id[^[A-Za-z0-9_-]+$]
//	GET    /api/resources
package resource
