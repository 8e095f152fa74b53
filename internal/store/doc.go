// Package store persists the resources served by the resource API.
//
// Two backends implement Store: an in-process map and a Redis hash. New
// picks one from the configuration.
package store
