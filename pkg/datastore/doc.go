// Package datastore is the data-access layer behind module operations.
//
// Repository exposes load, create, update and delete per entity (trips,
// tickets, vehicles, reports). MemoryStore implements it in memory; it
// validates entities with go-playground/validator struct tags and keeps
// reports in a bounded LRU cache.
//
// Missing entities fail with ErrNotFound. Entities that break a
// constraint fail with a *ValidationError, which matches ErrValidation
// under errors.Is.
package datastore
