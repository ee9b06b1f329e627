// Package store owns transaction boundaries and write guards for the
// persistence gateway.
//
// Repos in internal/data/repos are table-level; commands compose them inside a
// TxRunner unit of work so that a primary entity and its dependent records
// become visible together or not at all.
package store
