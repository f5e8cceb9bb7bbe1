// Package aggregates declares the write side of the worlds domain.
//
// A WorldAggregate is the only writer of world rows, module batches and the
// status ledger. Background runs address a world through a RunRef so a write
// from a superseded run is ignored rather than applied.
package aggregates
