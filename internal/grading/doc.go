// Package grading turns a grade ledger into subject averages, weighted general averages,
// class rankings, per-subject class statistics and composed bulletin documents.
//
// Every function here is a pure transformation of in-memory records: nothing is persisted,
// no input slice is mutated and no I/O is performed. Values outside the 0-20 scale or
// non-positive coefficients are computed as given; validating the ledger is the job of the
// grading workflow that writes it.
package grading
