// Package identity is the record store adapter for LinkUp accounts.
//
// PostgreSQL is the system of record. Every store implementation reports
// failures as *StoreError so callers can branch on a closed set of faults
// without knowing which driver produced them.
package identity
