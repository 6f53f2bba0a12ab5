// Package mysql provides the shared MySQL connection pool and schema
// migration runner used by the transfer-job store.
package mysql
