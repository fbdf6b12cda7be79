// Package sqlstore persists users and refresh-token records in a SQL
// database through database/sql.
//
// Two dialects are supported: PostgreSQL through the pgx stdlib driver and
// SQLite through mattn/go-sqlite3. Queries are written once with $N
// placeholders whose first appearances are in ascending order, which both
// drivers bind positionally. Timestamps are stored as BIGINT: seconds for
// user rows and milliseconds for refresh-token rows.
//
// Single-use redemption is a conditional UPDATE ... RETURNING guarded by
// revoked = FALSE, so the database serialises concurrent redemptions of one
// token.
package sqlstore
