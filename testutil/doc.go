// Package testutil provides shared test doubles, most importantly an
// in-memory implementation of the storage connector.
package testutil
