// Package testhelpers provides shared fixtures for ekaya-schema integration
// tests.
package testhelpers

import (
	"strings"

	"github.com/google/uuid"
)

// UniqueTableName returns a valid physical table name that will not collide
// with other tests sharing the container.
func UniqueTableName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return prefix + "_" + suffix
}
