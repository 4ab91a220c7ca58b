// Package objectkey generates storage keys for originals and derivative
// assets. Keys are sharded Git-style off the media ID so any single prefix
// stays small on listing-challenged backends.
package objectkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const shardLength = 2

// Source returns the originals-namespace key for an uploaded file.
// Layout: {shard}/{mediaID}/{sanitized file name}
func Source(mediaID uuid.UUID, fileName string) string {
	id := strings.ReplaceAll(mediaID.String(), "-", "")
	name := sanitize(fileName)
	if name == "" {
		name = "original"
	}
	return fmt.Sprintf("%s/%s/%s", id[:shardLength], id, name)
}

// DerivativePrefix returns a per-item, per-generation assets-namespace
// prefix. Each processing run gets a fresh generation so concurrent
// re-delivery overwrites the item's keys wholesale instead of interleaving
// outputs from two runs.
// Layout: {shard}/{mediaID}/{generation}
func DerivativePrefix(mediaID uuid.UUID) string {
	id := strings.ReplaceAll(mediaID.String(), "-", "")
	gen := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%s/%s", id[:shardLength], id, gen)
}

// Derivative joins a prefix with a derivative file name.
func Derivative(prefix, name string) string {
	return prefix + "/" + name
}

func sanitize(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(name)
}
