// Package session defines where per-session graph state lives between turns.
package session

import (
	"github.com/potrek505/TEG-project/pkg/graph"
)

// DefaultID is used when a request carries no session id.
const DefaultID = "default"

// Store keeps one graph.State per session id. Implementations must be safe
// for concurrent use; they do not serialize read-modify-write cycles.
type Store interface {
	Get(id string) (graph.State, bool)
	Put(id string, state graph.State)
	Delete(id string)
	IDs() []string
}
