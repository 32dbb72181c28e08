// Package id provides id generation for bookmark nodes, requests and
// connected sessions.
//
// Node and request ids are ULIDs:
//   - Lexicographic sortability: ids created later sort later
//   - Prefixed request ids: req_* stands out in logs
//   - Collision free under concurrent creates from several sessions
//
// Session ids are random UUIDs; they never leave the process except in log
// lines and on the saved acknowledgement.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SessionID identifies one connected websocket session
type SessionID string

// RequestID identifies an API request or a websocket update
type RequestID string

const (
	RequestPrefix = "req"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand. Ids created
// within the same millisecond stay ordered through monotonic entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewNodeID generates an id for a freshly created bookmark or folder. It has
// the signature of tree.IDGenerator.
func NewNodeID() string {
	return Default().GenerateString()
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.ParseStrict(id)
}

// Timestamp extracts the creation time from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
