package memory

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fyrsmithlabs/gitmem/internal/vectorstore"
)

var (
	// ErrInvalidNamespace is returned for a namespace outside the configured set.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidQuery is returned for a search with an out-of-range k or floor.
	ErrInvalidQuery = errors.New("invalid search request")
)

// Search defaults, applied when the request leaves them unset.
const (
	DefaultK             = 5
	DefaultMinSimilarity = 0.5
)

// Memory is one captured memory. Summary and Content are always redacted.
type Memory = vectorstore.Memory

// Result pairs a memory with its similarity to the query, in [0, 1].
type Result struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
}

// CaptureRequest is the input to Capture.
type CaptureRequest struct {
	Namespace string   `json:"namespace"`
	Summary   string   `json:"summary"`
	Content   string   `json:"content,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	FilePath  string   `json:"file_path,omitempty"`
}

// SearchRequest is the input to Search.
type SearchRequest struct {
	Query string `json:"query"`

	// Namespace restricts results. Empty searches every namespace.
	Namespace string `json:"namespace,omitempty"`

	// K caps the number of results. Zero means DefaultK.
	K int `json:"k,omitempty"`

	// MinSimilarity drops weaker results. Nil means DefaultMinSimilarity.
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
}

func (r SearchRequest) validate() error {
	if r.K < 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, r.K)
	}
	if f := r.MinSimilarity; f != nil && (math.IsNaN(*f) || *f < 0 || *f > 1) {
		return fmt.Errorf("%w: min_similarity must be within [0, 1], got %g", ErrInvalidQuery, *f)
	}
	return nil
}

// Stats describes the running engine.
type Stats struct {
	Memories   int      `json:"memories"`
	Backend    string   `json:"backend"`
	Dimension  int      `json:"dimension"`
	Model      string   `json:"model"`
	Namespaces []string `json:"namespaces"`
}

// NamespaceError names the rejected namespace and the allowed set. It
// matches ErrInvalidNamespace under errors.Is.
type NamespaceError struct {
	Namespace string
	Allowed   []string
}

func (e *NamespaceError) Error() string {
	return fmt.Sprintf("unknown namespace %q; must be one of: %s", e.Namespace, strings.Join(e.Allowed, ", "))
}

// Is reports whether target is ErrInvalidNamespace.
func (e *NamespaceError) Is(target error) bool {
	return target == ErrInvalidNamespace
}
