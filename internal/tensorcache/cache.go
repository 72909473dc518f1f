package tensorcache

import (
	"context"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
)

// Cache stores precomputed reference embeddings by entry name. Entries are
// replaced wholesale, never updated in place.
type Cache struct {
	store  Store
	dim    int
	logger *zap.Logger
}

// New wraps store. When dim is positive every saved or loaded vector must
// have that many components.
func New(store Store, dim int, logger *zap.Logger) *Cache {
	return &Cache{
		store:  store,
		dim:    dim,
		logger: logger.Named("tensor_cache"),
	}
}

// Save writes v under name, overwriting an existing entry.
func (c *Cache) Save(ctx context.Context, name string, v embedding.Vector) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if c.dim > 0 && v.Dim() != c.dim {
		return domain.ErrDimensionMismatch.WithMessage("entry %q has %d components, cache holds %d", name, v.Dim(), c.dim)
	}
	if err := c.store.Put(ctx, name, v); err != nil {
		return err
	}
	c.logger.Debug("cache entry saved", zap.String("name", name), zap.Int("dimension", v.Dim()))
	return nil
}

// Load reads the entry stored under name.
func (c *Cache) Load(ctx context.Context, name string) (embedding.Vector, error) {
	if err := ValidateName(name); err != nil {
		return embedding.Vector{}, err
	}
	v, err := c.store.Get(ctx, name)
	if err != nil {
		return embedding.Vector{}, err
	}
	if c.dim > 0 && v.Dim() != c.dim {
		return embedding.Vector{}, domain.ErrCorruptArtifact.WithMessage("entry %q has %d components, expected %d", name, v.Dim(), c.dim)
	}
	return v, nil
}

// EntryName derives an entry name from an image path: the base name without
// its extension.
func EntryName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidateName rejects names that could escape the cache namespace or break
// out of a quoted header parameter.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return domain.ErrInvalidEntryName.WithMessage("name %q", name)
	case strings.ContainsAny(name, `/\`):
		return domain.ErrInvalidEntryName.WithMessage("name %q contains a path separator", name)
	case strings.ContainsAny(name, `";`):
		return domain.ErrInvalidEntryName.WithMessage("name %q contains a quote or separator", name)
	}
	for _, r := range name {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return domain.ErrInvalidEntryName.WithMessage("name %q contains a control or invalid character", name)
		}
	}
	return nil
}
