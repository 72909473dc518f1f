package usecase

import "github.com/example/face-verify/internal/domain"

// Reference is the known side of a verification. It is one of
// ImageReference, CachedReference or StoredReference.
type Reference interface {
	kind() string
}

// ImageReference is a photograph to embed.
type ImageReference struct {
	Data []byte
}

// CachedReference is a serialized vector uploaded with the request.
type CachedReference struct {
	Data []byte
}

// StoredReference names an entry in the tensor cache.
type StoredReference struct {
	Name string
}

func (ImageReference) kind() string  { return domain.ReferenceImage }
func (CachedReference) kind() string { return domain.ReferenceCached }
func (StoredReference) kind() string { return domain.ReferenceStored }
