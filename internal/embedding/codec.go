package embedding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/example/face-verify/internal/domain"
)

// ArtifactExt is the file extension of serialized vectors.
const ArtifactExt = ".emb"

const (
	artifactVersion = 1
	headerSize      = 4 + 2 + 4
)

var artifactMagic = [4]byte{'F', 'V', 'E', 'C'}

// Encode serializes v as magic, version, dimension and little-endian float32
// components.
func Encode(v Vector) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+4*v.Dim()))
	buf.Write(artifactMagic[:])
	_ = binary.Write(buf, binary.LittleEndian, uint16(artifactVersion))
	_ = binary.Write(buf, binary.LittleEndian, uint32(v.Dim()))
	_ = binary.Write(buf, binary.LittleEndian, v.values)
	return buf.Bytes()
}

// Decode parses an artifact produced by Encode. When dim is positive the
// artifact must carry exactly that many components.
func Decode(data []byte, dim int) (Vector, error) {
	if len(data) < headerSize {
		return Vector{}, domain.ErrCorruptArtifact.WithMessage("artifact too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], artifactMagic[:]) {
		return Vector{}, domain.ErrCorruptArtifact.WithMessage("unrecognized artifact header")
	}
	if version := binary.LittleEndian.Uint16(data[4:6]); version != artifactVersion {
		return Vector{}, domain.ErrCorruptArtifact.WithMessage("unsupported artifact version %d", version)
	}
	n := int(binary.LittleEndian.Uint32(data[6:10]))
	if dim > 0 && n != dim {
		return Vector{}, domain.ErrCorruptArtifact.WithMessage("artifact has %d components, expected %d", n, dim)
	}
	body := data[headerSize:]
	if len(body) != 4*n {
		return Vector{}, domain.ErrCorruptArtifact.WithMessage("artifact body is %d bytes, expected %d", len(body), 4*n)
	}

	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
	}
	v := Vector{values: values}
	if !v.Finite() {
		return Vector{}, domain.ErrCorruptArtifact.WithError(fmt.Errorf("artifact contains non-finite values"))
	}
	return v, nil
}
