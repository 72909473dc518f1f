package handlers

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultMaxUploadSize bounds each uploaded file.
const DefaultMaxUploadSize int64 = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// maxFilesPerRequest is the largest number of files any route accepts.
const maxFilesPerRequest = 2

// parseForm parses the multipart body, capping the whole request so a
// client cannot stream more than the files any route could accept.
func (h *handler) parseForm(c *gin.Context) error {
	limit := h.maxUpload*maxFilesPerRequest + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errFileTooLarge.WithMessage("request body exceeds %d bytes", limit)
		}
		return errMissingFile.WithMessage("invalid multipart form: %v", err)
	}
	return nil
}

// readImage reads an image part, checking its size and media type.
func (h *handler) readImage(c *gin.Context, field string) ([]byte, error) {
	header, data, err := h.readFile(c, field)
	if err != nil {
		return nil, err
	}

	mediaType := partMediaType(header)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	if !allowedImageTypes[mediaType] {
		return nil, errUnsupportedMedia.WithMessage("%s has type %s", field, mediaType)
	}
	return data, nil
}

// readArtifact reads a serialized vector part; any media type is accepted.
func (h *handler) readArtifact(c *gin.Context, field string) ([]byte, error) {
	_, data, err := h.readFile(c, field)
	return data, err
}

func (h *handler) readFile(c *gin.Context, field string) (*multipart.FileHeader, []byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, nil, errMissingFile.WithMessage("%s", field)
	}
	if header.Size > h.maxUpload {
		return nil, nil, errFileTooLarge.WithMessage("%s is %d bytes, limit is %d", field, header.Size, h.maxUpload)
	}

	src, err := header.Open()
	if err != nil {
		return nil, nil, errMissingFile.WithMessage("unable to open %s", field)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUpload+1))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(data)) > h.maxUpload {
		return nil, nil, errFileTooLarge.WithMessage("%s exceeds %d bytes", field, h.maxUpload)
	}
	return header, data, nil
}

func partMediaType(header *multipart.FileHeader) string {
	value := header.Header.Get("Content-Type")
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return mediaType
}
