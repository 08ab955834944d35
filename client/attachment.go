package client

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"declarations/models"
)

// MaxAttachmentBytes is the largest file AttachmentFromFile accepts.
const MaxAttachmentBytes = 5 << 20

// AttachmentFromFile reads a file into a data URL attachment.
func AttachmentFromFile(path string) (models.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	if info.IsDir() {
		return models.Attachment{}, fmt.Errorf("failed to read attachment: %s is a directory", path)
	}
	if info.Size() > MaxAttachmentBytes {
		return models.Attachment{}, fmt.Errorf("attachment %s is %d bytes, the limit is %d", path, info.Size(), MaxAttachmentBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	return models.Attachment{
		Name:        filepath.Base(path),
		ContentType: contentType,
		URL:         "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}
