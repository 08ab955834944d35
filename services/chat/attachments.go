package chat

import (
	"encoding/base64"
	"fmt"
	"strings"

	"declarations/models"
)

type attachmentKind int

const (
	attachmentUnsupported attachmentKind = iota
	attachmentImage
	attachmentText
)

// imageMediaTypes are the image formats both providers accept inline.
var imageMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type attachmentContent struct {
	kind      attachmentKind
	mediaType string
	// data is the base64 payload of an inline image.
	data string
	// text is the decoded body of a text attachment, or a note for
	// attachments that cannot be passed on.
	text string
}

// readAttachment classifies an attachment for conversion into provider parts.
// Receipts arrive as images; text files are inlined; anything else becomes a
// short note so the model knows the user sent it.
func readAttachment(att models.Attachment) attachmentContent {
	mediaType, payload, isData := parseDataURL(att.URL)
	if att.ContentType != "" {
		mediaType = att.ContentType
	}
	mediaType = strings.ToLower(mediaType)
	name := att.Name
	if name == "" {
		name = "file"
	}

	switch {
	case imageMediaTypes[mediaType] && isData:
		return attachmentContent{kind: attachmentImage, mediaType: mediaType, data: payload}
	case imageMediaTypes[mediaType]:
		return attachmentContent{kind: attachmentImage, mediaType: mediaType}
	case strings.HasPrefix(mediaType, "text/") && isData:
		body, err := base64.StdEncoding.DecodeString(payload)
		if err == nil {
			return attachmentContent{kind: attachmentText, mediaType: mediaType, text: fmt.Sprintf("Attachment %s:\n%s", name, body)}
		}
	}

	return attachmentContent{
		kind:      attachmentUnsupported,
		mediaType: mediaType,
		text:      fmt.Sprintf("The user attached %s (%s), which cannot be shown.", name, mediaType),
	}
}

// parseDataURL splits "data:<media type>;base64,<payload>".
func parseDataURL(url string) (mediaType, payload string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", "", false
	}
	return mediaType, payload, true
}
