// ABOUTME: Encodes sticker media references into item payloads and back
// ABOUTME: Encrypted stickers keep their decryption keys so echoes stay viewable

package matrix

import (
	"encoding/json"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// encryptedStickerPrefix tags payloads holding a JSON EncryptedFileInfo.
// Any other payload is a plain mxc:// URI.
const encryptedStickerPrefix = "matrix-encrypted-file:"

// stickerItem returns the identity and payload of a received sticker. Both are
// empty when the event carries no media.
func stickerItem(content *event.MessageEventContent) (uniqueID, payloadRef string, err error) {
	if content.File != nil && content.File.URL != "" {
		data, err := json.Marshal(content.File)
		if err != nil {
			return "", "", fmt.Errorf("encoding encrypted sticker: %w", err)
		}
		return string(content.File.URL), encryptedStickerPrefix + string(data), nil
	}
	if content.URL != "" {
		return string(content.URL), string(content.URL), nil
	}
	return "", "", nil
}

// stickerContent rebuilds sticker content from a stored payload.
func stickerContent(payloadRef, body string) (*event.MessageEventContent, error) {
	content := &event.MessageEventContent{Body: body}

	raw, encrypted := strings.CutPrefix(payloadRef, encryptedStickerPrefix)
	if !encrypted {
		content.URL = id.ContentURIString(payloadRef)
		return content, nil
	}

	var file event.EncryptedFileInfo
	if err := json.Unmarshal([]byte(raw), &file); err != nil {
		return nil, fmt.Errorf("decoding encrypted sticker: %w", err)
	}
	content.File = &file
	return content, nil
}
