package backup

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/givlyn/backupd/internal/githubsdk"
)

// ComputeContentID hashes b the way git hashes a blob object:
// sha1("blob " + len(b) + "\x00" + b)
func ComputeContentID(b []byte) ContentID {
	h := sha1.New()
	h.Write([]byte("blob "))
	h.Write([]byte(strconv.Itoa(len(b))))
	h.Write([]byte{0})
	h.Write(b)
	return ContentID(hex.EncodeToString(h.Sum(nil)))
}

// DecodeContent turns a blob API payload back into the bytes it stands for
func DecodeContent(payload, encoding string) ([]byte, error) {
	switch encoding {
	case githubsdk.EncodingUTF8, "":
		return []byte(payload), nil
	case githubsdk.EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
