package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// PayloadKind tags a MimePayload.
type PayloadKind int

const (
	LeafPayload PayloadKind = iota
	MultipartPayload
)

// MimePayload is the part of a message needed to find its body. Leaves
// carry base64url Data; multipart nodes carry ordered Parts.
type MimePayload struct {
	Kind     PayloadKind
	MimeType string
	Data     string
	Parts    []*MimePayload
}

// PayloadFromMessagePart converts the API representation of a message part.
func PayloadFromMessagePart(part *gmail.MessagePart) *MimePayload {
	if part == nil {
		return nil
	}
	p := &MimePayload{MimeType: part.MimeType}
	if strings.HasPrefix(mediaType(part.MimeType), "multipart/") {
		p.Kind = MultipartPayload
		p.Parts = make([]*MimePayload, 0, len(part.Parts))
		for _, child := range part.Parts {
			if c := PayloadFromMessagePart(child); c != nil {
				p.Parts = append(p.Parts, c)
			}
		}
		return p
	}
	p.Kind = LeafPayload
	if part.Body != nil {
		p.Data = part.Body.Data
	}
	return p
}

type origin int

const (
	originNone origin = iota
	originPlain
	originHTML
)

// ExtractBody returns the readable body of p, preferring text/plain over
// text/html. Inside a multipart node the first child yielding plain text
// wins; otherwise the first non-empty HTML result is used. It returns ""
// when nothing usable is found.
func ExtractBody(p *MimePayload) string {
	body, _ := extract(p)
	return body
}

func extract(p *MimePayload) (string, origin) {
	if p == nil {
		return "", originNone
	}

	mt := mediaType(p.MimeType)
	switch p.Kind {
	case LeafPayload:
		if p.Data == "" {
			return "", originNone
		}
		var o origin
		switch mt {
		case "text/plain":
			o = originPlain
		case "text/html":
			o = originHTML
		default:
			return "", originNone
		}
		text, ok := decodeData(p.Data)
		if !ok || text == "" {
			return "", originNone
		}
		return text, o

	case MultipartPayload:
		if !strings.HasPrefix(mt, "multipart/") {
			return "", originNone
		}
		var html string
		for _, child := range p.Parts {
			text, o := extract(child)
			switch {
			case o == originPlain:
				return text, originPlain
			case o == originHTML && html == "":
				html = text
			}
		}
		if html != "" {
			return html, originHTML
		}
	}
	return "", originNone
}

// mediaType lowercases a MIME type and strips any parameters.
func mediaType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// decodeData decodes Gmail body data. Gmail sends base64url, usually
// unpadded; some proxies re-encode with the standard alphabet.
func decodeData(data string) (string, bool) {
	encodings := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	for _, enc := range encodings {
		if b, err := enc.DecodeString(data); err == nil {
			return strings.ToValidUTF8(string(b), "\uFFFD"), true
		}
	}
	return "", false
}
