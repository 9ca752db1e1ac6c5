package proxy

import (
	"mime"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
)

var multipartFormData = contenttype.NewMediaType("multipart/form-data")

// textSubtypes are the subtype families decoded as text. Every type/text
// media type is text as well.
var textSubtypes = []string{
	"json",
	"xml",
	"javascript",
	"ecmascript",
	"x-www-form-urlencoded",
}

// IsText reports whether a payload of the given content type is decoded
// as text. Anything unparsable or outside the allow-list is binary.
func IsText(contentType string) bool {
	if contentType == "" {
		return false
	}
	return isTextMediaType(contenttype.NewMediaType(contentType))
}

func isTextMediaType(mt contenttype.MediaType) bool {
	if mt.Type == "" {
		return false
	}
	if mt.Type == "text" {
		return true
	}
	for _, family := range textSubtypes {
		if strings.Contains(mt.Subtype, family) {
			return true
		}
	}
	return false
}

// multipartBoundary returns the boundary of a multipart/form-data request.
// ok is false for every other request. contenttype lowercases parameter
// values, so the case-sensitive boundary comes from the raw header.
func multipartBoundary(r *http.Request) (boundary string, ok bool) {
	raw := r.Header.Get("Content-Type")
	if raw == "" {
		return "", false
	}
	mt, err := contenttype.GetMediaType(r)
	if err != nil || !mt.Matches(multipartFormData) {
		return "", false
	}
	_, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", false
	}
	boundary = params["boundary"]
	return boundary, boundary != ""
}
