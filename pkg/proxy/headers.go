package proxy

const (
	// HeaderRelayID carries the relay instance id on every response.
	HeaderRelayID = "x-mte-id"

	// HeaderEncodedContentType carries the encoded content type of an
	// encoded body, in both directions. The standard Content-Type of an
	// encoded message is always application/octet-stream.
	HeaderEncodedContentType = "x-mte-cth"

	// ContentTypeEncoded is the Content-Type of every encoded response.
	ContentTypeEncoded = "application/octet-stream"
)
