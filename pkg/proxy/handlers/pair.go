package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/relay/pkg/pairing"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/cookie"
)

// DefaultPairBodyBytes bounds a pairing request body when none is configured.
const DefaultPairBodyBytes = 64 << 10

// Pairer runs the pairing handshake. *pairing.Pairer implements it.
type Pairer interface {
	Pair(ctx context.Context, sid string, req pairing.Request) (*pairing.Response, error)
}

// PairHandler serves POST /mte/pair.
type PairHandler struct {
	pairer       Pairer
	maxBodyBytes int64
}

// NewPairHandler creates a handler pairing through p. maxBodyBytes <= 0
// means DefaultPairBodyBytes.
func NewPairHandler(p Pairer, maxBodyBytes int64) *PairHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultPairBodyBytes
	}
	return &PairHandler{pairer: p, maxBodyBytes: maxBodyBytes}
}

// ServeHTTP implements http.Handler. The session must already be bound by
// the cookie middleware; a first request that only just received its
// cookie is refused, and the client retries with it.
func (h *PairHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sid, ok := cookie.SessionID(r.Context())
	if !ok {
		proxy.WriteError(w, r, &types.AuthError{})
		return
	}

	req, err := h.decode(w, r)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}

	resp, err := h.pairer.Pair(r.Context(), sid, req)
	if err != nil {
		proxy.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PairHandler) decode(w http.ResponseWriter, r *http.Request) (pairing.Request, error) {
	var req pairing.Request
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return req, err
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		return req, &types.HandshakeError{
			Code: http.StatusBadRequest,
			Err:  fmt.Errorf("%w: %w", pairing.ErrInvalidRequest, err),
		}
	}
	return req, nil
}
