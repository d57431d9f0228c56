package statemachine

import (
	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/store"
)

// lookupIdempotent returns the cached Response for a client-minted
// idempotency key, if this key's command was already applied. The cache is
// written inside the same batch that applies the command (see finish), so a
// hit is always the response of a fully committed apply.
func (m *Machine) lookupIdempotent(key string) (Response, bool, error) {
	data, err := m.s.Get(store.FamilyIdempotency, store.EncodeIdempotencyKey(key))
	if err != nil {
		if code, ok := confluxerr.CodeOf(err); ok && code == confluxerr.CodeNotFound {
			return Response{}, false, nil
		}
		return Response{}, false, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "lookup idempotency key")
	}
	var resp Response
	if err := model.Decode(data, &resp); err != nil {
		return Response{}, false, confluxerr.Wrap(confluxerr.CodeCorruption, err, "decode cached response")
	}
	return resp, true, nil
}
