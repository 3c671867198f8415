package hostdata

import (
	"encoding/json"
	"fmt"
)

// payloadCandidate is one decoding attempt: skip offset leading bytes,
// then optionally strip a single 0x80 sentinel byte. The host's store
// serializes values with a small undocumented header; the candidate list
// is ordered data so new format variants are additive.
type payloadCandidate struct {
	offset        int
	stripSentinel bool
}

var payloadCandidates = []payloadCandidate{
	{offset: 9, stripSentinel: true},
	{offset: 10, stripSentinel: true},
	{offset: 8, stripSentinel: true},
	{offset: 0, stripSentinel: true},
}

// DecodePayload heuristically decodes a cached store value: the first
// candidate whose remainder looks like and parses as JSON wins.
func DecodePayload(blob []byte) (any, error) {
	for _, c := range payloadCandidates {
		if c.offset > len(blob) {
			continue
		}
		payload := blob[c.offset:]
		if c.stripSentinel && len(payload) > 0 && payload[0] == 0x80 {
			payload = payload[1:]
		}
		if len(payload) == 0 || (payload[0] != '{' && payload[0] != '[') {
			continue
		}

		var decoded any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			continue
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: unable to decode cache payload", ErrCacheUnavailable)
}
