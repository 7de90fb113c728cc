package subagent

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nexuscore/agentrt/internal/rterr"
)

// writeEnvelope frames env as a 4-byte big-endian length prefix followed by
// its JSON encoding, matching internal/broker's wire framing.
func writeEnvelope(w io.Writer, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if len(data) > MaxEnvelopeBytes {
		return rterr.New(rterr.KindMessageTooLarge, fmt.Sprintf("envelope %d bytes exceeds cap %d", len(data), MaxEnvelopeBytes))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readEnvelope reads one length-prefixed JSON envelope from r.
func readEnvelope(r *bufio.Reader) (envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxEnvelopeBytes {
		return envelope{}, rterr.New(rterr.KindMessageTooLarge, fmt.Sprintf("incoming envelope %d bytes exceeds cap %d", n, MaxEnvelopeBytes))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return envelope{}, rterr.Wrap(rterr.KindFramingError, "decode envelope", err)
	}
	return env, nil
}
