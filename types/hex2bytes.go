package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is raw bytes rendered as a 0x-prefixed hex string over the
// wire, used for the outbound block record's txdataHash (spec §6) —
// the one field that is genuinely bytes rather than a field element.
type HexBytes []byte

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

func (hb HexBytes) MarshalJSON() ([]byte, error) {
	s := "0x" + hex.EncodeToString(hb)
	jbz := make([]byte, len(s)+2)
	jbz[0] = '"'
	copy(jbz[1:], s)
	jbz[len(jbz)-1] = '"'
	return jbz, nil
}

func (hb *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid hex string: %s", data)
	}
	str := strings.TrimPrefix(string(data[1:len(data)-1]), "0x")
	bz, err := hex.DecodeString(str)
	if err != nil {
		return err
	}
	*hb = bz
	return nil
}
