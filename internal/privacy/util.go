package privacy

import (
	"encoding/json"
	"fmt"
)

func marshalRecord(r AddressRecord) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("privacy: marshaling address record: %w", err)
	}
	return b, nil
}

func unmarshalRecord(b []byte) (AddressRecord, error) {
	var r AddressRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("privacy: decoding address record: %w", err)
	}
	return r, nil
}
