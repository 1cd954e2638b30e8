package keystore

import (
	"encoding/json"
	"fmt"
)

// encodeEntry is the value format shared by the networked backends.
func encodeEntry(info KeyInfo) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal key info: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (KeyInfo, error) {
	var ki KeyInfo
	if err := json.Unmarshal(data, &ki); err != nil {
		return KeyInfo{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if err := ki.Validate(); err != nil {
		return KeyInfo{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	return ki, nil
}
