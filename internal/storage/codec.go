package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joschabach/micropsi2-sub002/internal/model"
)

const (
	CurrentSchemaVersion = model.SchemaVersion
	CurrentCodecVersion  = model.CodecVersion
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeNet(record model.NetRecord) ([]byte, error) {
	if record.UID == "" {
		return nil, errors.New("net uid is required")
	}
	return json.Marshal(record)
}

func DecodeNet(data []byte) (model.NetRecord, error) {
	var record model.NetRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.NetRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.NetRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
