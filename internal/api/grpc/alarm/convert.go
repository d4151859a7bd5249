package alarm

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/escape-alarm/internal/domain/alarm"
)

// toStruct converts a JSON-serialisable value into a protobuf Struct.
func toStruct(value any) (*structpb.Struct, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	out := new(structpb.Struct)
	if err = protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert to struct: %w", err)
	}

	return out, nil
}

// fromStruct decodes a protobuf Struct into a JSON-tagged Go value.
func fromStruct(in *structpb.Struct, out any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("convert from struct: %w", err)
	}

	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	return nil
}

// SnapshotToStruct renders a snapshot as a Struct.
func SnapshotToStruct(snapshot *domain.Snapshot) (*structpb.Struct, error) {
	return toStruct(snapshot)
}

// SnapshotFromStruct decodes a snapshot rendered by SnapshotToStruct.
func SnapshotFromStruct(in *structpb.Struct) (*domain.Snapshot, error) {
	snapshot := new(domain.Snapshot)
	if err := fromStruct(in, snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// RecordToStruct renders a record as a Struct.
func RecordToStruct(rec *domain.Record) (*structpb.Struct, error) {
	return toStruct(rec)
}

// RecordFromStruct decodes a record rendered by RecordToStruct.
func RecordFromStruct(in *structpb.Struct) (*domain.Record, error) {
	rec := new(domain.Record)
	if err := fromStruct(in, rec); err != nil {
		return nil, err
	}

	return rec, nil
}
