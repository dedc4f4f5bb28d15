package domain

import (
	"fmt"
	"reflect"

	"github.com/ObserveRTC/connector-sub000/internal/schema"
)

// PayloadField names the nested record holding the kind-specific payload in
// the schema returned by Schema.
const PayloadField = "payload"

// Schema describes a record of the given kind: the header fields followed by
// a nested PayloadField record. Field indexes address a *Record value.
func Schema(kind RecordType) (*schema.Type, error) {
	p, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	root, err := schema.FromType(reflect.TypeOf(Record{}))
	if err != nil {
		return nil, err
	}
	body, err := schema.FromValue(p)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", kind, err)
	}

	field, ok := reflect.TypeOf(Record{}).FieldByName("Payload")
	if !ok {
		return nil, fmt.Errorf("schema for %s: record has no payload field", kind)
	}
	root.Name = kind.String()
	root.Fields = append(root.Fields, schema.Field{
		Name:  PayloadField,
		Type:  body,
		Index: field.Index,
	})
	return root, nil
}
