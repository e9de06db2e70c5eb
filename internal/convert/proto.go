// Package convert maps domain values to and from the well-known protobuf types carried
// by the Matchmaker gRPC service.
package convert

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/anonmatch/internal/model"
)

// Filter field names on the wire.
const (
	FieldGender = "gender"
	FieldHobby  = "hobby"
	FieldAgeMin = "age_min"
	FieldAgeMax = "age_max"
)

// --- Filters (client -> server) ---

// FiltersFromStruct decodes search filters. A nil struct means no filters.
// Unknown fields are rejected so typos do not silently widen a search.
func FiltersFromStruct(in *structpb.Struct) (model.Filters, error) {
	var f model.Filters
	for k, v := range in.GetFields() {
		switch k {
		case FieldGender:
			s, err := str(k, v)
			if err != nil {
				return model.Filters{}, err
			}
			f.Gender = model.Gender(s)
		case FieldHobby:
			s, err := str(k, v)
			if err != nil {
				return model.Filters{}, err
			}
			f.Hobby = s
		case FieldAgeMin, FieldAgeMax:
			n, err := age(k, v)
			if err != nil {
				return model.Filters{}, err
			}
			if k == FieldAgeMin {
				f.AgeMin = n
			} else {
				f.AgeMax = n
			}
		default:
			return model.Filters{}, fmt.Errorf("unknown filter %q", k)
		}
	}
	return f, nil
}

func str(k string, v *structpb.Value) (string, error) {
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%s: want string", k)
	}
	return s.StringValue, nil
}

func age(k string, v *structpb.Value) (*int, error) {
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, fmt.Errorf("%s: want number", k)
	}
	x := num.NumberValue
	if x != math.Trunc(x) || x < 0 || x > math.MaxInt32 {
		return nil, fmt.Errorf("%s: want whole number, got %v", k, x)
	}
	n := int(x)
	return &n, nil
}

// FiltersToStruct encodes filters, omitting unset fields.
func FiltersToStruct(f model.Filters) *structpb.Struct {
	fields := map[string]*structpb.Value{}
	if f.Gender != "" {
		fields[FieldGender] = structpb.NewStringValue(string(f.Gender))
	}
	if f.Hobby != "" {
		fields[FieldHobby] = structpb.NewStringValue(f.Hobby)
	}
	if f.AgeMin != nil {
		fields[FieldAgeMin] = structpb.NewNumberValue(float64(*f.AgeMin))
	}
	if f.AgeMax != nil {
		fields[FieldAgeMax] = structpb.NewNumberValue(float64(*f.AgeMax))
	}
	return &structpb.Struct{Fields: fields}
}

// --- server -> client ---

// StatsToStruct encodes engine counters.
func StatsToStruct(s model.Stats) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"queue_total":   structpb.NewNumberValue(float64(s.Queue.Total)),
		"queue_pro":     structpb.NewNumberValue(float64(s.Queue.Pro)),
		"queue_regular": structpb.NewNumberValue(float64(s.Queue.Regular)),
		"active_chats":  structpb.NewNumberValue(float64(s.ActiveChats)),
	}}
}

// EventToStruct encodes an event. partner is the opaque reference shown to the
// recipient for PartnerFound and is omitted when empty.
func EventToStruct(ev model.Event, partner string) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"kind": structpb.NewStringValue(string(ev.Kind)),
		"at":   structpb.NewStringValue(ev.At.UTC().Format(time.RFC3339Nano)),
	}
	if ev.Reason != "" {
		fields["reason"] = structpb.NewStringValue(string(ev.Reason))
	}
	if partner != "" {
		fields["partner"] = structpb.NewStringValue(partner)
	}
	return &structpb.Struct{Fields: fields}
}
