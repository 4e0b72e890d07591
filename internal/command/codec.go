package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrSerialization is returned when a command cannot be encoded or a stored
	// payload cannot be turned back into a runnable command.
	ErrSerialization = errors.New("command serialization failed")
	// ErrUnknownKind is returned for a tag outside the closed variant set.
	ErrUnknownKind = errors.New("unknown command kind")
)

var variants = map[Kind]func() Command{
	KindGenreList: func() Command { return &GenreList{} },
	KindGenrePage: func() Command { return &GenrePage{} },
	KindDetail:    func() Command { return &Detail{} },
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Kinds lists the registered variant tags in sorted order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(variants))
	for k := range variants {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsNil reports whether cmd is nil or a nil pointer to a variant.
func IsNil(cmd Command) bool {
	if cmd == nil {
		return true
	}
	v := reflect.ValueOf(cmd)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Encode validates cmd and returns its tag and JSON payload.
func Encode(cmd Command) (Kind, []byte, error) {
	if IsNil(cmd) {
		return "", nil, fmt.Errorf("%w: nil command", ErrSerialization)
	}
	kind := cmd.Kind()
	if _, ok := variants[kind]; !ok {
		return "", nil, fmt.Errorf("%w: %w %q", ErrSerialization, ErrUnknownKind, kind)
	}
	if err := validate.Struct(cmd); err != nil {
		return "", nil, fmt.Errorf("%w: %s payload: %w", ErrSerialization, kind, err)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("%w: marshal %s: %w", ErrSerialization, kind, err)
	}
	return kind, payload, nil
}

// Decode reconstructs the concrete variant for kind from payload.
func Decode(kind Kind, payload []byte) (Command, error) {
	factory, ok := variants[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrSerialization, ErrUnknownKind, kind)
	}
	cmd := factory()
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cmd); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %w", ErrSerialization, kind, err)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", ErrSerialization, kind, err)
	}
	return cmd, nil
}
