package revision

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Encode serializes a revision to its JSON wire form.
func Encode(rev Revision) ([]byte, error) {
	if rev.Data == nil {
		rev.Data = []Delta{}
	}
	encoded, err := json.Marshal(rev)
	if err != nil {
		return nil, fmt.Errorf("encode revision %s: %w", rev.ID(), err)
	}
	return encoded, nil
}

// Decode reconstructs a revision from its wire form. Malformed input yields a *DecodeError.
func Decode(data []byte) (Revision, error) {
	var wire struct {
		Metadata *json.RawMessage `json:"metadata"`
		Data     *json.RawMessage `json:"data"`
	}
	if err := strictUnmarshal(data, &wire); err != nil {
		return Revision{}, decodeErr("revision", err)
	}
	if wire.Metadata == nil {
		return Revision{}, decodeErr("metadata", errors.New("required"))
	}
	if wire.Data == nil {
		return Revision{}, decodeErr("data", errors.New("required"))
	}

	meta, err := decodeMetadata(*wire.Metadata)
	if err != nil {
		return Revision{}, err
	}

	var deltas []Delta
	if err := strictUnmarshal(*wire.Data, &deltas); err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return Revision{}, de
		}
		return Revision{}, decodeErr("data", err)
	}
	if deltas == nil {
		return Revision{}, decodeErr("data", errors.New("must be an array"))
	}
	return Revision{Metadata: meta, Data: deltas}, nil
}

// decodeMetadata validates the metadata header.
func decodeMetadata(raw json.RawMessage) (Metadata, error) {
	var wire struct {
		Parent      *int64  `json:"parent_revision"`
		Revision    *int64  `json:"revision"`
		Authors     *string `json:"authors"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := strictUnmarshal(raw, &wire); err != nil {
		return Metadata{}, decodeErr("metadata", err)
	}
	if wire.Revision == nil || *wire.Revision <= 0 {
		return Metadata{}, decodeErr("metadata.revision", errors.New("positive revision id is required"))
	}
	meta := Metadata{Revision: ID(*wire.Revision)}
	if wire.Parent != nil {
		if *wire.Parent <= 0 {
			return Metadata{}, decodeErr("metadata.parent_revision", errors.New("must be null or a positive id"))
		}
		parent := ID(*wire.Parent)
		meta.Parent = &parent
	}
	fields := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"metadata.authors", wire.Authors, &meta.Authors},
		{"metadata.title", wire.Title, &meta.Title},
		{"metadata.description", wire.Description, &meta.Description},
	}
	for _, f := range fields {
		if f.src == nil {
			return Metadata{}, decodeErr(f.name, errors.New("required"))
		}
		*f.dst = *f.src
	}
	return meta, nil
}
