package xexchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the unit sent to the broker. It is built per publish call and discarded after encoding.
type Envelope struct {
	SenderID   string
	Origin     string
	RoutingKey string
	Created    time.Time
	// Data holds the normalized payload; nil encodes as JSON null.
	Data map[string]any
}

// Codec is the Strategy for turning envelopes into wire bytes and back.
type Codec interface {
	Encode(env Envelope) ([]byte, error)
	Decode(b []byte) (Envelope, error)
	Name() string
}

// normalize is swapped in tests to observe whether flattening ran.
var normalize = Normalize

// BuildEnvelope assembles an envelope, flattening data into plain maps.
// A nil data skips normalization and yields a null payload.
func BuildEnvelope(senderID, origin, routingKey string, created time.Time, data *Data) (Envelope, error) {
	env := Envelope{
		SenderID:   senderID,
		Origin:     origin,
		RoutingKey: routingKey,
		Created:    created,
	}
	if data == nil {
		return env, nil
	}
	m, err := normalize(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = m
	return env, nil
}

// wireEnvelope fixes the key order: sender_id, origin, routing_key, created, data.
type wireEnvelope struct {
	SenderID   string         `json:"sender_id"`
	Origin     string         `json:"origin"`
	RoutingKey string         `json:"routing_key"`
	Created    string         `json:"created"`
	Data       map[string]any `json:"data"`
}

// JSONCodec is the default codec. Slashes and HTML characters are left unescaped.
type JSONCodec struct{}

// Name is the codec registry key.
func (JSONCodec) Name() string { return "json" }

// Encode writes env with keys in wire order.
func (JSONCodec) Encode(env Envelope) ([]byte, error) {
	b, err := marshalJSON(wireEnvelope{
		SenderID:   env.SenderID,
		Origin:     env.Origin,
		RoutingKey: env.RoutingKey,
		Created:    env.Created.Format(time.RFC3339),
		Data:       env.Data,
	})
	if err != nil {
		var ee *EncodingError
		if errors.As(err, &ee) {
			return nil, ee
		}
		return nil, &EncodingError{Path: "data", Err: err}
	}
	return b, nil
}

// Decode parses an envelope. Numbers inside data decode as json.Number to keep integer precision.
func (JSONCodec) Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Envelope{}, fmt.Errorf("xexchange: decode envelope: %w", err)
	}
	created, err := time.Parse(time.RFC3339, w.Created)
	if err != nil {
		return Envelope{}, fmt.Errorf("xexchange: decode envelope created %q: %w", w.Created, err)
	}
	return Envelope{
		SenderID:   w.SenderID,
		Origin:     w.Origin,
		RoutingKey: w.RoutingKey,
		Created:    created,
		Data:       w.Data,
	}, nil
}
