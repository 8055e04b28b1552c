package storage

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/rl1809/nft-market/internal/core/domain"
)

// encMode uses Core Deterministic Encoding so the same event always
// produces the same bytes. Amounts, states and event types implement
// encoding.TextMarshaler and are stored as text, which keeps journal
// records readable with any CBOR diagnostic tool.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeEvent(ev domain.Event) ([]byte, error) {
	return encMode.Marshal(ev)
}

func decodeEvent(data []byte) (domain.Event, error) {
	var ev domain.Event
	err := decMode.Unmarshal(data, &ev)
	return ev, err
}
