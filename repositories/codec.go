package repositories

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder for stored records, configured to keep
// nanosecond timestamp precision. The padded-UnixNano key segments and the
// decoded CreatedAt must agree, and history ordering relies on sub-second
// resolution; the library default truncates time to whole seconds.
var encMode cbor.EncMode

// decMode is the CBOR decoder for stored records.
var decMode cbor.DecMode

func init() {
	var err error

	options := cbor.CoreDetEncOptions()
	options.Time = cbor.TimeRFC3339Nano
	encMode, err = options.EncMode()
	if err != nil {
		panic("repositories: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("repositories: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalRecord(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshalRecord(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
