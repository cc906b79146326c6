package codec

// WellKnownPackage is the proto package of the bundled well-known types.
const WellKnownPackage = "google.protobuf"

// Empty is the payload-less body marker. It maps onto google.protobuf.Empty.
type Empty struct{}

// timestamp mirrors google.protobuf.Timestamp for the Time type.
type timestamp struct {
	Seconds int64
	Nanos   int32
}

var emptyInfo = wellKnown(Describe[Empty]("Empty"))

var timestampInfo = wellKnown(Describe[timestamp]("Timestamp",
	Singular("seconds", Int64, func(t *timestamp) *int64 { return &t.Seconds }),
	Singular("nanos", Int32, func(t *timestamp) *int32 { return &t.Nanos }),
))

func wellKnown(info *MessageInfo) *MessageInfo {
	info.pkg = WellKnownPackage
	info.wellKnown = true
	return info
}

// EmptyInfo and TimestampInfo expose the bundled well-known tables.
func EmptyInfo() *MessageInfo     { return emptyInfo }
func TimestampInfo() *MessageInfo { return timestampInfo }
