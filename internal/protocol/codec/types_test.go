package codec

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/protokit/internal/protocol/wire"
)

type color int32

const (
	colorRed   color = 0
	colorGreen color = 1
	colorBlue  color = 2
)

var _ = DescribeEnum[color]("Color",
	EnumCase{Name: "COLOR_RED", Number: 0},
	EnumCase{Name: "COLOR_GREEN", Number: 1},
	EnumCase{Name: "COLOR_BLUE", Number: 2},
)

type address struct {
	Street string
	Zip    int32
}

var _ = Describe[address]("Person.Address",
	Singular("street", String, func(a *address) *string { return &a.Street }),
	Singular("zip", Int32, func(a *address) *int32 { return &a.Zip }),
)

type pet struct {
	Selector
	Name string
	Legs int32
	Vet  *address
}

const (
	petName wire.Number = 20
	petLegs wire.Number = 21
	petVet  wire.Number = 22
)

type person struct {
	Name     string
	Age      int64
	Nickname *string
	Scores   []int32
	Tags     []string
	Ratio    float32
	Weight   float64
	Active   bool
	Avatar   []byte
	Home     *address
	Friends  []*person
	Color    color
	Pet      pet
	Labels   map[string]int64
	Born     time.Time
	ID       uuid.UUID
	Site     *url.URL
	Big      uint64
}

var _ = Describe[person]("Person",
	Singular("name", String, func(p *person) *string { return &p.Name }),
	Singular("age", Int64, func(p *person) *int64 { return &p.Age }),
	Optional("nickname", String, func(p *person) **string { return &p.Nickname }),
	Repeated("scores", Int32, func(p *person) *[]int32 { return &p.Scores }),
	Repeated("tags", String, func(p *person) *[]string { return &p.Tags }),
	Singular("ratio", Float, func(p *person) *float32 { return &p.Ratio }),
	Singular("weight", Double, func(p *person) *float64 { return &p.Weight }),
	Singular("active", Bool, func(p *person) *bool { return &p.Active }),
	Singular("avatar", Bytes, func(p *person) *[]byte { return &p.Avatar }),
	Singular("home", MessageOf[address](), func(p *person) **address { return &p.Home }),
	Repeated("friends", MessageOf[person](), func(p *person) *[]*person { return &p.Friends }),
	Singular("color", EnumOf[color](), func(p *person) *color { return &p.Color }),
	Oneof("pet", func(p *person) *pet { return &p.Pet },
		Case("pet_name", String, func(v *pet) *string { return &v.Name }, Number(int32(petName))),
		Case("pet_legs", Int32, func(v *pet) *int32 { return &v.Legs }, Number(int32(petLegs))),
		Case("pet_vet", MessageOf[address](), func(v *pet) **address { return &v.Vet }, Number(int32(petVet))),
	),
	Map("labels", String, Int64, func(p *person) *map[string]int64 { return &p.Labels }),
	Singular("born", Time, func(p *person) *time.Time { return &p.Born }),
	Singular("id", UUID, func(p *person) *uuid.UUID { return &p.ID }),
	Singular("site", URL, func(p *person) **url.URL { return &p.Site }),
	Singular("big", Uint64, func(p *person) *uint64 { return &p.Big }),
)

type ints struct {
	Values []int64
}

var _ = Describe[ints]("Ints",
	Repeated("values", Int64, func(v *ints) *[]int64 { return &v.Values }),
)

type looseInts struct {
	Values []int64
}

var _ = Describe[looseInts]("LooseInts",
	Repeated("values", Int64, func(v *looseInts) *[]int64 { return &v.Values }, Unpacked()),
)

type fixedInts struct {
	Values []float32
}

var _ = Describe[fixedInts]("FixedInts",
	Repeated("values", Float, func(v *fixedInts) *[]float32 { return &v.Values }),
)

type names struct {
	Values []string
}

var _ = Describe[names]("Names",
	Repeated("values", String, func(v *names) *[]string { return &v.Values }),
)

type scalars struct {
	I int32
	S string
	B bool
	D float64
	E color
}

var _ = Describe[scalars]("Scalars",
	Singular("i", Int32, func(v *scalars) *int32 { return &v.I }),
	Singular("s", String, func(v *scalars) *string { return &v.S }),
	Singular("b", Bool, func(v *scalars) *bool { return &v.B }),
	Singular("d", Double, func(v *scalars) *float64 { return &v.D }),
	Singular("e", EnumOf[color](), func(v *scalars) *color { return &v.E }),
)

type legacyScalars struct {
	I int32
	S string
	B bool
	D float64
	E color
}

var _ = Describe[legacyScalars]("LegacyScalars",
	Singular("i", Int32, func(v *legacyScalars) *int32 { return &v.I }),
	Singular("s", String, func(v *legacyScalars) *string { return &v.S }),
	Singular("b", Bool, func(v *legacyScalars) *bool { return &v.B }),
	Singular("d", Double, func(v *legacyScalars) *float64 { return &v.D }),
	Singular("e", EnumOf[color](), func(v *legacyScalars) *color { return &v.E }),
).Proto2()

type node struct {
	Value int64
	Child *node
}

var _ = Describe[node]("Node",
	Singular("value", Int64, func(n *node) *int64 { return &n.Value }),
	Singular("child", MessageOf[node](), func(n *node) **node { return &n.Child }),
)

type optionalInt struct {
	N *int32
}

var _ = Describe[optionalInt]("OptionalInt",
	Optional("n", Int32, func(v *optionalInt) **int32 { return &v.N }),
)

type undeclared struct {
	N int32
}
