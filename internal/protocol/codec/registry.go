package codec

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog/log"
)

var registry = struct {
	sync.RWMutex
	messages map[reflect.Type]*MessageInfo
	enums    map[reflect.Type]*EnumInfo
}{
	messages: make(map[reflect.Type]*MessageInfo),
	enums:    make(map[reflect.Type]*EnumInfo),
}

func registerMessage(info *MessageInfo) {
	registry.Lock()
	defer registry.Unlock()
	if prev, ok := registry.messages[info.goType]; ok && prev != info {
		log.Warn().Str("type", info.GoName()).Msg("codec.Describe replacing field table")
	}
	registry.messages[info.goType] = info
}

func registerEnum(info *EnumInfo) {
	registry.Lock()
	defer registry.Unlock()
	if prev, ok := registry.enums[info.goType]; ok && prev != info {
		log.Warn().Str("type", info.GoName()).Msg("codec.DescribeEnum replacing case table")
	}
	registry.enums[info.goType] = info
}

func lookupMessage(t reflect.Type) *MessageInfo {
	registry.RLock()
	defer registry.RUnlock()
	return registry.messages[t]
}

func lookupEnum(t reflect.Type) *EnumInfo {
	registry.RLock()
	defer registry.RUnlock()
	return registry.enums[t]
}

// InfoOf returns the declared field table of T, or nil.
func InfoOf[T any]() *MessageInfo {
	return lookupMessage(reflect.TypeFor[T]())
}

// EnumInfoOf returns the declared cases of E, or nil.
func EnumInfoOf[E ~int32]() *EnumInfo {
	return lookupEnum(reflect.TypeFor[E]())
}

// infoFor resolves the field table for a pointer to a declared type.
func infoFor(m any) (*MessageInfo, bool) {
	t := reflect.TypeOf(m)
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, false
	}
	info := lookupMessage(t.Elem())
	return info, info != nil
}
