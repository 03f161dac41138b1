package asset

// Flags is a bitset of load-time hints, modeled on the teacher's
// cluster.SnodeFlags idiom (Set/Clear/IsSet/IsAnySet methods on a
// uint64-backed type, cluster/map.go).
type Flags uint64

const (
	FlagAsync Flags = 1 << iota
	FlagStreaming
	FlagCompressed
	FlagCacheable
	FlagHotReload
	FlagPreload
	FlagPersistent
	FlagHighPriority
	FlagUseMemoryMap
)

////////////
// Flags //
////////////

func (f Flags) Set(flags Flags) Flags {
	return f | flags
}

func (f Flags) Clear(flags Flags) Flags {
	return f &^ flags
}

func (f Flags) IsSet(flags Flags) bool {
	return f&flags == flags
}

func (f Flags) IsAnySet(flags Flags) bool {
	return f&flags != 0
}
