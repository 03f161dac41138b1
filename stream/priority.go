package stream

// Priority is the streaming scheduler's urgency scale (spec §4.I) — larger
// is more urgent, distinct from (but compatible with) the loader's plain
// int priority field.
type Priority int

const (
	PriorityPreload    Priority = 100
	PriorityDistant    Priority = 200
	PriorityBackground Priority = 400
	PriorityNearby     Priority = 600
	PriorityVisible    Priority = 800
	PriorityCritical   Priority = 1000
)

func (p Priority) String() string {
	switch p {
	case PriorityPreload:
		return "Preload"
	case PriorityDistant:
		return "Distant"
	case PriorityBackground:
		return "Background"
	case PriorityNearby:
		return "Nearby"
	case PriorityVisible:
		return "Visible"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}
