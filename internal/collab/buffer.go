package collab

import "sync"

// Origin tags why a buffer's content changed.
type Origin int

const (
	// OriginUser is a change typed by the local participant.
	OriginUser Origin = iota
	// OriginTemplate is a language template seeded locally into a blank buffer.
	OriginTemplate
	// OriginRemote is content applied from an incoming network message.
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginTemplate:
		return "template"
	case OriginRemote:
		return "remote"
	default:
		return "user"
	}
}

// Propagates reports whether a change with this origin must be sent to the room.
// Remote-applied changes never are, which keeps a broadcast topology from echoing.
func (o Origin) Propagates() bool { return o != OriginRemote }

// ChangeHandler observes buffer changes.
type ChangeHandler func(content string, origin Origin)

// Buffer is the editing widget as the collaboration layer sees it.
type Buffer interface {
	Content() string
	SetContent(content string, origin Origin)
	// OnChange registers h and returns a function that removes it.
	OnChange(h ChangeHandler) (unsubscribe func())
}

// MemoryBuffer is an in-process Buffer. Handlers run synchronously after the
// content is updated and outside the buffer's lock.
type MemoryBuffer struct {
	mu       sync.Mutex
	content  string
	handlers map[int]ChangeHandler
	next     int
}

var _ Buffer = (*MemoryBuffer)(nil)

func NewMemoryBuffer(initial string) *MemoryBuffer {
	return &MemoryBuffer{content: initial, handlers: make(map[int]ChangeHandler)}
}

func (b *MemoryBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

func (b *MemoryBuffer) SetContent(content string, origin Origin) {
	b.mu.Lock()
	b.content = content
	handlers := make([]ChangeHandler, 0, len(b.handlers))
	for i := 0; i < b.next; i++ {
		if h, ok := b.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(content, origin)
	}
}

func (b *MemoryBuffer) OnChange(h ChangeHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}
