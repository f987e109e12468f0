// Package eventlog хранит ограниченный журнал событий анализа, который видит пользователь.
package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity сколько последних записей хранит журнал.
const DefaultCapacity = 20

// Severity уровень записи журнала
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Entry запись журнала
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// Log журнал только на добавление. При переполнении старейшие записи молча вытесняются.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

// New создает журнал емкостью capacity (DefaultCapacity, если capacity <= 0).
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Add добавляет запись и возвращает ее.
func (l *Log) Add(message string, severity Severity) Entry {
	if severity == "" {
		severity = Info
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Timestamp: l.now(), Message: message, Severity: severity}
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	return e
}

func (l *Log) Info(message string) Entry    { return l.Add(message, Info) }
func (l *Log) Success(message string) Entry { return l.Add(message, Success) }
func (l *Log) Warn(message string) Entry    { return l.Add(message, Warning) }
func (l *Log) Error(message string) Entry   { return l.Add(message, Error) }

// Entries возвращает копию записей от старых к новым.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len текущее число записей.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Capacity емкость журнала.
func (l *Log) Capacity() int { return l.capacity }
