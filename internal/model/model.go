// Package model holds the in-memory Group/Entry tree shape a decoded
// container produces (spec.md §3 Data Model), shared by the KDB and
// KDBX XML codecs so neither depends on the orchestrator package that
// re-exports these types publicly.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Times carries every timestamp a group or entry tracks. The KDB decoder
// fills Creation, LastMod, LastAccess and Expires from the container's
// packed 5-byte datetimes (to whole seconds, with the packed bytes kept
// on each TimestampValue); the KDBX XML decoder fills Creation, LastMod,
// LastAccess, ExpiryTime, LocationChanged and UsageCount.
type Times struct {
	Creation   TimestampValue
	LastMod    TimestampValue
	LastAccess TimestampValue
	Expires    TimestampValue
	ExpiryTime TimestampValue
	UsageCount int64
	LocationChanged TimestampValue
}

// TimestampValue is a parsed point in time, with KDB's original packed
// 5-byte encoding preserved alongside it when the source container was
// KDB (zero value otherwise).
type TimestampValue struct {
	Time        time.Time
	KDBPacked   [5]byte
	FromKDB     bool
}

// UuidValue is a 16-byte KDBX entry/group identifier.
type UuidValue [16]byte

// String renders the canonical hyphenated UUID form.
func (u UuidValue) String() string {
	return uuid.UUID(u).String()
}

// ParseUUID decodes a canonical hyphenated UUID string into a UuidValue.
func ParseUUID(s string) (UuidValue, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UuidValue{}, err
	}
	return UuidValue(id), nil
}

// ColorValue is an optional RGB foreground/background color KDBX entries
// and groups may carry.
type ColorValue struct {
	Set         bool
	R, G, B     uint8
}

// IconValue is either a built-in icon index or a reference to a custom
// icon stored in <Meta><CustomIcons>.
type IconValue struct {
	StandardID int64
	CustomUUID UuidValue
	IsCustom   bool
}

// Base64Value is a byte payload that round-trips through base64 on the
// KDBX XML wire (binary references, history payloads).
type Base64Value []byte

// ProtectedValue is a KDBX string field whose plaintext was masked by
// the inner stream cipher on disk. Protected is true for fields the
// document marked Protected="true" (notably Password by convention).
type ProtectedValue struct {
	Value     string
	Protected bool
}

// KeyValue is one <String><Key>.../<Value>...</String> pair.
type KeyValue struct {
	Key   string
	Value ProtectedValue
}

// AutoTypeAssociation binds an auto-type keystroke sequence to a window
// title pattern.
type AutoTypeAssociation struct {
	Window            string
	KeystrokeSequence string
}

// AutoType is an entry's auto-type configuration block.
type AutoType struct {
	Enabled                 bool
	DataTransferObfuscation int64
	DefaultSequence         string
	Associations            []AutoTypeAssociation
}

// Binary is an attachment: either inlined (KDB) or referenced by index
// into the KDBX4 inner-header attachment pool and resolved at decode
// time.
type Binary struct {
	Name string
	Data []byte
}

// Entry is a single credential record.
type Entry struct {
	UUID       UuidValue
	Icon       IconValue
	ForegroundColor ColorValue
	BackgroundColor ColorValue
	OverrideURL string
	Tags        string
	Times       Times
	Strings     []KeyValue
	Binaries    []Binary
	AutoType    AutoType
	History     []*Entry
}

// Title returns the entry's Title string field, or "" if absent.
func (e *Entry) Title() string { return e.field("Title") }

// UserName returns the entry's UserName string field, or "" if absent.
func (e *Entry) UserName() string { return e.field("UserName") }

// Password returns the entry's Password string field, or "" if absent.
func (e *Entry) Password() string { return e.field("Password") }

// URL returns the entry's URL string field, or "" if absent.
func (e *Entry) URL() string { return e.field("URL") }

// Notes returns the entry's Notes string field, or "" if absent.
func (e *Entry) Notes() string { return e.field("Notes") }

func (e *Entry) field(key string) string {
	for _, kv := range e.Strings {
		if kv.Key == key {
			return kv.Value.Value
		}
	}
	return ""
}

// Group is a container node in the tree; Root has no parent. Groups and
// Entries are keyed by Name/Title rather than held in slices: a second
// child sharing a name overwrites the first, matching the source
// container's own map-shaped representation of a group's children.
type Group struct {
	UUID        UuidValue
	Name        string
	Notes       string
	Icon        IconValue
	Times       Times
	IsExpanded  bool
	Groups      map[string]*Group
	Entries     map[string]*Entry
}

// AddGroup inserts child under g, keyed by its Name. A child already
// present under that name is overwritten.
func (g *Group) AddGroup(child *Group) {
	if g.Groups == nil {
		g.Groups = make(map[string]*Group)
	}
	g.Groups[child.Name] = child
}

// AddEntry inserts e under g, keyed by its Title. An entry already
// present under that title is overwritten.
func (g *Group) AddEntry(e *Entry) {
	if g.Entries == nil {
		g.Entries = make(map[string]*Entry)
	}
	g.Entries[e.Title()] = e
}

// Walk visits g and every descendant group depth-first.
func (g *Group) Walk(fn func(*Group)) {
	fn(g)
	for _, child := range g.Groups {
		child.Walk(fn)
	}
}

// FindByUUID returns the group anywhere in the subtree rooted at g with
// the given UUID, or nil.
func (g *Group) FindByUUID(id UuidValue) *Group {
	var found *Group
	g.Walk(func(candidate *Group) {
		if found == nil && candidate.UUID == id {
			found = candidate
		}
	})
	return found
}
