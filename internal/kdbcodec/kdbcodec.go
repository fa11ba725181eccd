// Package kdbcodec decodes the legacy KDB payload's flat TLV group and
// entry records (spec.md §4.J) into the shared model.Group/model.Entry
// tree, reconstructing hierarchy from each group's nesting Level field
// and each entry's GroupID back-reference.
package kdbcodec

import (
	"time"

	"keevault/internal/bin"
	"keevault/internal/kerrors"
	"keevault/internal/magic"
	"keevault/internal/model"
)

type rawGroup struct {
	id    uint32
	level uint16
	group *model.Group
	haveID, haveLevel bool
}

type rawEntry struct {
	groupID uint32
	entry   *model.Entry
}

// Decode reads numGroups flat group records followed by numEntries flat
// entry records from buf and assembles the tree, returning its synthetic
// root (a group with no UUID of its own, holding every top-level group).
func Decode(buf []byte, numGroups, numEntries uint32) (*model.Group, error) {
	c := bin.NewCursor(buf)

	groups := make([]rawGroup, 0, numGroups)
	for i := uint32(0); i < numGroups; i++ {
		g, err := decodeGroup(c)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	entries := make([]rawEntry, 0, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		e, err := decodeEntry(c)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return buildTree(groups, entries)
}

func decodeGroup(c *bin.Cursor) (rawGroup, error) {
	g := model.Group{}
	raw := rawGroup{group: &g}

	for {
		fieldType, err := c.ReadU16()
		if err != nil {
			return rawGroup{}, kerrors.Wrap(kerrors.KindIncompleteKDBGroup, err)
		}
		size, err := c.ReadU32()
		if err != nil {
			return rawGroup{}, kerrors.Wrap(kerrors.KindIncompleteKDBGroup, err)
		}
		data, err := c.ReadN(int(size))
		if err != nil {
			return rawGroup{}, kerrors.Wrap(kerrors.KindIncompleteKDBGroup, err)
		}

		switch fieldType {
		case magic.KDBFieldTerminator:
			if !raw.haveID {
				return rawGroup{}, kerrors.New(kerrors.KindMissingKDBGroupID)
			}
			if !raw.haveLevel {
				return rawGroup{}, kerrors.New(kerrors.KindMissingKDBGroupLevel)
			}
			return raw, nil

		case magic.KDBGroupFieldIgnored:
			// intentionally skipped

		case magic.KDBGroupFieldID:
			v, err := bin.U32(data, 0)
			if err != nil {
				return rawGroup{}, kerrors.WithIndex(kerrors.KindInvalidKDBGroupFieldLength, int64(fieldType))
			}
			raw.id = v
			raw.haveID = true

		case magic.KDBGroupFieldName:
			g.Name = string(data)

		case magic.KDBGroupFieldCreation:
			g.Times.Creation = decodePackedTime(data)
		case magic.KDBGroupFieldLastMod:
			g.Times.LastMod = decodePackedTime(data)
		case magic.KDBGroupFieldLastAccess:
			g.Times.LastAccess = decodePackedTime(data)
		case magic.KDBGroupFieldExpire:
			g.Times.Expires = decodePackedTime(data)

		case magic.KDBGroupFieldIcon:
			v, err := bin.U32(data, 0)
			if err != nil {
				return rawGroup{}, kerrors.WithIndex(kerrors.KindInvalidKDBGroupFieldLength, int64(fieldType))
			}
			g.Icon = model.IconValue{StandardID: int64(v)}

		case magic.KDBGroupFieldLevel:
			v, err := bin.U16(data, 0)
			if err != nil {
				return rawGroup{}, kerrors.WithIndex(kerrors.KindInvalidKDBGroupFieldLength, int64(fieldType))
			}
			raw.level = v
			raw.haveLevel = true

		case magic.KDBGroupFieldFlags:
			// Expansion flag; no model field tracks it beyond IsExpanded.
			if len(data) >= 4 {
				v, _ := bin.U32(data, 0)
				g.IsExpanded = v != 0
			}

		default:
			return rawGroup{}, kerrors.WithIndex(kerrors.KindInvalidKDBGroupFieldType, int64(fieldType))
		}
	}
}

func decodeEntry(c *bin.Cursor) (rawEntry, error) {
	e := model.Entry{}
	var groupID uint32
	var haveUUID, haveTitle bool

	for {
		fieldType, err := c.ReadU16()
		if err != nil {
			return rawEntry{}, kerrors.Wrap(kerrors.KindIncompleteKDBEntry, err)
		}
		size, err := c.ReadU32()
		if err != nil {
			return rawEntry{}, kerrors.Wrap(kerrors.KindIncompleteKDBEntry, err)
		}
		data, err := c.ReadN(int(size))
		if err != nil {
			return rawEntry{}, kerrors.Wrap(kerrors.KindIncompleteKDBEntry, err)
		}

		switch fieldType {
		case magic.KDBFieldTerminator:
			if !haveUUID {
				return rawEntry{}, kerrors.New(kerrors.KindIncompleteKDBEntry)
			}
			if !haveTitle {
				return rawEntry{}, kerrors.New(kerrors.KindMissingKDBEntryTitle)
			}
			return rawEntry{groupID: groupID, entry: &e}, nil

		case magic.KDBEntryFieldIgnored:

		case magic.KDBEntryFieldUUID:
			if len(data) != 16 {
				return rawEntry{}, kerrors.WithIndex(kerrors.KindInvalidKDBEntryFieldLength, int64(fieldType))
			}
			copy(e.UUID[:], data)
			haveUUID = true

		case magic.KDBEntryFieldGroupID:
			v, err := bin.U32(data, 0)
			if err != nil {
				return rawEntry{}, kerrors.WithIndex(kerrors.KindInvalidKDBEntryFieldLength, int64(fieldType))
			}
			groupID = v

		case magic.KDBEntryFieldIcon:
			v, err := bin.U32(data, 0)
			if err != nil {
				return rawEntry{}, kerrors.WithIndex(kerrors.KindInvalidKDBEntryFieldLength, int64(fieldType))
			}
			e.Icon = model.IconValue{StandardID: int64(v)}

		case magic.KDBEntryFieldTitle:
			e.Strings = append(e.Strings, model.KeyValue{Key: "Title", Value: model.ProtectedValue{Value: string(data)}})
			haveTitle = true
		case magic.KDBEntryFieldURL:
			e.Strings = append(e.Strings, model.KeyValue{Key: "URL", Value: model.ProtectedValue{Value: string(data)}})
		case magic.KDBEntryFieldUserName:
			e.Strings = append(e.Strings, model.KeyValue{Key: "UserName", Value: model.ProtectedValue{Value: string(data)}})
		case magic.KDBEntryFieldPassword:
			e.Strings = append(e.Strings, model.KeyValue{Key: "Password", Value: model.ProtectedValue{Value: string(data), Protected: true}})
		case magic.KDBEntryFieldAdditional:
			e.Strings = append(e.Strings, model.KeyValue{Key: "Notes", Value: model.ProtectedValue{Value: string(data)}})

		case magic.KDBEntryFieldCreation:
			e.Times.Creation = decodePackedTime(data)
		case magic.KDBEntryFieldLastMod:
			e.Times.LastMod = decodePackedTime(data)
		case magic.KDBEntryFieldLastAccess:
			e.Times.LastAccess = decodePackedTime(data)
		case magic.KDBEntryFieldExpire:
			e.Times.Expires = decodePackedTime(data)

		case magic.KDBEntryFieldBinaryDesc:
			if len(e.Binaries) == 0 {
				e.Binaries = append(e.Binaries, model.Binary{})
			}
			e.Binaries[len(e.Binaries)-1].Name = string(data)
		case magic.KDBEntryFieldBinaryData:
			if len(e.Binaries) == 0 {
				e.Binaries = append(e.Binaries, model.Binary{})
			}
			e.Binaries[len(e.Binaries)-1].Data = append([]byte(nil), data...)

		default:
			return rawEntry{}, kerrors.WithIndex(kerrors.KindInvalidKDBEntryFieldType, int64(fieldType))
		}
	}
}

// buildTree reconstructs group nesting from each group's Level field
// using a level-indexed stack, then attaches entries to their owning
// group by GroupID.
func buildTree(groups []rawGroup, entries []rawEntry) (*model.Group, error) {
	root := &model.Group{Name: ""}
	byID := make(map[uint32]*model.Group, len(groups))

	// stack[lvl] is the most recently seen group at nesting level lvl.
	stack := map[uint16]*model.Group{}

	for _, g := range groups {
		if g.level == 0 {
			root.AddGroup(g.group)
		} else {
			parent, ok := stack[g.level-1]
			if !ok {
				return nil, kerrors.WithIndex(kerrors.KindInvalidKDBGroupLevel, int64(g.level))
			}
			parent.AddGroup(g.group)
		}
		stack[g.level] = g.group
		byID[g.id] = g.group
	}

	for _, e := range entries {
		parent, ok := byID[e.groupID]
		if !ok {
			parent = root
		}
		parent.AddEntry(e.entry)
	}

	return root, nil
}

// decodePackedTime expands a KDB 5-byte packed datetime into a
// model.TimestampValue, preserving the original packed bytes.
func decodePackedTime(data []byte) model.TimestampValue {
	if len(data) != 5 {
		return model.TimestampValue{}
	}
	var packed [5]byte
	copy(packed[:], data)

	b0, b1, b2, b3, b4 := int(data[0]), int(data[1]), int(data[2]), int(data[3]), int(data[4])
	year := (b0 << 6) | (b1 >> 2)
	month := ((b1 & 0x03) << 2) | (b2 >> 6)
	day := (b2 >> 1) & 0x1F
	hour := ((b2 & 0x01) << 4) | (b3 >> 4)
	minute := ((b3 & 0x0F) << 2) | (b4 >> 6)
	second := b4 & 0x3F

	t := model.TimestampValue{KDBPacked: packed, FromKDB: true}
	if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
		t.Time = time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	}
	return t
}
