// Package kdbxml decodes the KDBX XML document (spec.md §4.K) into the
// shared model.Group/model.Entry tree. It walks the token stream with a
// stack of in-progress node builders (Group, Entry, String, AutoType,
// Association); a closing element attaches its finished node to whatever
// node is now on top of the builder stack, and character data is routed
// by the name of the element being closed to the node on top of that
// stack. No stack of element names is kept. Protected string values are
// base64-decoded and run through the inner stream cipher in document
// order as they are encountered; the same Inner instance must be used
// for the whole document since the stream's position carries state
// across every protected value.
package kdbxml

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"keevault/internal/cipher"
	"keevault/internal/kerrors"
	"keevault/internal/model"
)

type nodeKind int

const (
	kindGroup nodeKind = iota
	kindEntry
	kindString
	kindAutoType
	kindAssociation
)

type frame struct {
	kind  nodeKind
	group *model.Group
	entry *model.Entry
	kv    *model.KeyValue
	at    *model.AutoType
	assoc *model.AutoTypeAssociation
}

// defaultMaxDepth bounds builder-stack nesting for callers that do not need a
// caller-configurable limit (most tests, and KDBX3's per-block parse
// where the orchestrator's option does not apply block-by-block).
const defaultMaxDepth = 4096

// Decode parses r as a KDBX XML document and returns the root group
// (KeePassFile/Root/Group). inner unmasks Protected="true" string
// values; attachments resolves a KDBX4 <Binary><Value Ref="N"/></Binary>
// reference to its payload from the inner header's attachment pool (pass
// nil for KDBX3 documents, which have no inner-header pool).
func Decode(r io.Reader, inner cipher.Inner, attachments [][]byte) (*model.Group, error) {
	return DecodeWithDepthLimit(r, inner, attachments, defaultMaxDepth)
}

// DecodeWithDepthLimit is Decode with a caller-chosen cap on the depth of
// the builder stack, guarding it against pathological or malicious
// documents. Only Group, Entry, String, AutoType and Association elements
// count towards the cap; other elements are not counted.
func DecodeWithDepthLimit(r io.Reader, inner cipher.Inner, attachments [][]byte, maxDepth int) (*model.Group, error) {
	dec := xml.NewDecoder(r)
	var root *model.Group
	var frames []frame
	var text []byte
	var valueProtected bool
	var valueRef = -1

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			text = text[:0]
			switch t.Name.Local {
			case "Group", "Entry", "String", "AutoType", "Association":
				if len(frames)+1 > maxDepth {
					return nil, kerrors.New(kerrors.KindXML)
				}
			}
			switch t.Name.Local {
			case "Group":
				frames = append(frames, frame{kind: kindGroup, group: &model.Group{}})
			case "Entry":
				frames = append(frames, frame{kind: kindEntry, entry: &model.Entry{}})
			case "String":
				frames = append(frames, frame{kind: kindString, kv: &model.KeyValue{}})
			case "AutoType":
				frames = append(frames, frame{kind: kindAutoType, at: &model.AutoType{}})
			case "Association":
				frames = append(frames, frame{kind: kindAssociation, assoc: &model.AutoTypeAssociation{}})
			case "Value":
				valueProtected = false
				valueRef = -1
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "Protected":
						if strings.EqualFold(a.Value, "true") {
							valueProtected = true
						}
					case "Ref":
						if n, err := strconv.Atoi(a.Value); err == nil {
							valueRef = n
						}
					}
				}
			}

		case xml.CharData:
			text = append(text, t...)

		case xml.EndElement:
			s := string(text)
			text = text[:0]

			switch t.Name.Local {
			case "Name":
				if top, ok := currentGroup(frames); ok {
					top.Name = s
				}
			case "Notes":
				if top, ok := currentGroup(frames); ok {
					top.Notes = s
				}
			case "Tags":
				if top, ok := currentEntry(frames); ok {
					top.Tags = s
				}
			case "OverrideURL":
				if top, ok := currentEntry(frames); ok {
					top.OverrideURL = s
				}
			case "Key":
				if top, ok := currentString(frames); ok {
					top.Key = s
				}
			case "Value":
				if ref := valueRef; ref >= 0 {
					if top, ok := currentEntry(frames); ok && ref < len(attachments) {
						top.Binaries = append(top.Binaries, model.Binary{Data: attachments[ref]})
					}
				} else if top, ok := currentString(frames); ok {
					value, protected, err := decodeValue(s, valueProtected, inner)
					if err != nil {
						return nil, err
					}
					top.Value = model.ProtectedValue{Value: value, Protected: protected}
				}
			case "UUID":
				raw, err := base64.StdEncoding.DecodeString(s)
				if err == nil && len(raw) == 16 {
					var id model.UuidValue
					copy(id[:], raw)
					if top, ok := currentGroup(frames); ok {
						top.UUID = id
					} else if top, ok := currentEntry(frames); ok {
						top.UUID = id
					}
				}
			case "IconID":
				v, _ := strconv.ParseInt(s, 10, 64)
				icon := model.IconValue{StandardID: v}
				if top, ok := currentGroup(frames); ok {
					top.Icon = icon
				} else if top, ok := currentEntry(frames); ok {
					top.Icon = icon
				}
			case "CreationTime":
				tm := parseTimestamp(s)
				setTimesField(frames, func(t *model.Times) { t.Creation = tm })
			case "LastModificationTime":
				tm := parseTimestamp(s)
				setTimesField(frames, func(t *model.Times) { t.LastMod = tm })
			case "LastAccessTime":
				tm := parseTimestamp(s)
				setTimesField(frames, func(t *model.Times) { t.LastAccess = tm })
			case "ExpiryTime":
				tm := parseTimestamp(s)
				setTimesField(frames, func(t *model.Times) { t.ExpiryTime = tm })
			case "LocationChanged":
				tm := parseTimestamp(s)
				setTimesField(frames, func(t *model.Times) { t.LocationChanged = tm })
			case "UsageCount":
				if v, err := strconv.ParseInt(s, 10, 64); err == nil {
					setTimesField(frames, func(t *model.Times) { t.UsageCount = v })
				}
			case "Enabled":
				if top, ok := currentAutoType(frames); ok {
					top.Enabled = s == "True"
				}
			case "DataTransferObfuscation":
				if v, err := strconv.ParseInt(s, 10, 64); err == nil {
					if top, ok := currentAutoType(frames); ok {
						top.DataTransferObfuscation = v
					}
				}
			case "DefaultSequence":
				if top, ok := currentAutoType(frames); ok {
					top.DefaultSequence = s
				}
			case "Window":
				if top, ok := currentAssociation(frames); ok {
					top.Window = s
				}
			case "KeystrokeSequence":
				if top, ok := currentAssociation(frames); ok {
					top.KeystrokeSequence = s
				}
			case "Group":
				finished := frames[len(frames)-1]
				frames = frames[:len(frames)-1]
				if len(frames) == 0 {
					root = finished.group
				} else if parent, ok := currentGroup(frames); ok {
					parent.AddGroup(finished.group)
				}
			case "Entry":
				finished := frames[len(frames)-1]
				frames = frames[:len(frames)-1]
				if parent, ok := currentGroup(frames); ok {
					parent.AddEntry(finished.entry)
				}
			case "String":
				finished := frames[len(frames)-1]
				frames = frames[:len(frames)-1]
				if parent, ok := currentEntry(frames); ok {
					parent.Strings = append(parent.Strings, *finished.kv)
				}
			case "AutoType":
				finished := frames[len(frames)-1]
				frames = frames[:len(frames)-1]
				if parent, ok := currentEntry(frames); ok {
					parent.AutoType = *finished.at
				}
			case "Association":
				finished := frames[len(frames)-1]
				frames = frames[:len(frames)-1]
				if parent, ok := currentAutoType(frames); ok {
					parent.Associations = append(parent.Associations, *finished.assoc)
				}
			}
		}
	}

	if root == nil {
		return nil, kerrors.New(kerrors.KindXML)
	}
	return root, nil
}

func decodeValue(text string, protected bool, inner cipher.Inner) (string, bool, error) {
	if !protected {
		return text, false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return "", false, kerrors.Wrap(kerrors.KindXML, err)
	}
	plain, err := inner.Decrypt(raw)
	if err != nil {
		return "", false, err
	}
	return string(plain), true, nil
}

func parseTimestamp(text string) model.TimestampValue {
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return model.TimestampValue{Time: t}
	}
	if raw, err := base64.StdEncoding.DecodeString(text); err == nil && len(raw) == 8 {
		ticks := int64(binary.LittleEndian.Uint64(raw))
		epoch := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
		return model.TimestampValue{Time: epoch.Add(time.Duration(ticks) * 100 * time.Nanosecond)}
	}
	return model.TimestampValue{}
}

func setTimesField(frames []frame, apply func(*model.Times)) {
	if len(frames) == 0 {
		return
	}
	switch frames[len(frames)-1].kind {
	case kindGroup:
		apply(&frames[len(frames)-1].group.Times)
	case kindEntry:
		apply(&frames[len(frames)-1].entry.Times)
	}
}

func currentGroup(frames []frame) (*model.Group, bool) {
	if len(frames) == 0 || frames[len(frames)-1].kind != kindGroup {
		return nil, false
	}
	return frames[len(frames)-1].group, true
}

func currentEntry(frames []frame) (*model.Entry, bool) {
	if len(frames) == 0 || frames[len(frames)-1].kind != kindEntry {
		return nil, false
	}
	return frames[len(frames)-1].entry, true
}

func currentString(frames []frame) (*model.KeyValue, bool) {
	if len(frames) == 0 || frames[len(frames)-1].kind != kindString {
		return nil, false
	}
	return frames[len(frames)-1].kv, true
}

func currentAutoType(frames []frame) (*model.AutoType, bool) {
	if len(frames) == 0 || frames[len(frames)-1].kind != kindAutoType {
		return nil, false
	}
	return frames[len(frames)-1].at, true
}

func currentAssociation(frames []frame) (*model.AutoTypeAssociation, bool) {
	if len(frames) == 0 || frames[len(frames)-1].kind != kindAssociation {
		return nil, false
	}
	return frames[len(frames)-1].assoc, true
}
