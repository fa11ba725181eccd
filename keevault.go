// Package keevault reads KeePass password databases: the legacy KDB
// container and the KDBX3/KDBX4 container families. It decrypts and
// decodes a supplied source into a Group/Entry tree; creating or writing
// containers is out of scope.
package keevault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"keevault/internal/cipher"
	"keevault/internal/containerheader"
	"keevault/internal/containerprobe"
	"keevault/internal/credential"
	"keevault/internal/digest"
	"keevault/internal/gzipcodec"
	"keevault/internal/hmacstream"
	"keevault/internal/kdbcodec"
	"keevault/internal/kdbxml"
	"keevault/internal/kdf"
	"keevault/internal/kerrors"
	"keevault/internal/magic"
	"keevault/internal/model"
)

// outerHeaderPrefixLen is the 12-byte signature+version word prefix both
// KDBX3 and KDBX4 outer headers sit after (spec.md §4.G).
const outerHeaderPrefixLen = 12

// Re-exports of the shared data model (spec.md §3), so callers never need
// to import an internal package.
type (
	Group               = model.Group
	Entry               = model.Entry
	Times               = model.Times
	TimestampValue      = model.TimestampValue
	UuidValue           = model.UuidValue
	ColorValue          = model.ColorValue
	IconValue           = model.IconValue
	Base64Value         = model.Base64Value
	ProtectedValue      = model.ProtectedValue
	KeyValue            = model.KeyValue
	AutoType            = model.AutoType
	AutoTypeAssociation = model.AutoTypeAssociation
	Binary              = model.Binary

	OuterCipherSuite = containerheader.OuterCipher
	Compression      = containerheader.Compression
	KdfSettings      = containerheader.KDFParams
)

// HeaderKind distinguishes which of the three container shapes produced a
// Database.
type HeaderKind int

const (
	HeaderKindKDB HeaderKind = iota
	HeaderKindKDBX3
	HeaderKindKDBX4
)

// Header is the format and cryptographic parameters a container declared.
type Header struct {
	Kind        HeaderKind
	OuterCipher OuterCipherSuite
	Compression Compression
	KDF         KdfSettings
}

// InnerHeaderKind distinguishes KDBX4's inner header from its absence in
// KDB and KDBX3 containers.
type InnerHeaderKind int

const (
	InnerHeaderKindNone InnerHeaderKind = iota
	InnerHeaderKindKDBX4
)

// InnerHeader carries the KDBX4 inner-header binary attachment pool,
// resolved by index within the decoded tree's Binary values.
type InnerHeader struct {
	Kind        InnerHeaderKind
	Attachments [][]byte
}

// Database is a fully decrypted and decoded container.
type Database struct {
	Header      Header
	InnerHeader InnerHeader
	Root        *Group
}

// Close is a no-op: Database holds no open resources of its own once Open
// returns, since the whole source is drained up front.
func (d *Database) Close() error { return nil }

type options struct {
	logger             *slog.Logger
	maxXMLDepth        int
	maxAttachmentBytes int64
}

func defaultOptions() options {
	return options{
		logger:             slog.Default(),
		maxXMLDepth:        64,
		maxAttachmentBytes: 64 << 20,
	}
}

// Option configures Open.
type Option func(*options)

// WithLogger directs Open's diagnostic logging to l instead of
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxXMLDepth caps how deeply Group, Entry, String, AutoType and
// Association elements may nest in a KDBX4 XML document (default 64),
// rejecting pathologically or maliciously deep documents before the
// decoder's frame stack grows unbounded. Other elements do not count
// towards the cap, and KDBX3 documents use the decoder's own default.
func WithMaxXMLDepth(n int) Option {
	return func(o *options) { o.maxXMLDepth = n }
}

// WithMaxAttachmentBytes caps any single KDBX4 binary attachment's
// declared size (default 64 MiB), rejecting a truncated inner header
// entry that claims an oversized allocation.
func WithMaxAttachmentBytes(n int64) Option {
	return func(o *options) { o.maxAttachmentBytes = n }
}

// Open reads, decrypts, and decodes a KDB/KDBX3/KDBX4 container. Either
// passphrase or keyFile (or both) must resolve to at least one
// credential; keyFile may be nil.
func Open(source io.Reader, passphrase string, keyFile io.Reader, opts ...Option) (*Database, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger

	buf, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrIo, err)
	}

	creds := credential.New()
	if passphrase != "" {
		creds.WithPassphrase(passphrase)
	}
	if keyFile != nil {
		keyBytes, err := io.ReadAll(keyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", kerrors.ErrIo, err)
		}
		if err := creds.WithKeyFile(keyBytes); err != nil {
			return nil, err
		}
	}
	if len(creds.Parts()) == 0 {
		return nil, kerrors.New(kerrors.KindCryptoInvalidLength)
	}

	probe, err := containerprobe.Probe(buf)
	if err != nil {
		return nil, err
	}

	switch probe.Family {
	case containerprobe.FamilyKDB:
		log.Debug("opening container", "family", "kdb")
		return openKDB(buf, creds)
	case containerprobe.FamilyKDBX:
		if probe.IsKDBX4() {
			log.Debug("opening container", "family", "kdbx4")
			return openKDBX4(buf, creds, cfg)
		}
		log.Debug("opening container", "family", "kdbx3")
		return openKDBX3(buf, creds)
	default:
		return nil, kerrors.New(kerrors.KindInvalidKDBXVersion)
	}
}

func openKDB(buf []byte, creds *credential.Credentials) (*Database, error) {
	header, err := containerheader.ParseKDBFixedHeader(buf)
	if err != nil {
		return nil, err
	}

	composite, err := creds.Composite()
	if err != nil {
		return nil, err
	}
	transformed, err := kdf.TransformAESKDF(composite, header.TransformSeed, uint64(header.TransformRounds))
	if err != nil {
		return nil, err
	}
	masterKey := digest.SHA256(header.MasterSeed, transformed[:])

	outer, err := newOuterCipher(header.Cipher, masterKey[:], header.EncryptionIV)
	if err != nil {
		return nil, err
	}

	decrypted, err := outer.Decrypt(buf[magic.KDBHeaderSize:])
	if err != nil {
		return nil, err
	}

	sum := digest.SHA256(decrypted)
	if !bytes.Equal(sum[:], header.ContentsHash) {
		return nil, kerrors.ErrIncorrectKey
	}

	root, err := kdbcodec.Decode(decrypted, header.NumGroups, header.NumEntries)
	if err != nil {
		return nil, err
	}

	return &Database{
		Header: Header{
			Kind:        HeaderKindKDB,
			OuterCipher: header.Cipher,
			Compression: containerheader.CompressionNone,
			KDF: KdfSettings{
				Kind:      containerheader.KDFKindAES,
				AESSeed:   header.TransformSeed,
				AESRounds: uint64(header.TransformRounds),
			},
		},
		Root: root,
	}, nil
}

func openKDBX3(buf []byte, creds *credential.Credentials) (*Database, error) {
	if len(buf) < outerHeaderPrefixLen {
		return nil, kerrors.New(kerrors.KindIncompleteOuterHeader)
	}
	header, consumed, err := containerheader.ParseOuterHeaderKDBX3(buf[outerHeaderPrefixLen:])
	if err != nil {
		return nil, err
	}
	bodyStart := outerHeaderPrefixLen + consumed

	composite := hashedComposite(creds)
	transformed, err := kdf.TransformAESKDF(composite, header.KDF.AESSeed, header.KDF.AESRounds)
	if err != nil {
		return nil, err
	}
	masterKey := digest.SHA256(header.MasterSeed, transformed[:])

	outer, err := newOuterCipher(header.Cipher, masterKey[:], header.EncryptionIV)
	if err != nil {
		return nil, err
	}
	decrypted, err := outer.Decrypt(buf[bodyStart:])
	if err != nil {
		return nil, err
	}
	if len(decrypted) < 32 || !bytes.Equal(decrypted[:32], header.StreamStartBytes) {
		return nil, kerrors.ErrIncorrectKey
	}

	streamKey := digest.SHA256(header.ProtectedStreamKey)
	inner, err := pickInnerCipher(header.InnerRandomStreamID, streamKey[:])
	if err != nil {
		return nil, err
	}

	root, err := decodeKDBX3Blocks(decrypted[32:], header.Compression, inner)
	if err != nil {
		return nil, err
	}

	return &Database{
		Header: Header{
			Kind:        HeaderKindKDBX3,
			OuterCipher: header.Cipher,
			Compression: header.Compression,
			KDF:         header.KDF,
		},
		Root: root,
	}, nil
}

// decodeKDBX3Blocks walks the inline block sequence that follows the
// stream-start prefix. Each block is independently hash-verified,
// decompressed, and parsed as its own XML fragment; the fragment's root
// group is attached by name to a synthetic root, unless exactly one
// block was present, in which case it becomes the root outright.
func decodeKDBX3Blocks(buf []byte, compression containerheader.Compression, inner cipher.Inner) (*model.Group, error) {
	var names []string
	byName := map[string]*model.Group{}

	pos := 0
	for blockIndex := 0; ; blockIndex++ {
		if pos+40 > len(buf) {
			return nil, kerrors.Wrap(kerrors.KindShortRead, io.ErrUnexpectedEOF)
		}
		blockHash := buf[pos+4 : pos+36]
		blockSize := int(binary.LittleEndian.Uint32(buf[pos+36 : pos+40]))
		if blockSize == 0 {
			break
		}
		if pos+40+blockSize > len(buf) {
			return nil, kerrors.Wrap(kerrors.KindShortRead, io.ErrUnexpectedEOF)
		}
		blockData := buf[pos+40 : pos+40+blockSize]

		sum := digest.SHA256(blockData)
		if !bytes.Equal(sum[:], blockHash) {
			return nil, kerrors.WithIndex(kerrors.KindBlockHashMismatch, int64(blockIndex))
		}

		fragment := blockData
		if compression == containerheader.CompressionGzip {
			decompressed, err := gzipcodec.Decompress(blockData)
			if err != nil {
				return nil, err
			}
			fragment = decompressed
		}

		group, err := kdbxml.Decode(bytes.NewReader(fragment), inner, nil)
		if err != nil {
			return nil, err
		}
		if _, seen := byName[group.Name]; !seen {
			names = append(names, group.Name)
		}
		byName[group.Name] = group

		pos += 40 + blockSize
	}

	if len(byName) == 1 {
		return byName[names[0]], nil
	}

	root := &model.Group{}
	for _, name := range names {
		root.AddGroup(byName[name])
	}
	return root, nil
}

func openKDBX4(buf []byte, creds *credential.Credentials, cfg options) (*Database, error) {
	if len(buf) < outerHeaderPrefixLen {
		return nil, kerrors.New(kerrors.KindIncompleteOuterHeader)
	}
	header, consumed, err := containerheader.ParseOuterHeaderKDBX4(buf[outerHeaderPrefixLen:])
	if err != nil {
		return nil, err
	}
	pos := outerHeaderPrefixLen + consumed
	if len(buf) < pos+64 {
		return nil, kerrors.New(kerrors.KindIncompleteOuterHeader)
	}
	headerData := buf[:pos]
	headerSHA256 := buf[pos : pos+32]
	headerHMAC := buf[pos+32 : pos+64]
	blockStream := buf[pos+64:]

	composite := hashedComposite(creds)
	var transformed [32]byte
	switch header.KDF.Kind {
	case containerheader.KDFKindAES:
		transformed, err = kdf.TransformAESKDF(composite, header.KDF.AESSeed, header.KDF.AESRounds)
	case containerheader.KDFKindArgon2:
		transformed, err = kdf.TransformArgon2d(composite, kdf.Argon2Params{
			Salt:        header.KDF.Argon2Salt,
			Iterations:  header.KDF.Argon2Iterations,
			MemoryBytes: header.KDF.Argon2MemoryBytes,
			Parallelism: header.KDF.Argon2Parallelism,
			Version:     header.KDF.Argon2Version,
		})
	default:
		return nil, kerrors.New(kerrors.KindInvalidKDFUUID)
	}
	if err != nil {
		return nil, err
	}
	masterKey := digest.SHA256(header.MasterSeed, transformed[:])

	headerHash := digest.SHA256(headerData)
	if !bytes.Equal(headerHash[:], headerSHA256) {
		return nil, kerrors.New(kerrors.KindHeaderHashMismatch)
	}

	hmacRootKey := hmacstream.RootKey(header.MasterSeed, transformed[:])
	if err := hmacstream.VerifyHeaderHMAC(hmacRootKey[:], headerData, headerHMAC); err != nil {
		return nil, err
	}

	payloadEncrypted, err := hmacstream.Decode(blockStream, hmacRootKey[:])
	if err != nil {
		return nil, err
	}

	outer, err := newOuterCipher(header.Cipher, masterKey[:], header.EncryptionIV)
	if err != nil {
		return nil, err
	}
	payloadCompressed, err := outer.Decrypt(payloadEncrypted)
	if err != nil {
		return nil, err
	}

	payload := payloadCompressed
	if header.Compression == containerheader.CompressionGzip {
		payload, err = gzipcodec.Decompress(payloadCompressed)
		if err != nil {
			return nil, err
		}
	}

	innerHeader, innerConsumed, err := containerheader.ParseInnerHeaderKDBX4WithAttachmentLimit(payload, cfg.maxAttachmentBytes)
	if err != nil {
		return nil, err
	}

	inner, err := pickInnerCipher(innerHeader.RandomStreamID, innerHeader.RandomStreamKey)
	if err != nil {
		return nil, err
	}

	root, err := kdbxml.DecodeWithDepthLimit(bytes.NewReader(payload[innerConsumed:]), inner, innerHeader.Attachments, cfg.maxXMLDepth)
	if err != nil {
		return nil, err
	}

	return &Database{
		Header: Header{
			Kind:        HeaderKindKDBX4,
			OuterCipher: header.Cipher,
			Compression: header.Compression,
			KDF:         header.KDF,
		},
		InnerHeader: InnerHeader{Kind: InnerHeaderKindKDBX4, Attachments: innerHeader.Attachments},
		Root:        root,
	}, nil
}

// hashedComposite implements the KDBX3/KDBX4 composite-key rule, which
// always hashes every supplied credential together regardless of count;
// only the legacy KDB format takes a lone credential unhashed
// (credential.Credentials.Composite).
func hashedComposite(creds *credential.Credentials) []byte {
	sum := digest.SHA256(creds.Parts()...)
	return sum[:]
}

func newOuterCipher(id containerheader.OuterCipher, key, iv []byte) (cipher.Outer, error) {
	switch id {
	case containerheader.OuterCipherAES256:
		return cipher.NewOuterAES256(key, iv)
	case containerheader.OuterCipherTwofish:
		return cipher.NewOuterTwofish(key, iv)
	case containerheader.OuterCipherChaCha20:
		return cipher.NewOuterChaCha20(key, iv)
	default:
		return nil, kerrors.New(kerrors.KindInvalidOuterCipherID)
	}
}

func pickInnerCipher(streamID uint32, key []byte) (cipher.Inner, error) {
	switch streamID {
	case magic.InnerStreamPlain:
		return cipher.NewInnerPlain(), nil
	case magic.InnerStreamSalsa20:
		return cipher.NewInnerSalsa20(key), nil
	case magic.InnerStreamChaCha20:
		return cipher.NewInnerChaCha20(key)
	default:
		return nil, kerrors.WithIndex(kerrors.KindInvalidInnerCipherID, int64(streamID))
	}
}
