// File: address/address.go
//
// Name resolution for local IPC endpoints. Pure validation and
// classification, no OS interaction: the backend decides at bind/dial time
// whether it can serve the resolved variant.

package address

import (
	"strings"

	"github.com/osipc/localsock/api"
)

// Kind selects one of the three address variants.
type Kind int

const (
	// KindAuto classifies the raw name: the named-pipe prefix selects
	// KindPipe, a leading '@' selects KindAbstract, anything else KindPath.
	KindAuto Kind = iota
	// KindPath is a Unix filesystem socket path.
	KindPath
	// KindAbstract is a Linux abstract-namespace name (no filesystem entry).
	KindAbstract
	// KindPipe is a Windows named-pipe path.
	KindPipe
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindAbstract:
		return "abstract"
	case KindPipe:
		return "pipe"
	default:
		return "auto"
	}
}

// PipePrefix is the namespace every Windows named pipe lives under.
const PipePrefix = `\\.\pipe\`

// abstractMarker prefixes abstract names in their textual form. On the wire
// the marker becomes the leading NUL of the socket address.
const abstractMarker = '@'

// maxSunPath is the shortest sockaddr_un payload across supported systems,
// minus the terminating NUL.
const maxSunPath = 107

// maxPipeName bounds the segment after PipePrefix.
const maxPipeName = 247

// Addr is one resolved, validated endpoint identifier. Immutable value.
type Addr struct {
	kind Kind
	name string // variant payload: path, abstract name sans marker, or pipe segment
}

// Kind returns the resolved variant.
func (a Addr) Kind() Kind { return a.kind }

// Name returns the variant payload: the filesystem path, the abstract name
// without its marker, or the pipe name without the namespace prefix.
func (a Addr) Name() string { return a.name }

// String renders the canonical textual form.
func (a Addr) String() string {
	switch a.kind {
	case KindAbstract:
		return string(abstractMarker) + a.name
	case KindPipe:
		return PipePrefix + a.name
	default:
		return a.name
	}
}

// IsZero reports whether a is the zero Addr.
func (a Addr) IsZero() bool { return a.name == "" && a.kind == KindAuto }

// Resolve validates raw against the rules of the requested kind and returns
// the address variant. With KindAuto the kind is inferred from the shape of
// raw. Violations fail with api.ErrInvalidName.
func Resolve(raw string, kind Kind) (Addr, error) {
	if kind == KindAuto {
		kind = classify(raw)
	}
	switch kind {
	case KindPath:
		return resolvePath(raw)
	case KindAbstract:
		return resolveAbstract(raw)
	case KindPipe:
		return resolvePipe(raw)
	default:
		return Addr{}, api.NewOpError("resolve", raw, api.ErrInvalidName, nil)
	}
}

func classify(raw string) Kind {
	switch {
	case strings.HasPrefix(raw, PipePrefix):
		return KindPipe
	case len(raw) > 0 && raw[0] == abstractMarker:
		return KindAbstract
	default:
		return KindPath
	}
}

func resolvePath(raw string) (Addr, error) {
	if raw == "" {
		return Addr{}, invalid(raw, "empty path")
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return Addr{}, invalid(raw, "NUL byte in path clashes with abstract-namespace marker")
	}
	if len(raw) > maxSunPath {
		return Addr{}, invalid(raw, "path exceeds socket address limit")
	}
	return Addr{kind: KindPath, name: raw}, nil
}

func resolveAbstract(raw string) (Addr, error) {
	name := raw
	if len(name) > 0 && name[0] == abstractMarker {
		name = name[1:]
	}
	if name == "" {
		return Addr{}, invalid(raw, "empty abstract name")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return Addr{}, invalid(raw, "NUL byte in abstract name")
	}
	if len(name) > maxSunPath {
		return Addr{}, invalid(raw, "abstract name exceeds socket address limit")
	}
	return Addr{kind: KindAbstract, name: name}, nil
}

func resolvePipe(raw string) (Addr, error) {
	name := strings.TrimPrefix(raw, PipePrefix)
	if name == "" {
		return Addr{}, invalid(raw, "empty pipe name")
	}
	if strings.ContainsAny(name, `\/`) {
		return Addr{}, invalid(raw, "pipe name must be a single segment")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return Addr{}, invalid(raw, "NUL byte in pipe name")
	}
	if len(name) > maxPipeName {
		return Addr{}, invalid(raw, "pipe name too long")
	}
	return Addr{kind: KindPipe, name: name}, nil
}

func invalid(raw, why string) error {
	return api.NewOpError("resolve", raw, api.ErrInvalidName, errorString(why))
}

// errorString keeps the reason allocation-free at the call sites above.
type errorString string

func (e errorString) Error() string { return string(e) }
