// Package htx implements the typed-block internal representation of an
// HTTP message shared by the H1 and H2 multiplexers, so that a message
// parsed off one wire format can be reformatted to the other without
// either mux understanding the other's syntax.
package htx

// BlockType tags each block in a message (spec.md 4 "HTX message").
type BlockType int

const (
	ReqSL BlockType = iota // request start line {method, path, version}
	ResSL                  // response start line {version, status, reason}
	Hdr                    // one header field
	Tlr                    // one trailer field
	EOH                    // end of headers
	EOT                    // end of trailers
	EOM                    // end of message
	Data                   // body bytes
)

func (t BlockType) String() string {
	switch t {
	case ReqSL:
		return "REQ_SL"
	case ResSL:
		return "RES_SL"
	case Hdr:
		return "HDR"
	case Tlr:
		return "TLR"
	case EOH:
		return "EOH"
	case EOT:
		return "EOT"
	case EOM:
		return "EOM"
	case Data:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// StartLine carries the parsed pieces of a request or response start
// line; only the fields relevant to the block's type are populated.
type StartLine struct {
	Method  string
	Path    string
	Version string
	Status  int
	Reason  string
}

// Header is a single name/value pair, used for both Hdr and Tlr blocks.
type Header struct {
	Name  string
	Value string
}

// Block is one entry of a Message's block list. Exactly one of
// StartLine, Header, or Data is meaningful, selected by Type.
type Block struct {
	Type      BlockType
	StartLine StartLine
	Header    Header
	Data      []byte
}

// Flags carried alongside a message, surfaced to the muxes so they can
// make connection-mode / H2 translation decisions without re-deriving
// them from the block list.
type Flags uint32

const (
	FlagErr Flags = 1 << iota
)

// Message is an ordered, append-at-tail / consume-at-head list of
// typed blocks. It owns no buffer itself; code that needs zero-copy
// exchange swaps the Blocks slice (and, at the mux layer, the backing
// buf.Buffer) between two Messages instead of copying block contents.
type Message struct {
	Blocks []Block
	Flags  Flags
}

// New returns an empty message.
func New() *Message { return &Message{} }

// Reset empties the message, retaining the underlying slice capacity.
func (m *Message) Reset() {
	m.Blocks = m.Blocks[:0]
	m.Flags = 0
}

// Len returns the number of blocks currently held.
func (m *Message) Len() int { return len(m.Blocks) }

// AddReqSL appends a request start-line block.
func (m *Message) AddReqSL(method, path, version string) {
	m.Blocks = append(m.Blocks, Block{Type: ReqSL, StartLine: StartLine{Method: method, Path: path, Version: version}})
}

// AddResSL appends a response start-line block.
func (m *Message) AddResSL(version string, status int, reason string) {
	m.Blocks = append(m.Blocks, Block{Type: ResSL, StartLine: StartLine{Version: version, Status: status, Reason: reason}})
}

// AddHeader appends a header block.
func (m *Message) AddHeader(name, value string) {
	m.Blocks = append(m.Blocks, Block{Type: Hdr, Header: Header{Name: name, Value: value}})
}

// AddTrailer appends a trailer block.
func (m *Message) AddTrailer(name, value string) {
	m.Blocks = append(m.Blocks, Block{Type: Tlr, Header: Header{Name: name, Value: value}})
}

// AddEOH appends an end-of-headers marker.
func (m *Message) AddEOH() { m.Blocks = append(m.Blocks, Block{Type: EOH}) }

// AddEOT appends an end-of-trailers marker.
func (m *Message) AddEOT() { m.Blocks = append(m.Blocks, Block{Type: EOT}) }

// AddEOM appends an end-of-message marker.
func (m *Message) AddEOM() { m.Blocks = append(m.Blocks, Block{Type: EOM}) }

// AddData appends a body block. The caller retains ownership of data; it
// is not copied.
func (m *Message) AddData(data []byte) {
	m.Blocks = append(m.Blocks, Block{Type: Data, Data: data})
}

// PopFront removes and returns the oldest block, or (Block{}, false) if
// the message is empty — the "consume at head" side of the contract.
func (m *Message) PopFront() (Block, bool) {
	if len(m.Blocks) == 0 {
		return Block{}, false
	}
	b := m.Blocks[0]
	m.Blocks = m.Blocks[1:]
	return b, true
}

// HasEOM reports whether the message's block list contains an EOM
// block anywhere, meaning it is complete.
func (m *Message) HasEOM() bool {
	for i := len(m.Blocks) - 1; i >= 0; i-- {
		if m.Blocks[i].Type == EOM {
			return true
		}
	}
	return false
}

// FindHeader returns the value of the first Hdr block matching name
// (case-insensitive), and whether it was found.
func (m *Message) FindHeader(name string) (string, bool) {
	for _, b := range m.Blocks {
		if b.Type == Hdr && equalFold(b.Header.Name, name) {
			return b.Header.Value, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Swap exchanges the block lists of two messages in O(1), the
// zero-copy exchange the spec calls for when handing a fully-parsed
// message to another layer without reallocating.
func Swap(a, b *Message) {
	a.Blocks, b.Blocks = b.Blocks, a.Blocks
	a.Flags, b.Flags = b.Flags, a.Flags
}
