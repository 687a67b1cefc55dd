package activity

import "google.golang.org/protobuf/encoding/protowire"

// EncodeSnapshot serializes s as a protobuf message by hand, using the
// low-level protowire encoder directly rather than a generated
// .pb.go, since this message's shape is small and fixed and owned
// entirely by this package. Field numbers match the Snapshot struct
// field order.
func EncodeSnapshot(s Snapshot) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Thread))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, s.ConnDead)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, s.EmptyRQ)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, s.LongRQ)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, s.TasksW)
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, s.CtxSw)
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, s.PoolFail)
	return b
}

// DecodeSnapshot parses bytes produced by EncodeSnapshot.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]
		v, n := protowire.ConsumeVarint(b)
		if typ != protowire.VarintType || n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case 1:
			s.Thread = int(v)
		case 2:
			s.ConnDead = v
		case 3:
			s.EmptyRQ = v
		case 4:
			s.LongRQ = v
		case 5:
			s.TasksW = v
		case 6:
			s.CtxSw = v
		case 7:
			s.PoolFail = v
		}
	}
	return s, nil
}

// EncodeAll serializes every snapshot as a length-prefixed sequence of
// individually-encoded messages, forming a simple repeated-message
// wire export consumable by an external stats scraper.
func EncodeAll(snaps []Snapshot) []byte {
	var out []byte
	for _, s := range snaps {
		msg := EncodeSnapshot(s)
		out = protowire.AppendVarint(out, uint64(len(msg)))
		out = append(out, msg...)
	}
	return out
}
