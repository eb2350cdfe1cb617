package ramus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Meta is the per-contents metadata carried by a node entry, a mode
// word in the git tradition. Node entries carry meta zero.
type Meta uint32

// DefaultMeta is assumed for contents stored without explicit metadata.
const DefaultMeta Meta = 0o644

// Value is a raw contents payload together with its metadata.
type Value struct {
	Meta Meta
	Data []byte
}

// Entry is one child reference inside a Node: a step bound to either a
// contents key or a sub-node key. Entry order is insertion order and is
// part of the node's identity.
type Entry struct {
	Step Step
	Kind Kind
	Key  Key
	Meta Meta
}

// Commit is an immutable snapshot: a root node plus parent links.
type Commit struct {
	Root    Key
	Parents []Key
	Info    CommitInfo
}

// CommitInfo is the commit metadata. Time is stored as unix seconds in
// UTC, so identical (root, parents, info) always digest to the same key.
type CommitInfo struct {
	Author  string
	Message string
	Time    time.Time
}

// Objects are serialized with a git-style envelope so that stored bytes
// are self-describing:
//
//	"<kind> <bodylen>\x00<body>"
//
// The digest behind a Key is taken over the whole envelope.

func encodeObject(kind Kind, body []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", kind, len(body))
	buf := make([]byte, len(header)+len(body))
	copy(buf, header)
	copy(buf[len(header):], body)
	return buf
}

func decodeObject(data []byte) (Kind, []byte, error) {
	i := bytes.IndexByte(data, 0)
	if i == -1 {
		return 0, nil, fmt.Errorf("corrupt object: missing header terminator")
	}
	header := string(data[:i])
	body := data[i+1:]

	var name string
	var size int
	if _, err := fmt.Sscanf(header, "%s %d", &name, &size); err != nil {
		return 0, nil, fmt.Errorf("corrupt object: bad header %q", header)
	}
	kind, ok := kindFromHeader(name)
	if !ok {
		return 0, nil, fmt.Errorf("corrupt object: unknown kind %q", name)
	}
	if size != len(body) {
		return 0, nil, fmt.Errorf("corrupt object: header says %d bytes, body has %d", size, len(body))
	}
	return kind, body, nil
}

// Node body: a flat sequence of entries in insertion order.
// Entry layout (big endian): kind u8, meta u32, encoded key, step
// length u16, step bytes. Key length is fixed by the configured hasher.

func encodeNode(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Kind != KindContents && e.Kind != KindNode {
			return nil, fmt.Errorf("node entry %q: kind %s not allowed in a node", e.Step, e.Kind)
		}
		if e.Key.Kind() != e.Kind {
			return nil, fmt.Errorf("node entry %q: key kind %s does not match entry kind %s", e.Step, e.Key.Kind(), e.Kind)
		}
		if err := checkStep(e.Step); err != nil {
			return nil, err
		}
		buf.WriteByte(byte(e.Kind))
		binary.Write(&buf, binary.BigEndian, uint32(e.Meta))
		buf.Write(e.Key.Bytes())
		binary.Write(&buf, binary.BigEndian, uint16(len(e.Step)))
		buf.WriteString(e.Step)
	}
	return buf.Bytes(), nil
}

func decodeNode(body []byte, keySize int) ([]Entry, error) {
	var entries []Entry
	r := bytes.NewReader(body)

	for r.Len() > 0 {
		var e Entry

		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)

		var meta uint32
		if err := binary.Read(r, binary.BigEndian, &meta); err != nil {
			return nil, err
		}
		e.Meta = Meta(meta)

		keyBuf := make([]byte, keySize)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return nil, err
		}
		e.Key, err = KeyFromBytes(keyBuf)
		if err != nil {
			return nil, err
		}
		if e.Key.Kind() != e.Kind {
			return nil, fmt.Errorf("corrupt node: entry kind %s, key kind %s", e.Kind, e.Key.Kind())
		}

		var stepLen uint16
		if err := binary.Read(r, binary.BigEndian, &stepLen); err != nil {
			return nil, err
		}
		stepBuf := make([]byte, stepLen)
		if _, err := io.ReadFull(r, stepBuf); err != nil {
			return nil, err
		}
		e.Step = string(stepBuf)

		entries = append(entries, e)
	}

	return entries, nil
}

// Commit body layout (big endian): root key, parent count u16, parent
// keys, unix seconds i64, author length u16 + author, message length
// u32 + message.

func encodeCommit(c Commit) ([]byte, error) {
	if c.Root.Kind() != KindNode {
		return nil, fmt.Errorf("commit root %s is not a node key", keyOrNone(c.Root))
	}
	if len(c.Parents) > 0xffff {
		return nil, fmt.Errorf("too many parents: %d", len(c.Parents))
	}

	var buf bytes.Buffer
	buf.Write(c.Root.Bytes())
	binary.Write(&buf, binary.BigEndian, uint16(len(c.Parents)))
	for _, p := range c.Parents {
		if p.Kind() != KindCommit {
			return nil, fmt.Errorf("commit parent %s is not a commit key", keyOrNone(p))
		}
		buf.Write(p.Bytes())
	}
	binary.Write(&buf, binary.BigEndian, c.Info.Time.Unix())
	binary.Write(&buf, binary.BigEndian, uint16(len(c.Info.Author)))
	buf.WriteString(c.Info.Author)
	binary.Write(&buf, binary.BigEndian, uint32(len(c.Info.Message)))
	buf.WriteString(c.Info.Message)
	return buf.Bytes(), nil
}

func decodeCommit(body []byte, keySize int) (Commit, error) {
	var c Commit
	r := bytes.NewReader(body)

	keyBuf := make([]byte, keySize)
	if _, err := io.ReadFull(r, keyBuf); err != nil {
		return c, err
	}
	root, err := KeyFromBytes(keyBuf)
	if err != nil {
		return c, err
	}
	c.Root = root

	var parents uint16
	if err := binary.Read(r, binary.BigEndian, &parents); err != nil {
		return c, err
	}
	for range parents {
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return c, err
		}
		p, err := KeyFromBytes(keyBuf)
		if err != nil {
			return c, err
		}
		c.Parents = append(c.Parents, p)
	}

	var unix int64
	if err := binary.Read(r, binary.BigEndian, &unix); err != nil {
		return c, err
	}
	c.Info.Time = time.Unix(unix, 0).UTC()

	var authorLen uint16
	if err := binary.Read(r, binary.BigEndian, &authorLen); err != nil {
		return c, err
	}
	author := make([]byte, authorLen)
	if _, err := io.ReadFull(r, author); err != nil {
		return c, err
	}
	c.Info.Author = string(author)

	var msgLen uint32
	if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
		return c, err
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return c, err
	}
	c.Info.Message = string(msg)

	return c, nil
}
