package field

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteTo serializes the node's active set as an entry count followed by
// (index, value) pairs, little endian. Derivatives and flags are transient
// and are not persisted; a finalize pipeline restores them after reading.
func (n *Node) WriteTo(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(n.Entries))); err != nil {
		return err
	}
	for i := range n.Entries {
		if err := binary.Write(w, binary.LittleEndian, int32(n.Entries[i].Index)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, n.Entries[i].Value); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom replaces the node's active set with the serialized one.
func (n *Node) ReadFrom(r io.Reader) error {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("negative entry count %d", count)
	}
	n.Clear()
	for e := int32(0); e < count; e++ {
		var idx int32
		var v float64
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return err
		}
		n.SetValue(int(idx), v)
	}
	return nil
}
