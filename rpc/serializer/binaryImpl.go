package serializer

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/conflux-sh/conflux/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasSubjectID     byte = 1 << 0
	hasSubjectLabels byte = 1 << 1
	hasConsistency   byte = 1 << 2
	hasPayload       byte = 1 << 3
	hasErr           byte = 1 << 4
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	// Handle SubjectID
	if msg.SubjectID != "" {
		flags |= hasSubjectID
		pos = writeString(result, pos, msg.SubjectID)
	}

	// Handle SubjectLabels; keys are written in sorted order so the same
	// message always serializes to the same bytes
	if len(msg.SubjectLabels) > 0 {
		flags |= hasSubjectLabels
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.SubjectLabels)))
		pos += 4
		keys := make([]string, 0, len(msg.SubjectLabels))
		for k := range msg.SubjectLabels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pos = writeString(result, pos, k)
			pos = writeString(result, pos, msg.SubjectLabels[k])
		}
	}

	// Handle Consistency
	if msg.Consistency > 0 {
		flags |= hasConsistency
		result[pos] = msg.Consistency
		pos++
	}

	// Handle Payload
	if msg.Payload != nil {
		flags |= hasPayload
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Payload)))
		pos += 4
		copy(result[pos:pos+len(msg.Payload)], msg.Payload)
		pos += len(msg.Payload)
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		pos = writeString(result, pos, msg.Err)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2
	var err error

	// Read SubjectID if present
	if flags&hasSubjectID != 0 {
		msg.SubjectID, pos, err = readString(data, pos, "subject id")
		if err != nil {
			return err
		}
	} else {
		msg.SubjectID = ""
	}

	// Read SubjectLabels if present
	if flags&hasSubjectLabels != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for label count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		labels := make(map[string]string, count)
		for i := uint32(0); i < count; i++ {
			var k, v string
			k, pos, err = readString(data, pos, "label key")
			if err != nil {
				return err
			}
			v, pos, err = readString(data, pos, "label value")
			if err != nil {
				return err
			}
			labels[k] = v
		}
		msg.SubjectLabels = labels
	} else {
		msg.SubjectLabels = nil
	}

	// Read Consistency if present
	if flags&hasConsistency != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for consistency byte")
		}
		msg.Consistency = data[pos]
		pos++
	} else {
		msg.Consistency = 0
	}

	// Read Payload if present
	if flags&hasPayload != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for payload length")
		}
		payloadLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		if pos+int(payloadLen) > len(data) {
			return fmt.Errorf("data too short for payload data")
		}
		// Create an empty slice (not nil) if length is 0; allocate only if needed
		if msg.Payload == nil || cap(msg.Payload) < int(payloadLen) {
			msg.Payload = make([]byte, payloadLen)
		} else {
			msg.Payload = msg.Payload[:payloadLen]
		}
		if payloadLen > 0 {
			copy(msg.Payload, data[pos:pos+int(payloadLen)])
		}
		pos += int(payloadLen)
	} else {
		msg.Payload = nil
	}

	// Read Err if present
	if flags&hasErr != 0 {
		msg.Err, pos, err = readString(data, pos, "error")
		if err != nil {
			return err
		}
	} else {
		msg.Err = ""
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.SubjectID != "" {
		size += 4 + len(msg.SubjectID)
	}
	if len(msg.SubjectLabels) > 0 {
		size += 4 // label count
		for k, v := range msg.SubjectLabels {
			size += 4 + len(k) + 4 + len(v)
		}
	}
	if msg.Consistency > 0 {
		size += 1
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

// writeString writes a 4-byte length prefix plus the string bytes at pos and
// returns the new position.
func writeString(dst []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(s)))
	pos += 4
	copy(dst[pos:pos+len(s)], s)
	return pos + len(s)
}

// readString reads a 4-byte length-prefixed string at pos, returning the
// string and the new position.
func readString(data []byte, pos int, what string) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for %s length", what)
	}
	n := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if pos+int(n) > len(data) {
		return "", pos, fmt.Errorf("data too short for %s data", what)
	}
	s := string(data[pos : pos+int(n)])
	return s, pos + int(n), nil
}
