package serializer

import (
	"reflect"
	"testing"

	"github.com/conflux-sh/conflux/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTWrite},

		// Write request carrying an encoded command
		{
			MsgType:   common.MsgTWrite,
			SubjectID: "alice",
			Payload:   []byte("encoded-command-bytes"),
		},

		// Read request with labels and a consistency level
		{
			MsgType:       common.MsgTRead,
			SubjectID:     "bob",
			SubjectLabels: map[string]string{"canary": "true", "region": "eu"},
			Consistency:   2,
			Payload:       []byte("encoded-query-bytes"),
		},

		// Forwarded command
		{
			MsgType: common.MsgTForward,
			Payload: []byte("relayed-command-bytes"),
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Message with all fields filled
		{
			MsgType:       common.MsgTAdmin,
			SubjectID:     "operator",
			SubjectLabels: map[string]string{"role": "admin"},
			Consistency:   1,
			Payload:       []byte(`{"op":"metrics"}`),
			Err:           "",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test MsgTUnknown since the JSON
			// codec rejects it by design)
			for msgType := common.MsgTError; msgType <= common.MsgTAdmin; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty strings and zero values",
			msg: common.Message{
				MsgType:     common.MsgTWrite,
				SubjectID:   "",
				Consistency: 0,
				Payload:     []byte{},
				Err:         "",
			},
		},
		{
			name: "Message with empty payload slice but not nil",
			msg: common.Message{
				MsgType:   common.MsgTRead,
				SubjectID: "test",
				Payload:   []byte{},
			},
		},
		{
			name: "Message with labels only",
			msg: common.Message{
				MsgType:       common.MsgTRead,
				SubjectLabels: map[string]string{"a": "1"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if tc.msg.SubjectID != result.SubjectID {
				t.Errorf("SubjectID mismatch: expected '%s', got '%s'", tc.msg.SubjectID, result.SubjectID)
			}
			if tc.msg.Consistency != result.Consistency {
				t.Errorf("Consistency mismatch: expected %d, got %d", tc.msg.Consistency, result.Consistency)
			}
			if tc.msg.Err != result.Err {
				t.Errorf("Err mismatch: expected '%s', got '%s'", tc.msg.Err, result.Err)
			}
			if tc.msg.MsgType != result.MsgType {
				t.Errorf("MsgType mismatch: expected %v, got %v", tc.msg.MsgType, result.MsgType)
			}

			// Special handling for byte slices that may be nil or empty
			if (tc.msg.Payload == nil) != (result.Payload == nil) {
				t.Errorf("Payload nil/non-nil mismatch: expected %v, got %v", tc.msg.Payload, result.Payload)
			} else if len(tc.msg.Payload) != len(result.Payload) {
				t.Errorf("Payload length mismatch: expected %d, got %d", len(tc.msg.Payload), len(result.Payload))
			}

			// Labels compare by content; nil and absent are equivalent
			if len(tc.msg.SubjectLabels) != len(result.SubjectLabels) {
				t.Errorf("SubjectLabels length mismatch: expected %d, got %d",
					len(tc.msg.SubjectLabels), len(result.SubjectLabels))
			}
			for k, v := range tc.msg.SubjectLabels {
				if result.SubjectLabels[k] != v {
					t.Errorf("SubjectLabels[%s] mismatch: expected %q, got %q", k, v, result.SubjectLabels[k])
				}
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for subject id",
			data:        []byte{1, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for payload",
			data:        []byte{1, 8, 0, 0, 0, 10}, // Claims payload length 10 but no bytes provided
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
