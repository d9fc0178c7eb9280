package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeRequest,
		MessageID: 12345,
		BodyLen:   11,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decodedHeader, decodedBody, err := Decode(&buf, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decodedHeader.CodecType != header.CodecType {
		t.Errorf("CodecType mismatch: got %d, want %d", decodedHeader.CodecType, header.CodecType)
	}
	if decodedHeader.MsgType != header.MsgType {
		t.Errorf("MsgType mismatch: got %d, want %d", decodedHeader.MsgType, header.MsgType)
	}
	if decodedHeader.MessageID != header.MessageID {
		t.Errorf("MessageID mismatch: got %d, want %d", decodedHeader.MessageID, header.MessageID)
	}
	if decodedHeader.BodyLen != header.BodyLen {
		t.Errorf("BodyLen mismatch: got %d, want %d", decodedHeader.BodyLen, header.BodyLen)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", string(decodedBody), string(body))
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	invalidHeader := []byte{
		0x00, 0x00, 0x00, Version, CodecTypeJSON, byte(MsgTypeRequest),
		0, 0, 0, 0, 0, 0, 0x30, 0x39, // messageID = 12345
		0, 0, 0, 0x0B, // bodyLen = 11
	}
	var buf bytes.Buffer
	buf.Write(invalidHeader)
	buf.Write([]byte("hello world"))

	_, _, err := Decode(&buf, 0)
	if err == nil {
		t.Fatal("expected error for invalid magic number, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("invalid magic number")) {
		t.Errorf("error message should contain 'invalid magic number', got: %v", err)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeHeartbeat,
		MessageID: PingMessageID,
		BodyLen:   0,
	}
	var buf bytes.Buffer
	if err := Encode(&buf, &header, []byte{}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decodedHeader, decodedBody, err := Decode(&buf, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedHeader.MsgType != MsgTypeHeartbeat {
		t.Errorf("MsgType mismatch: got %d, want %d", decodedHeader.MsgType, MsgTypeHeartbeat)
	}
	if decodedHeader.MessageID != PingMessageID {
		t.Errorf("MessageID mismatch: got %d, want 0", decodedHeader.MessageID)
	}
	if decodedHeader.BodyLen != 0 {
		t.Errorf("BodyLen mismatch: got %d, want 0", decodedHeader.BodyLen)
	}
	if len(decodedBody) != 0 {
		t.Errorf("expected empty body, got length %d", len(decodedBody))
	}
}

func TestDecodeInvalidVersion(t *testing.T) {
	var buf bytes.Buffer

	invalidFrame := []byte{
		MagicNumber, MagicByte2, MagicByte3,
		0xFF, // invalid version
		CodecTypeJSON,
		byte(MsgTypeRequest),
		0, 0, 0, 0, 0, 0, 0, 1, // messageID
		0, 0, 0, 0, // bodyLen
	}
	buf.Write(invalidFrame)

	_, _, err := Decode(&buf, 0)
	if err == nil {
		t.Fatal("expected error for invalid version, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("unsupported version")) {
		t.Errorf("error message should contain 'unsupported version', got: %v", err)
	}
}

func TestDecodeLargeBody(t *testing.T) {
	var buf bytes.Buffer

	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	header := &Header{
		CodecType: CodecTypeBinary,
		MsgType:   MsgTypeRequest,
		MessageID: 999,
		BodyLen:   uint32(len(largeBody)),
	}

	if err := Encode(&buf, header, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, decodedBody, err := Decode(&buf, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedBody, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestDecodeExceedsMaxMessageLength(t *testing.T) {
	var buf bytes.Buffer
	header := &Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeRequest,
		MessageID: 1,
		BodyLen:   100,
	}
	if err := Encode(&buf, header, make([]byte, 100)); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, _, err := Decode(&buf, 10)
	if err == nil {
		t.Fatal("expected error for body exceeding max message length, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("exceeds max")) {
		t.Errorf("error message should contain 'exceeds max', got: %v", err)
	}
}
