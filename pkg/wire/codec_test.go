package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name: "event with properties",
			frame: Frame{
				Kind:            KindEvent,
				Seq:             1,
				Payload:         []byte(`{"temp":21.5}`),
				Properties:      map[string]string{"alert": "false"},
				MessageID:       "msg-1",
				ContentType:     "application/json",
				ContentEncoding: "utf-8",
			},
		},
		{
			name: "method response",
			frame: Frame{
				Kind:     KindMethodResponse,
				Seq:      7,
				Payload:  []byte(`{}`),
				MethodID: "rid-42",
				Status:   200,
			},
		},
		{
			name: "upload block",
			frame: Frame{
				Kind:        KindUploadBlock,
				Seq:         3,
				Payload:     []byte("chunk"),
				Destination: "logs/device.txt",
				BlockIndex:  2,
			},
		},
		{
			name:  "twin get",
			frame: Frame{Kind: KindTwinGet},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeFrame(&tt.frame)
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}

			got, err := DecodeFrame(data)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}

			if got.Kind != tt.frame.Kind || got.Seq != tt.frame.Seq {
				t.Errorf("header = %s/%d, want %s/%d", got.Kind, got.Seq, tt.frame.Kind, tt.frame.Seq)
			}
			if !bytes.Equal(got.Payload, tt.frame.Payload) {
				t.Errorf("Payload = %q, want %q", got.Payload, tt.frame.Payload)
			}
			if got.MethodID != tt.frame.MethodID || got.Status != tt.frame.Status {
				t.Errorf("method = %s/%d, want %s/%d", got.MethodID, got.Status, tt.frame.MethodID, tt.frame.Status)
			}
			if got.Destination != tt.frame.Destination || got.BlockIndex != tt.frame.BlockIndex {
				t.Errorf("upload = %s/%d, want %s/%d", got.Destination, got.BlockIndex, tt.frame.Destination, tt.frame.BlockIndex)
			}
			if len(got.Properties) != len(tt.frame.Properties) {
				t.Errorf("Properties = %v, want %v", got.Properties, tt.frame.Properties)
			}
		})
	}
}

func TestEncodeFrameValidation(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr error
	}{
		{"unknown kind", Frame{Kind: KindUnknown}, ErrInvalidKind},
		{"event without seq", Frame{Kind: KindEvent}, ErrMissingSeq},
		{"method response without id", Frame{Kind: KindMethodResponse, Seq: 1}, ErrMissingField},
		{"disposition without id", Frame{Kind: KindDisposition}, ErrMissingField},
		{"upload without destination", Frame{Kind: KindUploadBlock, Seq: 1}, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(&tt.frame)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EncodeFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeterministicEncoding(t *testing.T) {
	frame := Frame{
		Kind:       KindEvent,
		Seq:        9,
		Properties: map[string]string{"b": "2", "a": "1", "c": "3"},
	}

	first, err := EncodeFrame(&frame)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := EncodeFrame(&frame)
		if err != nil {
			t.Fatalf("EncodeFrame() error = %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestPeekKind(t *testing.T) {
	data, err := EncodeFrame(&Frame{Kind: KindTwinReport, Seq: 5, Payload: []byte(`{"fw":"1.2"}`)})
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}

	kind, err := PeekKind(data)
	if err != nil {
		t.Fatalf("PeekKind() error = %v", err)
	}
	if kind != KindTwinReport {
		t.Errorf("PeekKind() = %s, want TWIN_REPORT", kind)
	}

	if _, err := PeekKind([]byte{0xff, 0x00}); err == nil {
		t.Error("PeekKind() expected error for garbage input")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindEvent, "EVENT"},
		{KindTwinReport, "TWIN_REPORT"},
		{KindMethodResponse, "METHOD_RESPONSE"},
		{KindTwinGet, "TWIN_GET"},
		{KindDisposition, "DISPOSITION"},
		{KindUploadBlock, "UPLOAD_BLOCK"},
		{KindUploadCommit, "UPLOAD_COMMIT"},
		{Kind(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAckStatus(t *testing.T) {
	if !AckOK.IsSuccess() {
		t.Error("AckOK.IsSuccess() = false, want true")
	}
	for _, s := range []AckStatus{AckError, AckTimeout, AckDeviceDisabled} {
		if s.IsSuccess() {
			t.Errorf("%s.IsSuccess() = true, want false", s)
		}
	}
}
