package jsoncodec

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestCodec_Registered(t *testing.T) {
	if encoding.GetCodec(Name) == nil {
		t.Fatalf("codec %q not registered", Name)
	}
}

func TestCodec_EmptyPayloadLeavesZeroValue(t *testing.T) {
	var v struct{ Token string }
	if err := (Codec{}).Unmarshal(nil, &v); err != nil {
		t.Fatalf("Unmarshal(nil) error = %v", err)
	}
	if v.Token != "" {
		t.Fatalf("Token = %q, want empty", v.Token)
	}
}

func TestCodec_RejectsUnsupportedValue(t *testing.T) {
	if _, err := (Codec{}).Marshal(make(chan int)); err == nil {
		t.Fatal("Marshal(chan) error = nil, want failure")
	}
}
