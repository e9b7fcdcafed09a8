package client

import (
	"errors"
	"testing"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ConnectionString
		wantErr bool
	}{
		{
			name:  "device key",
			input: "HostName=hub.example.net;DeviceId=dev1;SharedAccessKey=abc=",
			want:  ConnectionString{HostName: "hub.example.net", DeviceID: "dev1", SharedAccessKey: "abc="},
		},
		{
			name:  "module through gateway",
			input: "HostName=h;DeviceId=d;ModuleId=m;SharedAccessKey=k;GatewayHostName=edge.local;",
			want:  ConnectionString{HostName: "h", DeviceID: "d", ModuleID: "m", SharedAccessKey: "k", GatewayHostName: "edge.local"},
		},
		{
			name:  "sas token",
			input: "HostName=h;DeviceId=d;SharedAccessSignature=SharedAccessSignature sr=h%2Fdevices%2Fd&sig=x&se=1",
			want:  ConnectionString{HostName: "h", DeviceID: "d", SharedAccessSignature: "SharedAccessSignature sr=h%2Fdevices%2Fd&sig=x&se=1"},
		},
		{name: "missing host", input: "DeviceId=d;SharedAccessKey=k", wantErr: true},
		{name: "missing device", input: "HostName=h;SharedAccessKey=k", wantErr: true},
		{name: "missing credential", input: "HostName=h;DeviceId=d", wantErr: true},
		{name: "both credentials", input: "HostName=h;DeviceId=d;SharedAccessKey=k;SharedAccessSignature=s", wantErr: true},
		{name: "unknown key", input: "HostName=h;DeviceId=d;SharedAccessKey=k;Color=red", wantErr: true},
		{name: "empty value", input: "HostName=;DeviceId=d;SharedAccessKey=k", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConnectionString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("ParseConnectionString() error = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConnectionString() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("ParseConnectionString() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestConnectionStringRedacts(t *testing.T) {
	cs, err := ParseConnectionString("HostName=h;DeviceId=d;SharedAccessKey=secret")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cs.String(), "HostName=h;DeviceId=d;SharedAccessKey=***"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
