package docker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name    string
		creds   []string
		want    map[string]RegistryCredentials
		wantErr bool
	}{
		{
			name:  "single credential",
			creds: []string{"quay.example.com:robot:secret"},
			want:  map[string]RegistryCredentials{"quay.example.com": {Username: "robot", Password: "secret"}},
		},
		{
			name:  "password with colons",
			creds: []string{"registry1.dso.mil:user:pa:ss"},
			want:  map[string]RegistryCredentials{"registry1.dso.mil": {Username: "user", Password: "pa:ss"}},
		},
		{
			name:  "no credentials",
			creds: nil,
			want:  map[string]RegistryCredentials{},
		},
		{
			name:    "missing password",
			creds:   []string{"quay.example.com:robot"},
			wantErr: true,
		},
		{
			name:    "empty username",
			creds:   []string{"quay.example.com::secret"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCredentials(tt.creds)
			if tt.wantErr {
				require.ErrorIs(t, err, errInvalidCredential)
				require.NotContains(t, err.Error(), "secret")
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCredentials() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateConfigText(t *testing.T) {
	type args struct {
		credentialsMap map[string]RegistryCredentials
	}
	tests := []struct {
		name    string
		args    args
		want    string
		wantErr bool
	}{
		{
			name: "single credential",
			args: args{
				credentialsMap: map[string]RegistryCredentials{
					"example.com": {
						Username: "user",
						Password: "pass",
					},
				},
			},
			want:    `{"auths":{"example.com":{"username":"user","password":"pass","auth":"dXNlcjpwYXNz"}}}`,
			wantErr: false,
		},
		{
			name: "multiple credentials",
			args: args{
				credentialsMap: map[string]RegistryCredentials{
					"example.com": {
						Username: "user1",
						Password: "pass1",
					},
					"example.org": {
						Username: "user2",
						Password: "pass2",
					},
				},
			},
			want:    `{"auths":{"example.com":{"username":"user1","password":"pass1","auth":"dXNlcjE6cGFzczE="},"example.org":{"username":"user2","password":"pass2","auth":"dXNlcjI6cGFzczI="}}}`,
			wantErr: false,
		},
		{
			name: "empty credentials map",
			args: args{
				credentialsMap: map[string]RegistryCredentials{},
			},
			want:    `{"auths":{}}`,
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateConfigText(tt.args.credentialsMap)
			if (err != nil) != tt.wantErr {
				t.Errorf("GenerateConfigText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("GenerateConfigText() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteConfigToTempDir(t *testing.T) {
	type args struct {
		configText string
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name: "valid config text",
			args: args{
				configText: `{"auths":{"example.com":{"username":"user","password":"pass"}}}`,
			},
			wantErr: false,
		},
		{
			name: "empty config text",
			args: args{
				configText: "",
			},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WriteConfigToTempDir(tt.args.configText)
			if (err != nil) != tt.wantErr {
				t.Errorf("WriteConfigToTempDir() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			defer os.RemoveAll(filepath.Dir(got))

			if filepath.Base(got) != ConfigFileName {
				t.Errorf("WriteConfigToTempDir() = %v, want a %s file", got, ConfigFileName)
			}
			b, err := os.ReadFile(got)
			if err != nil {
				t.Fatalf("WriteConfigToTempDir() file not readable: %v", err)
			}
			if string(b) != tt.args.configText {
				t.Errorf("WriteConfigToTempDir() wrote %q, want %q", b, tt.args.configText)
			}
		})
	}
}
