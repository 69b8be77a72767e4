package flagx

import (
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value kept",
			args:    []string{"-d", "postgres://vault", "-x", "1"},
			allowed: []string{"-d", "-a"},
			want:    []string{"-d", "postgres://vault"},
		},
		{
			name:    "equals form kept as one token",
			args:    []string{"-config=vault.json", "-x", "1"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-config=vault.json"},
		},
		{
			name:    "order preserved across allowed flags",
			args:    []string{"-a", ":8080", "-junk", "v", "-d", "postgres://vault"},
			allowed: []string{"-a", "-d"},
			want:    []string{"-a", ":8080", "-d", "postgres://vault"},
		},
		{
			name:    "foreign flags and positionals dropped",
			args:    []string{"-x", "1", "-y=2", "positional"},
			allowed: []string{"-c", "-config"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value survives",
			args:    []string{"-c"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "dash-starting token is not consumed as value",
			args:    []string{"-c", "-config=alt.json"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-c", "-config=alt.json"},
		},
		{
			name:    "equals value may itself start with a dash",
			args:    []string{"-config=--odd.json"},
			allowed: []string{"-config"},
			want:    []string{"-config=--odd.json"},
		},
		{
			name:    "repeated flag kept in order",
			args:    []string{"-c", "one.json", "-c", "two.json"},
			allowed: []string{"-c"},
			want:    []string{"-c", "one.json", "-c", "two.json"},
		},
		{
			name:    "empty args",
			args:    []string{},
			allowed: []string{"-c"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilterArgs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short form", func(t *testing.T) {
		os.Args = []string{"vaultcore", "-c", "/etc/vault/short.json"}
		assert.Equal(t, "/etc/vault/short.json", JsonConfigFlags())
	})

	t.Run("long form", func(t *testing.T) {
		os.Args = []string{"vaultcore", "-config", "/etc/vault/long.json"}
		assert.Equal(t, "/etc/vault/long.json", JsonConfigFlags())
	})

	t.Run("server flags are ignored", func(t *testing.T) {
		os.Args = []string{"vaultcore", "-a", ":8080", "-d", "postgres://vault"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("last occurrence wins", func(t *testing.T) {
		os.Args = []string{"vaultcore", "-c", "/etc/vault/1.json", "-config", "/etc/vault/2.json"}
		assert.Equal(t, "/etc/vault/2.json", JsonConfigFlags())
	})
}
