package flagx

import (
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
			name:    "separate value",
			args:    []string{"-a", "http://x", "-c", "conf.toml", "-z"},
			allowed: []string{"-c"},
			want:    []string{"-c", "conf.toml"},
		},
		{
			name:    "combined value",
			args:    []string{"-config=conf.json", "-a", "b"},
			allowed: []string{"-config"},
			want:    []string{"-config=conf.json"},
		},
		{
			name:    "flag without value",
			args:    []string{"-push", "-a", "x"},
			allowed: []string{"-push"},
			want:    []string{"-push"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "x"},
			allowed: nil,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, "a.toml", ConfigFile([]string{"-x", "1", "-c", "a.toml"}))
	assert.Equal(t, "b.json", ConfigFile([]string{"-config=b.json"}))
	assert.Equal(t, "", ConfigFile([]string{"-a", "x"}))
}
