package envstruct_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Diego-DPL/zypace/internal/envstruct"
	"github.com/google/go-cmp/cmp"
)

type typedConfig struct {
	Addr      string        `env:"ADDR" envDefault:"localhost:0"`
	RunDays   int           `env:"RUN_DAYS" envDefault:"4"`
	Tolerance float64       `env:"TOLERANCE" envDefault:"0.25"`
	Strength  bool          `env:"STRENGTH" envDefault:"false"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
	Untagged  string
}

func TestPopulate(t *testing.T) {
	none := func(_ string) (string, bool) { return "", false }
	tests := []struct {
		name      string
		v         any
		lookupEnv func(string) (string, bool)
		want      any
		wantErr   error
	}{
		{
			name:      "nil",
			v:         nil,
			lookupEnv: none,
			want:      nil,
			wantErr:   envstruct.ErrInvalidValue,
		},
		{
			name:      "not pointer",
			v:         struct{}{},
			lookupEnv: none,
			want:      nil,
			wantErr:   envstruct.ErrInvalidValue,
		},
		{
			name:      "empty struct",
			v:         &struct{}{},
			lookupEnv: none,
			want:      &struct{}{},
			wantErr:   nil,
		},
		{
			name: "empty env",
			v: &struct { //nolint:exhaustruct // populated later
				EnvVar string `env:"ENV_VAR"`
			}{},
			lookupEnv: none,
			want:      nil,
			wantErr:   envstruct.ErrEnvNotSet,
		},
		{
			name: "picks correct env variable",
			v: &struct { //nolint:exhaustruct // populated later
				EnvVar  string `env:"ENV_VAR"`
				EnvVar2 string `env:"ENV_VAR2"`
				Other   string
			}{},
			lookupEnv: func(s string) (string, bool) { return strings.ToLower(s), true },
			want: &struct {
				EnvVar  string `env:"ENV_VAR"`
				EnvVar2 string `env:"ENV_VAR2"`
				Other   string
			}{EnvVar: "env_var", EnvVar2: "env_var2", Other: ""},
			wantErr: nil,
		},
		{
			name:      "typed defaults",
			v:         &typedConfig{}, //nolint:exhaustruct // populated later
			lookupEnv: none,
			want: &typedConfig{
				Addr:      "localhost:0",
				RunDays:   4,
				Tolerance: 0.25,
				Strength:  false,
				Timeout:   30 * time.Second,
				Untagged:  "",
			},
			wantErr: nil,
		},
		{
			name: "typed values from env",
			v:    &typedConfig{}, //nolint:exhaustruct // populated later
			lookupEnv: func(s string) (string, bool) {
				values := map[string]string{
					"RUN_DAYS":  "6",
					"TOLERANCE": "0.1",
					"STRENGTH":  "true",
					"TIMEOUT":   "1m30s",
				}
				v, ok := values[s]
				return v, ok
			},
			want: &typedConfig{
				Addr:      "localhost:0",
				RunDays:   6,
				Tolerance: 0.1,
				Strength:  true,
				Timeout:   90 * time.Second,
				Untagged:  "",
			},
			wantErr: nil,
		},
		{
			name:      "invalid int",
			v:         &typedConfig{}, //nolint:exhaustruct // populated later
			lookupEnv: func(s string) (string, bool) { return "four", s == "RUN_DAYS" },
			want:      nil,
			wantErr:   envstruct.ErrInvalidValue,
		},
		{
			name: "unsupported type",
			v: &struct { //nolint:exhaustruct // populated later
				EnvVar []string `env:"ENV_VAR" envDefault:"a,b"`
			}{},
			lookupEnv: none,
			want:      nil,
			wantErr:   envstruct.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := envstruct.Populate(tt.v, tt.lookupEnv)

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Populate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Populate() unexpected error = %v", err)
				}
				if diff := cmp.Diff(tt.want, tt.v); diff != "" {
					t.Errorf("Populate() mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestPopulate_collectsAllErrors(t *testing.T) {
	var cfg struct {
		A string `env:"A"`
		B int    `env:"B"`
	}
	err := envstruct.Populate(&cfg, func(s string) (string, bool) { return "nope", s == "B" })
	if !errors.Is(err, envstruct.ErrEnvNotSet) {
		t.Errorf("expected ErrEnvNotSet in %v", err)
	}
	if !errors.Is(err, envstruct.ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue in %v", err)
	}
}
