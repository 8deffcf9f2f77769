package osutil

import (
	"runtime"
	"testing"
)

func TestUserHomeDir(t *testing.T) {
	// not parallel because it sets env vars
	type testCase struct {
		home, userProfile, want string
	}

	tests := []testCase{
		{
			// Prefer $HOME on all platforms
			home:        "home",
			userProfile: "userProfile",
			want:        "home",
		},
	}
	if runtime.GOOS == "windows" {
		tests = append(tests, testCase{
			home:        "",
			userProfile: "userProfile",
			want:        "userProfile",
		})
	}

	for _, test := range tests {
		t.Setenv("HOME", test.home)
		t.Setenv("USERPROFILE", test.userProfile)

		got, err := UserHomeDir()
		if err != nil {
			t.Errorf("HOME=%q USERPROFILE=%q UserHomeDir() error = %v", test.home, test.userProfile, err)
		}
		if got != test.want {
			t.Errorf("HOME=%q USERPROFILE=%q UserHomeDir() = %q, want %q", test.home, test.userProfile, got, test.want)
		}
	}
}
