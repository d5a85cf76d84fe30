package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	if err := ValidateVersion(CurrentVersion); err != nil {
		t.Fatalf("ValidateVersion(current) = %v", err)
	}
	for _, v := range []int{-1, 0, CurrentVersion + 1} {
		err := ValidateVersion(v)
		var verr *VersionError
		if !errors.As(err, &verr) {
			t.Fatalf("ValidateVersion(%d) = %v, want VersionError", v, err)
		}
	}
	if err := ValidateVersion(CurrentVersion + 1); !strings.Contains(err.Error(), "newer") {
		t.Fatalf("error = %v", err)
	}
}
