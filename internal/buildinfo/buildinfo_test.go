package buildinfo

import "testing"

func TestVersion(t *testing.T) {
	saved := CommitHash
	defer func() { CommitHash = saved }()

	CommitHash = ""
	if got := Version(); got != "dev" {
		t.Errorf("Expected dev, got %s", got)
	}
	CommitHash = "abc1234"
	if got := Current().Version; got != "abc1234" {
		t.Errorf("Expected abc1234, got %s", got)
	}
}
