package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupMerge_RightBiased(t *testing.T) {
	base := NewSetup()
	base.Defaults["server.port"] = 8080
	base.Fields["server.port"] = Field{Type: "int"}

	frag := NewSetup()
	frag.Defaults["server.port"] = 9090
	frag.Fields["server.port"] = Field{Type: "int", Description: "listen port"}

	base.Merge(frag)

	assert.Equal(t, 9090, base.Defaults["server.port"])
	assert.Equal(t, "listen port", base.Fields["server.port"].Description)
}

func TestSetupMerge_SecretKeysAccumulate(t *testing.T) {
	base := NewSetup()
	base.SecretKeys = []string{"database.password"}

	frag := NewSetup()
	frag.SecretKeys = []string{"api.token", "database.password"}

	base.Merge(frag)

	// Duplicates are tolerated downstream.
	assert.Equal(t, []string{"database.password", "api.token", "database.password"}, base.SecretKeys)
}

func TestSetupMerge_Nil(t *testing.T) {
	base := NewSetup()
	base.Defaults["x"] = 1
	base.Merge(nil)
	assert.Equal(t, 1, base.Defaults["x"])
}

func TestSetupDeclared(t *testing.T) {
	s := NewSetup()
	s.Fields["server.port"] = Field{Type: "int"}
	s.Defaults["plugins.disabled"] = []string{}
	s.Fields["extras"] = Field{Type: "map"}

	assert.True(t, s.declared("server.port"))
	assert.True(t, s.declared("plugins.disabled"))
	assert.True(t, s.declared("extras.anything.nested"), "declared prefix covers its subtree")
	assert.False(t, s.declared("server.host"))
	assert.False(t, s.declared("unknown"))
}
