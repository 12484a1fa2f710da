package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinimal(t *testing.T) {
	cfg, err := Parse([]string{"9000"})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.GreaterOrEqual(t, cfg.Shards, 2)
	assert.Equal(t, uint64(1024), cfg.QueueCapacity)
	assert.Equal(t, uint64(4096), cfg.ReportSinkCapacity)
	assert.Equal(t, "0.01", cfg.TickSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}, cfg.Symbols)
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"-shards", "4",
		"-queue-capacity", "256",
		"-report-capacity", "512",
		"-tick-size", "0.25",
		"-log-level", "debug",
		"-symbols", "AAPL, IBM",
		"12345",
	})
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Port)
	assert.Equal(t, 4, cfg.Shards)
	assert.Equal(t, uint64(256), cfg.QueueCapacity)
	assert.Equal(t, uint64(512), cfg.ReportSinkCapacity)
	assert.Equal(t, "0.25", cfg.TickSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"AAPL", "IBM"}, cfg.Symbols)
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{},                            // missing port
		{"9000", "9001"},              // too many positionals
		{"notaport"},                  // non-numeric port
		{"0"},                         // port below range
		{"65536"},                     // port above range
		{"-shards", "1", "9000"},      // shard count below 2
		{"-queue-capacity", "100", "9000"},   // not a power of two
		{"-report-capacity", "100", "9000"},  // not a power of two
		{"-tick-size", "0", "9000"},          // non-positive tick
		{"-tick-size", "abc", "9000"},        // unparseable tick
		{"-log-level", "loud", "9000"},       // unknown level
		{"-symbols", "", "9000"},             // empty universe
		{"-symbols", "TOOLONGSYM", "9000"},   // over 8 bytes
	}
	for _, args := range cases {
		_, err := Parse(args)
		assert.Error(t, err, "args %v should fail", args)
	}
}

func TestValidateDirectly(t *testing.T) {
	valid := Config{
		Port:               9000,
		Shards:             2,
		QueueCapacity:      1024,
		ReportSinkCapacity: 4096,
		TickSize:           "0.01",
		LogLevel:           "info",
		Symbols:            []string{"AAPL"},
	}
	require.NoError(t, valid.Validate())

	c := valid
	c.Port = 0
	assert.Error(t, c.Validate())

	c = valid
	c.QueueCapacity = 0
	assert.Error(t, c.Validate())

	c = valid
	c.Symbols = nil
	assert.Error(t, c.Validate())
}
