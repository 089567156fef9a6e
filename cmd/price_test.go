package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resale-pipeline/services"
)

func TestMergeGuidanceKeepsExplicitFlags(t *testing.T) {
	defaults := services.DefaultGuidanceConfig()
	flags := services.GuidanceConfig{FeeRate: 0.10, OutboundShipping: -1, FixedCosts: 0, ShippingIn: -1, TargetMargin: -1}

	got := mergeGuidance(flags, defaults)

	assert.Equal(t, 0.10, got.FeeRate)
	assert.Equal(t, defaults.OutboundShipping, got.OutboundShipping)
	assert.Equal(t, 0.0, got.FixedCosts)
	assert.Equal(t, defaults.ShippingIn, got.ShippingIn)
	assert.Equal(t, defaults.TargetMargin, got.TargetMargin)
}

func TestPriceCommandWritesGuidanceCSV(t *testing.T) {
	dir := t.TempDir()
	comps := filepath.Join(dir, "comps.csv")
	out := filepath.Join(dir, "out", "guidance.csv")
	require.NoError(t, os.WriteFile(comps, []byte("item,sold_price,title\n"+
		"watch,$200.00,Seiko diver\n"+
		"watch,$210.00,Seiko diver\n"+
		"empty,0,\n"), 0o644))

	rootCmd.SetArgs([]string{"price", "--comps", comps, "--out", out})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "item,retained,excluded,median,low,high,confidence,max_buy,reason_code,reason", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "watch,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "empty,0,1,"), lines[2])
}
