package kaypro

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "kaypro4_84", cfg.Model)
	assert.Equal(t, VideoConfigSy6545, cfg.VideoMode)
	assert.Equal(t, DiskConfigDSDD, cfg.DiskFormat)
}

func TestLoadConfigMissingFileFallsBackToDefault(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "izkaypro.toml")
	const body = `
model = "kaypro10"
disk_a = "mydisk.img"
`
	err := os.WriteFile(path, []byte(body), 0o644)
	assert.NoError(t, err)

	cfg := LoadConfig(path)
	assert.Equal(t, "kaypro10", cfg.Model)
	assert.Equal(t, "mydisk.img", cfg.DiskA)
}

func TestLoadConfigUnparsableFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "izkaypro.toml")
	assert.NoError(t, os.WriteFile(path, []byte("not = [valid toml"), 0o644))

	cfg := LoadConfig(path)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyCLIOverridesKnownModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyCLIOverrides("kaypro_ii", "", "a.img", "b.img")
	assert.Equal(t, "kaypro_ii", cfg.Model)
	assert.Equal(t, "a.img", cfg.DiskA)
	assert.Equal(t, "b.img", cfg.DiskB)
}

func TestApplyCLIOverridesUnknownModelKeepsPrior(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyCLIOverrides("not_a_real_model", "", "", "")
	assert.Equal(t, "kaypro4_84", cfg.Model)
}

func TestApplyCLIOverridesROMForcesCustomModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyCLIOverrides("", "myrom.rom", "", "")
	assert.Equal(t, "custom", cfg.Model)
	assert.Equal(t, "myrom.rom", cfg.ROMFile)
}

func TestConfigPresetLookupKaypro10(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "kaypro10"
	assert.Equal(t, ModelKaypro10, cfg.KayproModel())
	assert.Equal(t, videoSy6545CRTC, cfg.VideoModeValue())
	assert.Equal(t, DSDD, cfg.MediaFormatValue())
	assert.Equal(t, 10, cfg.Side1SectorBase())
	assert.Equal(t, "disks/system/cpm22g-rom292a.img", cfg.DefaultDiskA())
	assert.Equal(t, "Kaypro 10", cfg.DisplayName())
}

func TestConfigPresetLookupKayPLUSUsesZeroSectorBase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "kayplus_84"
	assert.Equal(t, 0, cfg.Side1SectorBase())
}

func TestConfigUnknownModelFallsBackToKaypro484Preset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "totally_bogus"
	assert.Equal(t, ModelKaypro4_84, cfg.KayproModel())
	assert.Equal(t, "Kaypro 4-84", cfg.DisplayName())
}

func TestConfigCustomModelHonorsOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "custom"
	cfg.ROMFile = "custom.rom"
	cfg.VideoMode = VideoConfigMemoryMapped
	cfg.DiskFormat = DiskConfigSSDD
	base := 5
	cfg.Side1SectorBase = &base

	assert.Equal(t, "custom.rom", cfg.ROMPath())
	assert.Equal(t, videoMemoryMapped, cfg.VideoModeValue())
	assert.Equal(t, SSDD, cfg.MediaFormatValue())
	assert.Equal(t, 5, cfg.Side1SectorBase())
}

func TestConfigDiskOverridesWinOverPreset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "kaypro4_84"
	cfg.DiskA = "override-a.img"
	assert.Equal(t, "override-a.img", cfg.DefaultDiskA())
	assert.Equal(t, "disks/blank_disks/cpm22-kaypro4-blank.img", cfg.DefaultDiskB())
}
