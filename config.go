package kaypro

import (
	"os"

	"github.com/BurntSushi/toml"
)

// defaultConfigFile is the TOML file loaded when no --config override is
// given; absence of the file is not an error, just an empty configuration.
const defaultConfigFile = "izkaypro.toml"

// VideoModeConfig is the TOML-facing spelling of videoMode.
type VideoModeConfig string

const (
	VideoConfigMemoryMapped VideoModeConfig = "memory_mapped"
	VideoConfigSy6545       VideoModeConfig = "sy6545"
)

// DiskFormatConfig is the TOML-facing spelling of MediaFormat.
type DiskFormatConfig string

const (
	DiskConfigSSDD DiskFormatConfig = "ssdd"
	DiskConfigDSDD DiskFormatConfig = "dsdd"
)

// Config is the TOML configuration file's shape plus every CLI override
// that can land on top of it. An unknown model name given on the command
// line logs a warning to stderr and keeps the prior model; an unknown name
// read from the TOML file is kept as-is and resolves to the kaypro4_84
// preset. Neither aborts startup.
type Config struct {
	Model            string           `toml:"model"`
	ROMFile          string           `toml:"rom_file"`
	VideoMode        VideoModeConfig  `toml:"video_mode"`
	DiskFormat       DiskFormatConfig `toml:"disk_format"`
	Side1SectorBase  *int             `toml:"side1_sector_base"`
	DiskA            string           `toml:"disk_a"`
	DiskB            string           `toml:"disk_b"`
}

// DefaultConfig returns a Config equivalent to an absent/empty TOML file.
func DefaultConfig() Config {
	return Config{
		Model:      "kaypro4_84",
		VideoMode:  VideoConfigSy6545,
		DiskFormat: DiskConfigDSDD,
	}
}

// LoadConfig reads and parses path, falling back to DefaultConfig on any
// error (missing file, unparsable TOML): a broken config is a deployment
// detail, never a reason to refuse to start.
func LoadConfig(path string) Config {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		os.Stderr.WriteString("warning: failed to parse " + path + ": " + err.Error() + "\n")
		os.Stderr.WriteString("using default configuration\n")
		return DefaultConfig()
	}
	return cfg
}

// ApplyCLIOverrides layers CLI flag values on top of a loaded Config; a
// non-empty override always wins over the TOML value.
func (c *Config) ApplyCLIOverrides(model, rom, diskA, diskB string) {
	if model != "" {
		if _, ok := modelTable[model]; ok {
			c.Model = model
		} else {
			os.Stderr.WriteString("warning: unknown model '" + model + "', keeping prior setting\n")
		}
	}
	if rom != "" {
		c.ROMFile = rom
		c.Model = "custom"
	}
	if diskA != "" {
		c.DiskA = diskA
	}
	if diskB != "" {
		c.DiskB = diskB
	}
}

// modelPreset bundles the per-model defaults the original implementation
// hardcodes into match arms; Custom reads the remaining Config fields
// instead of a preset.
type modelPreset struct {
	kayproModel   kayproModel
	romPath       string
	video         videoMode
	diskFormat    MediaFormat
	side1SectorBase int
	defaultDiskA  string
	defaultDiskB  string
	displayName   string
}

var modelTable = map[string]modelPreset{
	"kaypro_ii": {
		kayproModel: ModelKayproII, romPath: "roms/81-149c.rom", video: videoMemoryMapped,
		diskFormat: SSDD, side1SectorBase: 10,
		defaultDiskA: "disks/system/cpm22-rom149.img",
		defaultDiskB: "disks/blank_disks/cpm22-rom149-blank.img",
		displayName:  "Kaypro II",
	},
	"kaypro4_83": {
		kayproModel: ModelKaypro4_83, romPath: "roms/81-232.rom", video: videoMemoryMapped,
		diskFormat: DSDD, side1SectorBase: 10,
		defaultDiskA: "disks/system/k484-cpm22f-boot.img",
		defaultDiskB: "disks/blank_disks/cpm22-kaypro4-blank.img",
		displayName:  "Kaypro 4/83",
	},
	"kaypro4_84": {
		kayproModel: ModelKaypro4_84, romPath: "roms/81-292a.rom", video: videoSy6545CRTC,
		diskFormat: DSDD, side1SectorBase: 10,
		defaultDiskA: "disks/system/cpm22g-rom292a.img",
		defaultDiskB: "disks/blank_disks/cpm22-kaypro4-blank.img",
		displayName:  "Kaypro 4-84",
	},
	"turbo_rom": {
		kayproModel: ModelTurboROM, romPath: "roms/trom34.rom", video: videoSy6545CRTC,
		diskFormat: DSDD, side1SectorBase: 10,
		defaultDiskA: "disks/system/k484_turborom_63k_boot.img",
		defaultDiskB: "disks/blank_disks/cpm22-kaypro4-blank.img",
		displayName:  "Kaypro 4-84 TurboROM",
	},
	"kayplus_84": {
		kayproModel: ModelKayPLUS84, romPath: "roms/kplus84.rom", video: videoSy6545CRTC,
		diskFormat: DSDD, side1SectorBase: 0,
		defaultDiskA: "disks/system/kayplus_boot.img",
		defaultDiskB: "disks/blank_disks/cpm22-kaypro4-blank.img",
		displayName:  "Kaypro 4-84 KayPLUS",
	},
	"kaypro10": {
		kayproModel: ModelKaypro10, romPath: "roms/81-292a.rom", video: videoSy6545CRTC,
		diskFormat: DSDD, side1SectorBase: 10,
		defaultDiskA: "disks/system/cpm22g-rom292a.img",
		defaultDiskB: "disks/blank_disks/cpm22-kaypro4-blank.img",
		displayName:  "Kaypro 10",
	},
	"custom": {
		kayproModel: ModelCustom, video: videoSy6545CRTC, diskFormat: DSDD, side1SectorBase: 10,
		displayName: "Custom Kaypro",
	},
}

func (c Config) preset() modelPreset {
	if p, ok := modelTable[c.Model]; ok {
		return p
	}
	return modelTable["kaypro4_84"]
}

// ROMPath returns the ROM file to load for this configuration.
func (c Config) ROMPath() string {
	if c.Model == "custom" && c.ROMFile != "" {
		return c.ROMFile
	}
	return c.preset().romPath
}

// KayproModel returns the internal model tag for this configuration.
func (c Config) KayproModel() kayproModel { return c.preset().kayproModel }

// VideoModeValue returns the internal video mode for this configuration.
func (c Config) VideoModeValue() videoMode {
	if c.Model == "custom" {
		if c.VideoMode == VideoConfigMemoryMapped {
			return videoMemoryMapped
		}
		return videoSy6545CRTC
	}
	return c.preset().video
}

// MediaFormatValue returns the default floppy format for this configuration.
func (c Config) MediaFormatValue() MediaFormat {
	if c.Model == "custom" {
		if c.DiskFormat == DiskConfigSSDD {
			return SSDD
		}
		return DSDD
	}
	return c.preset().diskFormat
}

// Side1SectorBase returns the sector-ID base on side 1: 10 for standard
// Kaypro layouts, 0 for KayPLUS-formatted media.
func (c Config) Side1SectorBase() int {
	if c.Model == "custom" && c.Side1SectorBase != nil {
		return *c.Side1SectorBase
	}
	return c.preset().side1SectorBase
}

// DefaultDiskA / DefaultDiskB return the boot/data disk paths for this
// configuration, honoring any Config-level (TOML) override.
func (c Config) DefaultDiskA() string {
	if c.DiskA != "" {
		return c.DiskA
	}
	return c.preset().defaultDiskA
}

func (c Config) DefaultDiskB() string {
	if c.DiskB != "" {
		return c.DiskB
	}
	return c.preset().defaultDiskB
}

// DisplayName is the short user-facing model name shown in the startup
// banner and the boot-test report.
func (c Config) DisplayName() string { return c.preset().displayName }
