// Command kaypro emulates the Kaypro family of Z80 CP/M computers.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	kaypro "github.com/eneilson-zz/izkaypro"
)

var (
	flagModel       string
	flagDiskA       string
	flagDiskB       string
	flagHD          string
	flagROM         string
	flagSpeed       float64
	flagCPUTrace    bool
	flagIOTrace     bool
	flagFDCTrace    bool
	flagFDCTraceRW  bool
	flagCRTCTrace   bool
	flagSIOTrace    bool
	flagRTCTrace    bool
	flagWDTrace     bool
	flagROMTrace    bool
	flagBDOSTrace   bool
	flagTraceAll    bool
	flagSerial      string
	flagDiagnostics bool
	flagBootTest    bool
	flagSeedK10HD   bool
	flagConfig      string
)

var rootCmd = &cobra.Command{
	Use:                   "kaypro [DISKA] [DISKB]",
	Short:                 "izkaypro - Kaypro Z80 emulator",
	Long:                  "izkaypro emulates the Kaypro II / 4 / 10 family of Z80 CP/M computers.",
	Args:                  cobra.MaximumNArgs(2),
	DisableFlagsInUseLine: true,
	SilenceUsage:          true,
	RunE:                  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagModel, "model", "", "Kaypro model (kaypro_ii|kaypro4_83|kaypro4_84|turbo_rom|kayplus_84|kaypro10|custom)")
	f.StringVarP(&flagDiskA, "disk-a", "a", "", "Disk A image path (overrides positional/config)")
	f.StringVar(&flagDiskB, "disk-b", "", "Disk B image path (overrides positional/config)")
	f.StringVar(&flagHD, "hd", "", "Hard disk image path (Kaypro 10)")
	f.StringVar(&flagROM, "rom", "", "ROM image path (implies --model=custom)")
	f.Float64Var(&flagSpeed, "speed", 0, "CPU speed in MHz, 1-100 in 0.5 steps; negative or 0 = unlimited")
	f.BoolVarP(&flagCPUTrace, "cpu-trace", "c", false, "Trace CPU instruction execution")
	f.BoolVarP(&flagIOTrace, "io-trace", "i", false, "Trace port IN/OUT")
	f.BoolVarP(&flagFDCTrace, "fdc-trace", "f", false, "Trace floppy disk controller access")
	f.BoolVarP(&flagFDCTraceRW, "fdc-trace-rw", "w", false, "Trace floppy disk controller data transfers")
	f.BoolVarP(&flagCRTCTrace, "crtc-trace", "v", false, "Accepted; the CRTC produces no trace output")
	f.BoolVar(&flagSIOTrace, "sio-trace", false, "Accepted; the Z80-SIO produces no trace output")
	f.BoolVar(&flagRTCTrace, "rtc-trace", false, "Accepted; the RTC produces no trace output")
	f.BoolVar(&flagWDTrace, "wd-trace", false, "Accepted; the WD1002 produces no trace output")
	f.BoolVarP(&flagROMTrace, "rom-trace", "r", false, "Accepted; ROM entrypoint calls produce no trace output")
	f.BoolVarP(&flagBDOSTrace, "bdos-trace", "b", false, "Accepted; CP/M BDOS calls produce no trace output")
	f.BoolVar(&flagTraceAll, "trace-all", false, "Enable every trace flag")
	f.StringVar(&flagSerial, "serial", "", "Host serial device to wire to SIO channel A")
	f.BoolVarP(&flagDiagnostics, "diagnostics", "d", false, "Run ROM/RAM/VRAM diagnostics then exit")
	f.BoolVar(&flagBootTest, "boot-test", false, "Boot to a budget then exit, reporting PASS/FAIL")
	f.BoolVar(&flagSeedK10HD, "seed-k10-hd", false, "Seed the Kaypro 10 hard disk boot sectors from disk A, then exit")
	f.StringVar(&flagConfig, "config", "izkaypro.toml", "Configuration file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := kaypro.LoadConfig(flagConfig)

	diskA, diskB := flagDiskA, flagDiskB
	if diskA == "" && len(args) > 0 && args[0] != "$" {
		diskA = args[0]
	}
	if diskB == "" && len(args) > 1 {
		diskB = args[1]
	}
	cfg.ApplyCLIOverrides(flagModel, flagROM, diskA, diskB)

	welcome := fmt.Sprintf("izkaypro - Kaypro Emulator\nConfiguration: %s", cfg.DisplayName())
	fmt.Println(welcome)

	romPath := cfg.ROMPath()
	rom, err := kaypro.LoadROM(romPath, nil)
	if err != nil {
		return err
	}

	mediaA := kaypro.NewMedia(cfg.MediaFormatValue(), cfg.Side1SectorBase())
	if err := mediaA.LoadDisk(cfg.DefaultDiskA()); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	mediaB := kaypro.NewMedia(cfg.MediaFormatValue(), cfg.Side1SectorBase())
	if err := mediaB.LoadDisk(cfg.DefaultDiskB()); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	var wd1002 *kaypro.WD1002
	hdPath := flagHD
	if cfg.KayproModel() == kaypro.ModelKaypro10 || hdPath != "" {
		if hdPath == "" {
			hdPath = "disks/kaypro10.hd"
		}
		disk, err := kaypro.OpenHardDiskImage(hdPath)
		if err != nil {
			return err
		}
		if flagSeedK10HD {
			if err := disk.SeedKaypro10FromFloppy(mediaA); err != nil {
				return err
			}
			fmt.Println("Kaypro 10 hard disk boot sectors seeded from disk A.")
			return nil
		}
		wd1002 = kaypro.NewWD1002(disk)
	} else if flagSeedK10HD {
		return fmt.Errorf("--seed-k10-hd requires --hd or --model kaypro10")
	}

	any := flagTraceAll || flagCPUTrace || flagIOTrace || flagFDCTrace || flagFDCTraceRW ||
		flagCRTCTrace || flagSIOTrace || flagRTCTrace || flagWDTrace || flagROMTrace || flagBDOSTrace
	if flagTraceAll {
		flagCPUTrace, flagIOTrace, flagFDCTrace, flagFDCTraceRW = true, true, true, true
		flagCRTCTrace, flagSIOTrace, flagRTCTrace, flagWDTrace = true, true, true, true
		flagROMTrace, flagBDOSTrace = true, true
	}

	m := kaypro.NewMachine(cfg.KayproModel(), rom, cfg.VideoModeValue(), mediaA, mediaB, wd1002, flagIOTrace)
	m.SetTracers(flagFDCTrace, flagFDCTraceRW, flagCRTCTrace, flagSIOTrace, flagRTCTrace, flagIOTrace, flagROMTrace, flagBDOSTrace)
	if cfg.KayproModel() == kaypro.ModelKayPLUS84 {
		m.SetClockFixup(true)
	}

	cpu := kaypro.NewCPU(m)
	cpu.SetTracer(kaypro.NewTracer("cpu", flagCPUTrace))

	if flagDiagnostics {
		results := kaypro.RunDiagnostics(m, len(rom))
		results = append(results, kaypro.TestVRAM(m.CRTC))
		results = append(results, kaypro.TestVRAMViaPorts(m.CRTC))
		ok := kaypro.PrintResults(os.Stdout, results)
		if !ok {
			os.Exit(1)
		}
		return nil
	}

	rl := kaypro.NewRunLoop(cpu, m, cfg.KayproModel() == kaypro.ModelKayPLUS84)
	if flagSpeed != 0 {
		rl.SetClockMHz(flagSpeed)
	}
	rl.SetTracing(any)

	if flagBootTest {
		const budget = 50_000_000
		result := kaypro.RunBootTest(rl, cfg.DisplayName(), budget, 30*time.Second)
		kaypro.PrintBootTestResult(os.Stdout, result)
		if !result.Passed {
			os.Exit(1)
		}
		return nil
	}

	return runInteractive(cfg, m, cpu, rl, mediaA, mediaB, any)
}

func runInteractive(cfg kaypro.Config, m *kaypro.Machine, cpu *kaypro.CPU, rl *kaypro.RunLoop, mediaA, mediaB *kaypro.Media, anyTrace bool) error {
	kb, err := kaypro.NewKeyboard()
	if err != nil {
		return err
	}
	defer kb.Close()

	var serial *kaypro.SerialPort
	if flagSerial != "" {
		serial, err = kaypro.OpenSerialPort(flagSerial)
		if err != nil {
			return err
		}
		defer serial.Close()
		serial.Pump()
	}

	screen := kaypro.NewScreen()

	quit := false
	rl.OnHalt = func() {
		fmt.Println("HALT instruction that will never be interrupted")
	}
	rl.OnRefresh = func() {
		kb.ConsumeInput(m.SIO.B)
		if serial != nil {
			serial.DrainRX(m.SIO.A)
			serial.DrainTX(m.SIO.A)
		}
		for _, c := range kb.TakeCommands() {
			switch c {
			case kaypro.CmdQuit:
				mediaA.FlushDisk()
				mediaB.FlushDisk()
				quit = true
			case kaypro.CmdTraceCPU:
				flagCPUTrace = !flagCPUTrace
				cpu.SetTracer(kaypro.NewTracer("cpu", flagCPUTrace))
			default:
				// Help/status/disk-swap/save/speed overlays are host-UI
				// sugar with no effect on emulated state; acknowledged but
				// not rendered here.
			}
		}
		out := screen.Render(m)
		if out != "" {
			os.Stdout.WriteString(out)
		}
	}

	for !quit {
		if !rl.Step() {
			break
		}
	}
	mediaA.FlushDisk()
	mediaB.FlushDisk()
	return nil
}
