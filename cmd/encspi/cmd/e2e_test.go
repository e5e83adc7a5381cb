package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the root command with args and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// Read in background so a full pipe cannot block the command
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	// Reset flags to prevent accumulation between tests
	verbose = false
	regsInit, regsPHY = false, false
	sendFile, sendCount = "", 1
	scriptInit = false

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	<-done
	return buf.String(), err
}

func simArgs(t *testing.T, args ...string) []string {
	cfg := filepath.Join(t.TempDir(), "board.json")
	return append(args, "--config", cfg, "--bus", "simulator", "--irq", "poll", "--mac", "02:00:00:00:00:42")
}

func TestCommandsE2E(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "check.enc")
	if err := os.WriteFile(script, []byte(`# sanity checks
reset
expect EREVID 0x06
write ERXND 0x0FFF
read ERXND
phy read PHID1
`), 0644); err != nil {
		t.Fatal(err)
	}
	failing := filepath.Join(dir, "fail.enc")
	if err := os.WriteFile(failing, []byte("reset\nexpect EREVID 0x02\n"), 0644); err != nil {
		t.Fatal(err)
	}
	frameFile := filepath.Join(dir, "frame.bin")
	if err := os.WriteFile(frameFile, bytes.Repeat([]byte{0xAB}, 100), 0644); err != nil {
		t.Fatal(err)
	}
	broadcast := "ffffffffffff020000000042" + "0806" + strings.Repeat("00", 46)

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name: "info",
			args: simArgs(t, "info"),
			wantContain: []string{
				"ENC28J60 Information:",
				"Revision:  B7 (0x06)",
				"MAC:       02:00:00:00:00:42",
				"PHY ID:    0x00831400",
				"Link:      up",
				"RX ring:   0x0000-0x19FF (6656 bytes)",
				"TX window: 0x1A00-0x1FFF (1536 bytes)",
			},
		},
		{
			name: "regs after bring-up",
			args: simArgs(t, "regs", "--init", "--phy"),
			wantContain: []string{
				"bank0:",
				"ERXNDL    0xFF",
				"ERXNDH    0x19",
				"bank3:",
				"EREVID    0x06",
				"common:",
				"PHID1     0x0083",
			},
		},
		{
			name:        "send hex",
			args:        simArgs(t, "send", broadcast, "--count", "2"),
			wantContain: []string{"Sent 60 bytes: bytes=64 collisions=0 done=true abort=false latecol=false"},
		},
		{
			name:        "send file",
			args:        simArgs(t, "send", "--file", frameFile),
			wantContain: []string{"Sent 100 bytes: bytes=104"},
		},
		{
			name:        "send without interrupt line",
			args:        append(simArgs(t, "send", broadcast), "--irq", "none"),
			wantContain: []string{"Sent 60 bytes: bytes=64"},
		},
		{
			name:    "send bad hex",
			args:    simArgs(t, "send", "zz"),
			wantErr: true,
		},
		{
			name:    "send nothing",
			args:    simArgs(t, "send"),
			wantErr: true,
		},
		{
			name:        "script",
			args:        simArgs(t, "script", script),
			wantContain: []string{"reset, revision B7 (0x06)", "ERXND    = 0x0FFF", "PHID1    = 0x0083"},
		},
		{
			name:    "script expect failure",
			args:    simArgs(t, "script", failing),
			wantErr: true,
		},
		{
			name:    "unknown bus",
			args:    append(simArgs(t, "info"), "--bus", "parallel"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := runCLI(t, tt.args...)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v\nOutput: %s", err, output)
				return
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}
