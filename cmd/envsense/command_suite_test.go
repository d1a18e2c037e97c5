package main

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/srg/envsense/internal/testutils"
)

// syncBuffer is a bytes.Buffer safe to read while a command is still writing
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs envsense commands against the mocked peripheral
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite

	Stdout *syncBuffer
	Stderr *syncBuffer
}

func (s *CommandTestSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()
	s.Stdout = &syncBuffer{}
	s.Stderr = &syncBuffer{}
	resetFlags()
}

// resetFlags undoes flag values left behind by a previous Execute
func resetFlags() {
	for _, name := range []string{"log-level", "config"} {
		_ = rootCmd.PersistentFlags().Set(name, "")
	}
	_ = rootCmd.PersistentFlags().Set("verbose", "false")
	for _, c := range rootCmd.Commands() {
		_ = c.Flags().Set("help", "false")
	}

	connectJSON, connectFollow, watchJSON = false, false, false
	readFormat = "value"
	scanDuration, scanFiltered, scanJSON = 0, false, false
}

// ExecuteContext runs the root command with args, non-interactive stdin and captured output
func (s *CommandTestSuite) ExecuteContext(ctx context.Context, args ...string) error {
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetOut(s.Stdout)
	rootCmd.SetErr(s.Stderr)
	rootCmd.SetArgs(args)
	// cobra only hands the root context to subcommands that have none yet
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}
	return rootCmd.ExecuteContext(ctx)
}

// Execute runs the root command and returns stdout
func (s *CommandTestSuite) Execute(args ...string) (string, error) {
	err := s.ExecuteContext(context.Background(), args...)
	return s.Stdout.String(), err
}

