//go:build test

package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/bleadv/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs bleadv commands in-process. All cmd/bleadv suites
// embed it.
type CommandTestSuite struct {
	suite.Suite

	Helper *testutils.TestHelper
}

func (s *CommandTestSuite) SetupSuite() {
	s.Helper = testutils.NewTestHelper(s.T())
}

// SetupTest restores every flag of every command to its default so tests do
// not leak flag values into each other.
func (s *CommandTestSuite) SetupTest() {
	resetFlags(rootCmd)
	paramsUUIDs = nil
	color.NoColor = true
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Value.Type() != "stringSlice" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// ExecuteCommand runs the root command with args and returns stdout and
// the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if err != nil {
		s.T().Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

// WriteFile writes content to a file in a per-test temp directory.
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}
