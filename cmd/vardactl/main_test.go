package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersAdminSubcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["reschedule-task"])
	assert.True(t, names["activate-sample"])
	assert.True(t, names["deactivate-sample"])

	driverFlag := root.PersistentFlags().Lookup("db-driver")
	dsnFlag := root.PersistentFlags().Lookup("db-dsn")
	require.NotNil(t, driverFlag)
	require.NotNil(t, dsnFlag)
}

func TestSubcommandsRequireExactlyOneArgument(t *testing.T) {
	rescheduleCmd := newRescheduleTaskCmd()
	assert.Error(t, rescheduleCmd.Args(rescheduleCmd, nil))
	assert.Error(t, rescheduleCmd.Args(rescheduleCmd, []string{"a", "b"}))
	assert.NoError(t, rescheduleCmd.Args(rescheduleCmd, []string{"task-1"}))

	activateCmd := newActivateSampleCmd()
	assert.Error(t, activateCmd.Args(activateCmd, nil))
	assert.NoError(t, activateCmd.Args(activateCmd, []string{"sample-1"}))

	deactivateCmd := newDeactivateSampleCmd()
	assert.Error(t, deactivateCmd.Args(deactivateCmd, nil))
	assert.NoError(t, deactivateCmd.Args(deactivateCmd, []string{"sample-1"}))
}
