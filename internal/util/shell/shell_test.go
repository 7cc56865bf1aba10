package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, "ssh -S '/tmp/a b.sock' -O exit host", Quote("ssh", "-S", "/tmp/a b.sock", "-O", "exit", "host"))
	assert.Equal(t, "echo 'it'\"'\"'s'", Quote("echo", "it's"))
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "ansible-playbook", Args: []string{"-i", "hosts file", "site.yml"}}
	assert.Equal(t, "ansible-playbook -i 'hosts file' site.yml", c.String())
}

func TestExecRunner(t *testing.T) {
	out, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo $GREETING; echo oops >&2"},
		Env:  map[string]string{"GREETING": "hello"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
	assert.Contains(t, string(out), "oops")

	_, err = ExecRunner{}.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	assert.Error(t, err)
}
