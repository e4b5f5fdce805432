package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/binw666/ethdma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"dmactl"}, args...))
	return out.String(), err
}

func TestSelftest(t *testing.T) {
	for _, mac := range []string{"eqos", "mgbe", "mgbe-t26x"} {
		for _, ptp := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/ptp=%v", mac, ptp), func(t *testing.T) {
				args := []string{"selftest", "--mac", mac, "--frames", "50", "--ring", "16", "--size", "100"}
				if ptp {
					args = append(args, "--ptp")
				}
				out, err := runApp(t, args...)
				require.NoError(t, err)

				var res struct {
					Mac        string `yaml:"mac"`
					Version    uint32 `yaml:"version"`
					Sent       int    `yaml:"sent"`
					Received   int    `yaml:"received"`
					Mismatched int    `yaml:"mismatched"`
					Timestamps int    `yaml:"rx_timestamps"`
					Chans      map[uint32]struct {
						QRxPktN uint64 `yaml:"q_rx_pkt_n"`
					} `yaml:"chans"`
				}
				require.NoError(t, yaml.Unmarshal([]byte(out), &res))
				assert.Equal(t, mac, res.Mac)
				assert.NotZero(t, res.Version)
				assert.Equal(t, 50, res.Sent)
				assert.Equal(t, 50, res.Received)
				assert.Zero(t, res.Mismatched)
				if ptp {
					assert.Equal(t, 50, res.Timestamps)
				} else {
					assert.Zero(t, res.Timestamps)
				}
				assert.EqualValues(t, 50, res.Chans[0].QRxPktN)
			})
		}
	}
}

func TestSelftestChannels(t *testing.T) {
	out, err := runApp(t, "selftest", "--mac", "mgbe", "--chans", "3", "--frames", "30", "--ring", "8", "--vlan", "7", "--dump")
	require.NoError(t, err)
	assert.Contains(t, out, "flags=")

	_, err = runApp(t, "selftest", "--chans", "0")
	assert.Error(t, err)
	_, err = runApp(t, "selftest", "--mac", "fddi")
	assert.Error(t, err)
	_, err = runApp(t, "selftest", "--ring", "6")
	assert.ErrorIs(t, err, ethdma.ErrRingSize)
}

func TestDecode(t *testing.T) {
	rdes3 := ethdma.Rdes3FD | ethdma.Rdes3LD | 60
	out, err := runApp(t, "decode", "--mac", "mgbe", "0", "0", "0", fmt.Sprintf("%#x", rdes3))
	require.NoError(t, err)

	var res decodeResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.True(t, res.First)
	assert.True(t, res.Last)
	assert.True(t, res.Valid)
	assert.False(t, res.Own)
	assert.EqualValues(t, 60, res.Length)

	_, err = runApp(t, "decode", "0", "0")
	assert.Error(t, err)
	_, err = runApp(t, "decode", "0", "0", "0", "zz")
	assert.Error(t, err)
}

func TestRxBufLen(t *testing.T) {
	out, err := runApp(t, "rxbuflen", "--mtu", "1500")
	require.NoError(t, err)
	assert.Equal(t, "1552\n", out)

	_, err = runApp(t, "rxbuflen")
	assert.Error(t, err)
	_, err = runApp(t, "rxbuflen", "--mtu", "20000")
	assert.ErrorIs(t, err, ethdma.ErrInvalidArg)
}

func TestConfigCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("mac: mgbe\nchans: [0, 1]\nmtu: 9000\n"), 0o644))
	out, err := runApp(t, "config", "check", good)
	require.NoError(t, err)

	cfg := map[string]any{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "mgbe", cfg["mac"])
	assert.Equal(t, 9056, cfg["rx_buf_len"])

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mac: eqos\ntx_ring_size: 5\n"), 0o644))
	_, err = runApp(t, "config", "check", bad)
	assert.Error(t, err)

	_, err = runApp(t, "config", "check")
	assert.Error(t, err)
}
