/*
 * SPDX-License-Identifier: Apache-2.0
 */

package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerRequiresCollectors(t *testing.T) {
	_, err := NewServer(WithAddress("127.0.0.1:0"))
	require.Error(t, err)
}

func TestNewServerRequiresAddress(t *testing.T) {
	_, err := NewServer(WithCollectors(NewCollectors()))
	require.Error(t, err)
}

func TestServerServesMetricsEndpoint(t *testing.T) {
	collectors := NewCollectors()
	collectors.BlocksEmitted.Add(3)

	srv, err := NewServer(WithAddress("127.0.0.1:19469"), WithCollectors(collectors))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://127.0.0.1:19469/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bootwarm_reducer_blocks_emitted_total 3")

	cancel()
	require.NoError(t, <-done)
}
