// SPDX-License-Identifier: BSD-3-Clause

package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, reg *Registry) (net.Conn, func()) {
	t.Helper()
	srv := NewServer(reg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(ctx, conn)
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	return conn, func() {
		cancel()
		conn.Close()
		ln.Close()
	}
}

func sendLine(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return reply
}

func TestServer_Ping(t *testing.T) {
	reg := NewRegistry()
	conn, closeFn := startTestServer(t, reg)
	defer closeFn()

	reply := sendLine(t, conn, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(reply), &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, "2.0", resp.JSONRPC)
}

func TestServer_MethodNotFound(t *testing.T) {
	reg := NewRegistry()
	conn, closeFn := startTestServer(t, reg)
	defer closeFn()

	reply := sendLine(t, conn, `{"jsonrpc":"2.0","id":1,"method":"nope"}`)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(reply), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestServer_ParseError(t *testing.T) {
	reg := NewRegistry()
	conn, closeFn := startTestServer(t, reg)
	defer closeFn()

	reply := sendLine(t, conn, `{not json`)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(reply), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestServer_BatchRequest(t *testing.T) {
	reg := NewRegistry()
	conn, closeFn := startTestServer(t, reg)
	defer closeFn()

	reply := sendLine(t, conn, `[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2,"method":"ping"}]`)

	var resps []Response
	require.NoError(t, json.Unmarshal([]byte(reply), &resps))
	require.Len(t, resps, 2)
}

func TestRegistry_CommandsAndHelp(t *testing.T) {
	reg := NewRegistry()
	reg.Add("custom.echo", "Echo back params.", func(ctx context.Context, params json.RawMessage) (any, error) {
		return string(params), nil
	})

	list := reg.List()
	found := false
	for _, c := range list {
		if c.Name == "custom.echo" {
			found = true
		}
	}
	assert.True(t, found)

	help, ok := reg.Help("custom.echo")
	require.True(t, ok)
	assert.Equal(t, "Echo back params.", help)
}

func TestRegistry_Call_Unregistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Call(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrMethodNotFound)
}
